// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPDownstreamFetchBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/v1/fetch" {
			t.Errorf("unexpected path: %s", request.URL.Path)
			writer.WriteHeader(http.StatusNotFound)
			return
		}
		var body batchRequest
		if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
			t.Fatalf("decoding request body: %v", err)
		}
		if len(body.Requests) != 2 {
			t.Fatalf("requests = %d, want 2", len(body.Requests))
		}
		if body.Requests[0].Referer != "https://origin.example/" {
			t.Errorf("referer = %q, want forwarded referer", body.Requests[0].Referer)
		}
		if body.TimeoutSeconds <= 0 {
			t.Errorf("timeout_seconds = %d, want positive from context deadline", body.TimeoutSeconds)
		}

		writer.Header().Set("Content-Type", "application/json")
		json.NewEncoder(writer).Encode(BatchResult{
			Resources: []FetchedResource{{
				URL:         body.Requests[0].URL,
				Data:        []byte("pdf bytes"),
				ResourceID:  "res-aabbccddeeff.pdf",
				Filename:    "doc.pdf",
				ContentType: "application/pdf",
			}},
			Failed: []FailedResource{{
				URL:          body.Requests[1].URL,
				ErrorType:    "timeout",
				ErrorMessage: "upstream deadline exceeded",
			}},
		})
	}))
	defer server.Close()

	downstream, err := NewHTTPDownstream(HTTPDownstreamConfig{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewHTTPDownstream: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	result, err := downstream.FetchBatch(ctx, []Request{
		{URL: "https://x.example/doc.pdf", Referer: "https://origin.example/"},
		{URL: "https://x.example/slow.pdf"},
	})
	if err != nil {
		t.Fatalf("FetchBatch: %v", err)
	}

	if len(result.Resources) != 1 || len(result.Failed) != 1 {
		t.Fatalf("resources = %d, failed = %d, want 1 and 1", len(result.Resources), len(result.Failed))
	}
	if !bytes.Equal(result.Resources[0].Data, []byte("pdf bytes")) {
		t.Errorf("data = %q, want round-tripped bytes", result.Resources[0].Data)
	}
	if result.Resources[0].ResourceID != "res-aabbccddeeff.pdf" {
		t.Errorf("resource id = %q", result.Resources[0].ResourceID)
	}
	if result.Failed[0].ErrorType != "timeout" {
		t.Errorf("error type = %q, want timeout", result.Failed[0].ErrorType)
	}
}

func TestHTTPDownstreamServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		http.Error(writer, "fetch service unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	downstream, err := NewHTTPDownstream(HTTPDownstreamConfig{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewHTTPDownstream: %v", err)
	}

	_, err = downstream.FetchBatch(context.Background(), []Request{{URL: "https://x.example/a.pdf"}})
	if err == nil {
		t.Fatal("FetchBatch succeeded against a 503 server")
	}
	if !strings.Contains(err.Error(), "503") {
		t.Errorf("error = %v, want status code in message", err)
	}
}

func TestNewHTTPDownstreamValidation(t *testing.T) {
	if _, err := NewHTTPDownstream(HTTPDownstreamConfig{}); err == nil {
		t.Error("NewHTTPDownstream accepted an empty BaseURL")
	}
	if _, err := NewHTTPDownstream(HTTPDownstreamConfig{BaseURL: "://bad"}); err == nil {
		t.Error("NewHTTPDownstream accepted a malformed BaseURL")
	}
}
