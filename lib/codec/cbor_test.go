// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

func TestMarshalDeterministic(t *testing.T) {
	value := map[string]any{
		"zebra":    1,
		"alpha":    "two",
		"nested":   map[string]any{"b": 2, "a": 1},
		"numbers":  []int{3, 1, 2},
		"truthful": true,
	}

	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	second, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("deterministic encoding produced differing bytes:\n%x\n%x", first, second)
	}
}

func TestRoundTripStruct(t *testing.T) {
	type entry struct {
		Name string         `cbor:"name"`
		Size int64          `cbor:"size"`
		Meta map[string]any `cbor:"meta,omitempty"`
	}

	in := entry{
		Name: "report.md",
		Size: 4096,
		Meta: map[string]any{"pages": int64(3)},
	}

	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var out entry
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Name != in.Name || out.Size != in.Size {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}

func TestDefaultMapType(t *testing.T) {
	data, err := Marshal(map[string]any{"key": "value"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	m, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded type = %T, want map[string]any", decoded)
	}
	if m["key"] != "value" {
		t.Errorf(`m["key"] = %v, want "value"`, m["key"])
	}
}

func TestDiagnose(t *testing.T) {
	data, err := Marshal([]string{"a", "b"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	diag, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if diag != `["a", "b"]` {
		t.Errorf("Diagnose = %q, want %q", diag, `["a", "b"]`)
	}
}
