// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package diskcache

import (
	"bytes"
	"testing"
)

func testKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestSealOpenRoundTrip(t *testing.T) {
	s, err := newSealer(testKey())
	if err != nil {
		t.Fatalf("newSealer: %v", err)
	}

	plaintext := []byte("cached value bytes")
	sealed, err := s.seal("parsed", "doc-1", plaintext)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if bytes.Contains(sealed, plaintext) {
		t.Error("sealed blob contains the plaintext")
	}
	if len(sealed) != len(plaintext)+sealedValueOverhead {
		t.Errorf("sealed length = %d, want %d", len(sealed), len(plaintext)+sealedValueOverhead)
	}

	opened, err := s.open("parsed", "doc-1", sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Errorf("open = %q, want %q", opened, plaintext)
	}
}

func TestOpenRejectsMovedRow(t *testing.T) {
	s, err := newSealer(testKey())
	if err != nil {
		t.Fatalf("newSealer: %v", err)
	}

	sealed, err := s.seal("parsed", "doc-1", []byte("value"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	if _, err := s.open("parsed", "doc-2", sealed); err == nil {
		t.Error("open succeeded for a value moved to a different key")
	}
	if _, err := s.open("fetch", "doc-1", sealed); err == nil {
		t.Error("open succeeded for a value moved to a different namespace")
	}
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	s, err := newSealer(testKey())
	if err != nil {
		t.Fatalf("newSealer: %v", err)
	}

	sealed, err := s.seal("parsed", "doc", []byte("value"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	sealed[len(sealed)-1] ^= 0xFF

	if _, err := s.open("parsed", "doc", sealed); err == nil {
		t.Error("open succeeded for tampered ciphertext")
	}
}

func TestOpenRejectsBadVersionAndShortBlob(t *testing.T) {
	s, err := newSealer(testKey())
	if err != nil {
		t.Fatalf("newSealer: %v", err)
	}

	sealed, err := s.seal("parsed", "doc", []byte("value"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	sealed[0] = 0x02
	if _, err := s.open("parsed", "doc", sealed); err == nil {
		t.Error("open accepted an unknown version byte")
	}

	if _, err := s.open("parsed", "doc", sealed[:sealedValueOverhead-1]); err == nil {
		t.Error("open accepted a blob shorter than the framing overhead")
	}
}

func TestNewSealerRejectsBadKeyLength(t *testing.T) {
	if _, err := newSealer([]byte("too short")); err == nil {
		t.Error("newSealer accepted a short key")
	}
}

func TestSealUniqueNonces(t *testing.T) {
	s, err := newSealer(testKey())
	if err != nil {
		t.Fatalf("newSealer: %v", err)
	}

	first, err := s.seal("parsed", "doc", []byte("value"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	second, err := s.seal("parsed", "doc", []byte("value"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if bytes.Equal(first, second) {
		t.Error("two seals of the same value produced identical blobs (nonce reuse)")
	}
}
