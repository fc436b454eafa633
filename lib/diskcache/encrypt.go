// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package diskcache

import (
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// sealedValueVersion is the version byte prepended to all sealed
// values. Included as additional authenticated data (AAD) in the AEAD
// Seal/Open call, so tampering with the version byte causes
// authentication failure.
const sealedValueVersion byte = 0x01

// sealedValueOverhead is the total byte overhead per sealed value:
// 1 (version) + 24 (XChaCha20-Poly1305 nonce) + 16 (Poly1305 tag).
const sealedValueOverhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// sealer encrypts cache values at rest. The key comes from the cache
// configuration; there is no key derivation tree here — one deployment
// key seals every value, and the AAD binds each ciphertext to its row.
type sealer struct {
	aead cipher.AEAD
}

// newSealer builds a sealer from a 32-byte key.
func newSealer(key []byte) (*sealer, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("encryption key is %d bytes, need %d", len(key), chacha20poly1305.KeySize)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}
	return &sealer{aead: aead}, nil
}

// seal encrypts plaintext and returns the sealed value in the
// standard format:
//
//	[Version: 1 byte (0x01)] [Nonce: 24 bytes (random)] [Ciphertext+Tag: N+16 bytes]
//
// The version byte, namespace, and key are included as additional
// authenticated data. Binding the ciphertext to its row means copying
// a sealed blob onto another row in the database file produces an
// authentication failure, not a wrong answer.
func (s *sealer) seal(namespace, key string, plaintext []byte) ([]byte, error) {
	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generating random nonce: %w", err)
	}

	aad := buildAAD(sealedValueVersion, namespace, key)

	// Allocate output: version + nonce + ciphertext + tag.
	output := make([]byte, 1+chacha20poly1305.NonceSizeX,
		1+chacha20poly1305.NonceSizeX+len(plaintext)+chacha20poly1305.Overhead)
	output[0] = sealedValueVersion
	copy(output[1:], nonce[:])

	// Seal appends the ciphertext+tag to output.
	return s.aead.Seal(output, nonce[:], plaintext, aad), nil
}

// open decrypts a sealed value produced by seal. It verifies the
// version byte, extracts the nonce, and authenticates the ciphertext
// against the AAD (version byte + namespace + key).
//
// Returns an error if:
//   - The blob is too short to contain version + nonce + tag
//   - The version byte is not sealedValueVersion
//   - AEAD authentication fails (wrong key, tampered ciphertext,
//     value moved to a different row)
func (s *sealer) open(namespace, key string, sealed []byte) ([]byte, error) {
	if len(sealed) < sealedValueOverhead {
		return nil, fmt.Errorf("sealed value is %d bytes, minimum is %d (version + nonce + tag)",
			len(sealed), sealedValueOverhead)
	}

	version := sealed[0]
	if version != sealedValueVersion {
		return nil, fmt.Errorf("sealed value version %d is not supported (expected %d)",
			version, sealedValueVersion)
	}

	nonce := sealed[1 : 1+chacha20poly1305.NonceSizeX]
	ciphertext := sealed[1+chacha20poly1305.NonceSizeX:]

	aad := buildAAD(version, namespace, key)

	plaintext, err := s.aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("AEAD decryption failed (wrong key, tampered data, or mismatched row): %w", err)
	}
	return plaintext, nil
}

// buildAAD constructs the additional authenticated data for a row:
// the format version, the namespace, and the key, NUL-separated.
// Namespaces never contain NUL, so the encoding is unambiguous.
func buildAAD(version byte, namespace, key string) []byte {
	aad := make([]byte, 0, 1+len(namespace)+1+len(key))
	aad = append(aad, version)
	aad = append(aad, namespace...)
	aad = append(aad, 0x00)
	aad = append(aad, key...)
	return aad
}
