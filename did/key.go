// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package did

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/multiformats/go-multibase"

	"github.com/aumos-ai/wba-identity/types"
)

const keyPrefix = "did:key:"

// Multicodec varint prefixes for the public key types accepted in did:key.
var (
	secp256k1MulticodecPrefix = []byte{0xe7, 0x01}
	ed25519MulticodecPrefix   = []byte{0xed, 0x01}
	x25519MulticodecPrefix    = []byte{0xec, 0x01}
)

// KeyDID creates a did:key DID from a raw public key. Secp256k1 keys must be
// in 33-byte compressed form.
func KeyDID(keyType types.KeyType, raw []byte) (string, error) {
	encoded, err := EncodeMultibaseKey(keyType, raw)
	if err != nil {
		return "", err
	}
	return keyPrefix + encoded, nil
}

// ParseKeyDID decodes the public key embedded in a did:key DID.
func ParseKeyDID(s string) (types.KeyType, []byte, error) {
	if !strings.HasPrefix(s, keyPrefix) {
		return "", nil, &types.ErrMalformedDID{DID: s, Reason: "not a did:key DID"}
	}
	keyType, raw, err := DecodeMultibaseKey(strings.TrimPrefix(s, keyPrefix))
	if err != nil {
		return "", nil, &types.ErrMalformedDID{DID: s, Reason: err.Error()}
	}
	return keyType, raw, nil
}

// EncodeMultibaseKey encodes a raw public key as multibase base58btc with the
// multicodec prefix for its type.
func EncodeMultibaseKey(keyType types.KeyType, raw []byte) (string, error) {
	codec, err := multicodecPrefix(keyType)
	if err != nil {
		return "", err
	}
	prefixed := append(append([]byte(nil), codec...), raw...)
	encoded, err := multibase.Encode(multibase.Base58BTC, prefixed)
	if err != nil {
		return "", fmt.Errorf("did: multibase encode: %w", err)
	}
	return encoded, nil
}

// DecodeMultibaseKey reverses EncodeMultibaseKey.
func DecodeMultibaseKey(encoded string) (types.KeyType, []byte, error) {
	_, decoded, err := multibase.Decode(encoded)
	if err != nil {
		return "", nil, fmt.Errorf("did: multibase decode: %w", err)
	}
	switch {
	case bytes.HasPrefix(decoded, secp256k1MulticodecPrefix):
		raw := decoded[len(secp256k1MulticodecPrefix):]
		if len(raw) != 33 {
			return "", nil, fmt.Errorf("did: expected 33 secp256k1 key bytes, got %d", len(raw))
		}
		return types.KeyTypeSecp256k1, raw, nil
	case bytes.HasPrefix(decoded, ed25519MulticodecPrefix):
		raw := decoded[len(ed25519MulticodecPrefix):]
		if len(raw) != 32 {
			return "", nil, fmt.Errorf("did: expected 32 Ed25519 key bytes, got %d", len(raw))
		}
		return types.KeyTypeEd25519, raw, nil
	case bytes.HasPrefix(decoded, x25519MulticodecPrefix):
		raw := decoded[len(x25519MulticodecPrefix):]
		if len(raw) != 32 {
			return "", nil, fmt.Errorf("did: expected 32 X25519 key bytes, got %d", len(raw))
		}
		return types.KeyTypeX25519, raw, nil
	default:
		return "", nil, fmt.Errorf("did: unexpected multicodec prefix")
	}
}

func multicodecPrefix(keyType types.KeyType) ([]byte, error) {
	switch keyType {
	case types.KeyTypeSecp256k1:
		return secp256k1MulticodecPrefix, nil
	case types.KeyTypeEd25519:
		return ed25519MulticodecPrefix, nil
	case types.KeyTypeX25519:
		return x25519MulticodecPrefix, nil
	default:
		return nil, fmt.Errorf("did: no multicodec for key type %s", keyType)
	}
}
