// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

// Package keys wraps asymmetric key generation, signing and verification for
// the key types used by DID proofs (secp256k1, P-256, Ed25519) and session
// tokens (RSA). Nothing in this package reads key material from disk; callers
// own key storage and pass bytes or parsed keys in.
package keys

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/aumos-ai/wba-identity/types"
)

const scalarSize = 32

// Sign signs message with priv. ECDSA keys sign the SHA-256 digest and
// return the fixed-length R||S encoding; RSA uses PKCS#1 v1.5 with SHA-256;
// Ed25519 signs the message directly.
func Sign(priv crypto.PrivateKey, message []byte) ([]byte, error) {
	switch k := priv.(type) {
	case *secp256k1.PrivateKey:
		if k == nil {
			return nil, &types.ErrKeyUnavailable{Purpose: "signing"}
		}
		digest := sha256.Sum256(message)
		sig := secpecdsa.Sign(k, digest[:])
		r, s := sig.R(), sig.S()
		rb, sb := r.Bytes(), s.Bytes()
		return append(rb[:], sb[:]...), nil

	case *ecdsa.PrivateKey:
		if k == nil {
			return nil, &types.ErrKeyUnavailable{Purpose: "signing"}
		}
		digest := sha256.Sum256(message)
		r, s, err := ecdsa.Sign(rand.Reader, k, digest[:])
		if err != nil {
			return nil, fmt.Errorf("keys: ecdsa sign: %w", err)
		}
		size := (k.Curve.Params().BitSize + 7) / 8
		return encodeRS(r, s, size), nil

	case ed25519.PrivateKey:
		if len(k) != ed25519.PrivateKeySize {
			return nil, &types.ErrKeyUnavailable{Purpose: "signing"}
		}
		return ed25519.Sign(k, message), nil

	case *rsa.PrivateKey:
		if k == nil {
			return nil, &types.ErrKeyUnavailable{Purpose: "signing"}
		}
		digest := sha256.Sum256(message)
		sig, err := rsa.SignPKCS1v15(rand.Reader, k, crypto.SHA256, digest[:])
		if err != nil {
			return nil, fmt.Errorf("keys: rsa sign: %w", err)
		}
		return sig, nil

	case nil:
		return nil, &types.ErrKeyUnavailable{Purpose: "signing"}

	default:
		return nil, fmt.Errorf("keys: unsupported private key type %T", priv)
	}
}

// Verify reports whether signature is a valid signature of message under pub.
func Verify(pub crypto.PublicKey, message, signature []byte) bool {
	switch k := pub.(type) {
	case *secp256k1.PublicKey:
		if k == nil || len(signature) != 2*scalarSize {
			return false
		}
		var r, s secp256k1.ModNScalar
		if overflow := r.SetByteSlice(signature[:scalarSize]); overflow || r.IsZero() {
			return false
		}
		// Only the low-S form is accepted, so each payload has one valid encoding.
		if overflow := s.SetByteSlice(signature[scalarSize:]); overflow || s.IsZero() || s.IsOverHalfOrder() {
			return false
		}
		digest := sha256.Sum256(message)
		return secpecdsa.NewSignature(&r, &s).Verify(digest[:], k)

	case *ecdsa.PublicKey:
		if k == nil {
			return false
		}
		size := (k.Curve.Params().BitSize + 7) / 8
		if len(signature) != 2*size {
			return false
		}
		r := new(big.Int).SetBytes(signature[:size])
		s := new(big.Int).SetBytes(signature[size:])
		digest := sha256.Sum256(message)
		return ecdsa.Verify(k, digest[:], r, s)

	case ed25519.PublicKey:
		if len(k) != ed25519.PublicKeySize {
			return false
		}
		return ed25519.Verify(k, message, signature)

	case *rsa.PublicKey:
		if k == nil {
			return false
		}
		digest := sha256.Sum256(message)
		return rsa.VerifyPKCS1v15(k, crypto.SHA256, digest[:], signature) == nil

	default:
		return false
	}
}

// PublicKey returns the public half of priv.
func PublicKey(priv crypto.PrivateKey) (crypto.PublicKey, error) {
	switch k := priv.(type) {
	case *secp256k1.PrivateKey:
		return k.PubKey(), nil
	case *ecdsa.PrivateKey:
		return &k.PublicKey, nil
	case ed25519.PrivateKey:
		return k.Public().(ed25519.PublicKey), nil
	case *rsa.PrivateKey:
		return &k.PublicKey, nil
	case nil:
		return nil, &types.ErrKeyUnavailable{Purpose: "public key derivation"}
	default:
		return nil, fmt.Errorf("keys: unsupported private key type %T", priv)
	}
}

// TypeOf identifies the key type of a public or private key.
func TypeOf(key any) (types.KeyType, error) {
	switch k := key.(type) {
	case *secp256k1.PrivateKey, *secp256k1.PublicKey:
		return types.KeyTypeSecp256k1, nil
	case *ecdsa.PrivateKey:
		return curveKeyType(k.Curve.Params().Name)
	case *ecdsa.PublicKey:
		return curveKeyType(k.Curve.Params().Name)
	case ed25519.PrivateKey, ed25519.PublicKey:
		return types.KeyTypeEd25519, nil
	case *rsa.PrivateKey, *rsa.PublicKey:
		return types.KeyTypeRSA, nil
	default:
		return "", fmt.Errorf("keys: unsupported key type %T", key)
	}
}

// Generate creates a fresh private key of the given type.
func Generate(keyType types.KeyType) (crypto.PrivateKey, error) {
	switch keyType {
	case types.KeyTypeSecp256k1:
		k, err := secp256k1.GeneratePrivateKey()
		if err != nil {
			return nil, fmt.Errorf("keys: generate secp256k1 key: %w", err)
		}
		return k, nil
	case types.KeyTypeP256:
		k, err := ecdsa.GenerateKey(p256(), rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("keys: generate P-256 key: %w", err)
		}
		return k, nil
	case types.KeyTypeEd25519:
		_, k, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("keys: generate Ed25519 key: %w", err)
		}
		return k, nil
	case types.KeyTypeRSA:
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, fmt.Errorf("keys: generate RSA key: %w", err)
		}
		return k, nil
	default:
		return nil, fmt.Errorf("keys: cannot generate key type %q", keyType)
	}
}

func curveKeyType(name string) (types.KeyType, error) {
	if name == "P-256" {
		return types.KeyTypeP256, nil
	}
	return "", fmt.Errorf("keys: unsupported curve %s", name)
}

// encodeRS concatenates r and s, each left-padded to size bytes.
func encodeRS(r, s *big.Int, size int) []byte {
	sig := make([]byte, 2*size)
	r.FillBytes(sig[:size])
	s.FillBytes(sig[size:])
	return sig
}
