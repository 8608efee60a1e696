// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package keys

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/aumos-ai/wba-identity/did"
	"github.com/aumos-ai/wba-identity/types"
)

// JWK key types and curves.
const (
	KtyEC  = "EC"
	KtyOKP = "OKP"
	KtyRSA = "RSA"

	CrvSecp256k1 = "secp256k1"
	CrvP256      = "P-256"
	CrvEd25519   = "Ed25519"
)

func p256() elliptic.Curve { return elliptic.P256() }

// PublicKeyToJWK encodes a public key as a JWK.
func PublicKeyToJWK(pub crypto.PublicKey) (*did.JWK, error) {
	switch k := pub.(type) {
	case *secp256k1.PublicKey:
		raw := k.SerializeUncompressed()
		return &did.JWK{
			Kty: KtyEC,
			Crv: CrvSecp256k1,
			X:   b64(raw[1 : 1+scalarSize]),
			Y:   b64(raw[1+scalarSize:]),
		}, nil
	case *ecdsa.PublicKey:
		if k.Curve.Params().Name != CrvP256 {
			return nil, fmt.Errorf("keys: unsupported curve %s", k.Curve.Params().Name)
		}
		return &did.JWK{
			Kty: KtyEC,
			Crv: CrvP256,
			X:   b64(k.X.FillBytes(make([]byte, scalarSize))),
			Y:   b64(k.Y.FillBytes(make([]byte, scalarSize))),
		}, nil
	case ed25519.PublicKey:
		return &did.JWK{Kty: KtyOKP, Crv: CrvEd25519, X: b64(k)}, nil
	case *rsa.PublicKey:
		return &did.JWK{
			Kty: KtyRSA,
			N:   b64(k.N.Bytes()),
			E:   b64(big.NewInt(int64(k.E)).Bytes()),
		}, nil
	default:
		return nil, fmt.Errorf("keys: unsupported public key type %T", pub)
	}
}

// PublicKeyFromJWK decodes the public key carried by jwk.
func PublicKeyFromJWK(jwk *did.JWK) (crypto.PublicKey, error) {
	if jwk == nil {
		return nil, fmt.Errorf("keys: jwk is nil")
	}
	switch {
	case jwk.Kty == KtyEC && jwk.Crv == CrvSecp256k1:
		x, y, err := decodeXY(jwk)
		if err != nil {
			return nil, err
		}
		raw := append([]byte{0x04}, append(x, y...)...)
		pub, err := secp256k1.ParsePubKey(raw)
		if err != nil {
			return nil, fmt.Errorf("keys: parse secp256k1 point: %w", err)
		}
		return pub, nil

	case jwk.Kty == KtyEC && jwk.Crv == CrvP256:
		x, y, err := decodeXY(jwk)
		if err != nil {
			return nil, err
		}
		pub := &ecdsa.PublicKey{Curve: p256(), X: new(big.Int).SetBytes(x), Y: new(big.Int).SetBytes(y)}
		if !pub.Curve.IsOnCurve(pub.X, pub.Y) {
			return nil, fmt.Errorf("keys: P-256 point not on curve")
		}
		return pub, nil

	case jwk.Kty == KtyOKP && jwk.Crv == CrvEd25519:
		x, err := unb64(jwk.X)
		if err != nil || len(x) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("keys: invalid Ed25519 x coordinate")
		}
		return ed25519.PublicKey(x), nil

	case jwk.Kty == KtyRSA:
		n, err := unb64(jwk.N)
		if err != nil || len(n) == 0 {
			return nil, fmt.Errorf("keys: invalid RSA modulus")
		}
		e, err := unb64(jwk.E)
		if err != nil || len(e) == 0 || len(e) > 4 {
			return nil, fmt.Errorf("keys: invalid RSA exponent")
		}
		return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(new(big.Int).SetBytes(e).Int64())}, nil

	default:
		return nil, fmt.Errorf("keys: unsupported jwk kty=%q crv=%q", jwk.Kty, jwk.Crv)
	}
}

// PrivateKeyToJWK encodes an EC or Ed25519 private key, including its public
// coordinates, as a JWK. RSA private keys are kept in PEM form instead.
func PrivateKeyToJWK(priv crypto.PrivateKey) (*did.JWK, error) {
	pub, err := PublicKey(priv)
	if err != nil {
		return nil, err
	}
	jwk, err := PublicKeyToJWK(pub)
	if err != nil {
		return nil, err
	}
	switch k := priv.(type) {
	case *secp256k1.PrivateKey:
		jwk.D = b64(k.Serialize())
	case *ecdsa.PrivateKey:
		jwk.D = b64(k.D.FillBytes(make([]byte, scalarSize)))
	case ed25519.PrivateKey:
		jwk.D = b64(k.Seed())
	default:
		return nil, fmt.Errorf("keys: private JWK not supported for %T", priv)
	}
	return jwk, nil
}

// PrivateKeyFromJWK decodes a private JWK produced by PrivateKeyToJWK.
func PrivateKeyFromJWK(jwk *did.JWK) (crypto.PrivateKey, error) {
	if jwk == nil || jwk.D == "" {
		return nil, &types.ErrKeyUnavailable{Purpose: "private JWK"}
	}
	d, err := unb64(jwk.D)
	if err != nil {
		return nil, fmt.Errorf("keys: decode d: %w", err)
	}
	pub, err := PublicKeyFromJWK(jwk)
	if err != nil {
		return nil, err
	}
	switch p := pub.(type) {
	case *secp256k1.PublicKey:
		priv := secp256k1.PrivKeyFromBytes(d)
		if !priv.PubKey().IsEqual(p) {
			return nil, fmt.Errorf("keys: private key does not match public coordinates")
		}
		return priv, nil
	case *ecdsa.PublicKey:
		priv := &ecdsa.PrivateKey{PublicKey: *p, D: new(big.Int).SetBytes(d)}
		x, y := p.Curve.ScalarBaseMult(d)
		if x.Cmp(p.X) != 0 || y.Cmp(p.Y) != 0 {
			return nil, fmt.Errorf("keys: private key does not match public coordinates")
		}
		return priv, nil
	case ed25519.PublicKey:
		if len(d) != ed25519.SeedSize {
			return nil, fmt.Errorf("keys: invalid Ed25519 seed")
		}
		priv := ed25519.NewKeyFromSeed(d)
		if !priv.Public().(ed25519.PublicKey).Equal(p) {
			return nil, fmt.Errorf("keys: private key does not match public coordinates")
		}
		return priv, nil
	default:
		return nil, fmt.Errorf("keys: private JWK not supported for %T", pub)
	}
}

// Thumbprint computes the RFC 7638 SHA-256 thumbprint of jwk, base64url encoded.
func Thumbprint(jwk *did.JWK) (string, error) {
	if jwk == nil {
		return "", fmt.Errorf("keys: jwk is nil")
	}
	var members map[string]string
	switch jwk.Kty {
	case KtyEC:
		members = map[string]string{"crv": jwk.Crv, "kty": jwk.Kty, "x": jwk.X, "y": jwk.Y}
	case KtyOKP:
		members = map[string]string{"crv": jwk.Crv, "kty": jwk.Kty, "x": jwk.X}
	case KtyRSA:
		members = map[string]string{"e": jwk.E, "kty": jwk.Kty, "n": jwk.N}
	default:
		return "", fmt.Errorf("keys: unsupported jwk kty %q", jwk.Kty)
	}
	canonical, err := Canonicalize(members)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return b64(sum[:]), nil
}

// PublicKeyFromVerificationMethod extracts the signing key of vm from either
// publicKeyJwk or publicKeyMultibase.
func PublicKeyFromVerificationMethod(vm *did.VerificationMethod) (crypto.PublicKey, error) {
	if vm == nil {
		return nil, fmt.Errorf("keys: verification method is nil")
	}
	if vm.PublicKeyJWK != nil {
		return PublicKeyFromJWK(vm.PublicKeyJWK)
	}
	if vm.PublicKeyMultibase != "" {
		keyType, raw, err := did.DecodeMultibaseKey(vm.PublicKeyMultibase)
		if err != nil {
			return nil, err
		}
		switch keyType {
		case types.KeyTypeSecp256k1:
			pub, err := secp256k1.ParsePubKey(raw)
			if err != nil {
				return nil, fmt.Errorf("keys: parse secp256k1 key: %w", err)
			}
			return pub, nil
		case types.KeyTypeEd25519:
			return ed25519.PublicKey(raw), nil
		default:
			return nil, fmt.Errorf("keys: %s is not a signing key", keyType)
		}
	}
	return nil, fmt.Errorf("keys: verification method %s carries no key", vm.ID)
}

// VerificationMethodType returns the DID verification method type used to
// publish pub as a JWK.
func VerificationMethodType(pub crypto.PublicKey) types.VerificationMethodType {
	if _, ok := pub.(*secp256k1.PublicKey); ok {
		return types.VerificationMethodSecp256k1
	}
	return types.VerificationMethodJWK
}

// ProofType returns the credential proof type produced by a key.
func ProofType(key any) types.ProofType {
	keyType, _ := TypeOf(key)
	switch keyType {
	case types.KeyTypeSecp256k1:
		return types.ProofTypeSecp256k1Signature
	case types.KeyTypeEd25519:
		return types.ProofTypeEd25519Signature
	default:
		return types.ProofTypeJWS
	}
}

func decodeXY(jwk *did.JWK) ([]byte, []byte, error) {
	x, err := unb64(jwk.X)
	if err != nil || len(x) != scalarSize {
		return nil, nil, fmt.Errorf("keys: invalid x coordinate")
	}
	y, err := unb64(jwk.Y)
	if err != nil || len(y) != scalarSize {
		return nil, nil, fmt.Errorf("keys: invalid y coordinate")
	}
	return x, y, nil
}

func b64(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

func unb64(s string) ([]byte, error) {
	return base64.RawURLEncoding.Strict().DecodeString(s)
}
