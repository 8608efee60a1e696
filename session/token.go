// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

// Package session issues and verifies the signed session tokens handed to a
// caller after a successful DID handshake.
//
// Tokens are compact JWS (JWT) strings signed with RS256 by default. ES256
// (P-256) and EdDSA (Ed25519) keys are also accepted. Verification is
// stateless: there is no server-side revocation list, so a token is valid
// until its exp claim passes.
package session

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/aumos-ai/wba-identity/keys"
	"github.com/aumos-ai/wba-identity/types"
)

// Signing algorithm identifiers.
const (
	AlgRS256 = "RS256"
	AlgES256 = "ES256"
	AlgEdDSA = "EdDSA"
)

// DefaultTTL is the token lifetime when neither the issuer nor the call sets one.
const DefaultTTL = 60 * time.Minute

// Claims is the claim set of a session token.
type Claims struct {
	jwtlib.RegisteredClaims
	// DID is the authenticated identity.
	DID string `json:"did,omitempty"`
	// Scope is an optional space-separated scope list.
	Scope string `json:"scope,omitempty"`
}

// IssuerOptions configures an Issuer.
type IssuerOptions struct {
	// PrivateKey signs tokens. A nil key is accepted at construction; every
	// IssueToken call then fails with ErrKeyUnavailable.
	PrivateKey crypto.PrivateKey
	// Algorithm is RS256, ES256 or EdDSA. Defaults to the algorithm implied
	// by PrivateKey, or RS256 when there is no key.
	Algorithm string
	// TTL is the default token lifetime (default 60m).
	TTL time.Duration
	// Issuer is set as the iss claim when the caller leaves it empty.
	Issuer string
	// KeyID is published in the kid header when set.
	KeyID  string
	Logger *slog.Logger
}

// Issuer signs session tokens with a single key.
type Issuer struct {
	key    crypto.PrivateKey
	method jwtlib.SigningMethod
	ttl    time.Duration
	iss    string
	kid    string
	logger *slog.Logger
}

// NewIssuer validates opts and returns an Issuer.
func NewIssuer(opts IssuerOptions) (*Issuer, error) {
	alg := opts.Algorithm
	if alg == "" {
		alg = algorithmFor(opts.PrivateKey)
	}
	method, err := signingMethod(alg)
	if err != nil {
		return nil, err
	}
	if opts.PrivateKey != nil {
		pub, err := keys.PublicKey(opts.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("session: %w", err)
		}
		if algorithmFor(pub) != alg {
			return nil, fmt.Errorf("session: %T cannot sign %s tokens", opts.PrivateKey, alg)
		}
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Issuer{
		key:    opts.PrivateKey,
		method: method,
		ttl:    ttl,
		iss:    opts.Issuer,
		kid:    opts.KeyID,
		logger: logger,
	}, nil
}

// NewIssuerFromPEM parses a PKCS#8, PKCS#1 or SEC 1 PEM private key and
// returns an Issuer for it. The caller reads the bytes.
func NewIssuerFromPEM(pemBytes []byte, opts IssuerOptions) (*Issuer, error) {
	priv, err := keys.ParsePrivateKeyPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	opts.PrivateKey = priv
	return NewIssuer(opts)
}

// Algorithm returns the JWS algorithm the issuer signs with.
func (i *Issuer) Algorithm() string {
	return i.method.Alg()
}

// PublicKey returns the verification key for tokens from this issuer, or nil
// when the issuer has no key.
func (i *Issuer) PublicKey() crypto.PublicKey {
	if i.key == nil {
		return nil
	}
	pub, _ := keys.PublicKey(i.key)
	return pub
}

// IssueToken signs claims, setting iat, nbf, exp and jti. A positive ttl
// overrides the issuer's default lifetime.
func (i *Issuer) IssueToken(claims Claims, ttl time.Duration) (string, error) {
	if i.key == nil {
		return "", &types.ErrKeyUnavailable{Purpose: "session token signing"}
	}
	if ttl <= 0 {
		ttl = i.ttl
	}

	now := time.Now().UTC()
	claims.IssuedAt = jwtlib.NewNumericDate(now)
	claims.NotBefore = jwtlib.NewNumericDate(now)
	claims.ExpiresAt = jwtlib.NewNumericDate(now.Add(ttl))
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
	if claims.Issuer == "" {
		claims.Issuer = i.iss
	}

	token := jwtlib.NewWithClaims(i.method, claims)
	if i.kid != "" {
		token.Header["kid"] = i.kid
	}
	signed, err := token.SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("session: sign token: %w", err)
	}
	return signed, nil
}

// IssueAccessToken issues a default-lifetime token whose subject is did.
func (i *Issuer) IssueAccessToken(did string) (string, error) {
	if did == "" {
		return "", fmt.Errorf("session: subject DID must not be empty")
	}
	token, err := i.IssueToken(Claims{
		RegisteredClaims: jwtlib.RegisteredClaims{Subject: did},
		DID:              did,
	}, 0)
	if err != nil {
		return "", err
	}
	i.logger.Debug("issued access token", "did", did)
	return token, nil
}

// Verify checks a token against this issuer's key.
func (i *Issuer) Verify(token string) (*Claims, error) {
	return VerifyToken(token, i.PublicKey())
}

// IssueToken signs claims with priv using the algorithm its type implies.
func IssueToken(priv crypto.PrivateKey, claims Claims, ttl time.Duration) (string, error) {
	if priv == nil {
		return "", &types.ErrKeyUnavailable{Purpose: "session token signing"}
	}
	issuer, err := NewIssuer(IssuerOptions{PrivateKey: priv})
	if err != nil {
		return "", err
	}
	return issuer.IssueToken(claims, ttl)
}

// VerifyToken checks the signature, algorithm and expiry of token against
// pub. Any failure yields ErrInvalidToken and no claims.
func VerifyToken(token string, pub crypto.PublicKey) (*Claims, error) {
	if pub == nil {
		return nil, &types.ErrKeyUnavailable{Purpose: "session token verification"}
	}
	alg := algorithmFor(pub)
	if alg == "" {
		return nil, &types.ErrInvalidToken{Reason: "unsupported verification key"}
	}

	claims := &Claims{}
	parsed, err := jwtlib.ParseWithClaims(token, claims, func(*jwtlib.Token) (interface{}, error) {
		return pub, nil
	},
		jwtlib.WithValidMethods([]string{alg}),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithIssuedAt(),
		jwtlib.WithStrictDecoding(),
	)
	if err != nil {
		return nil, &types.ErrInvalidToken{Reason: tokenFailure(err)}
	}
	if !parsed.Valid {
		return nil, &types.ErrInvalidToken{Reason: "token is not valid"}
	}
	return claims, nil
}

// tokenFailure maps parser errors onto short reasons without echoing the token.
func tokenFailure(err error) string {
	switch {
	case errors.Is(err, jwtlib.ErrTokenExpired):
		return "token expired"
	case errors.Is(err, jwtlib.ErrTokenMalformed):
		return "token malformed"
	case errors.Is(err, jwtlib.ErrTokenSignatureInvalid):
		return "signature invalid"
	case errors.Is(err, jwtlib.ErrTokenUnverifiable):
		return "unexpected signing algorithm"
	case errors.Is(err, jwtlib.ErrTokenRequiredClaimMissing):
		return "required claim missing"
	case errors.Is(err, jwtlib.ErrTokenNotValidYet), errors.Is(err, jwtlib.ErrTokenUsedBeforeIssued):
		return "token not valid yet"
	default:
		return "token rejected"
	}
}

func algorithmFor(key any) string {
	switch k := key.(type) {
	case nil:
		return AlgRS256
	case *rsa.PrivateKey, *rsa.PublicKey:
		return AlgRS256
	case *ecdsa.PrivateKey:
		if k.Curve.Params().Name == "P-256" {
			return AlgES256
		}
	case *ecdsa.PublicKey:
		if k.Curve.Params().Name == "P-256" {
			return AlgES256
		}
	case ed25519.PrivateKey, ed25519.PublicKey:
		return AlgEdDSA
	}
	return ""
}

func signingMethod(alg string) (jwtlib.SigningMethod, error) {
	switch alg {
	case AlgRS256:
		return jwtlib.SigningMethodRS256, nil
	case AlgES256:
		return jwtlib.SigningMethodES256, nil
	case AlgEdDSA:
		return jwtlib.SigningMethodEdDSA, nil
	default:
		return nil, fmt.Errorf("session: unsupported token algorithm %q", alg)
	}
}
