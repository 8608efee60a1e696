// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package auth

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aumos-ai/wba-identity/did"
	"github.com/aumos-ai/wba-identity/keys"
	"github.com/aumos-ai/wba-identity/types"
)

const nonceBytes = 16

// Signer signs handshake payloads for one identity.
// *identity.DocumentSigner satisfies it.
type Signer interface {
	// KeyID is the verification method fragment sent as keyid.
	KeyID() string
	Sign(ctx context.Context, message []byte) ([]byte, error)
}

// KeySigner signs with an in-memory private key.
type KeySigner struct {
	keyID string
	priv  crypto.PrivateKey
}

// NewKeySigner returns a Signer for priv published under keyID.
func NewKeySigner(keyID string, priv crypto.PrivateKey) *KeySigner {
	return &KeySigner{keyID: keyID, priv: priv}
}

func (s *KeySigner) KeyID() string { return s.keyID }

func (s *KeySigner) Sign(_ context.Context, message []byte) ([]byte, error) {
	return keys.Sign(s.priv, message)
}

// ContextOptions carries the optional parts of a Context.
type ContextOptions struct {
	// TargetDID is the responder's DID. Required for two-way authentication.
	TargetDID string
	// TwoWay asks the responder to counter-sign.
	TwoWay bool
	// Body is hashed into the signed payload when non-empty.
	Body []byte
	// Timestamp and Nonce are generated by BuildHeader when zero.
	Timestamp time.Time
	Nonce     string
}

// Context describes one outgoing authenticated request. It is built by
// NewContext and discarded after the call completes.
type Context struct {
	CallerDID  string
	TargetDID  string
	URL        string
	Method     string
	Timestamp  time.Time
	Nonce      string
	BodyDigest string
	TwoWay     bool

	target string
}

// NewContext validates the request description and returns a Context.
func NewContext(callerDID, rawURL, method string, opts ContextOptions) (*Context, error) {
	if err := validateDID(callerDID); err != nil {
		return nil, err
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("auth: %q is not an absolute http(s) URL", rawURL)
	}
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodGet
	}
	if opts.TwoWay {
		if opts.TargetDID == "" {
			return nil, fmt.Errorf("auth: two-way authentication needs a target DID")
		}
		if err := validateDID(opts.TargetDID); err != nil {
			return nil, err
		}
	}
	return &Context{
		CallerDID:  callerDID,
		TargetDID:  opts.TargetDID,
		URL:        rawURL,
		Method:     method,
		Timestamp:  opts.Timestamp,
		Nonce:      opts.Nonce,
		BodyDigest: BodyDigest(opts.Body),
		TwoWay:     opts.TwoWay,
		target:     strings.ToLower(u.Host),
	}, nil
}

// Target returns the host[:port] the request is addressed to.
func (c *Context) Target() string { return c.target }

// Request returns the verifier's view of this request.
func (c *Context) Request() Request {
	return Request{Target: c.target, Method: c.Method, BodyDigest: c.BodyDigest}
}

func validateDID(id string) error {
	if strings.HasPrefix(id, "did:key:") {
		_, _, err := did.ParseKeyDID(id)
		return err
	}
	_, err := did.Parse(id)
	return err
}

// Request is what a verifier knows about an incoming request.
type Request struct {
	// Target is the Host the request was sent to (host[:port]).
	Target     string
	Method     string
	BodyDigest string
}

// RequestFromHTTP describes r for verification. body is the already-read request body.
func RequestFromHTTP(r *http.Request, body []byte) Request {
	return Request{
		Target:     strings.ToLower(r.Host),
		Method:     r.Method,
		BodyDigest: BodyDigest(body),
	}
}

// BodyDigest returns the base64url SHA-256 of body, or "" for an empty body.
func BodyDigest(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	sum := sha256.Sum256(body)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// signingInput is the JSON object canonicalized and signed.
type signingInput struct {
	DID       string `json:"did"`
	Nonce     string `json:"nonce"`
	Timestamp string `json:"timestamp"`
	Target    string `json:"target"`
	Method    string `json:"method"`
	RespDID   string `json:"resp_did,omitempty"`
	Digest    string `json:"digest,omitempty"`
}

func payload(h *Header, req Request) ([]byte, error) {
	out, err := keys.Canonicalize(signingInput{
		DID:       h.DID,
		Nonce:     h.Nonce,
		Timestamp: h.Timestamp,
		Target:    req.Target,
		Method:    strings.ToUpper(req.Method),
		RespDID:   h.RespDID,
		Digest:    req.BodyDigest,
	})
	if err != nil {
		return nil, fmt.Errorf("auth: canonicalize payload: %w", err)
	}
	return out, nil
}

// BuildHeader signs ac with signer and returns the Authorization header.
func BuildHeader(ctx context.Context, ac *Context, signer Signer) (*Header, error) {
	if ac == nil {
		return nil, fmt.Errorf("auth: context must not be nil")
	}
	if signer == nil {
		return nil, &types.ErrKeyUnavailable{Purpose: "DIDWba header signing"}
	}
	nonce := ac.Nonce
	if nonce == "" {
		var err error
		if nonce, err = NewNonce(); err != nil {
			return nil, err
		}
	}
	ts := ac.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	h := &Header{
		DID:       ac.CallerDID,
		Nonce:     nonce,
		Timestamp: ts.UTC().Format(TimestampLayout),
		KeyID:     did.Fragment(signer.KeyID()),
	}
	if ac.TwoWay {
		h.RespDID = ac.TargetDID
	}
	if err := sign(ctx, h, ac.Request(), signer); err != nil {
		return nil, err
	}
	return h, nil
}

func sign(ctx context.Context, h *Header, req Request, signer Signer) error {
	msg, err := payload(h, req)
	if err != nil {
		return err
	}
	sig, err := signer.Sign(ctx, msg)
	if err != nil {
		return fmt.Errorf("auth: sign: %w", err)
	}
	h.Signature = base64.RawURLEncoding.EncodeToString(sig)
	return nil
}

// NewNonce returns 16 random bytes, hex encoded.
func NewNonce() (string, error) {
	b := make([]byte, nonceBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("auth: generate nonce: %w", err)
	}
	return hex.EncodeToString(b), nil
}
