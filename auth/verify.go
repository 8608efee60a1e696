// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package auth

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bluele/gcache"

	"github.com/aumos-ai/wba-identity/did"
	"github.com/aumos-ai/wba-identity/identity"
	"github.com/aumos-ai/wba-identity/keys"
	"github.com/aumos-ai/wba-identity/types"
)

// DefaultWindow is the accepted clock distance between a header's timestamp
// and the verifier's clock.
const DefaultWindow = 5 * time.Minute

// VerifierOptions configures a Verifier.
type VerifierOptions struct {
	// Resolver maps caller DIDs to documents. Required.
	Resolver identity.Resolver
	// Window bounds |now - timestamp| (default 5m). Seen nonces are kept for
	// twice this long.
	Window time.Duration
	// NonceCacheSize bounds the number of remembered nonces (default 100000).
	// Once that many unexpired nonces are held, new headers are refused with
	// ErrNonceLedgerFull until entries expire.
	NonceCacheSize int
	Logger         *slog.Logger
}

// Result identifies the parties of a verified header.
type Result struct {
	CallerDID    string
	ResponderDID string
	KeyID        string
	Nonce        string
}

// Verifier checks DIDWba headers. It is safe for concurrent use.
type Verifier struct {
	resolver identity.Resolver
	window   time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	nonces   gcache.Cache
	capacity int
}

// NewVerifier constructs a Verifier.
func NewVerifier(opts VerifierOptions) (*Verifier, error) {
	if opts.Resolver == nil {
		return nil, fmt.Errorf("auth: VerifierOptions.Resolver must not be nil")
	}
	window := opts.Window
	if window <= 0 {
		window = DefaultWindow
	}
	size := opts.NonceCacheSize
	if size <= 0 {
		size = 100000
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{
		resolver: opts.Resolver,
		window:   window,
		logger:   logger,
		nonces:   gcache.New(size).LRU().Expiration(2 * window).Build(),
		capacity: size,
	}, nil
}

// Window returns the configured timestamp window.
func (v *Verifier) Window() time.Duration { return v.window }

// VerifyHeader authenticates a caller. Checks run in order: timestamp
// window, DID resolution, key lookup, signature, nonce reuse. A nonce is only
// recorded once the signature has verified.
func (v *Verifier) VerifyHeader(ctx context.Context, h *Header, req Request) (*Result, error) {
	if h == nil {
		return nil, &types.ErrMalformedHeader{Reason: "missing header"}
	}
	if err := v.verifySigned(ctx, h, req); err != nil {
		v.logger.Debug("DIDWba verification failed", "did", h.DID, "err", err)
		return nil, err
	}
	if err := v.consumeNonce(h.DID, h.Nonce); err != nil {
		v.logger.Warn("DIDWba nonce refused", "did", h.DID, "err", err)
		return nil, err
	}
	return &Result{CallerDID: h.DID, ResponderDID: h.RespDID, KeyID: h.KeyID, Nonce: h.Nonce}, nil
}

// VerifyAuthorization parses and verifies an Authorization header value.
func (v *Verifier) VerifyAuthorization(ctx context.Context, value string, req Request) (*Result, error) {
	h, err := ParseHeader(value)
	if err != nil {
		return nil, err
	}
	return v.VerifyHeader(ctx, h, req)
}

// VerifyResponseHeader checks a responder's counter-signature for the
// request described by ac, which was sent with header sent. The response
// must name the caller as resp_did and echo the caller's nonce.
func (v *Verifier) VerifyResponseHeader(ctx context.Context, resp *Header, sent *Header, ac *Context) error {
	if resp == nil || sent == nil || ac == nil {
		return &types.ErrMalformedHeader{Reason: "missing response header"}
	}
	if resp.RespDID != sent.DID {
		return &types.ErrSignatureInvalid{Reason: "response is addressed to another DID"}
	}
	if ac.TargetDID != "" && !sameDID(resp.DID, ac.TargetDID) {
		return &types.ErrSignatureInvalid{Reason: "response signed by an unexpected DID"}
	}
	if resp.Nonce != sent.Nonce {
		return &types.ErrNonceMismatch{}
	}
	return v.verifySigned(ctx, resp, ac.Request())
}

func (v *Verifier) verifySigned(ctx context.Context, h *Header, req Request) error {
	ts, err := parseTimestamp(h.Timestamp)
	if err != nil {
		return &types.ErrMalformedHeader{Reason: "invalid timestamp"}
	}
	skew := time.Since(ts)
	if skew < 0 {
		skew = -skew
	}
	if skew > v.window {
		return &types.ErrExpiredTimestamp{Timestamp: h.Timestamp, Window: v.window}
	}

	doc, err := v.resolver.Resolve(ctx, h.DID)
	if err != nil {
		return fmt.Errorf("auth: resolve %s: %w", h.DID, err)
	}

	pub, err := authenticationKey(doc, h.KeyID)
	if err != nil {
		return err
	}

	sig, err := base64.RawURLEncoding.Strict().DecodeString(h.Signature)
	if err != nil {
		return &types.ErrSignatureInvalid{Reason: "signature is not base64url"}
	}
	msg, err := payload(h, req)
	if err != nil {
		return err
	}
	if !keys.Verify(pub, msg, sig) {
		return &types.ErrSignatureInvalid{Reason: "signature does not verify"}
	}
	return nil
}

// authenticationKey returns the key for keyID, which must also be listed
// under authentication when the document has that section.
func authenticationKey(doc *did.Document, keyID string) (any, error) {
	vm, ok := doc.VerificationMethodByID(keyID)
	if !ok {
		return nil, &types.ErrUnknownKey{DID: doc.ID, KeyID: keyID}
	}
	if len(doc.Authentication) > 0 {
		listed := false
		for _, ref := range doc.Authentication {
			if ref == vm.ID || (ref != "" && ref[0] == '#' && doc.ID+ref == vm.ID) {
				listed = true
				break
			}
		}
		if !listed {
			return nil, &types.ErrUnknownKey{DID: doc.ID, KeyID: keyID}
		}
	}
	return identity.ExtractPublicKey(doc, vm.ID)
}

func (v *Verifier) consumeNonce(caller, nonce string) error {
	key := caller + "|" + nonce
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, err := v.nonces.Get(key); err == nil {
		return &types.ErrReplayedNonce{DID: caller}
	}
	if v.nonces.Len(false) >= v.capacity {
		// Get drops expired entries. Live ones are never evicted.
		for _, k := range v.nonces.Keys(false) {
			_, _ = v.nonces.Get(k)
		}
		if v.nonces.Len(false) >= v.capacity {
			return &types.ErrNonceLedgerFull{Capacity: v.capacity}
		}
	}
	return v.nonces.Set(key, struct{}{})
}

func parseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(TimestampLayout, s); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func sameDID(a, b string) bool {
	if a == b {
		return true
	}
	na, errA := did.Normalize(a)
	nb, errB := did.Normalize(b)
	return errA == nil && errB == nil && na == nb
}
