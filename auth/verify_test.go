// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package auth

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aumos-ai/wba-identity/did"
	"github.com/aumos-ai/wba-identity/identity"
	"github.com/aumos-ai/wba-identity/keys"
	"github.com/aumos-ai/wba-identity/types"
)

const serviceURL = "https://service.example:8443/api/v1/messages"

const base64URLAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

type fixture struct {
	manager  *identity.Manager
	alice    *identity.AgentIdentity
	service  *identity.AgentIdentity
	verifier *Verifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	m, err := identity.NewManager(identity.ManagerOptions{Store: identity.NewInMemoryStore()})
	require.NoError(t, err)
	alice, err := m.CreateIdentity(ctx, identity.CreateOptions{Host: "example.com", SubjectID: "alice"})
	require.NoError(t, err)
	service, err := m.CreateIdentity(ctx, identity.CreateOptions{Host: "service.example", Port: 8443, SubjectType: "agent", SubjectID: "svc"})
	require.NoError(t, err)
	v, err := NewVerifier(VerifierOptions{Resolver: m.Registry(), Window: 5 * time.Minute})
	require.NoError(t, err)
	return &fixture{manager: m, alice: alice, service: service, verifier: v}
}

func (f *fixture) signer(t *testing.T, id string) Signer {
	t.Helper()
	s, err := f.manager.Signer(context.Background(), id)
	require.NoError(t, err)
	return s
}

func (f *fixture) build(t *testing.T, opts ContextOptions) (*Header, *Context) {
	t.Helper()
	ac, err := NewContext(f.alice.DID, serviceURL, "post", opts)
	require.NoError(t, err)
	h, err := BuildHeader(context.Background(), ac, f.signer(t, f.alice.DID))
	require.NoError(t, err)
	return h, ac
}

func TestVerifyHeaderOneWay(t *testing.T) {
	f := newFixture(t)
	h, ac := f.build(t, ContextOptions{Body: []byte(`{"hello":"world"}`)})

	assert.Equal(t, "key-1", h.KeyID)
	assert.Len(t, h.Nonce, 32)
	assert.Empty(t, h.RespDID)
	assert.Equal(t, "service.example:8443", ac.Target())
	assert.Equal(t, "POST", ac.Method)

	res, err := f.verifier.VerifyHeader(context.Background(), h, ac.Request())
	require.NoError(t, err)
	assert.Equal(t, f.alice.DID, res.CallerDID)
	assert.Empty(t, res.ResponderDID)
}

func TestVerifyHeaderExpiredTimestampRegardlessOfSignature(t *testing.T) {
	f := newFixture(t)
	for _, ts := range []time.Time{time.Now().Add(-6 * time.Minute), time.Now().Add(6 * time.Minute)} {
		h, ac := f.build(t, ContextOptions{Timestamp: ts})
		_, err := f.verifier.VerifyHeader(context.Background(), h, ac.Request())
		var expired *types.ErrExpiredTimestamp
		require.ErrorAs(t, err, &expired)

		// Same result with a garbage signature: the window is checked first.
		h.Signature = "AAAA"
		_, err = f.verifier.VerifyHeader(context.Background(), h, ac.Request())
		require.ErrorAs(t, err, &expired)
	}
}

func TestVerifyHeaderTamperedSignature(t *testing.T) {
	f := newFixture(t)
	h, ac := f.build(t, ContextOptions{})

	sig, err := base64.RawURLEncoding.DecodeString(h.Signature)
	require.NoError(t, err)
	for i := range sig {
		tampered := append([]byte(nil), sig...)
		tampered[i] ^= 0x01
		forged := *h
		forged.Signature = base64.RawURLEncoding.EncodeToString(tampered)

		_, err := f.verifier.VerifyHeader(context.Background(), &forged, ac.Request())
		var invalid *types.ErrSignatureInvalid
		require.ErrorAs(t, err, &invalid, "byte %d", i)
	}
}

// Every other character at every position of the encoded signature must be
// rejected, including the padding bits of the final character.
func TestVerifyHeaderTamperedSignatureEncoding(t *testing.T) {
	f := newFixture(t)
	h, ac := f.build(t, ContextOptions{})

	for i := range h.Signature {
		for _, c := range base64URLAlphabet {
			if byte(c) == h.Signature[i] {
				continue
			}
			forged := *h
			forged.Signature = h.Signature[:i] + string(c) + h.Signature[i+1:]
			_, err := f.verifier.VerifyHeader(context.Background(), &forged, ac.Request())
			var invalid *types.ErrSignatureInvalid
			require.ErrorAs(t, err, &invalid, "position %d char %q", i, c)
		}
	}

	_, err := f.verifier.VerifyHeader(context.Background(), h, ac.Request())
	require.NoError(t, err)
}

func TestVerifyHeaderBindsRequest(t *testing.T) {
	f := newFixture(t)
	h, ac := f.build(t, ContextOptions{Body: []byte("body")})
	req := ac.Request()

	mutations := map[string]Request{
		"target": {Target: "other.example", Method: req.Method, BodyDigest: req.BodyDigest},
		"method": {Target: req.Target, Method: "GET", BodyDigest: req.BodyDigest},
		"body":   {Target: req.Target, Method: req.Method, BodyDigest: BodyDigest([]byte("other"))},
	}
	for name, mutated := range mutations {
		_, err := f.verifier.VerifyHeader(context.Background(), h, mutated)
		var invalid *types.ErrSignatureInvalid
		assert.ErrorAs(t, err, &invalid, name)
	}
}

func TestVerifyHeaderUnknownDIDAndKey(t *testing.T) {
	f := newFixture(t)
	h, ac := f.build(t, ContextOptions{})

	unknownDID := *h
	unknownDID.DID = "did:wba:example.com:wba:user:nobody"
	_, err := f.verifier.VerifyHeader(context.Background(), &unknownDID, ac.Request())
	var unknown *types.ErrUnknownDID
	require.ErrorAs(t, err, &unknown)

	unknownKey := *h
	unknownKey.KeyID = "key-9"
	_, err = f.verifier.VerifyHeader(context.Background(), &unknownKey, ac.Request())
	var missing *types.ErrUnknownKey
	require.ErrorAs(t, err, &missing)

	// key-2 exists but is a key agreement key, not an authentication key.
	agreement := *h
	agreement.KeyID = "key-2"
	_, err = f.verifier.VerifyHeader(context.Background(), &agreement, ac.Request())
	require.ErrorAs(t, err, &missing)
}

func TestVerifyHeaderRejectsReplayedNonce(t *testing.T) {
	f := newFixture(t)
	h, ac := f.build(t, ContextOptions{})

	_, err := f.verifier.VerifyHeader(context.Background(), h, ac.Request())
	require.NoError(t, err)

	_, err = f.verifier.VerifyHeader(context.Background(), h, ac.Request())
	var replayed *types.ErrReplayedNonce
	require.ErrorAs(t, err, &replayed)
}

func TestVerifyHeaderFullLedgerKeepsLiveNonces(t *testing.T) {
	f := newFixture(t)
	v, err := NewVerifier(VerifierOptions{Resolver: f.manager.Registry(), NonceCacheSize: 2})
	require.NoError(t, err)
	ctx := context.Background()

	first, ac := f.build(t, ContextOptions{})
	_, err = v.VerifyHeader(ctx, first, ac.Request())
	require.NoError(t, err)
	second, ac := f.build(t, ContextOptions{})
	_, err = v.VerifyHeader(ctx, second, ac.Request())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		h, ac := f.build(t, ContextOptions{})
		_, err = v.VerifyHeader(ctx, h, ac.Request())
		var full *types.ErrNonceLedgerFull
		require.ErrorAs(t, err, &full)
	}

	_, err = v.VerifyHeader(ctx, first, ac.Request())
	var replayed *types.ErrReplayedNonce
	require.ErrorAs(t, err, &replayed)
}

func TestVerifyHeaderConcurrentReplayAcceptsOnce(t *testing.T) {
	f := newFixture(t)
	h, ac := f.build(t, ContextOptions{})

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.verifier.VerifyHeader(context.Background(), h, ac.Request()); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, accepted)
}

func TestTwoWayCounterSignature(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h, ac := f.build(t, ContextOptions{TargetDID: f.service.DID, TwoWay: true})
	require.Equal(t, f.service.DID, h.RespDID)

	res, err := f.verifier.VerifyHeader(ctx, h, ac.Request())
	require.NoError(t, err)
	assert.Equal(t, f.service.DID, res.ResponderDID)

	responder := NewResponder(ManagedSigners(f.manager))
	counter, err := responder.CounterSign(ctx, res, ac.Request())
	require.NoError(t, err)
	assert.Equal(t, f.service.DID, counter.DID)
	assert.Equal(t, f.alice.DID, counter.RespDID)
	assert.Equal(t, h.Nonce, counter.Nonce)

	parsed, err := ParseHeader(counter.String())
	require.NoError(t, err)
	require.NoError(t, f.verifier.VerifyResponseHeader(ctx, parsed, h, ac))

	// A counter-signature for a different request nonce is refused.
	other, _ := f.build(t, ContextOptions{TargetDID: f.service.DID, TwoWay: true})
	var mismatch *types.ErrNonceMismatch
	require.ErrorAs(t, f.verifier.VerifyResponseHeader(ctx, parsed, other, ac), &mismatch)

	forged := *parsed
	forged.Signature = h.Signature
	var invalid *types.ErrSignatureInvalid
	require.ErrorAs(t, f.verifier.VerifyResponseHeader(ctx, &forged, h, ac), &invalid)

	// The caller never signs as the responder.
	selfSigned := *h
	selfSigned.RespDID = h.DID
	require.Error(t, f.verifier.VerifyResponseHeader(ctx, &selfSigned, h, ac))
}

func TestCounterSignUnknownResponder(t *testing.T) {
	f := newFixture(t)
	responder := NewResponder(ManagedSigners(f.manager))
	_, err := responder.CounterSign(context.Background(), &Result{
		CallerDID:    f.alice.DID,
		ResponderDID: "did:wba:elsewhere.example:wba:agent:x",
		Nonce:        "n",
	}, Request{Target: "elsewhere.example", Method: "GET"})
	var rejected *types.ErrRequestRejected
	require.ErrorAs(t, err, &rejected)
}

func TestNewContextValidation(t *testing.T) {
	caller := "did:wba:example.com:wba:user:alice"
	_, err := NewContext("not-a-did", serviceURL, "GET", ContextOptions{})
	require.Error(t, err)
	_, err = NewContext(caller, "/relative", "GET", ContextOptions{})
	require.Error(t, err)
	_, err = NewContext(caller, "ftp://x.example/", "GET", ContextOptions{})
	require.Error(t, err)
	_, err = NewContext(caller, serviceURL, "GET", ContextOptions{TwoWay: true})
	require.Error(t, err)

	ac, err := NewContext(caller, serviceURL, "", ContextOptions{})
	require.NoError(t, err)
	assert.Equal(t, "GET", ac.Method)
	assert.Empty(t, ac.BodyDigest)
}

func TestBuildHeaderWithKeySigner(t *testing.T) {
	priv, err := keys.Generate(types.KeyTypeEd25519)
	require.NoError(t, err)
	pub, err := keys.PublicKey(priv)
	require.NoError(t, err)

	id := "did:wba:example.com:wba:user:ed"
	doc, err := identity.BuildDocument(id, pub, nil)
	require.NoError(t, err)
	resolver := identity.ResolverFunc(func(context.Context, string) (*did.Document, error) { return doc, nil })

	v, err := NewVerifier(VerifierOptions{Resolver: resolver})
	require.NoError(t, err)
	ac, err := NewContext(id, serviceURL, "GET", ContextOptions{})
	require.NoError(t, err)
	h, err := BuildHeader(context.Background(), ac, NewKeySigner(id+"#key-1", priv))
	require.NoError(t, err)
	assert.Equal(t, "key-1", h.KeyID)

	_, err = v.VerifyAuthorization(context.Background(), h.String(), ac.Request())
	require.NoError(t, err)

	_, err = BuildHeader(context.Background(), ac, nil)
	var unavailable *types.ErrKeyUnavailable
	require.ErrorAs(t, err, &unavailable)
}
