// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aumos-ai/wba-identity/keys"
	"github.com/aumos-ai/wba-identity/session"
	"github.com/aumos-ai/wba-identity/types"
)

type gateServer struct {
	*httptest.Server
	tokens *session.Issuer

	mu      sync.Mutex
	schemes []string
}

func (s *gateServer) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.schemes...)
}

// newGateServer serves an echo endpoint behind a Gate. strip removes the
// counter-signature from responses.
func newGateServer(t *testing.T, f *fixture, strip bool) *gateServer {
	t.Helper()
	priv, err := keys.Generate(types.KeyTypeEd25519)
	require.NoError(t, err)
	tokens, err := session.NewIssuer(session.IssuerOptions{PrivateKey: priv, Issuer: "service.example"})
	require.NoError(t, err)
	verifier, err := NewVerifier(VerifierOptions{Resolver: f.manager.Registry()})
	require.NoError(t, err)
	gate, err := NewGate(GateOptions{
		Verifier:  verifier,
		Tokens:    tokens,
		Responder: NewResponder(ManagedSigners(f.manager)),
	})
	require.NoError(t, err)

	gs := &gateServer{tokens: tokens}
	record := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, _, _ := strings.Cut(r.Header.Get("Authorization"), " ")
			gs.mu.Lock()
			gs.schemes = append(gs.schemes, scheme)
			gs.mu.Unlock()
			next.ServeHTTP(w, r)
		})
	}
	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strip {
			w.Header().Del(HeaderAuthenticationInfo)
		}
		caller, _ := CallerDID(r.Context())
		body, _ := io.ReadAll(r.Body)
		_ = json.NewEncoder(w).Encode(map[string]string{"caller": caller, "body": string(body)})
	})
	gs.Server = httptest.NewServer(record(gate.Middleware(echo)))
	t.Cleanup(gs.Close)
	return gs
}

func newClient(t *testing.T, f *fixture, srv *gateServer, twoWay bool) *Authenticator {
	t.Helper()
	opts := AuthenticatorOptions{
		DID:        f.alice.DID,
		Signer:     f.signer(t, f.alice.DID),
		HTTPClient: srv.Client(),
	}
	if twoWay {
		u, err := url.Parse(srv.URL)
		require.NoError(t, err)
		verifier, err := NewVerifier(VerifierOptions{Resolver: f.manager.Registry()})
		require.NoError(t, err)
		opts.Peers = map[string]string{u.Host: f.service.DID}
		opts.Verifier = verifier
	}
	a, err := NewAuthenticator(opts)
	require.NoError(t, err)
	return a
}

func call(t *testing.T, a *Authenticator, rawURL string, body string) (*http.Response, map[string]string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, rawURL, bytes.NewBufferString(body))
	require.NoError(t, err)
	resp, err := a.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out := map[string]string{}
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestAuthenticatorCachesSessionToken(t *testing.T) {
	f := newFixture(t)
	srv := newGateServer(t, f, false)
	client := newClient(t, f, srv, false)
	target := srv.URL + "/api/echo"

	resp, out := call(t, client, target, `{"n":1}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, f.alice.DID, out["caller"])
	assert.Equal(t, `{"n":1}`, out["body"])

	token := strings.TrimPrefix(resp.Header.Get("Authorization"), "Bearer ")
	claims, err := srv.tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, f.alice.DID, claims.DID)

	value, err := client.AuthorizationHeader(context.Background(), target, http.MethodGet, false)
	require.NoError(t, err)
	assert.Equal(t, "Bearer "+token, value)

	resp, out = call(t, client, target, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, f.alice.DID, out["caller"])
	assert.Equal(t, []string{"DIDWba", "Bearer"}, srv.seen())

	value, err = client.AuthorizationHeader(context.Background(), target, http.MethodGet, true)
	require.NoError(t, err)
	assert.True(t, IsDIDWba(value))
}

func TestAuthenticatorRetriesRejectedToken(t *testing.T) {
	f := newFixture(t)
	srv := newGateServer(t, f, false)
	client := newClient(t, f, srv, false)
	target := srv.URL + "/api/echo"

	client.UpdateFromResponse(target, http.Header{"Authorization": {"Bearer not-a-token"}})

	resp, out := call(t, client, target, "payload")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, f.alice.DID, out["caller"])
	assert.Equal(t, "payload", out["body"])
	assert.Equal(t, []string{"Bearer", "DIDWba"}, srv.seen())
}

func TestAuthenticatorTwoWay(t *testing.T) {
	f := newFixture(t)
	srv := newGateServer(t, f, false)
	client := newClient(t, f, srv, true)

	resp, out := call(t, client, srv.URL+"/api/echo", "hi")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, f.alice.DID, out["caller"])

	counter, err := ParseHeader(resp.Header.Get(HeaderAuthenticationInfo))
	require.NoError(t, err)
	assert.Equal(t, f.service.DID, counter.DID)
	assert.Equal(t, f.alice.DID, counter.RespDID)
}

func TestAuthenticatorRequiresCounterSignature(t *testing.T) {
	f := newFixture(t)
	srv := newGateServer(t, f, true)
	client := newClient(t, f, srv, true)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/echo", nil)
	require.NoError(t, err)
	_, err = client.Do(req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not counter-sign")
}

func TestMiddlewareRejects(t *testing.T) {
	f := newFixture(t)
	srv := newGateServer(t, f, false)

	cases := map[string]string{
		"missing":   "",
		"basic":     "Basic dXNlcjpwYXNz",
		"bad token": "Bearer abc.def.ghi",
		"malformed": `DIDWba did="x"`,
	}
	for name, value := range cases {
		req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/echo", nil)
		require.NoError(t, err)
		if value != "" {
			req.Header.Set("Authorization", value)
		}
		resp, err := srv.Client().Do(req)
		require.NoError(t, err, name)

		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body), name)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, name)
		assert.Equal(t, Scheme, resp.Header.Get("WWW-Authenticate"), name)
		assert.Equal(t, false, body["success"], name)
		assert.Equal(t, "authentication failed", body["message"], name)
	}
}

func TestMiddlewareRejectsHeaderForOtherHost(t *testing.T) {
	f := newFixture(t)
	srv := newGateServer(t, f, false)

	// Signed for service.example, replayed against the test server.
	h, _ := f.build(t, ContextOptions{})
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/echo", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", h.String())
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGateAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	plain, err := NewGate(GateOptions{Verifier: f.verifier})
	require.NoError(t, err)

	_, err = plain.Authenticate(ctx, "Bearer x", Request{})
	var invalid *types.ErrInvalidToken
	require.ErrorAs(t, err, &invalid)

	h, ac := f.build(t, ContextOptions{TargetDID: f.service.DID, TwoWay: true})
	_, err = plain.Authenticate(ctx, h.String(), ac.Request())
	var rejected *types.ErrRequestRejected
	require.ErrorAs(t, err, &rejected)

	h, ac = f.build(t, ContextOptions{})
	out, err := plain.Authenticate(ctx, h.String(), ac.Request())
	require.NoError(t, err)
	assert.Equal(t, f.alice.DID, out.CallerDID)
	assert.Empty(t, out.Token)
	assert.Nil(t, out.Counter)

	_, err = NewGate(GateOptions{})
	require.Error(t, err)
}
