// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package auth

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Response headers written by a Gate.
const (
	// HeaderAuthenticationInfo carries the responder's counter-signature.
	HeaderAuthenticationInfo = "Authentication-Info"
	bearerPrefix             = "Bearer "
)

// AuthenticatorOptions configures an Authenticator.
type AuthenticatorOptions struct {
	// DID is the caller identity. Required.
	DID string
	// Signer signs for DID. Required.
	Signer Signer
	// HTTPClient sends requests in Do (default: 30s timeout).
	HTTPClient *http.Client
	// Peers maps a host[:port] to the responder DID served there. Requests to
	// listed hosts use two-way authentication.
	Peers map[string]string
	// Verifier checks responder counter-signatures. Without it, two-way
	// responses are accepted unchecked.
	Verifier *Verifier
	Logger   *slog.Logger
}

// Authenticator attaches DIDWba or cached bearer credentials to outgoing
// requests. Tokens are cached per host[:port].
type Authenticator struct {
	did      string
	signer   Signer
	client   *http.Client
	peers    map[string]string
	verifier *Verifier
	logger   *slog.Logger

	mu     sync.Mutex
	tokens map[string]string
}

// NewAuthenticator constructs an Authenticator.
func NewAuthenticator(opts AuthenticatorOptions) (*Authenticator, error) {
	if err := validateDID(opts.DID); err != nil {
		return nil, fmt.Errorf("auth: authenticator DID: %w", err)
	}
	if opts.Signer == nil {
		return nil, fmt.Errorf("auth: AuthenticatorOptions.Signer must not be nil")
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	peers := make(map[string]string, len(opts.Peers))
	for host, id := range opts.Peers {
		peers[strings.ToLower(host)] = id
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		did:      opts.DID,
		signer:   opts.Signer,
		client:   client,
		peers:    peers,
		verifier: opts.Verifier,
		logger:   logger,
		tokens:   make(map[string]string),
	}, nil
}

// DID returns the caller identity.
func (a *Authenticator) DID() string { return a.did }

// AuthorizationHeader returns the Authorization value for a bodiless request
// to rawURL: a cached bearer token when one exists and forceNew is false,
// otherwise a fresh DIDWba header.
func (a *Authenticator) AuthorizationHeader(ctx context.Context, rawURL, method string, forceNew bool) (string, error) {
	value, _, _, err := a.authorize(ctx, rawURL, method, nil, forceNew)
	return value, err
}

func (a *Authenticator) authorize(ctx context.Context, rawURL, method string, body []byte, forceNew bool) (string, *Header, *Context, error) {
	domain, err := domainOf(rawURL)
	if err != nil {
		return "", nil, nil, err
	}
	if !forceNew {
		a.mu.Lock()
		token, ok := a.tokens[domain]
		a.mu.Unlock()
		if ok {
			return bearerPrefix + token, nil, nil, nil
		}
	}

	peer := a.peers[domain]
	ac, err := NewContext(a.did, rawURL, method, ContextOptions{
		TargetDID: peer,
		TwoWay:    peer != "",
		Body:      body,
	})
	if err != nil {
		return "", nil, nil, err
	}
	h, err := BuildHeader(ctx, ac, a.signer)
	if err != nil {
		return "", nil, nil, err
	}
	return h.String(), h, ac, nil
}

// UpdateFromResponse caches a bearer token returned in the response's
// Authorization header and returns it, or "" when there is none.
func (a *Authenticator) UpdateFromResponse(rawURL string, header http.Header) string {
	value := header.Get("Authorization")
	if len(value) <= len(bearerPrefix) || !strings.EqualFold(value[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	domain, err := domainOf(rawURL)
	if err != nil {
		return ""
	}
	token := strings.TrimSpace(value[len(bearerPrefix):])
	a.mu.Lock()
	a.tokens[domain] = token
	a.mu.Unlock()
	return token
}

// ClearToken forgets the cached token for rawURL's host.
func (a *Authenticator) ClearToken(rawURL string) {
	domain, err := domainOf(rawURL)
	if err != nil {
		return
	}
	a.mu.Lock()
	delete(a.tokens, domain)
	a.mu.Unlock()
}

// Do sends req with credentials attached. A 401 answer to a bearer token
// clears the token and retries once with a fresh DIDWba header. Two-way
// responses are checked against the configured Verifier.
func (a *Authenticator) Do(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("auth: read request body: %w", err)
		}
	}
	rawURL := req.URL.String()

	resp, sent, ac, err := a.send(req, body, false)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized && sent == nil {
		_ = resp.Body.Close()
		a.ClearToken(rawURL)
		a.logger.Debug("bearer token rejected, re-authenticating", "url", rawURL)
		resp, sent, ac, err = a.send(req, body, true)
		if err != nil {
			return nil, err
		}
	}

	if sent != nil && sent.TwoWay() && a.verifier != nil && resp.StatusCode < 300 {
		if err := a.checkCounterSignature(req.Context(), resp, sent, ac); err != nil {
			_ = resp.Body.Close()
			return nil, err
		}
	}
	a.UpdateFromResponse(rawURL, resp.Header)
	return resp, nil
}

func (a *Authenticator) send(req *http.Request, body []byte, forceNew bool) (*http.Response, *Header, *Context, error) {
	value, sent, ac, err := a.authorize(req.Context(), req.URL.String(), req.Method, body, forceNew)
	if err != nil {
		return nil, nil, nil, err
	}
	out := req.Clone(req.Context())
	if body != nil {
		out.Body = io.NopCloser(bytes.NewReader(body))
		out.ContentLength = int64(len(body))
	}
	out.Header.Set("Authorization", value)
	resp, err := a.client.Do(out)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("auth: send request: %w", err)
	}
	return resp, sent, ac, nil
}

func (a *Authenticator) checkCounterSignature(ctx context.Context, resp *http.Response, sent *Header, ac *Context) error {
	value := resp.Header.Get(HeaderAuthenticationInfo)
	if value == "" {
		return fmt.Errorf("auth: responder %s did not counter-sign", ac.TargetDID)
	}
	counter, err := ParseHeader(value)
	if err != nil {
		return err
	}
	if err := a.verifier.VerifyResponseHeader(ctx, counter, sent, ac); err != nil {
		return fmt.Errorf("auth: responder counter-signature: %w", err)
	}
	return nil
}

func domainOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("auth: %q is not an absolute URL", rawURL)
	}
	return strings.ToLower(u.Host), nil
}
