// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aumos-ai/wba-identity/session"
	"github.com/aumos-ai/wba-identity/types"
)

// GateOptions configures a Gate.
type GateOptions struct {
	// Verifier checks DIDWba headers. Required.
	Verifier *Verifier
	// Tokens issues a session token after a DIDWba success and verifies
	// bearer tokens. Without it only DIDWba is accepted.
	Tokens *session.Issuer
	// Responder counter-signs two-way requests. Without it two-way requests
	// are rejected.
	Responder *Responder
	// MaxBodyBytes bounds the body read for digest checks (default 1 MiB).
	MaxBodyBytes int64
	Logger       *slog.Logger
}

// Outcome is a successful authentication.
type Outcome struct {
	CallerDID string
	// Token is a newly issued session token; empty for bearer requests.
	Token string
	// Counter is the responder header for two-way requests.
	Counter *Header
}

// Gate authenticates incoming requests with either a bearer session token
// or a DIDWba header.
type Gate struct {
	verifier  *Verifier
	tokens    *session.Issuer
	responder *Responder
	maxBody   int64
	logger    *slog.Logger
}

// NewGate constructs a Gate.
func NewGate(opts GateOptions) (*Gate, error) {
	if opts.Verifier == nil {
		return nil, fmt.Errorf("auth: GateOptions.Verifier must not be nil")
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		verifier:  opts.Verifier,
		tokens:    opts.Tokens,
		responder: opts.Responder,
		maxBody:   maxBody,
		logger:    logger,
	}, nil
}

// Authenticate checks an Authorization value for the request req.
func (g *Gate) Authenticate(ctx context.Context, authorization string, req Request) (*Outcome, error) {
	authorization = strings.TrimSpace(authorization)
	switch {
	case authorization == "":
		return nil, &types.ErrMalformedHeader{Reason: "missing Authorization header"}

	case len(authorization) > len(bearerPrefix) && strings.EqualFold(authorization[:len(bearerPrefix)], bearerPrefix):
		if g.tokens == nil {
			return nil, &types.ErrInvalidToken{Reason: "bearer tokens are not accepted"}
		}
		claims, err := session.VerifyToken(strings.TrimSpace(authorization[len(bearerPrefix):]), g.tokens.PublicKey())
		if err != nil {
			return nil, err
		}
		caller := claims.DID
		if caller == "" {
			caller = claims.Subject
		}
		if caller == "" {
			return nil, &types.ErrInvalidToken{Reason: "token names no DID"}
		}
		return &Outcome{CallerDID: caller}, nil

	case IsDIDWba(authorization):
		res, err := g.verifier.VerifyAuthorization(ctx, authorization, req)
		if err != nil {
			return nil, err
		}
		out := &Outcome{CallerDID: res.CallerDID}
		if res.ResponderDID != "" {
			if g.responder == nil {
				return nil, &types.ErrRequestRejected{Reason: "two-way authentication is not offered"}
			}
			if out.Counter, err = g.responder.CounterSign(ctx, res, req); err != nil {
				return nil, err
			}
		}
		if g.tokens != nil {
			if out.Token, err = g.tokens.IssueAccessToken(res.CallerDID); err != nil {
				return nil, err
			}
		}
		return out, nil

	default:
		return nil, &types.ErrMalformedHeader{Reason: "unsupported authorization scheme"}
	}
}

type callerKey struct{}

// WithCallerDID returns a context carrying the authenticated caller.
func WithCallerDID(ctx context.Context, did string) context.Context {
	return context.WithValue(ctx, callerKey{}, did)
}

// CallerDID returns the caller stored by Middleware.
func CallerDID(ctx context.Context) (string, bool) {
	did, ok := ctx.Value(callerKey{}).(string)
	return did, ok && did != ""
}

// Middleware authenticates every request before calling next. Failures are
// answered with 401 and a generic message.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			var err error
			body, err = io.ReadAll(io.LimitReader(r.Body, g.maxBody+1))
			_ = r.Body.Close()
			if err != nil || int64(len(body)) > g.maxBody {
				writeUnauthorized(w, http.StatusRequestEntityTooLarge, "request body rejected")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
		}

		out, err := g.Authenticate(r.Context(), r.Header.Get("Authorization"), RequestFromHTTP(r, body))
		if err != nil {
			g.logger.Debug("request authentication failed", "path", r.URL.Path, "err", err)
			writeUnauthorized(w, http.StatusUnauthorized, "authentication failed")
			return
		}
		if out.Token != "" {
			w.Header().Set("Authorization", bearerPrefix+out.Token)
		}
		if out.Counter != nil {
			w.Header().Set(HeaderAuthenticationInfo, out.Counter.String())
		}
		next.ServeHTTP(w, r.WithContext(WithCallerDID(r.Context(), out.CallerDID)))
	})
}

func writeUnauthorized(w http.ResponseWriter, status int, message string) {
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", Scheme)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": message})
}
