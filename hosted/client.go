// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package hosted

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/aumos-ai/wba-identity/auth"
	"github.com/aumos-ai/wba-identity/did"
	"github.com/aumos-ai/wba-identity/types"
)

const maxResponseBytes = 4 << 20

// ClientOptions configures a Client.
type ClientOptions struct {
	// BaseURL is the hosting service root, e.g. "https://host.example". Required.
	BaseURL string
	// Authenticator signs every call as the requester. Required.
	Authenticator *auth.Authenticator
	Logger        *slog.Logger
}

// Client is the requesting side of the hosted-DID HTTP surface.
type Client struct {
	base   string
	auth   *auth.Authenticator
	logger *slog.Logger
}

// NewClient constructs a Client.
func NewClient(opts ClientOptions) (*Client, error) {
	u, err := url.Parse(opts.BaseURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("hosted: invalid BaseURL %q", opts.BaseURL)
	}
	if opts.Authenticator == nil {
		return nil, fmt.Errorf("hosted: ClientOptions.Authenticator must not be nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{base: strings.TrimRight(opts.BaseURL, "/"), auth: opts.Authenticator, logger: logger}, nil
}

// Source returns the hosting service's host[:port].
func (c *Client) Source() string {
	u, _ := url.Parse(c.base)
	return u.Host
}

// Submit asks the hosting service to host document for this requester.
func (c *Client) Submit(ctx context.Context, document *did.Document, callbackInfo json.RawMessage) (*SubmitResponse, error) {
	body, err := json.Marshal(SubmitRequest{
		DIDDocument:  document,
		RequesterDID: c.auth.DID(),
		CallbackInfo: callbackInfo,
	})
	if err != nil {
		return nil, fmt.Errorf("hosted: encode submission: %w", err)
	}
	var out SubmitResponse
	if err := c.call(ctx, http.MethodPost, PathSubmit, body, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, &types.ErrRequestRejected{Reason: out.Message}
	}
	c.logger.Info("hosted DID request submitted", "request_id", out.RequestID, "estimate", out.EstimatedDuration())
	return &out, nil
}

// Status returns the status of a submitted request.
func (c *Client) Status(ctx context.Context, requestID string) (*StatusResponse, error) {
	var out StatusResponse
	if err := c.call(ctx, http.MethodGet, PathStatus+url.PathEscape(requestID), nil, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, &types.ErrRequestRejected{Reason: out.Message}
	}
	return &out, nil
}

// Check returns this requester's unacknowledged results.
func (c *Client) Check(ctx context.Context) ([]*Result, error) {
	var out CheckResponse
	if err := c.call(ctx, http.MethodGet, PathCheck+url.PathEscape(c.auth.DID()), nil, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, &types.ErrRequestRejected{Reason: out.Message}
	}
	return out.Results, nil
}

// Acknowledge confirms delivery of a result.
func (c *Client) Acknowledge(ctx context.Context, resultID string) error {
	var out AckResponse
	if err := c.call(ctx, http.MethodPost, PathAcknowledge+url.PathEscape(resultID), nil, &out); err != nil {
		return err
	}
	if !out.Success {
		return &types.ErrRequestRejected{Reason: out.Message}
	}
	return nil
}

func (c *Client) call(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("hosted: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.auth.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("hosted: read response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &types.ErrQueueRecordNotFound{ID: path[strings.LastIndex(path, "/")+1:]}
	case resp.StatusCode == http.StatusBadRequest && method == http.MethodPost && path == PathSubmit:
		// Decoded below so the rejection reason reaches Submit.
	case resp.StatusCode >= 300:
		return fmt.Errorf("hosted: %s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("hosted: decode response: %w", err)
	}
	return nil
}
