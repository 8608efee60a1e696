// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package hosted

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/aumos-ai/wba-identity/identity"
)

// ResultSource delivers results to a requester. *Client implements it.
type ResultSource interface {
	Check(ctx context.Context) ([]*Result, error)
	Acknowledge(ctx context.Context, resultID string) error
}

// Materializer durably applies a delivered result, typically by adopting the
// hosted identity locally. It must be idempotent: a result whose
// acknowledgment was lost is delivered again.
type Materializer interface {
	Materialize(ctx context.Context, r *Result) error
}

// MaterializerFunc adapts a function to Materializer.
type MaterializerFunc func(ctx context.Context, r *Result) error

func (f MaterializerFunc) Materialize(ctx context.Context, r *Result) error { return f(ctx, r) }

// AdoptInto returns a Materializer that records each hosted document as an
// identity of m.
func AdoptInto(m *identity.Manager) Materializer {
	return MaterializerFunc(func(ctx context.Context, r *Result) error {
		_, err := m.AdoptHostedDocument(ctx, r.HostedDIDDocument, r.Source())
		return err
	})
}

// PollerOptions configures a Poller.
type PollerOptions struct {
	// Source is polled for results. Required.
	Source ResultSource
	// Materializer applies each result before it is acknowledged. Required.
	Materializer Materializer
	Logger       *slog.Logger
}

// Poller collects hosted-DID results for a requester.
type Poller struct {
	source ResultSource
	apply  Materializer
	logger *slog.Logger
}

// NewPoller constructs a Poller.
func NewPoller(opts PollerOptions) (*Poller, error) {
	if opts.Source == nil || opts.Materializer == nil {
		return nil, fmt.Errorf("hosted: PollerOptions.Source and Materializer must not be nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{source: opts.Source, apply: opts.Materializer, logger: logger}, nil
}

var errNothingDelivered = errors.New("hosted: no results delivered")

// PollForResults checks for results up to maxAttempts times, waiting
// interval between attempts. Each result is materialized and only then
// acknowledged. It returns after the first attempt that materialized at
// least one result, with the results it materialized. Exhausting the
// attempts without a result is not an error. Cancelling ctx stops the loop
// between attempts.
func (p *Poller) PollForResults(ctx context.Context, interval time.Duration, maxAttempts int) ([]*Result, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var delivered []*Result
	attempt := 0
	op := func() error {
		attempt++
		got, err := p.pollOnce(ctx)
		if err != nil {
			return err
		}
		if len(got) == 0 {
			return errNothingDelivered
		}
		delivered = got
		return nil
	}
	notify := func(err error, wait time.Duration) {
		if errors.Is(err, errNothingDelivered) {
			p.logger.Debug("no hosted DID results yet", "attempt", attempt, "next", wait)
			return
		}
		p.logger.Warn("hosted DID poll failed", "attempt", attempt, "next", wait, "err", err)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), uint64(maxAttempts-1)),
		ctx,
	)
	err := backoff.RetryNotify(op, policy, notify)
	switch {
	case err == nil:
		return delivered, nil
	case errors.Is(err, errNothingDelivered):
		return nil, nil
	default:
		return nil, err
	}
}

// pollOnce runs one check, materialize, acknowledge round. A result that
// fails to materialize is left unacknowledged for the next round.
func (p *Poller) pollOnce(ctx context.Context) ([]*Result, error) {
	results, err := p.source.Check(ctx)
	if err != nil {
		return nil, err
	}
	var done []*Result
	var firstErr error
	for _, r := range results {
		if err := p.apply.Materialize(ctx, r); err != nil {
			p.logger.Warn("could not materialize hosted DID result", "result_id", r.ResultID, "err", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := p.source.Acknowledge(ctx, r.ResultID); err != nil {
			// Already applied; a repeated delivery is harmless.
			p.logger.Warn("could not acknowledge hosted DID result", "result_id", r.ResultID, "err", err)
		}
		done = append(done, r)
	}
	if len(done) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return done, nil
}
