// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/aumos-ai/wba-identity/did"
	"github.com/aumos-ai/wba-identity/identity"
	"github.com/aumos-ai/wba-identity/types"
)

// SignerSource returns the signer for a DID served by this process.
type SignerSource func(ctx context.Context, id string) (Signer, error)

// ManagedSigners serves signers for the identities held by m.
func ManagedSigners(m *identity.Manager) SignerSource {
	return func(ctx context.Context, id string) (Signer, error) {
		s, err := m.Signer(ctx, id)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Responder counter-signs verified two-way requests on behalf of local DIDs.
type Responder struct {
	signers SignerSource
}

// NewResponder returns a Responder that signs with signers.
func NewResponder(signers SignerSource) *Responder {
	return &Responder{signers: signers}
}

// CounterSign builds the responder's header for a verified two-way request:
// did is the responder, resp_did is the caller and the caller's nonce is
// echoed back.
func (r *Responder) CounterSign(ctx context.Context, res *Result, req Request) (*Header, error) {
	if res == nil || res.ResponderDID == "" {
		return nil, fmt.Errorf("auth: counter-sign needs a two-way result")
	}
	signer, err := r.signers(ctx, res.ResponderDID)
	if err != nil {
		return nil, &types.ErrRequestRejected{Reason: "resp_did is not served here"}
	}
	h := &Header{
		DID:       res.ResponderDID,
		Nonce:     res.Nonce,
		Timestamp: time.Now().UTC().Format(TimestampLayout),
		RespDID:   res.CallerDID,
		KeyID:     did.Fragment(signer.KeyID()),
	}
	if err := sign(ctx, h, req, signer); err != nil {
		return nil, err
	}
	return h, nil
}
