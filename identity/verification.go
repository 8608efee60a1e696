// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package identity

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/aumos-ai/wba-identity/did"
	"github.com/aumos-ai/wba-identity/keys"
	"github.com/aumos-ai/wba-identity/types"
)

// VerifyCredential checks vc against the issuer document doc. An empty
// expectedNonce skips the nonce comparison. A nil error means the signature
// verified; there is no partially-valid outcome.
func VerifyCredential(vc *VerifiableCredential, doc *did.Document, expectedNonce string) error {
	return verifyCredentialAt(vc, doc, expectedNonce, time.Now().UTC())
}

func verifyCredentialAt(vc *VerifiableCredential, doc *did.Document, expectedNonce string, now time.Time) error {
	if vc == nil || doc == nil {
		return &types.ErrSignatureInvalid{Reason: "credential or document missing"}
	}
	if vc.Proof == nil {
		return &types.ErrSignatureInvalid{Reason: "credential has no proof"}
	}
	if vc.CredentialSubject == nil {
		return &types.ErrSignatureInvalid{Reason: "credential has no credentialSubject"}
	}

	// Check expiry before any key work to fail fast.
	expiresAt, err := time.Parse(credentialTimeLayout, vc.ExpirationDate)
	if err != nil {
		if expiresAt, err = time.Parse(time.RFC3339, vc.ExpirationDate); err != nil {
			return &types.ErrSignatureInvalid{Reason: "unparseable expirationDate"}
		}
	}
	if now.After(expiresAt) {
		return &types.ErrCredentialExpired{ExpiredAt: expiresAt}
	}

	if expectedNonce != "" && vc.CredentialSubject.Nonce != expectedNonce {
		return &types.ErrNonceMismatch{}
	}

	if vc.Issuer != doc.ID {
		return &types.ErrSignatureInvalid{Reason: "issuer does not match document"}
	}

	pub, err := ExtractPublicKey(doc, vc.Proof.VerificationMethod)
	if err != nil {
		return err
	}

	sig, err := base64.RawURLEncoding.Strict().DecodeString(vc.Proof.Signature)
	if err != nil {
		return &types.ErrSignatureInvalid{Reason: "signature is not base64url"}
	}
	canonical, err := canonicalCredential(vc)
	if err != nil {
		return err
	}
	if !keys.Verify(pub, canonical, sig) {
		return &types.ErrSignatureInvalid{Reason: "credential signature does not verify"}
	}
	return nil
}

// CredentialVerifier resolves issuer DIDs and verifies credentials against
// the resolved document.
type CredentialVerifier struct {
	resolver Resolver
}

// NewCredentialVerifier constructs a CredentialVerifier backed by resolver.
func NewCredentialVerifier(resolver Resolver) *CredentialVerifier {
	return &CredentialVerifier{resolver: resolver}
}

// Verify resolves vc.Issuer and runs VerifyCredential against its document.
func (v *CredentialVerifier) Verify(ctx context.Context, vc *VerifiableCredential, expectedNonce string) error {
	if vc == nil {
		return &types.ErrSignatureInvalid{Reason: "credential missing"}
	}
	doc, err := v.resolver.Resolve(ctx, vc.Issuer)
	if err != nil {
		return fmt.Errorf("verification: resolve issuer: %w", err)
	}
	return VerifyCredential(vc, doc, expectedNonce)
}
