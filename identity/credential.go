// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package identity

import (
	"crypto"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/aumos-ai/wba-identity/did"
	"github.com/aumos-ai/wba-identity/keys"
	"github.com/aumos-ai/wba-identity/types"
)

const (
	// CredentialContext is the W3C VC v1 JSON-LD context.
	CredentialContext = "https://www.w3.org/2018/credentials/v1"
	// CredentialTypeDIDAuthorization is the second entry of the type array.
	CredentialTypeDIDAuthorization = "DIDAuthorizationCredential"

	// DefaultCredentialTTL is used when IssueCredential is given a zero TTL.
	DefaultCredentialTTL = 5 * time.Minute

	credentialTimeLayout = "2006-01-02T15:04:05Z"
)

// VerifiableCredential is a short-lived W3C Verifiable Credential proving
// control of a DID in answer to a server-issued nonce.
type VerifiableCredential struct {
	Context           []string           `json:"@context"`
	Type              []string           `json:"type"`
	Issuer            string             `json:"issuer"`
	Subject           string             `json:"subject"`
	IssuanceDate      string             `json:"issuanceDate"`
	ExpirationDate    string             `json:"expirationDate"`
	CredentialSubject *CredentialSubject `json:"credentialSubject,omitempty"`
	Proof             *CredentialProof   `json:"proof,omitempty"`
}

// CredentialSubject binds the issuer's verification key to the nonce.
type CredentialSubject struct {
	ID           string   `json:"id"`
	Type         string   `json:"type"`
	Controller   string   `json:"controller"`
	PublicKeyJWK *did.JWK `json:"publicKeyJwk,omitempty"`
	Nonce        string   `json:"nonce"`
}

// CredentialProof holds the signature attached to a VerifiableCredential.
type CredentialProof struct {
	Type               string `json:"type"`
	Created            string `json:"created"`
	VerificationMethod string `json:"verificationMethod"`
	ProofPurpose       string `json:"proofPurpose"`
	// Signature is the base64url signature over the canonical credential without its proof.
	Signature string `json:"signature"`
}

// IssueCredential builds and signs a credential for the first verification
// method of doc. priv must be the private half of that method's key.
func IssueCredential(doc *did.Document, priv crypto.PrivateKey, nonce string, ttl time.Duration) (*VerifiableCredential, error) {
	return issueCredentialAt(doc, priv, nonce, ttl, time.Now().UTC())
}

func issueCredentialAt(doc *did.Document, priv crypto.PrivateKey, nonce string, ttl time.Duration, now time.Time) (*VerifiableCredential, error) {
	if doc == nil {
		return nil, fmt.Errorf("credential: document must not be nil")
	}
	if priv == nil {
		return nil, &types.ErrKeyUnavailable{Purpose: "credential issuance"}
	}
	vm, ok := doc.FirstVerificationMethod()
	if !ok {
		return nil, &types.ErrNoVerificationMethod{DID: doc.ID}
	}

	pub, err := keys.PublicKey(priv)
	if err != nil {
		return nil, fmt.Errorf("credential: %w", err)
	}
	jwk, err := keys.PublicKeyToJWK(pub)
	if err != nil {
		return nil, fmt.Errorf("credential: %w", err)
	}
	if err := matchesVerificationMethod(jwk, vm); err != nil {
		return nil, err
	}

	if ttl <= 0 {
		ttl = DefaultCredentialTTL
	}
	vc := &VerifiableCredential{
		Context:        []string{CredentialContext},
		Type:           []string{"VerifiableCredential", CredentialTypeDIDAuthorization},
		Issuer:         doc.ID,
		Subject:        doc.ID,
		IssuanceDate:   now.Format(credentialTimeLayout),
		ExpirationDate: now.Add(ttl).Format(credentialTimeLayout),
		CredentialSubject: &CredentialSubject{
			ID:           doc.ID,
			Type:         vm.Type,
			Controller:   vm.Controller,
			PublicKeyJWK: jwk,
			Nonce:        nonce,
		},
	}

	canonical, err := canonicalCredential(vc)
	if err != nil {
		return nil, err
	}
	sig, err := keys.Sign(priv, canonical)
	if err != nil {
		return nil, fmt.Errorf("credential: sign: %w", err)
	}

	vc.Proof = &CredentialProof{
		Type:               string(keys.ProofType(priv)),
		Created:            now.Format(credentialTimeLayout),
		VerificationMethod: vm.ID,
		ProofPurpose:       "authentication",
		Signature:          base64.RawURLEncoding.EncodeToString(sig),
	}
	return vc, nil
}

// matchesVerificationMethod rejects issuing with a key the document does not publish.
func matchesVerificationMethod(jwk *did.JWK, vm *did.VerificationMethod) error {
	published, err := keys.PublicKeyFromVerificationMethod(vm)
	if err != nil {
		return fmt.Errorf("credential: %w", err)
	}
	publishedJWK, err := keys.PublicKeyToJWK(published)
	if err != nil {
		return fmt.Errorf("credential: %w", err)
	}
	a, err := keys.Thumbprint(jwk)
	if err != nil {
		return fmt.Errorf("credential: %w", err)
	}
	b, err := keys.Thumbprint(publishedJWK)
	if err != nil {
		return fmt.Errorf("credential: %w", err)
	}
	if a != b {
		return fmt.Errorf("credential: private key does not match verification method %s", vm.ID)
	}
	return nil
}

// canonicalCredential returns the JCS bytes of vc without its proof. This is
// the byte sequence that is signed and must be verified.
func canonicalCredential(vc *VerifiableCredential) ([]byte, error) {
	unsigned := *vc
	unsigned.Proof = nil
	out, err := keys.Canonicalize(&unsigned)
	if err != nil {
		return nil, fmt.Errorf("credential: canonicalize: %w", err)
	}
	return out, nil
}
