// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package identity

import (
	"context"
	"crypto"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aumos-ai/wba-identity/did"
	"github.com/aumos-ai/wba-identity/keys"
	"github.com/aumos-ai/wba-identity/types"
)

func newTestDocument(t *testing.T, keyType types.KeyType) (*did.Document, crypto.PrivateKey) {
	t.Helper()
	priv, err := keys.Generate(keyType)
	require.NoError(t, err)
	pub, err := keys.PublicKey(priv)
	require.NoError(t, err)
	doc, err := BuildDocument(did.Format("example.com", 0, "user", "alice"), pub, nil)
	require.NoError(t, err)
	return doc, priv
}

func TestIssueAndVerifyCredential(t *testing.T) {
	for _, kt := range []types.KeyType{types.KeyTypeSecp256k1, types.KeyTypeP256, types.KeyTypeEd25519} {
		t.Run(string(kt), func(t *testing.T) {
			doc, priv := newTestDocument(t, kt)

			vc, err := IssueCredential(doc, priv, "nonce-1", time.Minute)
			require.NoError(t, err)

			assert.Equal(t, []string{CredentialContext}, vc.Context)
			assert.Equal(t, []string{"VerifiableCredential", "DIDAuthorizationCredential"}, vc.Type)
			assert.Equal(t, doc.ID, vc.Issuer)
			assert.Equal(t, doc.ID, vc.Subject)
			require.NotNil(t, vc.CredentialSubject)
			assert.Equal(t, "nonce-1", vc.CredentialSubject.Nonce)
			require.NotNil(t, vc.Proof)
			assert.Equal(t, doc.ID+"#key-1", vc.Proof.VerificationMethod)
			assert.Equal(t, string(keys.ProofType(priv)), vc.Proof.Type)

			require.NoError(t, VerifyCredential(vc, doc, "nonce-1"))
			require.NoError(t, VerifyCredential(vc, doc, ""))
		})
	}
}

func TestVerifyCredentialTamperedSignature(t *testing.T) {
	doc, priv := newTestDocument(t, types.KeyTypeSecp256k1)
	vc, err := IssueCredential(doc, priv, "n", time.Minute)
	require.NoError(t, err)

	sig, err := base64.RawURLEncoding.DecodeString(vc.Proof.Signature)
	require.NoError(t, err)

	for i := range sig {
		tampered := append([]byte(nil), sig...)
		tampered[i] ^= 0x80
		copyVC := *vc
		proof := *vc.Proof
		proof.Signature = base64.RawURLEncoding.EncodeToString(tampered)
		copyVC.Proof = &proof

		err := VerifyCredential(&copyVC, doc, "n")
		var invalid *types.ErrSignatureInvalid
		require.ErrorAs(t, err, &invalid, "byte %d", i)
	}
}

func TestVerifyCredentialTamperedSignatureEncoding(t *testing.T) {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
	doc, priv := newTestDocument(t, types.KeyTypeSecp256k1)
	vc, err := IssueCredential(doc, priv, "n", time.Minute)
	require.NoError(t, err)
	encoded := vc.Proof.Signature

	for i := range encoded {
		for _, c := range alphabet {
			if byte(c) == encoded[i] {
				continue
			}
			copyVC := *vc
			proof := *vc.Proof
			proof.Signature = encoded[:i] + string(c) + encoded[i+1:]
			copyVC.Proof = &proof

			err := VerifyCredential(&copyVC, doc, "n")
			var invalid *types.ErrSignatureInvalid
			require.ErrorAs(t, err, &invalid, "position %d char %q", i, c)
		}
	}
}

func TestVerifyCredentialTamperedBody(t *testing.T) {
	doc, priv := newTestDocument(t, types.KeyTypeSecp256k1)
	vc, err := IssueCredential(doc, priv, "n", time.Minute)
	require.NoError(t, err)

	subject := *vc.CredentialSubject
	subject.Controller = "did:wba:evil.example:wba:user:mallory"
	vc.CredentialSubject = &subject

	var invalid *types.ErrSignatureInvalid
	require.ErrorAs(t, VerifyCredential(vc, doc, "n"), &invalid)
}

func TestVerifyCredentialExpired(t *testing.T) {
	doc, priv := newTestDocument(t, types.KeyTypeSecp256k1)
	issuedAt := time.Now().UTC().Add(-time.Hour)

	vc, err := issueCredentialAt(doc, priv, "n", time.Minute, issuedAt)
	require.NoError(t, err)

	// Valid signature, but the expiration date has passed.
	require.NoError(t, verifyCredentialAt(vc, doc, "n", issuedAt.Add(30*time.Second)))

	err = VerifyCredential(vc, doc, "n")
	var expired *types.ErrCredentialExpired
	require.ErrorAs(t, err, &expired)
}

func TestVerifyCredentialNonceMismatch(t *testing.T) {
	doc, priv := newTestDocument(t, types.KeyTypeSecp256k1)
	vc, err := IssueCredential(doc, priv, "server-nonce", time.Minute)
	require.NoError(t, err)

	var mismatch *types.ErrNonceMismatch
	require.ErrorAs(t, VerifyCredential(vc, doc, "other-nonce"), &mismatch)
}

func TestVerifyCredentialFailsClosed(t *testing.T) {
	doc, priv := newTestDocument(t, types.KeyTypeSecp256k1)
	vc, err := IssueCredential(doc, priv, "n", time.Minute)
	require.NoError(t, err)

	var invalid *types.ErrSignatureInvalid

	noProof := *vc
	noProof.Proof = nil
	require.ErrorAs(t, VerifyCredential(&noProof, doc, ""), &invalid)

	noSubject := *vc
	noSubject.CredentialSubject = nil
	require.ErrorAs(t, VerifyCredential(&noSubject, doc, ""), &invalid)

	require.ErrorAs(t, VerifyCredential(nil, doc, ""), &invalid)

	otherDoc, _ := newTestDocument(t, types.KeyTypeSecp256k1)
	require.ErrorAs(t, VerifyCredential(vc, otherDoc, ""), &invalid)

	unknownVM := *vc
	proof := *vc.Proof
	proof.VerificationMethod = doc.ID + "#key-9"
	unknownVM.Proof = &proof
	var unknownKey *types.ErrUnknownKey
	require.ErrorAs(t, VerifyCredential(&unknownVM, doc, ""), &unknownKey)
}

func TestIssueCredentialErrors(t *testing.T) {
	doc, priv := newTestDocument(t, types.KeyTypeSecp256k1)

	_, err := IssueCredential(&did.Document{ID: doc.ID}, priv, "n", time.Minute)
	var noVM *types.ErrNoVerificationMethod
	require.ErrorAs(t, err, &noVM)

	_, err = IssueCredential(doc, nil, "n", time.Minute)
	var unavailable *types.ErrKeyUnavailable
	require.ErrorAs(t, err, &unavailable)

	other, err := keys.Generate(types.KeyTypeSecp256k1)
	require.NoError(t, err)
	_, err = IssueCredential(doc, other, "n", time.Minute)
	require.Error(t, err)
}

func TestCredentialVerifierResolvesIssuer(t *testing.T) {
	doc, priv := newTestDocument(t, types.KeyTypeSecp256k1)
	vc, err := IssueCredential(doc, priv, "n", 0)
	require.NoError(t, err)

	resolver := ResolverFunc(func(_ context.Context, id string) (*did.Document, error) {
		if id != doc.ID {
			return nil, &types.ErrUnknownDID{DID: id}
		}
		return doc, nil
	})
	v := NewCredentialVerifier(resolver)
	require.NoError(t, v.Verify(context.Background(), vc, "n"))

	vc.Issuer = "did:wba:other.example:wba:user:bob"
	var unknown *types.ErrUnknownDID
	require.ErrorAs(t, v.Verify(context.Background(), vc, "n"), &unknown)
}
