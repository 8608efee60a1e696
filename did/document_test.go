// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package did

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aumos-ai/wba-identity/types"
)

const sampleDocument = `{
  "@context": ["https://www.w3.org/ns/did/v1"],
  "id": "did:wba:example.com:wba:user:alice",
  "verificationMethod": [{
    "id": "did:wba:example.com:wba:user:alice#key-1",
    "type": "EcdsaSecp256k1VerificationKey2019",
    "controller": "did:wba:example.com:wba:user:alice",
    "publicKeyJwk": {"kty": "EC", "crv": "secp256k1", "x": "abc", "y": "def"}
  }],
  "authentication": ["did:wba:example.com:wba:user:alice#key-1"]
}`

func TestParseDocument(t *testing.T) {
	doc, err := ParseDocument([]byte(sampleDocument))
	require.NoError(t, err)
	assert.Equal(t, "did:wba:example.com:wba:user:alice", doc.ID)
	require.Len(t, doc.VerificationMethod, 1)
	assert.Equal(t, "secp256k1", doc.VerificationMethod[0].PublicKeyJWK.Crv)

	_, err = ParseDocument([]byte("not json"))
	require.Error(t, err)
}

func TestVerificationMethodByID(t *testing.T) {
	doc, err := ParseDocument([]byte(sampleDocument))
	require.NoError(t, err)

	for _, id := range []string{"key-1", "#key-1", "did:wba:example.com:wba:user:alice#key-1"} {
		vm, ok := doc.VerificationMethodByID(id)
		require.True(t, ok, id)
		assert.Equal(t, "key-1", Fragment(vm.ID))
	}

	_, ok := doc.VerificationMethodByID("key-2")
	assert.False(t, ok)
	_, ok = doc.VerificationMethodByID("")
	assert.False(t, ok)
}

func TestDocumentClone(t *testing.T) {
	doc, err := ParseDocument([]byte(sampleDocument))
	require.NoError(t, err)

	cp := doc.Clone()
	cp.VerificationMethod[0].PublicKeyJWK.X = "changed"
	cp.Authentication[0] = "changed"

	assert.Equal(t, "abc", doc.VerificationMethod[0].PublicKeyJWK.X)
	assert.Equal(t, "did:wba:example.com:wba:user:alice#key-1", doc.Authentication[0])
}

func TestKeyDIDRoundTrip(t *testing.T) {
	raw := append([]byte{0x02}, bytes.Repeat([]byte{0x11}, 32)...)

	d, err := KeyDID(types.KeyTypeSecp256k1, raw)
	require.NoError(t, err)
	assert.Contains(t, d, "did:key:z")

	keyType, decoded, err := ParseKeyDID(d)
	require.NoError(t, err)
	assert.Equal(t, types.KeyTypeSecp256k1, keyType)
	assert.Equal(t, raw, decoded)

	_, _, err = ParseKeyDID("did:wba:example.com:wba:user:alice")
	require.Error(t, err)

	_, err = KeyDID(types.KeyTypeRSA, raw)
	require.Error(t, err)
}
