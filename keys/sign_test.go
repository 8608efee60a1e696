// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package keys

import (
	"errors"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aumos-ai/wba-identity/types"
)

var signingKeyTypes = []types.KeyType{
	types.KeyTypeSecp256k1,
	types.KeyTypeP256,
	types.KeyTypeEd25519,
	types.KeyTypeRSA,
}

func TestSignVerify(t *testing.T) {
	msg := []byte(`{"did":"did:wba:example.com:wba:user:alice","nonce":"abc"}`)

	for _, kt := range signingKeyTypes {
		t.Run(string(kt), func(t *testing.T) {
			priv, err := Generate(kt)
			require.NoError(t, err)
			pub, err := PublicKey(priv)
			require.NoError(t, err)

			gotType, err := TypeOf(pub)
			require.NoError(t, err)
			assert.Equal(t, kt, gotType)

			sig, err := Sign(priv, msg)
			require.NoError(t, err)
			assert.True(t, Verify(pub, msg, sig))

			assert.False(t, Verify(pub, []byte("other message"), sig))

			for i := range sig {
				tampered := append([]byte(nil), sig...)
				tampered[i] ^= 0x01
				if Verify(pub, msg, tampered) {
					t.Fatalf("tampered signature accepted at byte %d", i)
				}
			}
		})
	}
}

func TestVerifySecp256k1RejectsHighS(t *testing.T) {
	priv, err := Generate(types.KeyTypeSecp256k1)
	require.NoError(t, err)
	pub, err := PublicKey(priv)
	require.NoError(t, err)
	msg := []byte("m")

	sig, err := Sign(priv, msg)
	require.NoError(t, err)
	require.True(t, Verify(pub, msg, sig))

	var s secp256k1.ModNScalar
	require.False(t, s.SetByteSlice(sig[scalarSize:]))
	require.False(t, s.IsOverHalfOrder())
	s.Negate()
	high := s.Bytes()
	malleated := append(append([]byte(nil), sig[:scalarSize]...), high[:]...)
	assert.False(t, Verify(pub, msg, malleated))
}

func TestECDSASignatureLength(t *testing.T) {
	for _, kt := range []types.KeyType{types.KeyTypeSecp256k1, types.KeyTypeP256} {
		priv, err := Generate(kt)
		require.NoError(t, err)
		sig, err := Sign(priv, []byte("m"))
		require.NoError(t, err)
		assert.Len(t, sig, 64, kt)
	}
}

func TestVerifyWrongKey(t *testing.T) {
	a, err := Generate(types.KeyTypeSecp256k1)
	require.NoError(t, err)
	b, err := Generate(types.KeyTypeSecp256k1)
	require.NoError(t, err)
	pubB, err := PublicKey(b)
	require.NoError(t, err)

	sig, err := Sign(a, []byte("m"))
	require.NoError(t, err)
	assert.False(t, Verify(pubB, []byte("m"), sig))
	assert.False(t, Verify(nil, []byte("m"), sig))
}

func TestSignNilKey(t *testing.T) {
	_, err := Sign(nil, []byte("m"))
	var unavailable *types.ErrKeyUnavailable
	require.True(t, errors.As(err, &unavailable))
}

func TestCanonicalize(t *testing.T) {
	out, err := Canonicalize(map[string]any{
		"timestamp": "2026-01-01T00:00:00Z",
		"did":       "did:wba:example.com:wba:user:alice",
		"nested":    map[string]any{"b": 2, "a": 1},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"did":"did:wba:example.com:wba:user:alice","nested":{"a":1,"b":2},"timestamp":"2026-01-01T00:00:00Z"}`, string(out))

	type payload struct {
		Z string `json:"z"`
		A string `json:"a"`
	}
	out, err = Canonicalize(payload{Z: "1", A: "2"})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"2","z":"1"}`, string(out))
}
