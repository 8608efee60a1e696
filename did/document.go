// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package did

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Default JSON-LD contexts for documents built by this module.
const (
	ContextDIDV1         = "https://www.w3.org/ns/did/v1"
	ContextJWS2020       = "https://w3id.org/security/suites/jws-2020/v1"
	ContextSecp256k12019 = "https://w3id.org/security/suites/secp256k1-2019/v1"
	ContextX255192019    = "https://w3id.org/security/suites/x25519-2019/v1"
)

// DefaultKeyFragment names the first verification method of a generated document.
const DefaultKeyFragment = "key-1"

// Document represents a W3C DID Document.
type Document struct {
	Context            []string             `json:"@context,omitempty"`
	ID                 string               `json:"id"`
	Controller         string               `json:"controller,omitempty"`
	VerificationMethod []VerificationMethod `json:"verificationMethod,omitempty"`
	Authentication     []string             `json:"authentication,omitempty"`
	AssertionMethod    []string             `json:"assertionMethod,omitempty"`
	KeyAgreement       []string             `json:"keyAgreement,omitempty"`
	Service            []Service            `json:"service,omitempty"`
}

// VerificationMethod is an entry in a DID Document's verificationMethod array.
type VerificationMethod struct {
	ID                 string `json:"id"`
	Type               string `json:"type"`
	Controller         string `json:"controller"`
	PublicKeyJWK       *JWK   `json:"publicKeyJwk,omitempty"`
	PublicKeyMultibase string `json:"publicKeyMultibase,omitempty"`
}

// Service is an endpoint advertised by a DID document.
type Service struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	ServiceEndpoint string `json:"serviceEndpoint"`
}

// JWK is the JSON Web Key subset used in DID documents. D is only populated
// for private keys held locally and is never published.
type JWK struct {
	Kty string `json:"kty"`
	Crv string `json:"crv,omitempty"`
	X   string `json:"x,omitempty"`
	Y   string `json:"y,omitempty"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
	D   string `json:"d,omitempty"`
	Kid string `json:"kid,omitempty"`
}

// Public returns a copy of k without private material.
func (k JWK) Public() JWK {
	k.D = ""
	return k
}

// ParseDocument decodes a JSON DID document.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("did: parse document: %w", err)
	}
	return &doc, nil
}

// Clone returns a deep copy of d.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := *d
	out.Context = append([]string(nil), d.Context...)
	out.Authentication = append([]string(nil), d.Authentication...)
	out.AssertionMethod = append([]string(nil), d.AssertionMethod...)
	out.KeyAgreement = append([]string(nil), d.KeyAgreement...)
	out.Service = append([]Service(nil), d.Service...)
	out.VerificationMethod = make([]VerificationMethod, len(d.VerificationMethod))
	for i, vm := range d.VerificationMethod {
		if vm.PublicKeyJWK != nil {
			jwk := *vm.PublicKeyJWK
			vm.PublicKeyJWK = &jwk
		}
		out.VerificationMethod[i] = vm
	}
	return &out
}

// VerificationMethodByID finds a verification method by its full ID or by a
// fragment ("key-1" or "#key-1") relative to the document ID.
func (d *Document) VerificationMethodByID(id string) (*VerificationMethod, bool) {
	if id == "" {
		return nil, false
	}
	full := id
	if !strings.HasPrefix(id, "did:") {
		full = d.ID + "#" + strings.TrimPrefix(id, "#")
	}
	for i := range d.VerificationMethod {
		if d.VerificationMethod[i].ID == full {
			return &d.VerificationMethod[i], true
		}
	}
	return nil, false
}

// FirstVerificationMethod returns the first entry of verificationMethod.
func (d *Document) FirstVerificationMethod() (*VerificationMethod, bool) {
	if d == nil || len(d.VerificationMethod) == 0 {
		return nil, false
	}
	return &d.VerificationMethod[0], true
}

// Fragment returns the part of a verification method ID after '#'.
func Fragment(id string) string {
	if idx := strings.LastIndex(id, "#"); idx >= 0 {
		return id[idx+1:]
	}
	return id
}
