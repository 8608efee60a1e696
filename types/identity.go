// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

// Package types defines shared value types used across the wba-identity module.
package types

// DIDMethod enumerates the supported Decentralized Identifier methods.
type DIDMethod string

const (
	DIDMethodWBA DIDMethod = "wba"
	DIDMethodKey DIDMethod = "key"
)

// KeyType identifies the curve or algorithm family of a key pair.
type KeyType string

const (
	KeyTypeSecp256k1 KeyType = "secp256k1"
	KeyTypeP256      KeyType = "P-256"
	KeyTypeEd25519   KeyType = "Ed25519"
	KeyTypeRSA       KeyType = "RSA"
	KeyTypeX25519    KeyType = "X25519"
)

// VerificationMethodType identifies the type of a DID verification method.
type VerificationMethodType string

const (
	VerificationMethodSecp256k1 VerificationMethodType = "EcdsaSecp256k1VerificationKey2019"
	VerificationMethodJWK       VerificationMethodType = "JsonWebKey2020"
	VerificationMethodEd25519   VerificationMethodType = "Ed25519VerificationKey2020"
	VerificationMethodX25519    VerificationMethodType = "X25519KeyAgreementKey2019"
)

// ProofType identifies the type of a credential proof.
type ProofType string

const (
	ProofTypeSecp256k1Signature ProofType = "EcdsaSecp256k1Signature2019"
	ProofTypeJWS                ProofType = "JsonWebSignature2020"
	ProofTypeEd25519Signature   ProofType = "Ed25519Signature2020"
)

// RequestStatus is the lifecycle state of a hosted-DID request. Each status
// is also the name of the queue partition that holds the record.
type RequestStatus string

const (
	StatusPending    RequestStatus = "pending"
	StatusProcessing RequestStatus = "processing"
	StatusCompleted  RequestStatus = "completed"
	StatusFailed     RequestStatus = "failed"
)

// AllStatuses lists every request status in lifecycle order.
var AllStatuses = []RequestStatus{StatusPending, StatusProcessing, StatusFailed, StatusCompleted}

// Rank orders statuses by how far along the lifecycle they are. Terminal
// states rank highest; completed outranks failed.
func (s RequestStatus) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusProcessing:
		return 1
	case StatusFailed:
		return 2
	case StatusCompleted:
		return 3
	default:
		return -1
	}
}

// Valid reports whether s is one of the known statuses.
func (s RequestStatus) Valid() bool {
	return s.Rank() >= 0
}

// Terminal reports whether no further transition is possible from s.
func (s RequestStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}
