// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package types

import (
	"fmt"
	"time"
)

// ErrMalformedDID is returned when a DID string is syntactically invalid.
type ErrMalformedDID struct {
	DID    string
	Reason string
}

func (e *ErrMalformedDID) Error() string {
	return fmt.Sprintf("malformed DID %q: %s", e.DID, e.Reason)
}

// ErrUnsupportedDIDMethod is returned when a DID uses a method this module does not implement.
type ErrUnsupportedDIDMethod struct {
	Method string
}

func (e *ErrUnsupportedDIDMethod) Error() string {
	return fmt.Sprintf("unsupported DID method: %s", e.Method)
}

// ErrDIDResolutionFailed is returned when a DID document cannot be fetched or parsed.
type ErrDIDResolutionFailed struct {
	DID    string
	Reason string
}

func (e *ErrDIDResolutionFailed) Error() string {
	return fmt.Sprintf("DID resolution failed for %s: %s", e.DID, e.Reason)
}

// ErrUnknownDID is returned when a DID does not resolve to any document.
type ErrUnknownDID struct {
	DID string
}

func (e *ErrUnknownDID) Error() string {
	return fmt.Sprintf("unknown DID: %s", e.DID)
}

// ErrUnknownKey is returned when a verification method is not present in a DID document.
type ErrUnknownKey struct {
	DID   string
	KeyID string
}

func (e *ErrUnknownKey) Error() string {
	return fmt.Sprintf("verification method %q not found for %s", e.KeyID, e.DID)
}

// ErrNoVerificationMethod is returned when a DID document carries no usable verification method.
type ErrNoVerificationMethod struct {
	DID string
}

func (e *ErrNoVerificationMethod) Error() string {
	return fmt.Sprintf("DID document %s has no verification method", e.DID)
}

// ErrExpiredTimestamp is returned when a signed timestamp falls outside the accepted window.
type ErrExpiredTimestamp struct {
	Timestamp string
	Window    time.Duration
}

func (e *ErrExpiredTimestamp) Error() string {
	return fmt.Sprintf("timestamp %q outside the %s window", e.Timestamp, e.Window)
}

// ErrReplayedNonce is returned when a nonce has already been accepted for the same DID.
type ErrReplayedNonce struct {
	DID string
}

func (e *ErrReplayedNonce) Error() string {
	return fmt.Sprintf("nonce already used by %s", e.DID)
}

// ErrNonceLedgerFull is returned when no unexpired nonce can be dropped to
// record a new one. The header is refused rather than forgetting a live nonce.
type ErrNonceLedgerFull struct {
	Capacity int
}

func (e *ErrNonceLedgerFull) Error() string {
	return fmt.Sprintf("nonce ledger full (%d live entries)", e.Capacity)
}

// ErrSignatureInvalid is returned when a signature or proof does not verify.
type ErrSignatureInvalid struct {
	Reason string
}

func (e *ErrSignatureInvalid) Error() string {
	return fmt.Sprintf("signature invalid: %s", e.Reason)
}

// ErrMalformedHeader is returned when an Authorization header cannot be parsed.
type ErrMalformedHeader struct {
	Reason string
}

func (e *ErrMalformedHeader) Error() string {
	return fmt.Sprintf("malformed authorization header: %s", e.Reason)
}

// ErrCredentialExpired is returned when a credential's expirationDate has passed.
type ErrCredentialExpired struct {
	ExpiredAt time.Time
}

func (e *ErrCredentialExpired) Error() string {
	return fmt.Sprintf("credential expired at %s", e.ExpiredAt.Format(time.RFC3339))
}

// ErrNonceMismatch is returned when a credential nonce differs from the expected challenge.
type ErrNonceMismatch struct{}

func (e *ErrNonceMismatch) Error() string {
	return "credential nonce does not match the issued challenge"
}

// ErrInvalidToken is returned for any malformed, forged or expired session token.
type ErrInvalidToken struct {
	Reason string
}

func (e *ErrInvalidToken) Error() string {
	return fmt.Sprintf("invalid token: %s", e.Reason)
}

// ErrKeyUnavailable is returned when a signing operation has no key to use.
type ErrKeyUnavailable struct {
	Purpose string
}

func (e *ErrKeyUnavailable) Error() string {
	return fmt.Sprintf("no key available for %s", e.Purpose)
}

// ErrKeyNotFound is returned when a key ID cannot be located in the key store.
type ErrKeyNotFound struct {
	KeyID string
}

func (e *ErrKeyNotFound) Error() string {
	return fmt.Sprintf("key not found: %s", e.KeyID)
}

// ErrQueueRecordNotFound is returned when a hosted-DID request or result does not exist.
type ErrQueueRecordNotFound struct {
	ID string
}

func (e *ErrQueueRecordNotFound) Error() string {
	return fmt.Sprintf("record not found: %s", e.ID)
}

// ErrIllegalTransition is returned when a request status change is not permitted.
type ErrIllegalTransition struct {
	ID   string
	From RequestStatus
	To   RequestStatus
}

func (e *ErrIllegalTransition) Error() string {
	return fmt.Sprintf("request %s: transition %s -> %s rejected", e.ID, e.From, e.To)
}

// ErrRequestRejected is returned when a hosted-DID submission fails validation.
type ErrRequestRejected struct {
	Reason string
}

func (e *ErrRequestRejected) Error() string {
	return fmt.Sprintf("request rejected: %s", e.Reason)
}

// ErrStorageIO wraps a filesystem or database failure. The message only names
// the operation; the underlying cause (which may carry paths) is reachable via
// errors.Unwrap.
type ErrStorageIO struct {
	Op  string
	Err error
}

func (e *ErrStorageIO) Error() string {
	return fmt.Sprintf("storage: %s failed", e.Op)
}

func (e *ErrStorageIO) Unwrap() error {
	return e.Err
}
