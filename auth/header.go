// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

// Package auth implements the DIDWba request authentication handshake.
//
// A caller signs {did, nonce, timestamp, target, method} (plus resp_did for
// two-way authentication and a body digest when there is a body) with the
// key named by keyid in its DID document, and sends the result in an
// Authorization header:
//
//	DIDWba did="...", nonce="...", timestamp="...", resp_did="...", keyid="...", signature="..."
//
// The responder checks the timestamp window, resolves the caller's document,
// verifies the signature, and rejects nonces it has already seen. With
// two-way authentication the responder counter-signs the caller's nonce so
// both sides are authenticated in one round trip.
package auth

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/aumos-ai/wba-identity/types"
)

// Scheme is the authorization scheme name.
const Scheme = "DIDWba"

// TimestampLayout is the UTC second-precision timestamp carried in headers.
const TimestampLayout = "2006-01-02T15:04:05Z"

var (
	twoWayPattern = regexp.MustCompile(`^DIDWba\s+did="([^"]+)",\s*nonce="([^"]+)",\s*timestamp="([^"]+)",\s*resp_did="([^"]+)",\s*keyid="([^"]+)",\s*signature="([^"]+)"\s*$`)
	oneWayPattern = regexp.MustCompile(`^DIDWba\s+did="([^"]+)",\s*nonce="([^"]+)",\s*timestamp="([^"]+)",\s*keyid="([^"]+)",\s*signature="([^"]+)"\s*$`)
)

// Header is a parsed DIDWba authorization header. RespDID is empty for the
// one-way dialect.
type Header struct {
	DID       string
	Nonce     string
	Timestamp string
	RespDID   string
	KeyID     string
	Signature string
}

// TwoWay reports whether the header asks the responder to authenticate too.
func (h *Header) TwoWay() bool {
	return h.RespDID != ""
}

// String encodes h in the wire format, choosing the dialect by RespDID.
func (h *Header) String() string {
	if h.RespDID != "" {
		return fmt.Sprintf(`%s did="%s", nonce="%s", timestamp="%s", resp_did="%s", keyid="%s", signature="%s"`,
			Scheme, h.DID, h.Nonce, h.Timestamp, h.RespDID, h.KeyID, h.Signature)
	}
	return fmt.Sprintf(`%s did="%s", nonce="%s", timestamp="%s", keyid="%s", signature="%s"`,
		Scheme, h.DID, h.Nonce, h.Timestamp, h.KeyID, h.Signature)
}

// ParseHeader decodes an Authorization header value. The two-way dialect is
// tried first, then the one-way dialect.
func ParseHeader(value string) (*Header, error) {
	value = strings.TrimSpace(value)
	if m := twoWayPattern.FindStringSubmatch(value); m != nil {
		return &Header{DID: m[1], Nonce: m[2], Timestamp: m[3], RespDID: m[4], KeyID: m[5], Signature: m[6]}, nil
	}
	if m := oneWayPattern.FindStringSubmatch(value); m != nil {
		return &Header{DID: m[1], Nonce: m[2], Timestamp: m[3], KeyID: m[4], Signature: m[5]}, nil
	}
	if !strings.HasPrefix(value, Scheme+" ") {
		return nil, &types.ErrMalformedHeader{Reason: "not a DIDWba header"}
	}
	return nil, &types.ErrMalformedHeader{Reason: "missing or misordered fields"}
}

// IsDIDWba reports whether an Authorization value uses the DIDWba scheme.
func IsDIDWba(value string) bool {
	return strings.HasPrefix(strings.TrimSpace(value), Scheme+" ")
}
