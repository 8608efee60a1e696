// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

// Package did implements the did:wba identifier codec, the DID document model
// and did:key derivation.
//
// A did:wba identifier has the form
//
//	did:<method>:<host-port>:<method>:<subject-type>:<subject-id>
//
// where a non-default port is percent-escaped ("example.com%3A8800") and
// ports 80 and 443 are written bare.
package did

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aumos-ai/wba-identity/types"
)

// MethodWBA is the DID method produced by Format.
const MethodWBA = "wba"

const (
	prefix        = "did:"
	portSeparator = "%3A"
	segmentCount  = 6
)

// WBA is a decoded did:wba identifier. Port 0 means the default HTTPS port;
// ports 80 and 443 are folded into 0 by both Format and Parse.
type WBA struct {
	Method      string
	Host        string
	Port        int
	SubjectType string
	SubjectID   string
}

// Format encodes a did:wba identifier.
func Format(host string, port int, subjectType, subjectID string) string {
	return WBA{
		Method:      MethodWBA,
		Host:        host,
		Port:        port,
		SubjectType: subjectType,
		SubjectID:   subjectID,
	}.String()
}

// String returns the canonical (escaped) form of d.
func (d WBA) String() string {
	hostPort := d.Host
	if !isDefaultPort(d.Port) {
		hostPort += portSeparator + strconv.Itoa(d.Port)
	}
	return strings.Join([]string{"did", d.Method, hostPort, d.Method, d.SubjectType, d.SubjectID}, ":")
}

// Authority returns host[:port] suitable for building URLs.
func (d WBA) Authority() string {
	if isDefaultPort(d.Port) {
		return d.Host
	}
	return d.Host + ":" + strconv.Itoa(d.Port)
}

// DocumentURL returns the location of the DID document for d.
func (d WBA) DocumentURL(scheme string) string {
	if scheme == "" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s/%s/did.json", scheme, d.Authority(), d.Method, d.SubjectType, d.SubjectID)
}

// Parse decodes a did:wba style identifier. Both the escaped form
// (host%3Aport) and the legacy colon-separated form (host:port) are accepted.
func Parse(s string) (WBA, error) {
	if !strings.HasPrefix(s, prefix) {
		return WBA{}, &types.ErrMalformedDID{DID: s, Reason: "must start with 'did:'"}
	}
	parts := strings.Split(s, ":")
	if len(parts) < segmentCount {
		return WBA{}, &types.ErrMalformedDID{DID: s, Reason: "too few segments"}
	}

	method := parts[1]
	if !validMethod(method) {
		return WBA{}, &types.ErrMalformedDID{DID: s, Reason: "invalid method name"}
	}

	host, port, err := splitHostPort(parts[2])
	if err != nil {
		return WBA{}, &types.ErrMalformedDID{DID: s, Reason: err.Error()}
	}

	rest := parts[3:]
	if port == 0 && len(rest) == 4 && isNumeric(rest[0]) {
		// Legacy form: did:wba:host:port:wba:type:id
		port, err = parsePort(rest[0])
		if err != nil {
			return WBA{}, &types.ErrMalformedDID{DID: s, Reason: err.Error()}
		}
		rest = rest[1:]
	}
	if len(rest) != 3 {
		return WBA{}, &types.ErrMalformedDID{DID: s, Reason: "unexpected number of segments"}
	}
	if rest[0] != method {
		return WBA{}, &types.ErrMalformedDID{DID: s, Reason: fmt.Sprintf("method segment %q does not match %q", rest[0], method)}
	}
	if rest[1] == "" || rest[2] == "" {
		return WBA{}, &types.ErrMalformedDID{DID: s, Reason: "empty subject"}
	}
	if isDefaultPort(port) {
		port = 0
	}

	return WBA{
		Method:      method,
		Host:        host,
		Port:        port,
		SubjectType: rest[1],
		SubjectID:   rest[2],
	}, nil
}

// Normalize re-encodes s in canonical escaped form.
func Normalize(s string) (string, error) {
	d, err := Parse(s)
	if err != nil {
		return "", err
	}
	return d.String(), nil
}

// IsWBA reports whether s parses as a did:wba identifier.
func IsWBA(s string) bool {
	d, err := Parse(s)
	return err == nil && d.Method == MethodWBA
}

func splitHostPort(seg string) (string, int, error) {
	host := seg
	port := 0
	if idx := strings.Index(strings.ToUpper(seg), portSeparator); idx >= 0 {
		host = seg[:idx]
		p, err := parsePort(seg[idx+len(portSeparator):])
		if err != nil {
			return "", 0, err
		}
		port = p
	}
	if host == "" {
		return "", 0, fmt.Errorf("empty host")
	}
	if strings.ContainsAny(host, "/%@?# \t") {
		return "", 0, fmt.Errorf("invalid host %q", host)
	}
	return host, port, nil
}

func parsePort(raw string) (int, error) {
	if !isNumeric(raw) {
		return 0, fmt.Errorf("invalid port %q", raw)
	}
	p, err := strconv.Atoi(raw)
	if err != nil || p < 1 || p > 65535 {
		return 0, fmt.Errorf("port %q out of range", raw)
	}
	return p, nil
}

func isDefaultPort(port int) bool {
	return port == 0 || port == 80 || port == 443
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func validMethod(m string) bool {
	if m == "" || m[0] < 'a' || m[0] > 'z' {
		return false
	}
	for _, r := range m {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
