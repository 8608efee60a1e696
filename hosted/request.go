// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

// Package hosted implements hosted-DID delegation: an originating identity
// asks a hosting service to publish and custody a new identity on its behalf.
//
// The hosting side keeps requests in a FileQueue whose directories are the
// request states and publishes finished identities to a ResultStore. The
// requesting side submits through a Client and collects results with a
// Poller, which acknowledges a result only after it has been applied locally.
package hosted

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/aumos-ai/wba-identity/did"
	"github.com/aumos-ai/wba-identity/types"
)

// Request is one hosted-DID request as stored in the queue.
type Request struct {
	RequestID    string `json:"request_id"`
	RequesterDID string `json:"requester_did"`
	// DIDDocument is the document the requester wants hosted.
	DIDDocument *did.Document `json:"did_document"`
	// CallbackInfo is opaque to the queue and returned unchanged.
	CallbackInfo json.RawMessage     `json:"callback_info,omitempty"`
	SubmitTime   time.Time           `json:"submit_time"`
	Status       types.RequestStatus `json:"status"`
	ProcessTime  *time.Time          `json:"process_time,omitempty"`
	CompleteTime *time.Time          `json:"complete_time,omitempty"`
	Message      string              `json:"message,omitempty"`
}

// Result is a provisioned hosted identity waiting for its requester.
type Result struct {
	ResultID          string        `json:"result_id"`
	RequestID         string        `json:"request_id"`
	RequesterDID      string        `json:"requester_did"`
	HostedDIDDocument *did.Document `json:"hosted_did_document"`
	SourceHost        string        `json:"source_host"`
	SourcePort        int           `json:"source_port,omitempty"`
	Acknowledged      bool          `json:"acknowledged"`
	CreatedAt         time.Time     `json:"created_at"`
	AcknowledgedAt    *time.Time    `json:"acknowledged_at,omitempty"`
}

// Source returns host[:port] of the hosting service that produced r.
func (r *Result) Source() string {
	return Source{Host: r.SourceHost, Port: r.SourcePort}.String()
}

// Source names a hosting service.
type Source struct {
	Host string
	Port int
}

func (s Source) String() string {
	if s.Port == 0 || s.Port == 80 || s.Port == 443 {
		return s.Host
	}
	return s.Host + ":" + strconv.Itoa(s.Port)
}
