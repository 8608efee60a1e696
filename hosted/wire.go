// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package hosted

import (
	"encoding/json"
	"time"

	"github.com/aumos-ai/wba-identity/did"
	"github.com/aumos-ai/wba-identity/types"
)

// HTTP routes served by Handler.
const (
	PathSubmit      = "/wba/hosted-did/request"
	PathCheck       = "/wba/hosted-did/check/"
	PathAcknowledge = "/wba/hosted-did/acknowledge/"
	PathStatus      = "/wba/hosted-did/status/"
)

// SubmitRequest is the body of POST /wba/hosted-did/request.
type SubmitRequest struct {
	DIDDocument  *did.Document   `json:"did_document"`
	RequesterDID string          `json:"requester_did"`
	CallbackInfo json.RawMessage `json:"callback_info,omitempty"`
}

// SubmitResponse answers a submission. EstimatedProcessingTime is in seconds.
type SubmitResponse struct {
	Success                 bool   `json:"success"`
	RequestID               string `json:"request_id,omitempty"`
	Message                 string `json:"message"`
	EstimatedProcessingTime int    `json:"estimated_processing_time,omitempty"`
}

// EstimatedDuration returns the processing estimate as a duration.
func (r *SubmitResponse) EstimatedDuration() time.Duration {
	return time.Duration(r.EstimatedProcessingTime) * time.Second
}

// CheckResponse lists the unacknowledged results of a requester.
type CheckResponse struct {
	Success bool      `json:"success"`
	Results []*Result `json:"results"`
	Message string    `json:"message,omitempty"`
}

// AckResponse answers an acknowledgment.
type AckResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// StatusResponse reports where a request is in its lifecycle.
type StatusResponse struct {
	Success      bool                `json:"success"`
	RequestID    string              `json:"request_id,omitempty"`
	Status       types.RequestStatus `json:"status,omitempty"`
	SubmitTime   *time.Time          `json:"submit_time,omitempty"`
	ProcessTime  *time.Time          `json:"process_time,omitempty"`
	CompleteTime *time.Time          `json:"complete_time,omitempty"`
	Message      string              `json:"message,omitempty"`
}
