// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package hosted

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aumos-ai/wba-identity/auth"
	"github.com/aumos-ai/wba-identity/types"
)

// HandlerOptions configures NewHandler.
type HandlerOptions struct {
	// AllowAnonymous serves requests that carry no authenticated caller.
	// Without it every route requires auth.Gate in front of the handler.
	AllowAnonymous bool
	// MaxBodyBytes bounds submission bodies (default 1 MiB).
	MaxBodyBytes int64
	Logger       *slog.Logger
}

type handler struct {
	svc       *Service
	anonymous bool
	maxBody   int64
	logger    *slog.Logger
}

// NewHandler serves the hosted-DID HTTP routes for svc:
//
//	POST /wba/hosted-did/request
//	GET  /wba/hosted-did/check/{requester_id}
//	POST /wba/hosted-did/acknowledge/{result_id}
//	GET  /wba/hosted-did/status/{request_id}
//
// When an authenticated caller is present (see auth.Gate), submissions must
// name that caller, and results can only be checked or acknowledged by their
// requester.
func NewHandler(svc *Service, opts HandlerOptions) http.Handler {
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{svc: svc, anonymous: opts.AllowAnonymous, maxBody: maxBody, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+PathSubmit, h.submit)
	mux.HandleFunc("GET "+PathCheck+"{requester_id}", h.check)
	mux.HandleFunc("POST "+PathAcknowledge+"{result_id}", h.acknowledge)
	mux.HandleFunc("GET "+PathStatus+"{request_id}", h.status)
	return mux
}

// caller returns the authenticated DID, or "" for an allowed anonymous call.
func (h *handler) caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	if id, ok := auth.CallerDID(r.Context()); ok {
		return id, true
	}
	if h.anonymous {
		return "", true
	}
	writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "authentication required"})
	return "", false
}

func (h *handler) submit(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var sr SubmitRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err := dec.Decode(&sr); err != nil {
		writeJSON(w, http.StatusBadRequest, SubmitResponse{Message: "invalid request body"})
		return
	}

	var (
		id  string
		err error
	)
	if caller != "" {
		id, err = h.svc.SubmitAuthenticated(r.Context(), caller, &sr)
	} else {
		id, err = h.svc.Submit(r.Context(), sr.RequesterDID, sr.DIDDocument, sr.CallbackInfo)
	}
	if err != nil {
		status, message := h.failure(err)
		writeJSON(w, status, SubmitResponse{Message: message})
		return
	}
	writeJSON(w, http.StatusOK, SubmitResponse{
		Success:                 true,
		RequestID:               id,
		Message:                 "request queued",
		EstimatedProcessingTime: int(h.svc.EstimatedProcessingTime().Seconds()),
	})
}

func (h *handler) check(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	requester := r.PathValue("requester_id")
	if caller != "" && !sameRequester(caller, requester) {
		writeJSON(w, http.StatusForbidden, CheckResponse{Message: "results belong to another requester"})
		return
	}
	results, err := h.svc.FetchResultsFor(r.Context(), requester)
	if err != nil {
		status, message := h.failure(err)
		writeJSON(w, status, CheckResponse{Message: message})
		return
	}
	if results == nil {
		results = []*Result{}
	}
	writeJSON(w, http.StatusOK, CheckResponse{Success: true, Results: results})
}

func (h *handler) acknowledge(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id := r.PathValue("result_id")
	var err error
	if caller != "" {
		err = h.svc.AcknowledgeFor(r.Context(), caller, id)
	} else {
		err = h.svc.Acknowledge(r.Context(), id)
	}
	if err != nil {
		status, message := h.failure(err)
		writeJSON(w, status, AckResponse{Message: message})
		return
	}
	writeJSON(w, http.StatusOK, AckResponse{Success: true})
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	req, err := h.svc.Get(r.Context(), r.PathValue("request_id"))
	if err == nil && caller != "" && !sameRequester(caller, req.RequesterDID) {
		err = &types.ErrQueueRecordNotFound{ID: req.RequestID}
	}
	if err != nil {
		status, message := h.failure(err)
		writeJSON(w, status, StatusResponse{Message: message})
		return
	}
	submitted := req.SubmitTime
	writeJSON(w, http.StatusOK, StatusResponse{
		Success:      true,
		RequestID:    req.RequestID,
		Status:       req.Status,
		SubmitTime:   &submitted,
		ProcessTime:  req.ProcessTime,
		CompleteTime: req.CompleteTime,
		Message:      req.Message,
	})
}

// failure maps an error to a status code and a message that never carries
// paths or internal detail.
func (h *handler) failure(err error) (int, string) {
	var (
		notFound    *types.ErrQueueRecordNotFound
		rejected    *types.ErrRequestRejected
		malformed   *types.ErrMalformedDID
		unsupported *types.ErrUnsupportedDIDMethod
		noMethod    *types.ErrNoVerificationMethod
		illegal     *types.ErrIllegalTransition
	)
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound, "not found"
	case errors.As(err, &rejected):
		return http.StatusBadRequest, rejected.Error()
	case errors.As(err, &malformed), errors.As(err, &unsupported):
		return http.StatusBadRequest, "request rejected: invalid DID"
	case errors.As(err, &noMethod):
		return http.StatusBadRequest, "request rejected: document has no verification method"
	case errors.As(err, &illegal):
		return http.StatusConflict, "request rejected"
	default:
		h.logger.Error("hosted DID request failed", "err", err)
		return http.StatusInternalServerError, "internal error"
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
