// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package hosted

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aumos-ai/wba-identity/did"
	"github.com/aumos-ai/wba-identity/types"
)

// DefaultEstimatedProcessingTime is advertised to submitters when the
// service is not configured otherwise.
const DefaultEstimatedProcessingTime = 5 * time.Minute

// ServiceOptions configures a Service.
type ServiceOptions struct {
	// Queue holds the requests. Required.
	Queue *FileQueue
	// Results holds published results. Required.
	Results *ResultStore
	// Source is this hosting service; it is recorded on results published
	// through Complete.
	Source Source
	// EstimatedProcessingTime is returned to submitters (default 5m).
	EstimatedProcessingTime time.Duration
	Logger                  *slog.Logger
}

// Service is the hosting side of the delegation workflow. It is safe for
// concurrent use.
type Service struct {
	queue    *FileQueue
	results  *ResultStore
	source   Source
	estimate time.Duration
	logger   *slog.Logger
}

// NewService constructs a Service.
func NewService(opts ServiceOptions) (*Service, error) {
	if opts.Queue == nil || opts.Results == nil {
		return nil, fmt.Errorf("hosted: ServiceOptions.Queue and Results must not be nil")
	}
	estimate := opts.EstimatedProcessingTime
	if estimate <= 0 {
		estimate = DefaultEstimatedProcessingTime
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		queue:    opts.Queue,
		results:  opts.Results,
		source:   opts.Source,
		estimate: estimate,
		logger:   logger,
	}, nil
}

// EstimatedProcessingTime is the estimate returned to submitters.
func (s *Service) EstimatedProcessingTime() time.Duration { return s.estimate }

// Submit queues a request on behalf of requesterDID and returns its ID. The
// requester must be a did:wba DID and document must be present; an empty
// document is accepted.
func (s *Service) Submit(ctx context.Context, requesterDID string, document *did.Document, callbackInfo json.RawMessage) (string, error) {
	if err := requireWBA(requesterDID); err != nil {
		return "", err
	}
	if document == nil {
		return "", &types.ErrRequestRejected{Reason: "did_document is required"}
	}
	if len(callbackInfo) > 0 && !json.Valid(callbackInfo) {
		return "", &types.ErrRequestRejected{Reason: "callback_info is not JSON"}
	}

	req := &Request{
		RequestID:    uuid.NewString(),
		RequesterDID: requesterDID,
		DIDDocument:  document.Clone(),
		CallbackInfo: callbackInfo,
		SubmitTime:   now(),
		Status:       types.StatusPending,
	}
	if err := s.queue.Create(ctx, req); err != nil {
		return "", err
	}
	s.logger.Info("hosted DID request queued", "request_id", req.RequestID, "did", requesterDID)
	return req.RequestID, nil
}

// SubmitAuthenticated queues sr for a caller whose DID has already been
// proven. The request must name that caller as its requester.
func (s *Service) SubmitAuthenticated(ctx context.Context, callerDID string, sr *SubmitRequest) (string, error) {
	if sr == nil {
		return "", &types.ErrRequestRejected{Reason: "empty submission"}
	}
	if !sameRequester(callerDID, sr.RequesterDID) {
		return "", &types.ErrRequestRejected{Reason: "requester_did does not match the authenticated caller"}
	}
	return s.Submit(ctx, sr.RequesterDID, sr.DIDDocument, sr.CallbackInfo)
}

// Get returns the queued request.
func (s *Service) Get(ctx context.Context, requestID string) (*Request, error) {
	return s.queue.Get(ctx, requestID)
}

// GetStatus returns the request's current status.
func (s *Service) GetStatus(ctx context.Context, requestID string) (types.RequestStatus, error) {
	req, err := s.queue.Get(ctx, requestID)
	if err != nil {
		return "", err
	}
	return req.Status, nil
}

// ListPending returns pending requests, oldest submission first.
func (s *Service) ListPending(ctx context.Context) ([]*Request, error) {
	return s.queue.List(ctx, types.StatusPending)
}

// Transition moves a request between statuses. Only pending to processing
// and processing to completed or failed are allowed. Entering processing
// stamps process_time; entering a terminal status stamps complete_time.
func (s *Service) Transition(ctx context.Context, requestID string, from, to types.RequestStatus, message string) (*Request, error) {
	req, err := s.queue.Transition(ctx, requestID, from, to, func(r *Request) {
		at := now()
		switch {
		case to == types.StatusProcessing:
			r.ProcessTime = &at
		case to.Terminal():
			r.CompleteTime = &at
		}
		if message != "" {
			r.Message = message
		}
	})
	if err != nil {
		s.logger.Debug("hosted DID transition refused", "request_id", requestID, "from", from, "to", to, "err", err)
		return nil, err
	}
	s.logger.Info("hosted DID request transitioned", "request_id", requestID, "status", to)
	return req, nil
}

// PublishResult records the hosted document for a request that is being or
// has been processed. Publishing the same request again returns the
// existing result.
func (s *Service) PublishResult(ctx context.Context, requestID string, hosted *did.Document, source Source) (*Result, error) {
	if hosted == nil {
		return nil, &types.ErrRequestRejected{Reason: "hosted document is required"}
	}
	if err := requireWBA(hosted.ID); err != nil {
		return nil, err
	}
	req, err := s.queue.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != types.StatusProcessing && req.Status != types.StatusCompleted {
		return nil, &types.ErrRequestRejected{Reason: fmt.Sprintf("request is %s", req.Status)}
	}

	res, err := s.results.Put(&Result{
		ResultID:          ResultID(requestID),
		RequestID:         requestID,
		RequesterDID:      req.RequesterDID,
		HostedDIDDocument: hosted.Clone(),
		SourceHost:        source.Host,
		SourcePort:        source.Port,
		CreatedAt:         now(),
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("hosted DID result published", "request_id", requestID, "result_id", res.ResultID, "did", hosted.ID)
	return res, nil
}

// Complete publishes the hosted document under this service's source and
// then marks the request completed. A crash between the two steps leaves the
// request in processing with its result already published; calling Complete
// again finishes it.
func (s *Service) Complete(ctx context.Context, requestID string, hosted *did.Document, message string) (*Result, error) {
	res, err := s.PublishResult(ctx, requestID, hosted, s.source)
	if err != nil {
		return nil, err
	}
	if _, err := s.Transition(ctx, requestID, types.StatusProcessing, types.StatusCompleted, message); err != nil {
		return nil, err
	}
	return res, nil
}

// FetchResultsFor returns the unacknowledged results for requesterDID.
func (s *Service) FetchResultsFor(_ context.Context, requesterDID string) ([]*Result, error) {
	return s.results.Pending(requesterDID)
}

// Acknowledge marks a result delivered; it is not returned by
// FetchResultsFor again.
func (s *Service) Acknowledge(_ context.Context, resultID string) error {
	if _, err := s.results.Acknowledge(resultID); err != nil {
		return err
	}
	s.logger.Info("hosted DID result acknowledged", "result_id", resultID)
	return nil
}

// AcknowledgeFor acknowledges a result only when it belongs to requesterDID.
// Results of other requesters are reported as not found.
func (s *Service) AcknowledgeFor(ctx context.Context, requesterDID, resultID string) error {
	res, err := s.results.Get(resultID)
	if err != nil {
		return err
	}
	if !sameRequester(requesterDID, res.RequesterDID) {
		return &types.ErrQueueRecordNotFound{ID: resultID}
	}
	return s.Acknowledge(ctx, resultID)
}

// Recover repairs queue records left in two partitions by an interrupted
// transition.
func (s *Service) Recover(ctx context.Context) (int, error) {
	return s.queue.Recover(ctx)
}

func sameRequester(a, b string) bool {
	na, errA := did.Normalize(a)
	nb, errB := did.Normalize(b)
	return errA == nil && errB == nil && na == nb
}

func requireWBA(id string) error {
	d, err := did.Parse(id)
	if err != nil {
		return err
	}
	if d.Method != did.MethodWBA {
		return &types.ErrUnsupportedDIDMethod{Method: d.Method}
	}
	return nil
}
