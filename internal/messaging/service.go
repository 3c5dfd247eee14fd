package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/centsible/smsbudget/internal/budget/domain"
	"github.com/centsible/smsbudget/internal/platform/metrics"
)

// ServiceConfig tunes the messenger service.
type ServiceConfig struct {
	MaxAttempts int           // bounded retry count for retryable failures
	RetryDelay  time.Duration // base delay, multiplied by attempt number
	BulkDelay   time.Duration // inter-message spacing in SendBulk
}

// Service implements Messenger on top of one Backend: destination policy,
// bounded retries, bulk pacing, bookkeeping, and metrics all live here so
// backends stay pure provider integrations.
type Service struct {
	backend    Backend
	policy     DestinationPolicy
	users      UserBookkeeper
	deliveries DeliveryLog // optional
	logger     *slog.Logger
	recorder   metrics.Recorder
	cfg        ServiceConfig
}

func NewService(backend Backend, policy DestinationPolicy, users UserBookkeeper, deliveries DeliveryLog, logger *slog.Logger, recorder metrics.Recorder, cfg ServiceConfig) *Service {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	return &Service{
		backend:    backend,
		policy:     policy,
		users:      users,
		deliveries: deliveries,
		logger:     logger.With("component", "messenger", "backend", backend.Name()),
		recorder:   recorder,
		cfg:        cfg,
	}
}

func (s *Service) Send(ctx context.Context, req SendRequest) Result {
	start := time.Now()
	res := s.send(ctx, req)
	s.recorder.ObserveSendDuration(s.backend.Name(), time.Since(start))

	switch {
	case res.Success:
		s.recorder.IncSend(s.backend.Name(), "success")
	case res.SandboxSkipped:
		s.recorder.IncSend(s.backend.Name(), "sandbox_skipped")
	case res.Retryable:
		s.recorder.IncSend(s.backend.Name(), "failed_retryable")
	default:
		s.recorder.IncSend(s.backend.Name(), "failed_terminal")
	}

	s.logDelivery(ctx, req, res)
	return res
}

// logDelivery writes the outcome to the delivery log. Best-effort: the log
// never changes a send's result.
func (s *Service) logDelivery(ctx context.Context, req SendRequest, res Result) {
	if s.deliveries == nil {
		return
	}
	status := domain.DeliveryFailed
	switch {
	case res.Success:
		status = domain.DeliverySent
	case res.SandboxSkipped:
		status = domain.DeliverySkipped
	}
	rec := domain.OutboundRecord{
		UserID:            req.UserID,
		ToNumber:          req.To,
		Backend:           s.backend.Name(),
		ProviderMessageID: res.MessageID,
		Status:            status,
		ErrorCode:         res.ErrorCode,
		SentAt:            time.Now().UTC(),
	}
	if err := s.deliveries.RecordDelivery(ctx, rec); err != nil {
		s.logger.WarnContext(ctx, "Failed to record delivery outcome",
			"to", MaskPhone(req.To), "status", status, "error", err)
	}
}

func (s *Service) send(ctx context.Context, req SendRequest) Result {
	dest, err := s.policy.Resolve(req.To)
	if err != nil {
		if errors.Is(err, ErrNonSimulatorDestination) {
			s.logger.InfoContext(ctx, "Send skipped by destination policy",
				"policy", s.policy.Name(), "to", MaskPhone(req.To))
			return Result{SandboxSkipped: true}
		}
		return Result{Err: fmt.Errorf("resolve destination: %w", err)}
	}
	if dest != req.To {
		s.logger.InfoContext(ctx, "Destination redirected to simulator",
			"to", MaskPhone(req.To), "redirected_to", MaskPhone(dest))
	}

	var resp *BackendResponse
	var sendErr error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		resp, sendErr = s.backend.Send(ctx, dest, req.Body, req.Type)
		if sendErr == nil {
			break
		}
		if resp == nil || !resp.Retryable || attempt == s.cfg.MaxAttempts {
			break
		}
		s.logger.WarnContext(ctx, "Retryable send failure, backing off",
			"attempt", attempt, "error_code", resp.ErrorCode, "to", MaskPhone(dest))
		select {
		case <-time.After(s.cfg.RetryDelay * time.Duration(attempt)):
		case <-ctx.Done():
			return Result{Err: ctx.Err(), Retryable: true}
		}
	}

	if sendErr != nil {
		res := Result{Err: sendErr}
		if resp != nil {
			res.Retryable = resp.Retryable
			res.ErrorCode = resp.ErrorCode
			if resp.OptOutDetected {
				s.flipOptOut(ctx, req)
			}
		}
		s.logger.ErrorContext(ctx, "Send failed",
			"to", MaskPhone(dest), "retryable", res.Retryable, "error", sendErr)
		return res
	}

	s.logger.InfoContext(ctx, "Message sent",
		"to", MaskPhone(dest), "message_id", resp.MessageID, "type", req.Type)

	// Best-effort bookkeeping: a failed write must not fail the send.
	if req.UserID.Valid {
		if err := s.users.UpdateLastMessage(ctx, req.UserID.UUID, resp.MessageID, time.Now().UTC()); err != nil {
			s.logger.WarnContext(ctx, "Failed to record last message on user",
				"user_id", req.UserID.UUID, "error", err)
		}
	}

	return Result{Success: true, MessageID: resp.MessageID}
}

func (s *Service) flipOptOut(ctx context.Context, req SendRequest) {
	if !req.UserID.Valid {
		return
	}
	if err := s.users.UpdateOptOutStatus(ctx, req.UserID.UUID, domain.OptedOut); err != nil {
		s.logger.ErrorContext(ctx, "Failed to flip opt-out after carrier block",
			"user_id", req.UserID.UUID, "error", err)
		return
	}
	s.logger.InfoContext(ctx, "Carrier reported opt-out; user suppressed",
		"user_id", req.UserID.UUID)
}

// SendBulk sends sequentially with the configured spacing between messages.
// The spacing exists for provider rate limits; concurrency here buys
// throttling errors, not throughput.
func (s *Service) SendBulk(ctx context.Context, reqs []SendRequest) []Result {
	results := make([]Result, 0, len(reqs))
	for i, req := range reqs {
		if i > 0 && s.cfg.BulkDelay > 0 {
			select {
			case <-time.After(s.cfg.BulkDelay):
			case <-ctx.Done():
				for range reqs[i:] {
					results = append(results, Result{Err: ctx.Err(), Retryable: true})
				}
				return results
			}
		}
		results = append(results, s.Send(ctx, req))
	}
	return results
}
