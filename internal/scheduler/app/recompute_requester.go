package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SubjectRecomputeRequest carries analytics recompute requests to the
// pipeline that owns spending snapshots.
const SubjectRecomputeRequest = "analytics.recompute.request"

// Publisher is the slice of the message broker the requester needs.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

type recomputeRequest struct {
	UserID      uuid.UUID `json:"user_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// BrokerRecomputeRequester implements AnalyticsRecomputer by publishing a
// request for the analytics pipeline to pick up.
type BrokerRecomputeRequester struct {
	publisher Publisher
}

func NewBrokerRecomputeRequester(publisher Publisher) *BrokerRecomputeRequester {
	return &BrokerRecomputeRequester{publisher: publisher}
}

func (r *BrokerRecomputeRequester) Recompute(ctx context.Context, userID uuid.UUID) error {
	data, err := json.Marshal(recomputeRequest{UserID: userID, RequestedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal recompute request: %w", err)
	}
	if err := r.publisher.Publish(ctx, SubjectRecomputeRequest, data); err != nil {
		return fmt.Errorf("publish recompute request: %w", err)
	}
	return nil
}
