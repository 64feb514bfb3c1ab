package store

import (
	"context"
	"errors"
	"time"
)

// ErrInboundNotFound is returned when a channel message id has not been recorded.
var ErrInboundNotFound = errors.New("inbound message not recorded")

// InboundRecord remembers a processed channel message and the reply produced for it.
type InboundRecord struct {
	MessageID  string    `json:"message_id"`
	SessionID  string    `json:"session_id"`
	Reply      string    `json:"reply"`
	ReceivedAt time.Time `json:"received_at"`
}

// DedupRepo records processed inbound channel messages so a redelivered message
// is answered from its record instead of being processed again.
type DedupRepo interface {
	// GetInbound returns the record for messageID or ErrInboundNotFound.
	GetInbound(ctx context.Context, messageID string) (*InboundRecord, error)
	// RecordInbound stores rec. It returns false if the message id was already recorded.
	RecordInbound(ctx context.Context, rec *InboundRecord) (bool, error)
}
