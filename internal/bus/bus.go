// Package bus carries pipeline events between the API and the assembly worker.
package bus

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/fraudlens/internal/domain"
)

var (
	// ErrTenantRequired is returned when a publish or subscribe has no tenant.
	ErrTenantRequired = errors.New("tenantID is required")

	// ErrClosed is returned by operations on a closed bus.
	ErrClosed = errors.New("bus is closed")
)

// New creates an event bus from configuration: "channel" for in-process
// delivery, "nats" for a shared broker.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel", "":
		return NewChannelBus(cfg.ChannelBufferSize), nil
	case "nats":
		return NewNATSBus(cfg)
	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

func newMessage(tenantID, topic string, payload []byte) *domain.Message {
	return &domain.Message{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Topic:     topic,
		Payload:   payload,
		Metadata:  map[string]string{},
		Timestamp: time.Now().UnixNano(),
	}
}
