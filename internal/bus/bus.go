package bus

import (
	"fmt"

	"github.com/peershare/warden/internal/domain"
)

// New creates a new event bus based on configuration.
// "channel" returns the in-process bus, "nats" the distributed one.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}
