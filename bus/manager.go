package bus

import (
	"context"

	"github.com/saiset-co/sai-storefront/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

var customBusCreators = make(map[string]types.BusCreator)

func RegisterBus(busType string, creator types.BusCreator) {
	customBusCreators[busType] = creator
}

func NewBus(ctx context.Context, config *types.BusConfig, logger types.Logger) (types.Bus, error) {
	if config == nil {
		return nil, types.ErrConfigIsNil
	}

	switch config.Type {
	case "", "memory":
		return NewMemoryBus(ctx, logger, config)
	case "websocket":
		return NewWebSocketBroker(ctx, logger, config)
	default:
		if creator, exists := customBusCreators[config.Type]; exists {
			return creator(config)
		}
		return nil, types.Errorf(types.ErrBusTypeUnknown, "type: %s", config.Type)
	}
}
