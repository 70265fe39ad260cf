package config

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/saiset-co/sai-storefront/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

type ConfigurationManager struct {
	ctx             context.Context
	cancel          context.CancelFunc
	config          atomic.Pointer[types.StorefrontConfig]
	parser          atomic.Pointer[Parser]
	configPath      string
	loader          *Loader
	state           atomic.Value
	mu              sync.RWMutex
	shutdownTimeout time.Duration
}

func NewConfigurationManager(ctx context.Context, configPath string) (*ConfigurationManager, error) {
	managerCtx, cancel := context.WithCancel(ctx)

	cm := &ConfigurationManager{
		ctx:             managerCtx,
		cancel:          cancel,
		configPath:      configPath,
		loader:          NewLoader(),
		shutdownTimeout: 10 * time.Second,
	}

	cm.state.Store(StateStopped)

	if err := cm.Load(); err != nil {
		cancel()
		return nil, types.WrapError(err, "failed to load initial configuration")
	}

	return cm, nil
}

// NewFromConfig wraps an already-built config, for embedding and tests.
func NewFromConfig(cfg *types.StorefrontConfig) (*ConfigurationManager, error) {
	if cfg == nil {
		return nil, types.ErrConfigIsNil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cm := &ConfigurationManager{
		ctx:             ctx,
		cancel:          cancel,
		loader:          NewLoader(),
		shutdownTimeout: 10 * time.Second,
	}

	cm.state.Store(StateStopped)
	cm.config.Store(cfg)
	cm.parser.Store(NewParser(cfg))

	return cm, nil
}

func (cm *ConfigurationManager) Start() error {
	if !cm.transitionState(StateStopped, StateStarting) {
		return types.ErrAlreadyRunning
	}

	defer func() {
		if cm.getState() == StateStarting {
			cm.setState(StateRunning)
		}
	}()

	return nil
}

func (cm *ConfigurationManager) Stop() error {
	if !cm.transitionState(StateRunning, StateStopping) {
		return types.ErrNotRunning
	}

	defer func() {
		cm.setState(StateStopped)
		cm.cancel()
	}()

	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.config.Store(nil)
	cm.parser.Store(nil)

	return nil
}

func (cm *ConfigurationManager) IsRunning() bool {
	return cm.getState() == StateRunning
}

func (cm *ConfigurationManager) Load() error {
	config, err := cm.loader.LoadFromFile(cm.configPath)
	if err != nil {
		return types.WrapError(err, "failed to load configuration from file")
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.config.Store(config)
	cm.parser.Store(NewParser(config))

	return nil
}

func (cm *ConfigurationManager) GetConfig() *types.StorefrontConfig {
	if config := cm.config.Load(); config != nil {
		return config
	}
	return nil
}

func (cm *ConfigurationManager) GetValue(path string, defaultValue interface{}) interface{} {
	parser := cm.parser.Load()
	if parser == nil {
		return defaultValue
	}
	return parser.GetValue(path, defaultValue)
}

func (cm *ConfigurationManager) GetAs(path string, target interface{}) error {
	parser := cm.parser.Load()
	if parser == nil {
		return types.ErrConfigIsNil
	}
	return parser.GetAs(path, target)
}

func (cm *ConfigurationManager) getState() State {
	return cm.state.Load().(State)
}

func (cm *ConfigurationManager) setState(newState State) bool {
	currentState := cm.getState()
	return cm.state.CompareAndSwap(currentState, newState)
}

func (cm *ConfigurationManager) transitionState(from, to State) bool {
	return cm.state.CompareAndSwap(from, to)
}
