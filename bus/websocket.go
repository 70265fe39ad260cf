package bus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-storefront/types"
	"github.com/saiset-co/sai-storefront/utils"
)

type BrokerState int32

const (
	BrokerStateStopped BrokerState = iota
	BrokerStateStarting
	BrokerStateRunning
	BrokerStateStopping
	BrokerStateReconnecting
)

type WebSocketConfig struct {
	URL            string        `json:"url"`
	ReconnectDelay time.Duration `json:"reconnect_delay"`
	MaxRetries     int           `json:"max_retries"`
	PingInterval   time.Duration `json:"ping_interval"`
	PongWait       time.Duration `json:"pong_wait"`
	WriteWait      time.Duration `json:"write_wait"`
}

// wireMessage is the envelope on the wire. Every broker instance tags
// outgoing messages with its InstanceID; the relay echoes to all peers
// and each broker drops its own echoes before fanning out.
type wireMessage struct {
	InstanceID string              `json:"instance_id"`
	Message    types.ChangeMessage `json:"message"`
}

// WebSocketBroker syncs collection changes across processes through a
// relay server. Each published change goes to the relay; incoming
// changes fan out to local subscribers the same way MemoryBus does.
type WebSocketBroker struct {
	ctx               context.Context
	cancel            context.CancelFunc
	logger            types.Logger
	config            *WebSocketConfig
	instanceID        string
	conn              *websocket.Conn
	connMu            sync.RWMutex
	subscriptions     map[string][]*subscription
	subsMu            sync.RWMutex
	nextID            int64
	send              chan *wireMessage
	reconnectCh       chan struct{}
	reconnectAttempts int32
	state             atomic.Value
}

func NewWebSocketBroker(ctx context.Context, logger types.Logger, config *types.BusConfig) (types.Bus, error) {
	wsConfig := &WebSocketConfig{
		URL:            "ws://localhost:8081/sync",
		ReconnectDelay: 5 * time.Second,
		MaxRetries:     10,
		PingInterval:   54 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
	}

	if config.Config != nil {
		err := utils.UnmarshalConfig(config.Config, wsConfig)
		if err != nil {
			return nil, types.WrapError(err, "failed to unmarshal WebSocket bus config")
		}
	}

	brokerCtx, cancel := context.WithCancel(ctx)

	broker := &WebSocketBroker{
		ctx:           brokerCtx,
		cancel:        cancel,
		logger:        logger,
		config:        wsConfig,
		instanceID:    fmt.Sprintf("bus-%d", time.Now().UnixNano()),
		subscriptions: make(map[string][]*subscription),
		send:          make(chan *wireMessage, 256),
		reconnectCh:   make(chan struct{}, 1),
	}

	broker.state.Store(BrokerStateStopped)

	logger.Info("WebSocket bus initialized",
		zap.String("url", wsConfig.URL),
		zap.Duration("reconnect_delay", wsConfig.ReconnectDelay),
		zap.Int("max_retries", wsConfig.MaxRetries))

	return broker, nil
}

func (w *WebSocketBroker) Publish(msg types.ChangeMessage) error {
	if !w.IsRunning() {
		return types.ErrBusNotRunning
	}

	if msg.Collection == "" {
		return types.ErrBusPublishFailed
	}

	envelope := &wireMessage{
		InstanceID: w.instanceID,
		Message:    msg,
	}

	select {
	case w.send <- envelope:
		w.logger.Debug("Change queued for publishing",
			zap.String("collection", msg.Collection),
			zap.String("source", msg.Source))
		return nil
	case <-w.ctx.Done():
		return types.ErrBusNotRunning
	default:
		w.logger.Error("Send channel is full, dropping change",
			zap.String("collection", msg.Collection))
		return types.ErrBusPublishFailed
	}
}

func (w *WebSocketBroker) Subscribe(collection string, handler types.ChangeHandler) (func(), error) {
	if collection == "" || handler == nil {
		return nil, types.ErrBusPublishFailed
	}

	w.subsMu.Lock()
	defer w.subsMu.Unlock()

	sub := &subscription{
		id:      atomic.AddInt64(&w.nextID, 1),
		handler: handler,
	}

	w.subscriptions[collection] = append(w.subscriptions[collection], sub)

	w.logger.Debug("Subscribed to collection",
		zap.String("collection", collection),
		zap.Int("total_handlers", len(w.subscriptions[collection])))

	unsubscribe := func() {
		w.subsMu.Lock()
		defer w.subsMu.Unlock()

		subs := w.subscriptions[collection]
		for i, existing := range subs {
			if existing.id == sub.id {
				w.subscriptions[collection] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}

	return unsubscribe, nil
}

func (w *WebSocketBroker) Start() error {
	if !w.transitionState(BrokerStateStopped, BrokerStateStarting) {
		return types.ErrAlreadyRunning
	}

	defer func() {
		if w.getState() == BrokerStateStarting {
			w.setState(BrokerStateRunning)
		}
	}()

	if err := w.connect(); err != nil {
		w.setState(BrokerStateStopped)
		w.logger.Error("Failed to establish initial connection", zap.Error(err))
		return types.WrapError(err, "failed to establish initial connection")
	}

	go w.readPump()
	go w.writePump()
	go w.reconnectLoop()

	w.logger.Info("WebSocket bus started successfully")
	return nil
}

func (w *WebSocketBroker) Stop() error {
	if !w.transitionState(BrokerStateRunning, BrokerStateStopping) &&
		!w.transitionState(BrokerStateReconnecting, BrokerStateStopping) {
		return types.ErrNotRunning
	}

	defer func() {
		w.setState(BrokerStateStopped)
		w.cancel()
	}()

	w.connMu.Lock()
	if w.conn != nil {
		if err := w.conn.Close(); err != nil {
			w.logger.Error("Failed to close connection", zap.Error(err))
		}
		w.conn = nil
	}
	w.connMu.Unlock()

	w.logger.Info("WebSocket bus stopped")
	return nil
}

func (w *WebSocketBroker) IsRunning() bool {
	state := w.getState()
	return state == BrokerStateRunning || state == BrokerStateReconnecting
}

func (w *WebSocketBroker) getState() BrokerState {
	return w.state.Load().(BrokerState)
}

func (w *WebSocketBroker) setState(newState BrokerState) bool {
	return w.state.CompareAndSwap(w.getState(), newState)
}

func (w *WebSocketBroker) transitionState(from, to BrokerState) bool {
	return w.state.CompareAndSwap(from, to)
}

func (w *WebSocketBroker) connect() error {
	w.logger.Debug("Attempting to connect to sync relay",
		zap.String("url", w.config.URL))

	dialCtx, cancel := context.WithTimeout(w.ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, w.config.URL, nil)
	if err != nil {
		return types.WrapError(err, "failed to dial sync relay")
	}

	w.connMu.Lock()
	if w.conn != nil {
		_ = w.conn.Close()
	}
	w.conn = conn
	w.connMu.Unlock()

	_ = conn.SetReadDeadline(time.Now().Add(w.config.PongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(w.config.PongWait))
		return nil
	})

	atomic.StoreInt32(&w.reconnectAttempts, 0)

	w.logger.Info("Connected to sync relay")
	return nil
}

func (w *WebSocketBroker) reconnectLoop() {
	defer w.logger.Debug("Reconnect loop stopped")

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.reconnectCh:
			if !w.IsRunning() {
				return
			}

			if w.getState() == BrokerStateRunning {
				w.setState(BrokerStateReconnecting)
			}

			retryCount := atomic.LoadInt32(&w.reconnectAttempts)
			if int(retryCount) >= w.config.MaxRetries {
				w.logger.Error("Max reconnection attempts reached, stopping bus")

				if w.transitionState(BrokerStateReconnecting, BrokerStateStopping) {
					w.cancel()
				}
				return
			}

			select {
			case <-time.After(w.config.ReconnectDelay):
			case <-w.ctx.Done():
				return
			}

			atomic.AddInt32(&w.reconnectAttempts, 1)

			if err := w.connect(); err != nil {
				w.logger.Error("Reconnection attempt failed",
					zap.Int32("attempt", atomic.LoadInt32(&w.reconnectAttempts)),
					zap.Error(err))

				w.safeReconnectTrigger()
				continue
			}

			w.setState(BrokerStateRunning)
			go w.readPump()
			w.logger.Info("Reconnected to sync relay")
		}
	}
}

func (w *WebSocketBroker) safeReconnectTrigger() {
	select {
	case w.reconnectCh <- struct{}{}:
	case <-w.ctx.Done():
	default:
	}
}

func (w *WebSocketBroker) readPump() {
	defer w.logger.Debug("Read pump stopped")

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			if !w.IsRunning() {
				return
			}

			success := w.withConnection(func(conn *websocket.Conn) error {
				_, messageData, err := conn.ReadMessage()
				if err != nil {
					if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
						w.logger.Debug("Relay connection closed", zap.Error(err))
					}
					return err
				}

				var envelope wireMessage
				if err := utils.Unmarshal(messageData, &envelope); err != nil {
					w.logger.Error("Failed to unmarshal change message", zap.Error(err))
					return nil
				}

				if envelope.InstanceID == w.instanceID {
					return nil
				}

				w.dispatch(envelope.Message)
				return nil
			})

			if !success && w.IsRunning() {
				w.safeReconnectTrigger()
				return
			}
		}
	}
}

func (w *WebSocketBroker) writePump() {
	ticker := time.NewTicker(w.config.PingInterval)
	defer func() {
		ticker.Stop()
		w.logger.Debug("Write pump stopped")
	}()

	for {
		select {
		case <-w.ctx.Done():
			return
		case envelope := <-w.send:
			if !w.IsRunning() {
				return
			}

			success := w.withConnection(func(conn *websocket.Conn) error {
				_ = conn.SetWriteDeadline(time.Now().Add(w.config.WriteWait))

				data, err := utils.Marshal(envelope)
				if err != nil {
					w.logger.Error("Failed to marshal outgoing change", zap.Error(err))
					return nil
				}

				return conn.WriteMessage(websocket.TextMessage, data)
			})

			if !success && w.IsRunning() {
				w.safeReconnectTrigger()
			}

		case <-ticker.C:
			if !w.IsRunning() {
				return
			}

			success := w.withConnection(func(conn *websocket.Conn) error {
				_ = conn.SetWriteDeadline(time.Now().Add(w.config.WriteWait))
				return conn.WriteMessage(websocket.PingMessage, nil)
			})

			if !success && w.IsRunning() {
				w.safeReconnectTrigger()
			}
		}
	}
}

func (w *WebSocketBroker) withConnection(fn func(*websocket.Conn) error) bool {
	w.connMu.RLock()
	defer w.connMu.RUnlock()

	if w.conn == nil {
		return false
	}

	if err := fn(w.conn); err != nil {
		w.logger.Error("WebSocket operation failed", zap.Error(err))
		return false
	}

	return true
}

func (w *WebSocketBroker) dispatch(msg types.ChangeMessage) {
	w.subsMu.RLock()
	handlers := make([]*subscription, len(w.subscriptions[msg.Collection]))
	copy(handlers, w.subscriptions[msg.Collection])
	w.subsMu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	for _, sub := range handlers {
		s := sub
		go func() {
			defer func() {
				if r := recover(); r != nil {
					w.logger.Error("Change handler panicked",
						zap.String("collection", msg.Collection),
						zap.Any("panic", r))
				}
			}()

			s.handler(msg)
		}()
	}
}
