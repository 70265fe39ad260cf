package datasource

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-storefront/types"
	"github.com/saiset-co/sai-storefront/utils"
)

type RestConfig struct {
	BaseURL        string                `yaml:"base_url" json:"base_url"`
	APIKey         string                `yaml:"api_key" json:"api_key"`
	Timeout        time.Duration         `yaml:"timeout" json:"timeout"`
	Retries        int                   `yaml:"retries" json:"retries"`
	CircuitBreaker *CircuitBreakerConfig `yaml:"circuit_breaker" json:"circuit_breaker"`
}

type restEnvelope struct {
	Rows  []map[string]interface{} `json:"rows"`
	Total int64                    `json:"total"`
	IDs   []string                 `json:"ids,omitempty"`
	Count int64                    `json:"count,omitempty"`
	Error *types.SourceError       `json:"error,omitempty"`
}

type restRequest struct {
	Query      *types.Query             `json:"query,omitempty"`
	Collection string                   `json:"collection,omitempty"`
	Rows       []map[string]interface{} `json:"rows,omitempty"`
	Filters    []types.Filter           `json:"filters,omitempty"`
	Values     map[string]interface{}   `json:"values,omitempty"`
}

// RestSource talks to the hosted query API over HTTP. The typed Query is
// posted as-is; the server answers rows plus an optional {code, message}
// error object. Failed calls trip the circuit breaker and retry with
// linear backoff, except 4xx responses which never retry.
type RestSource struct {
	ctx     context.Context
	cancel  context.CancelFunc
	logger  types.Logger
	config  *RestConfig
	client  *fasthttp.Client
	breaker *CircuitBreaker
	state   atomic.Value
}

func NewRestSource(ctx context.Context, logger types.Logger, config *types.DataSourceConfig) (types.DataSource, error) {
	restConfig := &RestConfig{
		Timeout: 10 * time.Second,
		Retries: 2,
	}

	if config.Config != nil {
		err := utils.UnmarshalConfig(config.Config, restConfig)
		if err != nil {
			return nil, types.WrapError(err, "failed to unmarshal rest datasource config")
		}
	}

	if restConfig.BaseURL == "" {
		return nil, types.Errorf(types.ErrConfigValidateFailed, "rest datasource requires base_url")
	}

	sourceCtx, cancel := context.WithCancel(ctx)

	rs := &RestSource{
		ctx:    sourceCtx,
		cancel: cancel,
		logger: logger,
		config: restConfig,
		client: &fasthttp.Client{
			ReadTimeout:  restConfig.Timeout,
			WriteTimeout: restConfig.Timeout,
		},
		breaker: NewCircuitBreaker(restConfig.CircuitBreaker, logger),
	}

	rs.state.Store(StateStopped)
	return rs, nil
}

func (r *RestSource) Start() error {
	if !r.transitionState(StateStopped, StateStarting) {
		return types.ErrAlreadyRunning
	}

	defer func() {
		if r.getState() == StateStarting {
			r.setState(StateRunning)
		}
	}()

	r.logger.Info("REST datasource started", zap.String("base_url", r.config.BaseURL))
	return nil
}

func (r *RestSource) Stop() error {
	if !r.transitionState(StateRunning, StateStopping) {
		return types.ErrNotRunning
	}

	defer func() {
		r.setState(StateStopped)
	}()

	r.cancel()
	r.client.CloseIdleConnections()

	r.logger.Info("REST datasource stopped gracefully")
	return nil
}

func (r *RestSource) IsRunning() bool {
	return r.getState() == StateRunning
}

func (r *RestSource) Fetch(ctx context.Context, query types.Query) (*types.Result, error) {
	envelope, err := r.call(ctx, "/query", &restRequest{Query: &query})
	if err != nil {
		return nil, err
	}

	result := &types.Result{Rows: envelope.Rows, Total: envelope.Total}
	if result.Rows == nil {
		result.Rows = []map[string]interface{}{}
	}

	return result, nil
}

func (r *RestSource) Insert(ctx context.Context, collection string, rows []map[string]interface{}) ([]string, error) {
	envelope, err := r.call(ctx, "/insert", &restRequest{Collection: collection, Rows: rows})
	if err != nil {
		return nil, err
	}
	return envelope.IDs, nil
}

func (r *RestSource) Update(ctx context.Context, collection string, filters []types.Filter, values map[string]interface{}) (int64, error) {
	envelope, err := r.call(ctx, "/update", &restRequest{Collection: collection, Filters: filters, Values: values})
	if err != nil {
		return 0, err
	}
	return envelope.Count, nil
}

func (r *RestSource) Delete(ctx context.Context, collection string, filters []types.Filter) (int64, error) {
	envelope, err := r.call(ctx, "/delete", &restRequest{Collection: collection, Filters: filters})
	if err != nil {
		return 0, err
	}
	return envelope.Count, nil
}

func (r *RestSource) call(ctx context.Context, path string, payload *restRequest) (*restEnvelope, error) {
	if !r.IsRunning() {
		return nil, types.ErrSourceUnavailable
	}

	body, err := utils.Marshal(payload)
	if err != nil {
		return nil, types.WrapError(err, "failed to marshal request")
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(r.config.BaseURL + path)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	if r.config.APIKey != "" {
		req.Header.Set("X-API-Key", r.config.APIKey)
	}
	req.SetBody(body)

	responseBody, statusCode, err := r.executeWithRetries(ctx, req, resp)
	if err != nil {
		return nil, err
	}

	var envelope restEnvelope
	if err := utils.Unmarshal(responseBody, &envelope); err != nil {
		return nil, types.Errorf(types.ErrSourceResponseShape, "status %d: %v", statusCode, err)
	}

	if envelope.Error != nil {
		return nil, envelope.Error
	}

	return &envelope, nil
}

func (r *RestSource) executeWithRetries(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response) ([]byte, int, error) {
	var lastErr error
	maxRetries := r.config.Retries

	for attempt := 0; attempt <= maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		case <-r.ctx.Done():
			return nil, 0, types.ErrSourceUnavailable
		default:
		}

		if !r.breaker.CanExecute() {
			return nil, 0, types.ErrCircuitBreakerOpen
		}

		err := r.client.DoTimeout(req, resp, r.config.Timeout)
		statusCode := resp.StatusCode()

		if err == nil && statusCode >= 200 && statusCode < 300 {
			r.breaker.RecordSuccess()

			responseBody := make([]byte, len(resp.Body()))
			copy(responseBody, resp.Body())

			return responseBody, statusCode, nil
		}

		if err != nil || statusCode >= 500 {
			r.breaker.RecordFailure()
		}

		lastErr = err
		if err == nil {
			lastErr = types.Errorf(types.ErrSourceQueryFailed, "HTTP %d", statusCode)
		}

		if attempt < maxRetries {
			if err == nil && statusCode >= 400 && statusCode < 500 &&
				statusCode != 429 && statusCode != 408 {
				break
			}

			backoff := time.Duration(attempt+1) * 500 * time.Millisecond

			select {
			case <-time.After(backoff):
				r.logger.Debug("Retrying datasource request",
					zap.Duration("backoff", backoff),
					zap.Error(lastErr))
			case <-r.ctx.Done():
				return nil, 0, types.ErrSourceUnavailable
			}
		}
	}

	return nil, 0, types.WrapError(lastErr, "datasource request failed")
}

func (r *RestSource) getState() State {
	return r.state.Load().(State)
}

func (r *RestSource) setState(newState State) bool {
	currentState := r.getState()
	return r.state.CompareAndSwap(currentState, newState)
}

func (r *RestSource) transitionState(from, to State) bool {
	return r.state.CompareAndSwap(from, to)
}
