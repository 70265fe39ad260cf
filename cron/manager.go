package cron

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-storefront/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

type Manager struct {
	ctx          context.Context
	cancel       context.CancelFunc
	config       types.ConfigManager
	logger       types.Logger
	metrics      types.MetricsManager
	cron         *cron.Cron
	timezone     *time.Location
	jobs         map[string]*types.JobEntry
	state        atomic.Value
	mu           sync.RWMutex
	activeJobs   map[string]context.CancelFunc
	activeJobsMu sync.Mutex
	shutdown     chan struct{}
	shutdownOnce sync.Once
	jobTimeout   time.Duration
}

func NewManager(ctx context.Context, config types.ConfigManager, logger types.Logger, metrics types.MetricsManager) (types.CronManager, error) {
	timezoneStr := config.GetConfig().Cron.Timezone
	timezone, err := time.LoadLocation(timezoneStr)
	if err != nil {
		timezone = time.UTC
	}

	cronL := safeCronLogger{logger: logger}

	cronOptions := []cron.Option{
		cron.WithLocation(timezone),
		cron.WithSeconds(),
		cron.WithChain(cron.Recover(cronL)),
	}

	managerCtx, cancel := context.WithCancel(ctx)

	manager := &Manager{
		ctx:        managerCtx,
		cancel:     cancel,
		config:     config,
		logger:     logger,
		metrics:    metrics,
		cron:       cron.New(cronOptions...),
		timezone:   timezone,
		jobs:       make(map[string]*types.JobEntry),
		activeJobs: make(map[string]context.CancelFunc),
		shutdown:   make(chan struct{}),
		jobTimeout: 30 * time.Minute,
	}

	manager.state.Store(StateStopped)

	return manager, nil
}

func (m *Manager) Add(jobName, spec string, job func()) error {
	if jobName == "" {
		return types.ErrCronJobNameIsEmpty
	}

	if spec == "" {
		return types.ErrCronExpressionInvalid
	}

	if job == nil {
		return types.ErrCronJobIsNil
	}

	return m.addJob(jobName, spec, m.wrapJob(jobName, job))
}

func (m *Manager) Remove(jobName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.jobs[jobName]
	if !exists {
		return types.ErrCronJobNotFound
	}

	m.cron.Remove(entry.ID)
	delete(m.jobs, jobName)

	m.logger.Info("Cron job removed", zap.String("job_name", jobName))
	return nil
}

func (m *Manager) Start() error {
	if !m.transitionState(StateStopped, StateStarting) {
		return types.ErrCronIsRunning
	}

	defer func() {
		if m.getState() == StateStarting {
			m.setState(StateRunning)
		}
	}()

	m.cron.Start()

	m.setSchedulerStatus(1)
	m.logger.Info("Cron manager started", zap.String("timezone", m.timezone.String()))
	return nil
}

func (m *Manager) Stop() error {
	if !m.transitionState(StateRunning, StateStopping) &&
		!m.transitionState(StateStarting, StateStopping) {
		return types.ErrNotRunning
	}

	var err error
	m.shutdownOnce.Do(func() {
		defer func() {
			m.setState(StateStopped)
			m.cancel()
		}()

		close(m.shutdown)

		m.activeJobsMu.Lock()
		for jobName, cancel := range m.activeJobs {
			cancel()
			m.logger.Debug("Cancelled job during shutdown", zap.String("job_name", jobName))
		}
		m.activeJobs = make(map[string]context.CancelFunc)
		m.activeJobsMu.Unlock()

		stopCtx := m.cron.Stop()
		select {
		case <-stopCtx.Done():
		case <-time.After(10 * time.Second):
			err = types.ErrCronJobTimeout
			m.logger.Warn("Cron manager stop timeout, some jobs may not have stopped gracefully")
		}

		m.setSchedulerStatus(0)

		if err == nil {
			m.logger.Info("Cron scheduler stopped gracefully")
		}
	})

	return err
}

func (m *Manager) IsRunning() bool {
	return m.getState() == StateRunning
}

func (m *Manager) getState() State {
	return m.state.Load().(State)
}

func (m *Manager) setState(newState State) bool {
	return m.state.CompareAndSwap(m.getState(), newState)
}

func (m *Manager) transitionState(from, to State) bool {
	return m.state.CompareAndSwap(from, to)
}

func (m *Manager) wrapJob(jobName string, job func()) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("Critical panic in cron job wrapper",
					zap.String("job_name", jobName),
					zap.Any("panic", r))
			}
		}()

		select {
		case <-m.shutdown:
			m.logger.Info("Job skipped due to shutdown", zap.String("job_name", jobName))
			return
		default:
		}

		startTime := time.Now()
		m.logger.Debug("Cron job started", zap.String("job_name", jobName))
		m.updateJobStatsStart(jobName, startTime)

		jobCtx, cancel := context.WithTimeout(m.ctx, m.jobTimeout)
		defer cancel()

		if !m.registerActiveJob(jobName, cancel) {
			m.logger.Info("Job cancelled due to manager shutdown", zap.String("job_name", jobName))
			return
		}
		defer m.cancelActiveJob(jobName)

		var err error
		done := make(chan struct{})

		go func() {
			defer func() {
				if r := recover(); r != nil {
					err = types.Errorf(types.ErrCronJobFailed, "job panic: %v", r)
					m.logger.Error("Job panicked",
						zap.String("job_name", jobName),
						zap.Any("panic", r))
				}
				close(done)
			}()

			job()
		}()

		select {
		case <-done:
		case <-jobCtx.Done():
			if types.IsError(jobCtx.Err(), context.DeadlineExceeded) {
				err = types.Errorf(types.ErrCronJobTimeout, "timeout after %v", m.jobTimeout)
			} else {
				err = types.WrapError(jobCtx.Err(), "job canceled")
			}

			m.logger.Error("Cron job interrupted",
				zap.String("job_name", jobName),
				zap.Error(err))
		}

		duration := time.Since(startTime)

		result := "success"
		if err != nil {
			result = "error"
		}

		m.recordJobMetrics(jobName, result, duration)
		m.updateJobStatsFinish(jobName, err)

		if err != nil {
			m.logger.Error("Cron job failed",
				zap.String("job_name", jobName),
				zap.Duration("duration", duration),
				zap.Error(err))
		} else {
			m.logger.Info("Cron job completed",
				zap.String("job_name", jobName),
				zap.Duration("duration", duration))
		}
	}
}

func (m *Manager) addJob(jobName, spec string, job func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	select {
	case <-m.shutdown:
		return types.ErrCronSchedulerStopped
	default:
	}

	if _, exists := m.jobs[jobName]; exists {
		return types.ErrCronJobExists
	}

	entryID, err := m.cron.AddFunc(spec, job)
	if err != nil {
		return types.WrapError(err, "failed to add cron job")
	}

	entry := &types.JobEntry{
		ID:      entryID,
		Name:    jobName,
		Spec:    spec,
		Job:     job,
		AddedAt: time.Now(),
	}

	if cronEntry := m.cron.Entry(entryID); cronEntry.ID != 0 {
		entry.NextRun = cronEntry.Next
	}

	m.jobs[jobName] = entry

	m.logger.Info("Cron job added",
		zap.String("job_name", jobName),
		zap.String("spec", spec))

	return nil
}

func (m *Manager) registerActiveJob(jobName string, cancel context.CancelFunc) bool {
	m.activeJobsMu.Lock()
	defer m.activeJobsMu.Unlock()

	select {
	case <-m.shutdown:
		return false
	default:
	}

	if oldCancel, exists := m.activeJobs[jobName]; exists {
		oldCancel()
	}

	m.activeJobs[jobName] = cancel
	return true
}

func (m *Manager) cancelActiveJob(jobName string) {
	m.activeJobsMu.Lock()
	defer m.activeJobsMu.Unlock()

	if cancel, exists := m.activeJobs[jobName]; exists {
		cancel()
		delete(m.activeJobs, jobName)
	}
}

func (m *Manager) updateJobStatsStart(jobName string, startTime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.jobs[jobName]
	if !exists {
		return
	}

	entry.LastRun = startTime
	entry.Error = nil

	if cronEntry := m.cron.Entry(entry.ID); cronEntry.ID != 0 {
		entry.NextRun = cronEntry.Next
	}
}

func (m *Manager) updateJobStatsFinish(jobName string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.jobs[jobName]
	if !exists {
		return
	}

	entry.RunCount++
	entry.Error = err

	if cronEntry := m.cron.Entry(entry.ID); cronEntry.ID != 0 {
		entry.NextRun = cronEntry.Next
	}
}

func (m *Manager) recordJobMetrics(jobName, result string, duration time.Duration) {
	if m.metrics == nil {
		return
	}

	counter := m.metrics.Counter("cron_job_executions_total", map[string]string{
		"job_name": jobName,
		"result":   result,
	})
	counter.Inc()

	histogram := m.metrics.Histogram("cron_job_duration_seconds",
		[]float64{0.1, 1.0, 10.0, 60.0, 300.0, 1800.0},
		map[string]string{"job_name": jobName},
	)
	histogram.Observe(duration.Seconds())
}

func (m *Manager) setSchedulerStatus(value float64) {
	if m.metrics == nil {
		return
	}
	m.metrics.Gauge("cron_scheduler_running", nil).Set(value)
}

type safeCronLogger struct {
	logger types.Logger
}

func (l safeCronLogger) Info(msg string, keysAndValues ...interface{}) {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)

	for i := 0; i < len(keysAndValues)-1; i += 2 {
		key := fmt.Sprintf("%v", keysAndValues[i])
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}

	l.logger.Info(msg, fields...)
}

func (l safeCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := make([]zap.Field, 0, len(keysAndValues)/2+1)

	for i := 0; i < len(keysAndValues)-1; i += 2 {
		key := fmt.Sprintf("%v", keysAndValues[i])
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}

	fields = append(fields, zap.Error(err))
	l.logger.Error(msg, fields...)
}
