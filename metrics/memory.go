package metrics

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/saiset-co/sai-storefront/types"
	"github.com/saiset-co/sai-storefront/utils"
)

// MemoryMetrics is a dependency-free MetricsManager for tests and for
// running without a scrape endpoint. Instruments are keyed by name plus
// the sorted label set, matching how a registry separates series.
type MemoryMetrics struct {
	ctx        context.Context
	logger     types.Logger
	counters   map[string]*memoryCounter
	gauges     map[string]*memoryGauge
	histograms map[string]*memoryHistogram
	mu         sync.RWMutex
	running    int32
}

func NewMemoryMetrics(ctx context.Context, logger types.Logger, config *types.MetricsConfig) (types.MetricsManager, error) {
	return &MemoryMetrics{
		ctx:        ctx,
		logger:     logger,
		counters:   make(map[string]*memoryCounter),
		gauges:     make(map[string]*memoryGauge),
		histograms: make(map[string]*memoryHistogram),
	}, nil
}

func (m *MemoryMetrics) Start() error {
	if !atomic.CompareAndSwapInt32(&m.running, 0, 1) {
		m.logger.Warn("Memory metrics is already running")
		return types.ErrAlreadyRunning
	}

	m.logger.Info("Memory metrics started")
	return nil
}

func (m *MemoryMetrics) Stop() error {
	if !atomic.CompareAndSwapInt32(&m.running, 1, 0) {
		m.logger.Warn("Memory metrics is not running")
		return types.ErrNotRunning
	}

	m.logger.Info("Memory metrics stopped")
	return nil
}

func (m *MemoryMetrics) IsRunning() bool {
	return atomic.LoadInt32(&m.running) == 1
}

func (m *MemoryMetrics) Counter(name string, labels map[string]string) types.Counter {
	key := seriesKey(name, labels)

	m.mu.Lock()
	defer m.mu.Unlock()

	if counter, exists := m.counters[key]; exists {
		return counter
	}

	counter := &memoryCounter{name: name, labels: labels}
	m.counters[key] = counter
	return counter
}

func (m *MemoryMetrics) Gauge(name string, labels map[string]string) types.Gauge {
	key := seriesKey(name, labels)

	m.mu.Lock()
	defer m.mu.Unlock()

	if gauge, exists := m.gauges[key]; exists {
		return gauge
	}

	gauge := &memoryGauge{name: name, labels: labels}
	m.gauges[key] = gauge
	return gauge
}

func (m *MemoryMetrics) Histogram(name string, buckets []float64, labels map[string]string) types.Histogram {
	key := seriesKey(name, labels)

	m.mu.Lock()
	defer m.mu.Unlock()

	if histogram, exists := m.histograms[key]; exists {
		return histogram
	}

	histogram := &memoryHistogram{name: name, labels: labels, buckets: buckets}
	m.histograms[key] = histogram
	return histogram
}

func (m *MemoryMetrics) GetMetrics() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	metrics := make([]types.MetricValue, 0, len(m.counters)+len(m.gauges)+len(m.histograms))

	for _, counter := range m.counters {
		metrics = append(metrics, types.MetricValue{
			Name:      counter.name,
			Type:      "COUNTER",
			Value:     counter.Get(),
			Labels:    counter.labels,
			Timestamp: now,
		})
	}

	for _, gauge := range m.gauges {
		metrics = append(metrics, types.MetricValue{
			Name:      gauge.name,
			Type:      "GAUGE",
			Value:     gauge.Get(),
			Labels:    gauge.labels,
			Timestamp: now,
		})
	}

	for _, histogram := range m.histograms {
		metrics = append(metrics, types.MetricValue{
			Name:      histogram.name,
			Type:      "HISTOGRAM",
			Value:     histogram.GetSum(),
			Labels:    histogram.labels,
			Timestamp: now,
		})
	}

	sort.Slice(metrics, func(i, j int) bool {
		return metrics[i].Name < metrics[j].Name
	})

	return utils.Marshal(metrics)
}

func seriesKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(name)
	for _, k := range keys {
		sb.WriteByte('|')
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(labels[k])
	}
	return sb.String()
}

type memoryCounter struct {
	name   string
	labels map[string]string
	bits   uint64
}

func (c *memoryCounter) Inc() {
	c.Add(1)
}

func (c *memoryCounter) Add(value float64) {
	for {
		old := atomic.LoadUint64(&c.bits)
		next := math.Float64bits(math.Float64frombits(old) + value)
		if atomic.CompareAndSwapUint64(&c.bits, old, next) {
			return
		}
	}
}

func (c *memoryCounter) Get() float64 {
	return math.Float64frombits(atomic.LoadUint64(&c.bits))
}

type memoryGauge struct {
	name   string
	labels map[string]string
	bits   uint64
}

func (g *memoryGauge) Set(value float64) {
	atomic.StoreUint64(&g.bits, math.Float64bits(value))
}

func (g *memoryGauge) Inc() { g.Add(1) }
func (g *memoryGauge) Dec() { g.Add(-1) }

func (g *memoryGauge) Add(value float64) {
	for {
		old := atomic.LoadUint64(&g.bits)
		next := math.Float64bits(math.Float64frombits(old) + value)
		if atomic.CompareAndSwapUint64(&g.bits, old, next) {
			return
		}
	}
}

func (g *memoryGauge) Sub(value float64) {
	g.Add(-value)
}

func (g *memoryGauge) Get() float64 {
	return math.Float64frombits(atomic.LoadUint64(&g.bits))
}

type memoryHistogram struct {
	name    string
	labels  map[string]string
	buckets []float64
	count   uint64
	sumBits uint64
	mu      sync.Mutex
	counts  []uint64
}

func (h *memoryHistogram) Observe(value float64) {
	atomic.AddUint64(&h.count, 1)

	for {
		old := atomic.LoadUint64(&h.sumBits)
		next := math.Float64bits(math.Float64frombits(old) + value)
		if atomic.CompareAndSwapUint64(&h.sumBits, old, next) {
			break
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.counts == nil {
		h.counts = make([]uint64, len(h.buckets))
	}
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
		}
	}
}

func (h *memoryHistogram) ObserveDuration(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

func (h *memoryHistogram) GetCount() uint64 {
	return atomic.LoadUint64(&h.count)
}

func (h *memoryHistogram) GetSum() float64 {
	return math.Float64frombits(atomic.LoadUint64(&h.sumBits))
}
