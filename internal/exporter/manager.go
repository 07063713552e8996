package exporter

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"library-api/internal/metrics"
	"library-api/internal/service"
)

// Manager runs catalog exports on a single background worker.
type Manager interface {
	Start(ctx context.Context) error
	Shutdown()
	// Enqueue requests an export. It reports false when one is already pending.
	Enqueue() bool
}

type Config struct {
	// Interval schedules periodic exports; zero means on demand only.
	Interval time.Duration
	// Keep is how many snapshots survive the prune after each export; zero keeps all.
	Keep   int
	Logger *logrus.Logger
}

type manager struct {
	cfg     Config
	exports service.ExportService

	queue  chan struct{}
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func NewManager(cfg Config, exports service.ExportService) Manager {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Interval < 0 {
		cfg.Interval = 0
	}
	return &manager{
		cfg:     cfg,
		exports: exports,
		queue:   make(chan struct{}, 1),
	}
}

func (m *manager) Start(ctx context.Context) error {
	m.once.Do(func() {
		m.ctx, m.cancel = context.WithCancel(ctx)
		m.wg.Add(1)
		go m.run()
		m.cfg.Logger.Infof("catalog exporter started, interval: %s, keep: %d", m.cfg.Interval, m.cfg.Keep)
	})
	return nil
}

func (m *manager) Shutdown() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	m.cfg.Logger.Info("catalog exporter stopped")
}

func (m *manager) Enqueue() bool {
	select {
	case m.queue <- struct{}{}:
		return true
	default:
		return false
	}
}

func (m *manager) run() {
	defer m.wg.Done()

	var tick <-chan time.Time
	if m.cfg.Interval > 0 {
		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.queue:
			m.export("manual")
		case <-tick:
			m.export("scheduled")
		}
	}
}

func (m *manager) export(trigger string) {
	logger := m.cfg.Logger.WithField("trigger", trigger)

	dest, err := m.exports.Export(m.ctx)
	if err != nil {
		metrics.Exports.WithLabelValues("failed").Inc()
		logger.Errorf("catalog export failed: %v", err)
		return
	}
	metrics.Exports.WithLabelValues("succeeded").Inc()
	logger.Infof("catalog exported to %s", dest)

	if m.cfg.Keep <= 0 {
		return
	}
	if _, err := m.exports.Prune(m.ctx, m.cfg.Keep); err != nil {
		logger.Warnf("prune snapshots: %v", err)
	}
}

var _ Manager = (*manager)(nil)
