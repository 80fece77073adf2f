package nodehealth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/subscribe"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/rs/zerolog"

	"github.com/iho/satledger/internal/domain"
	"github.com/iho/satledger/internal/infrastructure/metrics"
)

const (
	DefaultInterval     = 10 * time.Second
	DefaultProbeTimeout = 5 * time.Second
)

// Prober reports whether a node's wallet is unlocked and serving.
type Prober interface {
	GetWalletStatus(ctx context.Context) (bool, error)
}

// Config configures the Monitor.
type Config struct {
	Nodes        []domain.NodeConnection
	Probers      map[string]Prober
	Interval     time.Duration
	ProbeTimeout time.Duration
	Clock        clock.Clock
	Logger       zerolog.Logger
	Metrics      *metrics.Metrics

	// NewTicker builds the per-node polling ticker. Defaults to ticker.New.
	NewTicker func(time.Duration) ticker.Ticker
}

// Monitor polls every configured node and tracks which ones are active.
// Transitions between active and inactive are published to subscribers as
// domain.NodeStatusEvent values.
type Monitor struct {
	cfg Config

	mu    sync.RWMutex
	nodes map[string]*domain.NodeConnection
	order []string

	events *subscribe.Server

	startOnce sync.Once
	stopOnce  sync.Once
	quit      chan struct{}
	wg        sync.WaitGroup
}

// New validates the node set and returns a Monitor that has not started.
func New(cfg Config) (*Monitor, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}
	if cfg.NewTicker == nil {
		cfg.NewTicker = func(d time.Duration) ticker.Ticker { return ticker.New(d) }
	}

	m := &Monitor{
		cfg:    cfg,
		nodes:  make(map[string]*domain.NodeConnection, len(cfg.Nodes)),
		events: subscribe.NewServer(),
		quit:   make(chan struct{}),
	}

	for _, n := range cfg.Nodes {
		if n.ID == "" {
			return nil, errors.New("node id is required")
		}
		if _, dup := m.nodes[n.ID]; dup {
			return nil, fmt.Errorf("duplicate node id %q", n.ID)
		}
		if _, ok := cfg.Probers[n.ID]; !ok {
			return nil, fmt.Errorf("no client configured for node %q", n.ID)
		}
		if n.Role == "" {
			n.Role = domain.NodeRoleBoth
		}
		n.State = domain.NodeStateUnknown
		n.Active = false
		node := n
		m.nodes[n.ID] = &node
		m.order = append(m.order, n.ID)
	}

	return m, nil
}

// Start launches one polling goroutine per node. Each node is probed right
// away and then once per interval.
func (m *Monitor) Start() error {
	var err error
	m.startOnce.Do(func() {
		if err = m.events.Start(); err != nil {
			return
		}
		for _, id := range m.order {
			t := m.cfg.NewTicker(m.cfg.Interval)
			m.wg.Add(1)
			go m.poll(id, t)
		}
		m.cfg.Logger.Info().
			Int("nodes", len(m.order)).
			Dur("interval", m.cfg.Interval).
			Msg("node health monitor started")
	})
	return err
}

// Stop halts polling and closes every subscription.
func (m *Monitor) Stop() error {
	var err error
	m.stopOnce.Do(func() {
		close(m.quit)
		m.wg.Wait()
		err = m.events.Stop()
		m.cfg.Logger.Info().Msg("node health monitor stopped")
	})
	return err
}

// Subscribe returns a client receiving domain.NodeStatusEvent updates.
func (m *Monitor) Subscribe() (*subscribe.Client, error) {
	return m.events.Subscribe()
}

func (m *Monitor) poll(id string, t ticker.Ticker) {
	defer m.wg.Done()
	defer t.Stop()

	t.Resume()
	m.Probe(id)

	for {
		select {
		case <-t.Ticks():
			m.Probe(id)
		case <-m.quit:
			return
		}
	}
}

// Probe checks a single node once and applies the resulting transition.
func (m *Monitor) Probe(id string) {
	prober, ok := m.cfg.Probers[id]
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ProbeTimeout)
	defer cancel()

	go func() {
		select {
		case <-m.quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	start := time.Now()
	ready, err := prober.GetWalletStatus(ctx)
	elapsed := time.Since(start)

	if m.cfg.Metrics != nil {
		m.cfg.Metrics.NodeProbeDuration.WithLabelValues(id).Observe(elapsed.Seconds())
	}

	active := err == nil && ready
	// Every poll leaves a pulse; failures are also raised as warnings.
	m.cfg.Logger.Debug().
		Str("node_id", id).
		Bool("active", active).
		Dur("latency", elapsed).
		Msg("node pulse")
	switch {
	case err != nil:
		m.cfg.Logger.Warn().Err(err).Str("node_id", id).Msg("node check failed")
	case !ready:
		m.cfg.Logger.Warn().Str("node_id", id).Msg("node wallet not ready")
	}

	m.apply(id, active)
}

func (m *Monitor) apply(id string, active bool) {
	now := m.cfg.Clock.Now()

	m.mu.Lock()
	node, ok := m.nodes[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	prev := node.State
	node.LastChecked = now
	node.Active = active

	var kind domain.NodeEventKind
	if active {
		node.State = domain.NodeStateActive
		if prev != domain.NodeStateActive {
			kind = domain.NodeEventStarted
		}
	} else {
		node.State = domain.NodeStateInactive
		if prev == domain.NodeStateActive {
			kind = domain.NodeEventStopped
		}
	}
	m.mu.Unlock()

	if m.cfg.Metrics != nil {
		v := 0.0
		if active {
			v = 1
		}
		m.cfg.Metrics.NodeActive.WithLabelValues(id).Set(v)
	}

	if kind == "" {
		return
	}

	m.cfg.Logger.Info().
		Str("node_id", id).
		Str("event", string(kind)).
		Str("previous_state", string(prev)).
		Msg("node state changed")

	if m.cfg.Metrics != nil {
		m.cfg.Metrics.NodeTransitions.WithLabelValues(id, string(kind)).Inc()
	}

	err := m.events.SendUpdate(domain.NodeStatusEvent{NodeID: id, Kind: kind, At: now})
	if err != nil && !errors.Is(err, subscribe.ErrServerShuttingDown) {
		m.cfg.Logger.Error().Err(err).Str("node_id", id).Msg("failed to publish node event")
	}
}

// NodeHealth reports the active flag of every configured node.
func (m *Monitor) NodeHealth() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]bool, len(m.nodes))
	for id, n := range m.nodes {
		out[id] = n.Active
	}
	return out
}

// Nodes returns a snapshot of the configured nodes in configuration order.
func (m *Monitor) Nodes() []domain.NodeConnection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.NodeConnection, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.nodes[id])
	}
	return out
}

// SelectActive returns the first active node, in configuration order, whose
// role serves the wanted role.
func (m *Monitor) SelectActive(role domain.NodeRole) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, id := range m.order {
		n := m.nodes[id]
		if n.Active && n.Role.Allows(role) {
			return id, nil
		}
	}
	return "", domain.ErrNoActiveNode
}
