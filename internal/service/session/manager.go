package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/murphlabs/murph/backend/internal/analysis/pricing"
	"github.com/murphlabs/murph/backend/internal/model/ledger"
	"github.com/murphlabs/murph/backend/internal/model/listing"
	"github.com/murphlabs/murph/backend/internal/model/session"
	"github.com/murphlabs/murph/backend/pkg/apperr"
)

// ListingFinder resolves the listing a session is started for.
type ListingFinder interface {
	FindByID(ctx context.Context, id string) (listing.Listing, error)
}

// SettlementSink stores finished sessions.
type SettlementSink interface {
	SaveSettlement(ctx context.Context, record *ledger.SettlementRecord) error
}

// ManagerConfig wires a Manager.
type ManagerConfig struct {
	Backend         Backend
	Listings        ListingFinder
	Sink            SettlementSink
	Logger          *slog.Logger
	Metrics         *Metrics
	TickInterval    time.Duration
	Retention       time.Duration
	CleanupInterval time.Duration
}

// Manager keeps one controller per live session view.
type Manager struct {
	backend   Backend
	listings  ListingFinder
	sink      SettlementSink
	logger    *slog.Logger
	metrics   *Metrics
	interval  time.Duration
	retention time.Duration

	mu       sync.RWMutex
	sessions map[string]*Controller
	starting map[string]struct{}

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewManager creates a manager. A positive CleanupInterval starts a
// background sweep of finished controllers.
func NewManager(cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retention := cfg.Retention
	if retention <= 0 {
		retention = 30 * time.Minute
	}

	m := &Manager{
		backend:   cfg.Backend,
		listings:  cfg.Listings,
		sink:      cfg.Sink,
		logger:    logger,
		metrics:   cfg.Metrics,
		interval:  cfg.TickInterval,
		retention: retention,
		sessions:  make(map[string]*Controller),
		starting:  make(map[string]struct{}),
		stopCh:    make(chan struct{}),
	}

	if cfg.CleanupInterval > 0 {
		m.wg.Add(1)
		go m.cleanupLoop(cfg.CleanupInterval)
	}
	return m
}

// Start opens a session for studentID on listingID. A zero reserve falls
// back to the listing's duration times its per-minute price.
func (m *Manager) Start(ctx context.Context, studentID, listingID string, reserve decimal.Decimal) (*Controller, session.StartResult, error) {
	const op = "session.Manager.Start"
	if studentID == "" || listingID == "" {
		return nil, session.StartResult{}, apperr.New(apperr.InvalidArgument, op, "student and listing are required")
	}
	if reserve.IsNegative() {
		return nil, session.StartResult{}, apperr.New(apperr.InvalidArgument, op, "reserve must not be negative")
	}

	key := studentID + "|" + listingID
	m.mu.Lock()
	if _, busy := m.starting[key]; busy {
		m.mu.Unlock()
		return nil, session.StartResult{}, apperr.New(apperr.Conflict, op, "a session for this listing is already starting")
	}
	m.starting[key] = struct{}{}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.starting, key)
		m.mu.Unlock()
	}()

	item, err := m.listings.FindByID(ctx, listingID)
	if err != nil {
		return nil, session.StartResult{}, err
	}

	if reserve.IsZero() {
		reserve = defaultReserve(item)
	}

	ctrl := NewController(ControllerConfig{
		Backend:      m.backend,
		Listing:      item,
		StudentID:    studentID,
		Logger:       m.logger,
		Metrics:      m.metrics,
		TickInterval: m.interval,
		OnSettled:    m.persist,
	})

	res, err := ctrl.Start(ctx, reserve)
	if err != nil {
		ctrl.Close()
		return nil, session.StartResult{}, err
	}

	m.mu.Lock()
	m.sessions[res.SessionID] = ctrl
	m.mu.Unlock()

	return ctrl, res, nil
}

func defaultReserve(item listing.Listing) decimal.Decimal {
	ceiling, err := pricing.ReserveCeiling(item.DurationMinutes, item.PricePerMinute)
	if err == nil && ceiling.IsPositive() {
		return ceiling
	}
	return item.ReserveAmount
}

// Get returns the controller of a live or recently finished session.
func (m *Manager) Get(sessionID string) (*Controller, error) {
	m.mu.RLock()
	ctrl, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, apperr.New(apperr.NotFound, "session.Manager.Get", "Session not found")
	}
	return ctrl, nil
}

// CloseView tears down a session view. The controller stays registered so
// the summary can still be read until the next sweep.
func (m *Manager) CloseView(sessionID string) error {
	ctrl, err := m.Get(sessionID)
	if err != nil {
		return err
	}
	ctrl.Close()
	return nil
}

// Len reports how many controllers are registered.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown stops the sweep, closes every controller and waits for in-flight
// settlements to reach the sink, so storage can be closed afterwards.
func (m *Manager) Shutdown() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
	m.wg.Wait()

	m.mu.Lock()
	ctrls := make([]*Controller, 0, len(m.sessions))
	for _, ctrl := range m.sessions {
		ctrls = append(ctrls, ctrl)
	}
	m.mu.Unlock()

	for _, ctrl := range ctrls {
		ctrl.Close()
	}
	for _, ctrl := range ctrls {
		ctrl.WaitEnd()
	}
}

func (m *Manager) persist(ctx context.Context, s session.Settlement) {
	if m.sink == nil {
		return
	}
	if err := m.sink.SaveSettlement(ctx, ledger.FromSettlement(s)); err != nil {
		m.logger.Error("persist settlement failed", "session_id", s.Result.SessionID, "error", err)
	}
}

func (m *Manager) cleanupLoop(every time.Duration) {
	defer m.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case now := <-ticker.C:
			m.sweep(now)
		}
	}
}

// sweep drops controllers that finished longer than the retention ago.
func (m *Manager) sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, ctrl := range m.sessions {
		finished := ctrl.finished()
		if finished.IsZero() || now.Sub(finished) < m.retention {
			continue
		}
		if ctrl.State() == session.Ending {
			continue
		}
		delete(m.sessions, id)
		removed++
	}
	if removed > 0 {
		m.logger.Debug("swept finished sessions", "removed", removed)
	}
	return removed
}
