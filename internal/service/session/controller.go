package session

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/murphlabs/murph/backend/internal/analysis/pricing"
	"github.com/murphlabs/murph/backend/internal/model/listing"
	"github.com/murphlabs/murph/backend/internal/model/session"
	"github.com/murphlabs/murph/backend/internal/service/clock"
	"github.com/murphlabs/murph/backend/pkg/apperr"
)

// Backend is the part of the REST client a session needs.
type Backend interface {
	StartSession(ctx context.Context, req session.StartRequest) (session.StartResult, error)
	EndSession(ctx context.Context, req session.EndRequest) (session.EndResult, error)
	ListMilestones(ctx context.Context, sessionID string) ([]session.Milestone, error)
	SubmitMilestoneProof(ctx context.Context, milestoneID string, proof session.Proof) (session.MilestoneStatus, error)
}

// subscriberBuffer bounds how far a slow subscriber may lag before events
// are dropped for it.
const subscriberBuffer = 32

// ControllerConfig wires a Controller.
type ControllerConfig struct {
	Backend      Backend
	Listing      listing.Listing
	StudentID    string
	Logger       *slog.Logger
	Metrics      *Metrics
	TickInterval time.Duration
	// OnSettled runs once after a successful End, also when the view was
	// already closed.
	OnSettled func(ctx context.Context, s session.Settlement)
}

// Snapshot is the controller state at one instant.
type Snapshot struct {
	SessionID      string          `json:"sessionId,omitempty"`
	State          session.State   `json:"state"`
	StudentID      string          `json:"studentId"`
	ListingID      string          `json:"listingId"`
	ListingTitle   string          `json:"listingTitle"`
	PricePerMinute decimal.Decimal `json:"pricePerMinute"`
	ReserveAmount  decimal.Decimal `json:"reserveAmount"`
	session.ActiveState
	Elapsed     string              `json:"elapsed"`
	DisplayCost string              `json:"displayCost"`
	Progress    float64             `json:"progress"`
	LastError   string              `json:"lastError,omitempty"`
	Closed      bool                `json:"closed"`
	Settlement  *session.Settlement `json:"settlement,omitempty"`
}

// Controller 驱动一个会话视图的生命周期：Idle → Starting → Active → Ending → Ended。
// 同一时刻最多只有一个 Start 或 End 在进行中。
type Controller struct {
	backend   Backend
	listing   listing.Listing
	studentID string
	logger    *slog.Logger
	metrics   *Metrics
	interval  time.Duration
	onSettled func(ctx context.Context, s session.Settlement)

	mu         sync.Mutex
	state      session.State
	clock      *clock.Clock
	sessionID  string
	reserve    decimal.Decimal
	progress   float64
	lastErr    error
	settlement *session.Settlement
	closed     bool
	finishedAt time.Time
	ending     sync.WaitGroup

	subMu      sync.Mutex
	subs       map[string]chan session.Event
	subsClosed bool
}

// NewController creates an Idle controller for one listing.
func NewController(cfg ControllerConfig) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.TickInterval
	if interval <= 0 {
		interval = clock.DefaultInterval
	}
	return &Controller{
		backend:   cfg.Backend,
		listing:   cfg.Listing,
		studentID: cfg.StudentID,
		logger:    logger.With("listing_id", cfg.Listing.ID, "student_id", cfg.StudentID),
		metrics:   cfg.Metrics,
		interval:  interval,
		onSettled: cfg.OnSettled,
		state:     session.Idle,
		subs:      make(map[string]chan session.Event),
	}
}

// ID returns the backend session id, empty until Start succeeds.
func (c *Controller) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// State returns the lifecycle state.
func (c *Controller) State() session.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Listing returns the listing being metered.
func (c *Controller) Listing() listing.Listing {
	return c.listing
}

// StudentID returns the learner the session belongs to.
func (c *Controller) StudentID() string {
	return c.studentID
}

// Start locks the reserve with the backend and starts the clock from zero.
// On failure the controller returns to Idle and the clock is never started.
func (c *Controller) Start(ctx context.Context, reserve decimal.Decimal) (session.StartResult, error) {
	const op = "session.Start"

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return session.StartResult{}, apperr.New(apperr.Conflict, op, "session view is closed")
	}
	switch c.state {
	case session.Idle:
	case session.Starting:
		c.mu.Unlock()
		return session.StartResult{}, apperr.New(apperr.Conflict, op, "session start already in progress")
	default:
		c.mu.Unlock()
		return session.StartResult{}, apperr.New(apperr.Conflict, op, "session already started")
	}
	c.state = session.Starting
	c.lastErr = nil
	c.mu.Unlock()

	res, err := c.backend.StartSession(ctx, session.StartRequest{
		StudentID:     c.studentID,
		ListingID:     c.listing.ID,
		ReserveAmount: reserve,
	})
	if err != nil {
		c.mu.Lock()
		c.state = session.Idle
		c.lastErr = err
		ev := c.eventLocked(session.EventError)
		ev.Message = apperr.Message(err)
		ev.Retryable = apperr.Retryable(err)
		c.mu.Unlock()

		c.metrics.sessionStartFailed(ctx, string(apperr.KindOf(err)))
		c.logger.Warn("session start failed", "error", err)
		c.publish(ev)
		return session.StartResult{}, err
	}

	c.mu.Lock()
	c.state = session.Active
	c.sessionID = res.SessionID
	c.reserve = res.ReserveAmount
	if c.reserve.IsZero() {
		c.reserve = reserve
	}
	c.clock = clock.New(c.interval, c.onTick)
	closed := c.closed
	if !closed {
		c.clock.Start()
	}
	ev := c.eventLocked(session.EventStarted)
	c.mu.Unlock()

	c.metrics.sessionStarted(ctx)
	if closed {
		c.logger.Warn("session opened after view closed; clock not started", "session_id", res.SessionID)
		return res, nil
	}
	c.logger.Info("session started", "session_id", res.SessionID, "reserve", c.reserve.String())
	c.publish(ev)
	return res, nil
}

// Pause stops elapsed time from advancing without ending the session.
func (c *Controller) Pause() error {
	return c.setPaused(true)
}

// Resume continues counting from the next tick.
func (c *Controller) Resume() error {
	return c.setPaused(false)
}

func (c *Controller) setPaused(paused bool) error {
	op := "session.Resume"
	if paused {
		op = "session.Pause"
	}

	c.mu.Lock()
	if c.state != session.Active || c.clock == nil {
		c.mu.Unlock()
		return apperr.New(apperr.SessionNotActive, op, "session is not active")
	}
	if c.clock.Paused() == paused {
		c.mu.Unlock()
		return nil
	}

	evType := session.EventResumed
	if paused {
		c.clock.Pause()
		evType = session.EventPaused
	} else {
		c.clock.Resume()
	}
	ev := c.eventLocked(evType)
	c.mu.Unlock()

	c.publish(ev)
	return nil
}

// SetProgress records video progress, clamped to [0, 100].
func (c *Controller) SetProgress(percent float64) error {
	if math.IsNaN(percent) {
		return apperr.New(apperr.InvalidArgument, "session.SetProgress", "progress must be a number")
	}
	percent = math.Max(0, math.Min(100, percent))

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != session.Active && c.state != session.Ending {
		return apperr.New(apperr.SessionNotActive, "session.SetProgress", "session is not active")
	}
	c.progress = percent
	return nil
}

// End settles the session. The backend call runs detached from ctx
// cancellation so closing the view cannot abort a settlement. On failure the
// controller returns to Active and the user may retry. Milestone proof
// failures are recorded per item and never fail the settlement.
func (c *Controller) End(ctx context.Context) (session.Settlement, error) {
	const op = "session.End"

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return session.Settlement{}, apperr.New(apperr.Conflict, op, "session view is closed")
	}
	switch c.state {
	case session.Active:
	case session.Ending:
		c.mu.Unlock()
		return session.Settlement{}, apperr.New(apperr.Conflict, op, "session end already in progress")
	default:
		c.mu.Unlock()
		return session.Settlement{}, apperr.New(apperr.SessionNotActive, op, "session is not active")
	}
	c.state = session.Ending
	c.lastErr = nil
	// Add 与 closed 检查同在 c.mu 下，Close 之后不会再有新的 End 计入
	c.ending.Add(1)
	defer c.ending.Done()
	sessionID := c.sessionID
	progress := c.progress
	elapsed := c.clock.Elapsed()
	ev := c.eventLocked(session.EventEnding)
	c.mu.Unlock()
	c.publish(ev)

	ctx = context.WithoutCancel(ctx)
	res, err := c.backend.EndSession(ctx, session.EndRequest{
		SessionID:            sessionID,
		CompletionPercentage: progress,
		Engagement: session.EngagementMetrics{
			ElapsedSeconds: elapsed,
			VideoProgress:  progress,
			Timestamp:      time.Now(),
		},
	})
	if err != nil {
		c.mu.Lock()
		c.state = session.Active
		c.lastErr = err
		closed := c.closed
		ev := c.eventLocked(session.EventError)
		ev.Message = apperr.Message(err)
		ev.Retryable = apperr.Retryable(err)
		c.mu.Unlock()

		c.metrics.sessionEndFailed(ctx, string(apperr.KindOf(err)))
		c.logger.Warn("session end failed", "session_id", sessionID, "error", err, "view_closed", closed)
		if !closed {
			c.publish(ev)
		}
		return session.Settlement{}, err
	}

	settlement := session.Settlement{
		Result:    res,
		Redirect:  "/summary/" + sessionID,
		StudentID: c.studentID,
		ListingID: c.listing.ID,
		Title:     c.listing.Title,
		Elapsed:   elapsed,
	}
	settlement.Proofs, settlement.MilestoneError = c.submitProofs(ctx, sessionID, res.EscrowID, progress)
	settlement.EndedAt = time.Now()

	c.mu.Lock()
	c.clock.Stop()
	c.state = session.Ended
	c.settlement = &settlement
	c.finishedAt = settlement.EndedAt
	closed := c.closed
	done := c.eventLocked(session.EventCompleted)
	done.Redirect = settlement.Redirect
	done.Proofs = settlement.Proofs
	c.mu.Unlock()

	c.metrics.sessionEnded(ctx)
	c.logger.Info("session settled",
		"session_id", sessionID,
		"final_charge", res.FinalCharge.String(),
		"refund", res.Refund.String(),
		"failed_proofs", settlement.FailedProofs(),
		"view_closed", closed,
	)

	if c.onSettled != nil {
		c.onSettled(ctx, settlement)
	}
	if !closed {
		c.publish(done)
	}
	return settlement, nil
}

// submitProofs walks the session's milestones in backend order and submits
// proof for each pending one. Every failure is captured, none aborts the walk.
func (c *Controller) submitProofs(ctx context.Context, sessionID, escrowID string, progress float64) ([]session.ProofOutcome, string) {
	if escrowID == "" {
		return nil, ""
	}

	milestones, err := c.backend.ListMilestones(ctx, sessionID)
	if err != nil {
		c.logger.Warn("list milestones failed", "session_id", sessionID, "escrow_id", escrowID, "error", err)
		return nil, apperr.Message(err)
	}

	proof := session.Proof{
		ContentRef: c.listing.PrimaryVideo(),
		Notes:      fmt.Sprintf("Completed %d%% of content", int(math.Round(progress))),
	}

	outcomes := make([]session.ProofOutcome, 0, len(milestones))
	for _, m := range milestones {
		if m.Status != session.MilestonePending {
			outcomes = append(outcomes, session.ProofOutcome{MilestoneID: m.ID, Status: m.Status})
			continue
		}

		status, err := c.backend.SubmitMilestoneProof(ctx, m.ID, proof)
		switch {
		case err == nil:
			outcomes = append(outcomes, session.ProofOutcome{MilestoneID: m.ID, Status: status, Submitted: true})
			c.metrics.proofSubmitted(ctx, "ok")
		case apperr.Is(err, apperr.AlreadyCompleted):
			outcomes = append(outcomes, session.ProofOutcome{MilestoneID: m.ID, Status: session.MilestoneCompleted})
			c.metrics.proofSubmitted(ctx, "already_completed")
		default:
			outcomes = append(outcomes, session.ProofOutcome{
				MilestoneID: m.ID,
				Status:      m.Status,
				Error:       apperr.Message(err),
				ErrorKind:   string(apperr.KindOf(err)),
			})
			c.metrics.proofSubmitted(ctx, "failed")
			c.logger.Warn("milestone proof failed", "session_id", sessionID, "milestone_id", m.ID, "error", err)
		}
	}
	return outcomes, ""
}

// Close tears the view down: the clock stops and subscribers are released.
// An in-flight End keeps running and only logs its result.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.clock != nil {
		c.clock.Stop()
	}
	if c.finishedAt.IsZero() {
		c.finishedAt = time.Now()
	}
	ev := c.eventLocked(session.EventClosed)
	c.mu.Unlock()

	c.publish(ev)

	c.subMu.Lock()
	c.subsClosed = true
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.subMu.Unlock()
}

// WaitEnd blocks until an in-flight End, including its OnSettled hook, has
// returned. Call it after Close.
func (c *Controller) WaitEnd() {
	c.ending.Wait()
}

// Closed reports whether the view was torn down.
func (c *Controller) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Subscribe registers a listener. The channel closes when the controller
// closes or cancel is called. Ticks are dropped for a subscriber that falls
// behind.
func (c *Controller) Subscribe() (<-chan session.Event, func()) {
	ch := make(chan session.Event, subscriberBuffer)
	id := uuid.NewString()

	// subsClosed 与 subs 同锁，Close 之后注册的订阅不会遗留
	c.subMu.Lock()
	if c.subsClosed {
		c.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	c.subs[id] = ch
	c.subMu.Unlock()

	cancel := func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		if existing, ok := c.subs[id]; ok {
			close(existing)
			delete(c.subs, id)
		}
	}
	return ch, cancel
}

// Snapshot returns the current state. EstimatedCost is computed from the
// elapsed seconds at read time.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := c.elapsedLocked()
	cost := c.costLocked(elapsed)
	snap := Snapshot{
		SessionID:      c.sessionID,
		State:          c.state,
		StudentID:      c.studentID,
		ListingID:      c.listing.ID,
		ListingTitle:   c.listing.Title,
		PricePerMinute: c.listing.PricePerMinute,
		ReserveAmount:  c.reserve,
		ActiveState: session.ActiveState{
			ElapsedSeconds: elapsed,
			IsPaused:       c.clock != nil && c.clock.Paused(),
			EstimatedCost:  cost,
		},
		Elapsed:     pricing.FormatElapsed(elapsed),
		DisplayCost: pricing.Display(cost),
		Progress:    c.progress,
		Closed:      c.closed,
	}
	if c.lastErr != nil {
		snap.LastError = apperr.Message(c.lastErr)
	}
	if c.settlement != nil {
		s := *c.settlement
		snap.Settlement = &s
	}
	return snap
}

// Settlement returns the settlement once Ended.
func (c *Controller) Settlement() (session.Settlement, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.settlement == nil {
		return session.Settlement{}, false
	}
	return *c.settlement, true
}

// finished reports when the controller stopped being live, zero if it still is.
func (c *Controller) finished() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finishedAt
}

func (c *Controller) onTick(int64) {
	c.mu.Lock()
	if c.closed || (c.state != session.Active && c.state != session.Ending) {
		c.mu.Unlock()
		return
	}
	ev := c.eventLocked(session.EventTick)
	c.mu.Unlock()

	c.publish(ev)
}

func (c *Controller) elapsedLocked() int64 {
	if c.clock == nil {
		return 0
	}
	return c.clock.Elapsed()
}

func (c *Controller) costLocked(elapsed int64) decimal.Decimal {
	cost, err := pricing.EstimateCost(elapsed, c.listing.PricePerMinute)
	if err != nil {
		return decimal.Zero
	}
	return cost
}

func (c *Controller) eventLocked(t session.EventType) session.Event {
	elapsed := c.elapsedLocked()
	cost := c.costLocked(elapsed)
	return session.Event{
		Type:           t,
		SessionID:      c.sessionID,
		State:          c.state,
		ElapsedSeconds: elapsed,
		Elapsed:        pricing.FormatElapsed(elapsed),
		EstimatedCost:  cost,
		DisplayCost:    pricing.Display(cost),
		IsPaused:       c.clock != nil && c.clock.Paused(),
	}
}

func (c *Controller) publish(ev session.Event) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- ev:
			continue
		default:
		}
		if ev.Type == session.EventTick {
			continue
		}
		// lifecycle events displace the oldest queued event
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}
