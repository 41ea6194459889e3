package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"github.com/yndnr/slotmesh/internal/core/domain"
	"github.com/yndnr/slotmesh/internal/net/packet"
	"github.com/yndnr/slotmesh/internal/net/transport"
	"github.com/yndnr/slotmesh/internal/storage/demo"
	"github.com/yndnr/slotmesh/internal/telemetry/logger"
	"github.com/yndnr/slotmesh/internal/telemetry/metric"
)

// Session defaults.
const (
	DefaultTickInterval      = 20 * time.Millisecond
	DefaultAckTimeout        = 10 * time.Second
	DefaultReconnectInterval = 2 * time.Second
	DefaultEventBuffer       = 64
	DefaultCommandBuffer     = 16
)

// Recorder receives applied snapshots and emitted input frames.
type Recorder interface {
	Append(f demo.Frame) error
}

// Config configures a Session.
type Config struct {
	ServerAddress   string
	ProtocolVersion uint32

	// TickInterval is the period of the tick boundary.
	TickInterval time.Duration

	// AckTimeout fails a slot that has heard nothing from the server for
	// this long. Negative disables the check.
	AckTimeout time.Duration

	// RequestedDummies is reconciled whenever the main slot comes online.
	RequestedDummies int

	SnapshotCapacity    int
	InputQueueSize      int
	MaxPendingSnapshots int
	GapTimeout          time.Duration
	ResendRate          rate.Limit
	ResendBurst         int

	// ReconnectInterval throttles main-slot connects and automatic dummy
	// re-registration.
	ReconnectInterval time.Duration

	// AutoReconnect reopens the main slot after it was lost abnormally.
	AutoReconnect bool

	EventBuffer int

	Logger   logger.Logger
	Metrics  *metric.Registry
	Recorder Recorder
	Now      func() time.Time
}

func (c *Config) applyDefaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.AckTimeout == 0 {
		c.AckTimeout = DefaultAckTimeout
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = DefaultReconnectInterval
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = DefaultEventBuffer
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Metrics == nil {
		c.Metrics = metric.NewRegistry()
	}
	c.Logger = logger.OrDefault(c.Logger)
}

// ============================================================================
// Events
// ============================================================================

// EventKind names a session event.
type EventKind string

const (
	EventSlotOnline        EventKind = "slot_online"
	EventSlotRemoved       EventKind = "slot_removed"
	EventReconnectRequired EventKind = "reconnect_required"
	EventBackpressure      EventKind = "backpressure"
	EventActiveChanged     EventKind = "active_changed"
)

// Event is published on Session.Events. Publishing never blocks the loop;
// events are dropped when the consumer lags.
type Event struct {
	Kind   EventKind     `json:"kind"`
	Slot   domain.SlotID `json:"slot_id"`
	Main   bool          `json:"main"`
	Reason string        `json:"reason,omitempty"`
	At     time.Time     `json:"at"`
}

// ============================================================================
// Session
// ============================================================================

type command struct {
	fn     func(ctx context.Context) error
	result chan error
}

// Session ties registry, router, scheduler and selector to a transport and
// runs them from one tick loop. All mutation happens on the Run goroutine;
// other goroutines reach it through Do.
type Session struct {
	cfg       Config
	logger    logger.Logger
	metrics   *metric.Registry
	runID     ulid.ULID
	transport transport.Transport

	registry  *Registry
	selector  *Selector
	scheduler *Scheduler
	router    *Router
	reconnect *rate.Limiter

	commands chan command
	events   chan Event
	running  atomic.Bool
	done     chan struct{}

	// Loop-owned state.
	tick        domain.Tick
	wantDummies int
	reconcile   bool
	started     bool
}

// NewSession wires a session over tr. The session does not own tr.
func NewSession(cfg Config, tr transport.Transport) *Session {
	cfg.applyDefaults()

	s := &Session{
		cfg:         cfg,
		metrics:     cfg.Metrics,
		runID:       ulid.Make(),
		transport:   tr,
		reconnect:   rate.NewLimiter(rate.Every(cfg.ReconnectInterval), 1),
		commands:    make(chan command, DefaultCommandBuffer),
		events:      make(chan Event, cfg.EventBuffer),
		done:        make(chan struct{}),
		tick:        domain.NoTick,
		wantDummies: max(cfg.RequestedDummies, 0),
	}
	s.logger = cfg.Logger.With("run_id", s.runID.String())

	s.registry = NewRegistry(RegistryConfig{
		SnapshotCapacity: cfg.SnapshotCapacity,
		InputQueueSize:   cfg.InputQueueSize,
		Logger:           s.logger,
		Metrics:          s.metrics,
		Now:              cfg.Now,
	})
	s.selector = NewSelector(s.registry, s.logger)
	s.scheduler = NewScheduler(s.registry, s.selector, s.logger, s.metrics)
	s.scheduler.OnBackpressure = func(id domain.SlotID) {
		s.publish(Event{Kind: EventBackpressure, Slot: id})
	}
	s.router = NewRouter(s.registry, s.sendMessage, RouterConfig{
		MaxPendingSnapshots: cfg.MaxPendingSnapshots,
		GapTimeout:          cfg.GapTimeout,
		ResendRate:          cfg.ResendRate,
		ResendBurst:         cfg.ResendBurst,
		Logger:              s.logger,
		Metrics:             s.metrics,
		Now:                 cfg.Now,
		OnApply:             s.onApply,
		OnOnline:            s.onOnline,
	})
	s.registry.OnRemove(s.onRemove)
	return s
}

// RunID identifies this session in logs.
func (s *Session) RunID() string {
	return s.runID.String()
}

// Events returns the event stream.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Metrics returns the metric registry the session reports to.
func (s *Session) Metrics() *metric.Registry {
	return s.metrics
}

// SlotStats implements metric.SlotStatsSource.
func (s *Session) SlotStats() []metric.SlotStat {
	return s.registry.SlotStats()
}

// ============================================================================
// Control surface
// ============================================================================

// RouteLocalInput hands one local input capture to the scheduler. Safe from
// any goroutine; never blocks.
func (s *Session) RouteLocalInput(raw []byte) {
	s.scheduler.RouteLocalInput(raw)
}

// SetActive requests control of slot id from the next tick on.
func (s *Session) SetActive(id domain.SlotID) error {
	return s.selector.SetActive(id)
}

// Cycle requests control of the next live slot.
func (s *Session) Cycle() (domain.SlotID, bool) {
	return s.selector.Cycle()
}

// ActiveSlot returns the slot currently receiving local input.
func (s *Session) ActiveSlot() (domain.SlotID, bool) {
	return s.selector.Current()
}

// Connect opens and dials the main slot.
func (s *Session) Connect(ctx context.Context) error {
	return s.Do(ctx, s.connectMain)
}

// AddDummy registers and dials one more dummy.
func (s *Session) AddDummy(ctx context.Context) (domain.SlotID, error) {
	var id domain.SlotID
	err := s.Do(ctx, func(ctx context.Context) error {
		var err error
		id, err = s.addDummy(ctx)
		if err == nil {
			s.wantDummies = len(s.registry.Dummies())
		}
		return err
	})
	return id, err
}

// RemoveSlot disconnects a slot. Removing the main slot removes every dummy.
func (s *Session) RemoveSlot(ctx context.Context, id domain.SlotID) error {
	return s.Do(ctx, func(context.Context) error {
		return s.removeSlot(id)
	})
}

// SetDummyCount sets how many dummies should be connected. It is applied
// immediately when the main slot is online and again whenever it comes back.
func (s *Session) SetDummyCount(ctx context.Context, n int) error {
	return s.Do(ctx, func(ctx context.Context) error {
		return s.setDummyCount(ctx, n)
	})
}

// SlotInfo describes one live slot.
type SlotInfo struct {
	ID               domain.SlotID `json:"slot_id"`
	Main             bool          `json:"main"`
	Active           bool          `json:"active"`
	State            string        `json:"state"`
	ServerAddress    string        `json:"server_address"`
	ProtocolVersion  uint32        `json:"protocol_version"`
	AckedTick        domain.Tick   `json:"acked_tick"`
	AppliedTick      domain.Tick   `json:"applied_tick"`
	StoredSnapshots  int           `json:"stored_snapshots"`
	PendingSnapshots int           `json:"pending_snapshots"`
	QueuedFrames     int           `json:"queued_frames"`
	CreatedAt        time.Time     `json:"created_at"`
	LastAckAt        time.Time     `json:"last_ack_at"`
}

// Status is a point-in-time view of the session.
type Status struct {
	RunID            string              `json:"run_id"`
	Tick             domain.Tick         `json:"tick"`
	ActiveSlot       *domain.SlotID      `json:"active_slot"`
	PendingSlot      *domain.SlotID      `json:"pending_slot,omitempty"`
	RequestedDummies int                 `json:"requested_dummies"`
	DummyLimit       int                 `json:"dummy_limit"`
	Capabilities     domain.Capabilities `json:"capabilities"`
	Slots            []SlotInfo          `json:"slots"`
}

// Status collects a consistent view from the loop.
func (s *Session) Status(ctx context.Context) (*Status, error) {
	var st *Status
	err := s.Do(ctx, func(context.Context) error {
		st = s.status()
		return nil
	})
	return st, err
}

func (s *Session) status() *Status {
	caps := s.registry.Capabilities()
	st := &Status{
		RunID:            s.RunID(),
		Tick:             s.tick,
		RequestedDummies: s.wantDummies,
		DummyLimit:       caps.DummyLimit(),
		Capabilities:     caps,
	}
	active, hasActive := s.selector.Current()
	if hasActive {
		st.ActiveSlot = &active
	}
	if p, ok := s.selector.Pending(); ok {
		st.PendingSlot = &p
	}

	for _, slot := range s.registry.Slots() {
		info := SlotInfo{
			ID:               slot.ID,
			Main:             slot.Main,
			Active:           hasActive && slot.ID == active,
			State:            slot.State.String(),
			ServerAddress:    slot.ServerAddress,
			ProtocolVersion:  slot.ProtocolVersion,
			AckedTick:        slot.AckedTick,
			AppliedTick:      s.router.LastApplied(slot.ID),
			PendingSnapshots: s.router.Pending(slot.ID),
			CreatedAt:        slot.CreatedAt,
			LastAckAt:        slot.LastAckAt,
		}
		if store, err := s.registry.Store(slot.ID); err == nil {
			info.StoredSnapshots = store.Len()
		}
		if q, err := s.registry.Queue(slot.ID); err == nil {
			info.QueuedFrames = q.Len()
		}
		st.Slots = append(st.Slots, info)
	}
	return st
}

// ============================================================================
// Loop
// ============================================================================

// Do runs fn on the loop goroutine and waits for its result.
func (s *Session) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	cmd := command{fn: fn, result: make(chan error, 1)}
	select {
	case s.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return domain.ErrSessionClosed
	}
	select {
	case err := <-cmd.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return domain.ErrSessionClosed
	}
}

// Run drives the session until ctx is cancelled. On exit every slot is
// disconnected.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return domain.ErrInvalidArgument.WithDetails("session already running")
	}
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	s.logger.Info("session loop started",
		"server", s.cfg.ServerAddress,
		"tick_interval", s.cfg.TickInterval.String(),
		"requested_dummies", s.wantDummies,
	)

	inbound := s.transport.Inbound()
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case dg, ok := <-inbound:
			if !ok {
				s.logger.Warn("transport inbound closed")
				inbound = nil
				continue
			}
			s.handleDatagram(dg)
		case cmd := <-s.commands:
			cmd.result <- cmd.fn(ctx)
		case <-ticker.C:
			s.step(ctx, s.cfg.Now())
		}
	}
}

func (s *Session) handleDatagram(dg domain.Datagram) {
	if dg.Err != nil {
		if !s.registry.IsLive(dg.Slot) {
			return
		}
		s.logger.Warn("slot connection failed",
			"slot_id", uint32(dg.Slot),
			"error", dg.Err,
		)
		_ = s.registry.Fail(dg.Slot, ReasonError)
		return
	}
	_ = s.router.Dispatch(dg.Slot, dg.Data)
}

// step is one tick boundary.
func (s *Session) step(ctx context.Context, now time.Time) {
	start := time.Now()
	defer func() {
		s.metrics.TickDuration.Observe(time.Since(start).Seconds())
	}()

	if id, changed := s.selector.Commit(); changed {
		s.publish(Event{Kind: EventActiveChanged, Slot: id})
	}

	if s.cfg.AckTimeout > 0 {
		for _, id := range s.registry.Overdue(now, s.cfg.AckTimeout) {
			if !s.registry.IsLive(id) {
				continue
			}
			s.metrics.AckTimeouts.Inc()
			s.logger.Warn("slot missed ack deadline",
				"slot_id", uint32(id),
				"deadline", s.cfg.AckTimeout.String(),
				"error", domain.ErrAckTimeout,
			)
			_ = s.registry.Fail(id, ReasonAckTimeout)
		}
	}

	s.router.CheckGaps(now)

	if _, hasMain := s.registry.Main(); !hasMain && s.started && s.cfg.AutoReconnect {
		if err := s.connectMain(ctx); err != nil && !errors.Is(err, domain.ErrThrottled) {
			s.logger.Warn("automatic reconnect failed", "error", err)
		}
	}
	if s.reconcile && s.registry.MainOnline() && s.reconnect.AllowN(now, 1) {
		s.reconcile = false
		if err := s.reconcileDummies(ctx); err != nil {
			s.logger.Warn("dummy reconcile incomplete", "want", s.wantDummies, "error", err)
		}
	}

	s.tick++
	frames := s.scheduler.Tick(s.tick)
	if s.cfg.Recorder != nil {
		for _, f := range frames {
			s.record(demo.InputFrame(f))
		}
	}
	s.flush()
}

// flush sends queued input frames of every Online slot.
func (s *Session) flush() {
	for _, slot := range s.registry.Slots() {
		if slot.State != domain.StateOnline {
			continue
		}
		q, err := s.registry.Queue(slot.ID)
		if err != nil {
			continue
		}
		ack := s.router.LastApplied(slot.ID)
		for _, f := range q.Drain() {
			if err := s.sendMessage(slot.ID, packet.InputFromFrame(f, ack)); err != nil {
				s.logger.Warn("input send failed", "slot_id", uint32(slot.ID), "error", err)
				_ = s.registry.Fail(slot.ID, ReasonError)
				break
			}
		}
	}
}

func (s *Session) shutdown() {
	if main, ok := s.registry.Main(); ok {
		_ = s.registry.Unregister(main, ReasonShutdown)
	}
	s.logger.Info("session loop stopped", "tick", s.tick)
}

// ============================================================================
// Loop-side operations
// ============================================================================

func (s *Session) connectMain(ctx context.Context) error {
	if _, ok := s.registry.Main(); ok {
		return domain.ErrInvalidArgument.WithDetails("main slot already connected")
	}
	if !s.reconnect.AllowN(s.cfg.Now(), 1) {
		return domain.ErrThrottled.WithDetails(fmt.Sprintf("retry after %s", s.cfg.ReconnectInterval))
	}
	s.started = true

	id, err := s.registry.OpenMain(s.cfg.ServerAddress, s.cfg.ProtocolVersion)
	if err != nil {
		return err
	}
	if err := s.dial(ctx, id, false); err != nil {
		return err
	}
	s.selector.Commit()
	return nil
}

func (s *Session) addDummy(ctx context.Context) (domain.SlotID, error) {
	id, err := s.registry.Register(s.cfg.ServerAddress, s.cfg.ProtocolVersion)
	if err != nil {
		return 0, err
	}
	if err := s.dial(ctx, id, true); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Session) dial(ctx context.Context, id domain.SlotID, dummy bool) error {
	err := s.transport.Dial(ctx, id, s.cfg.ServerAddress)
	if err == nil {
		err = s.sendMessage(id, packet.Connect{ProtocolVersion: s.cfg.ProtocolVersion, Dummy: dummy})
	}
	if err != nil {
		s.logger.Warn("slot dial failed", "slot_id", uint32(id), "error", err)
		_ = s.registry.Fail(id, ReasonError)
		return err
	}
	return nil
}

func (s *Session) removeSlot(id domain.SlotID) error {
	if err := s.registry.Unregister(id, ReasonUser); err != nil {
		return err
	}
	if _, ok := s.registry.Main(); ok {
		s.wantDummies = len(s.registry.Dummies())
	}
	return nil
}

func (s *Session) setDummyCount(ctx context.Context, n int) error {
	if n < 0 {
		return domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("dummy count %d", n))
	}
	s.wantDummies = n
	if !s.registry.MainOnline() {
		s.logger.Info("dummy count deferred until main slot is online", "want", n)
		return nil
	}
	return s.reconcileDummies(ctx)
}

// reconcileDummies removes the newest dummies or registers new ones until
// the live dummy count matches wantDummies. It stops at the first error.
func (s *Session) reconcileDummies(ctx context.Context) error {
	dummies := s.registry.Dummies()
	for len(dummies) > s.wantDummies {
		last := dummies[len(dummies)-1]
		if err := s.registry.Unregister(last, ReasonUser); err != nil {
			return err
		}
		dummies = dummies[:len(dummies)-1]
	}
	for n := len(dummies); n < s.wantDummies; n++ {
		if _, err := s.addDummy(ctx); err != nil {
			return err
		}
	}
	return nil
}

// ============================================================================
// Hooks
// ============================================================================

func (s *Session) sendMessage(id domain.SlotID, m packet.Message) error {
	data, err := packet.Encode(m)
	if err != nil {
		return err
	}
	return s.transport.Send(id, data)
}

func (s *Session) onApply(id domain.SlotID, snap domain.Snapshot) {
	if s.cfg.Recorder != nil {
		s.record(demo.SnapshotFrame(id, snap))
	}
}

func (s *Session) onOnline(id domain.SlotID) {
	slot, err := s.registry.Slot(id)
	if err != nil {
		return
	}
	s.logger.Info("slot online", "slot_id", uint32(id), "main", slot.Main)
	s.publish(Event{Kind: EventSlotOnline, Slot: id, Main: slot.Main})
	if slot.Main {
		s.reconcile = true
		s.reconnect = rate.NewLimiter(rate.Every(s.cfg.ReconnectInterval), 1)
	}
}

func (s *Session) onRemove(id domain.SlotID, main bool, reason RemoveReason) {
	s.selector.SlotRemoved(id)
	s.router.Forget(id)
	s.scheduler.Forget(id)

	if reason != ReasonServerDisconnect && reason != ReasonError {
		_ = s.sendMessage(id, packet.Disconnect{Reason: string(reason)})
	}
	if err := s.transport.Disconnect(id); err != nil {
		s.logger.Debug("slot socket close failed", "slot_id", uint32(id), "error", err)
	}

	if s.cfg.Recorder != nil {
		s.record(demo.Frame{Kind: demo.KindEvent, Slot: id, Tick: s.tick, Payload: []byte(reason)})
	}
	s.publish(Event{Kind: EventSlotRemoved, Slot: id, Main: main, Reason: string(reason)})
	if reason.Abnormal() && !(reason == ReasonMainLost && !main) {
		s.publish(Event{Kind: EventReconnectRequired, Slot: id, Main: main, Reason: string(reason)})
	}
	if !main && reason.Abnormal() && reason != ReasonMainLost {
		s.reconcile = true
	}
	if main && !reason.Abnormal() {
		// Only a lost main slot is reopened; a removed one waits for Connect.
		s.started = false
	}
}

func (s *Session) record(f demo.Frame) {
	if err := s.cfg.Recorder.Append(f); err != nil {
		s.logger.Warn("demo record failed", "kind", f.Kind.String(), "slot_id", uint32(f.Slot), "error", err)
	}
}

func (s *Session) publish(e Event) {
	e.At = s.cfg.Now()
	select {
	case s.events <- e:
	default:
		s.logger.Warn("event dropped, consumer lagging",
			"kind", string(e.Kind),
			"slot_id", uint32(e.Slot),
		)
	}
}
