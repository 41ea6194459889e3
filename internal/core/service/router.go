package service

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/yndnr/slotmesh/internal/core/domain"
	"github.com/yndnr/slotmesh/internal/net/packet"
	"github.com/yndnr/slotmesh/internal/storage/snapshot"
	"github.com/yndnr/slotmesh/internal/telemetry/logger"
	"github.com/yndnr/slotmesh/internal/telemetry/metric"
)

// Router defaults.
const (
	DefaultMaxPendingSnapshots = 32
	DefaultGapTimeout          = 250 * time.Millisecond
	DefaultResendRate          = 4 // per second, per slot
	DefaultResendBurst         = 1
)

// Sender writes one message on a slot's connection.
type Sender func(id domain.SlotID, m packet.Message) error

// RouterConfig configures a Router.
type RouterConfig struct {
	// MaxPendingSnapshots bounds out-of-order snapshots buffered per slot.
	MaxPendingSnapshots int

	// GapTimeout is how long buffered snapshots may wait for a missing tick
	// before a resend is requested.
	GapTimeout time.Duration

	// ResendRate and ResendBurst throttle resend requests per slot.
	ResendRate  rate.Limit
	ResendBurst int

	Logger  logger.Logger
	Metrics *metric.Registry
	Now     func() time.Time

	// OnApply is called for every snapshot applied in tick order.
	OnApply func(id domain.SlotID, snap domain.Snapshot)

	// OnOnline is called when a slot completes its handshake.
	OnOnline func(id domain.SlotID)
}

// slotStream is the ordering state of one slot's snapshot stream.
type slotStream struct {
	lastApplied domain.Tick

	// pending holds buffered snapshots keyed by PrevTick, so the successor
	// of the last applied tick is a single lookup.
	pending  map[domain.Tick]packet.Snapshot
	gapSince time.Time
}

// Router dispatches inbound packets to the slot they arrived on.
//
// Errors returned by Dispatch are local to that slot and never fatal for
// the session; the router has already logged and counted them.
type Router struct {
	cfg      RouterConfig
	registry *Registry
	send     Sender
	logger   logger.Logger
	metrics  *metric.Registry
	limiters *RateLimiterRegistry
	streams  map[domain.SlotID]*slotStream
}

// NewRouter creates a router. send is used for resend requests.
func NewRouter(registry *Registry, send Sender, cfg RouterConfig) *Router {
	if cfg.MaxPendingSnapshots <= 0 {
		cfg.MaxPendingSnapshots = DefaultMaxPendingSnapshots
	}
	if cfg.GapTimeout <= 0 {
		cfg.GapTimeout = DefaultGapTimeout
	}
	if cfg.ResendRate <= 0 {
		cfg.ResendRate = DefaultResendRate
	}
	if cfg.ResendBurst <= 0 {
		cfg.ResendBurst = DefaultResendBurst
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metric.NewRegistry()
	}
	return &Router{
		cfg:      cfg,
		registry: registry,
		send:     send,
		logger:   logger.OrDefault(cfg.Logger),
		metrics:  cfg.Metrics,
		limiters: NewRateLimiterRegistry(cfg.ResendRate, cfg.ResendBurst),
		streams:  make(map[domain.SlotID]*slotStream),
	}
}

// Dispatch decodes raw and applies it to slot id.
func (r *Router) Dispatch(id domain.SlotID, raw []byte) error {
	msg, err := packet.Decode(raw)
	if err != nil {
		r.drop(id, "malformed", packet.PeekKind(raw), err)
		return err
	}
	kind := msg.Kind()

	slot, err := r.registry.Slot(id)
	if err != nil {
		r.drop(id, "unknown_slot", kind, err)
		return err
	}

	if kind.Handshake() {
		if err := r.handshake(slot, msg); err != nil {
			r.drop(id, "handshake", kind, err)
			return err
		}
		r.metrics.PacketsDispatched.WithLabelValues(kind.String()).Inc()
		return nil
	}

	if slot.State != domain.StateOnline {
		err := domain.ErrInvalidSlot.WithDetails(fmt.Sprintf("%s is %s", id, slot.State))
		r.drop(id, "not_online", kind, err)
		return err
	}

	switch m := msg.(type) {
	case packet.Snapshot:
		err = r.snapshot(id, m)
	case packet.Ack:
		err = r.ack(id, m)
	default:
		err = domain.ErrMalformedPacket.WithDetails(fmt.Sprintf("unexpected %s from server", kind))
		r.drop(id, "unexpected_kind", kind, err)
		return err
	}
	if err == nil {
		r.metrics.PacketsDispatched.WithLabelValues(kind.String()).Inc()
	}
	return err
}

func (r *Router) drop(id domain.SlotID, reason string, kind packet.Kind, err error) {
	r.metrics.PacketsDropped.WithLabelValues(reason).Inc()
	r.logger.Debug("packet dropped",
		"slot_id", uint32(id),
		"kind", kind.String(),
		"reason", reason,
		"error", err,
	)
}

// ============================================================================
// Handshake
// ============================================================================

func (r *Router) handshake(slot *domain.ConnectionSlot, msg packet.Message) error {
	switch m := msg.(type) {
	case packet.Accept:
		return r.registry.Transition(slot.ID, domain.StateAuthenticating)
	case packet.Ready:
		if slot.State != domain.StateAuthenticating {
			return domain.ErrInvalidTransition.WithDetails(fmt.Sprintf("%s: ready while %s", slot.ID, slot.State))
		}
		if slot.Main {
			r.registry.SetCapabilities(m.Capabilities())
		}
		if err := r.registry.Transition(slot.ID, domain.StateOnline); err != nil {
			return err
		}
		if r.cfg.OnOnline != nil {
			r.cfg.OnOnline(slot.ID)
		}
		return nil
	case packet.Disconnect:
		r.logger.Info("server closed connection",
			"slot_id", uint32(slot.ID),
			"reason", m.Reason,
		)
		return r.registry.Transition(slot.ID, domain.StateDisconnected)
	}
	return nil
}

// ============================================================================
// Snapshots
// ============================================================================

func (r *Router) stream(id domain.SlotID) *slotStream {
	st, ok := r.streams[id]
	if !ok {
		st = &slotStream{
			lastApplied: domain.NoTick,
			pending:     make(map[domain.Tick]packet.Snapshot),
		}
		r.streams[id] = st
	}
	return st
}

func (r *Router) snapshot(id domain.SlotID, s packet.Snapshot) error {
	st := r.stream(id)

	if s.Tick <= st.lastApplied {
		err := domain.ErrSnapshotOutOfOrder.WithDetails(fmt.Sprintf("tick %d, applied %d", s.Tick, st.lastApplied))
		r.drop(id, "stale", packet.KindSnapshot, err)
		return err
	}

	if !st.applicable(s) {
		return r.buffer(id, st, s)
	}

	if err := r.apply(id, st, s); err != nil {
		return err
	}
	r.drainPending(id, st)
	return nil
}

func (st *slotStream) applicable(s packet.Snapshot) bool {
	if s.PrevTick == st.lastApplied {
		return true
	}
	return !s.IsDelta() && s.Tick > st.lastApplied
}

func (r *Router) buffer(id domain.SlotID, st *slotStream, s packet.Snapshot) error {
	if _, dup := st.pending[s.PrevTick]; !dup && len(st.pending) >= r.cfg.MaxPendingSnapshots {
		err := domain.ErrSnapshotOutOfOrder.WithDetails("pending buffer full")
		r.drop(id, "pending_full", packet.KindSnapshot, err)
		r.requestResend(id, st.lastApplied+1)
		return err
	}
	st.pending[s.PrevTick] = s
	if st.gapSince.IsZero() {
		st.gapSince = r.cfg.Now()
	}
	r.logger.Debug("snapshot buffered, waiting for gap",
		"slot_id", uint32(id),
		"tick", s.Tick,
		"prev_tick", s.PrevTick,
		"applied", st.lastApplied,
		"pending", len(st.pending),
	)
	return nil
}

func (r *Router) drainPending(id domain.SlotID, st *slotStream) {
	for {
		next, ok := st.pending[st.lastApplied]
		if !ok {
			break
		}
		delete(st.pending, st.lastApplied)
		if err := r.apply(id, st, next); err != nil {
			break
		}
	}

	for prev, s := range st.pending {
		if s.Tick <= st.lastApplied {
			delete(st.pending, prev)
		}
	}
	if len(st.pending) == 0 {
		st.gapSince = time.Time{}
	}
}

// apply reconstructs, verifies and stores s, then advances lastApplied.
// Failures drop s and ask the server to resend from s.Tick.
func (r *Router) apply(id domain.SlotID, st *slotStream, s packet.Snapshot) error {
	store, err := r.registry.Store(id)
	if err != nil {
		return err
	}

	state, err := r.reconstruct(store, s)
	if err == nil && packet.Checksum(state) != s.Checksum {
		err = domain.ErrChecksumMismatch.WithDetails(fmt.Sprintf("tick %d", s.Tick))
	}
	if err == nil {
		err = store.Insert(domain.Snapshot{Tick: s.Tick, Payload: state, DeltaBaseTick: s.BaseTick})
	}
	if err != nil {
		r.metrics.PacketsDropped.WithLabelValues(dropReason(err)).Inc()
		r.logger.Warn("snapshot rejected",
			"slot_id", uint32(id),
			"tick", s.Tick,
			"base_tick", s.BaseTick,
			"error", err,
		)
		r.requestResend(id, s.Tick)
		return err
	}

	st.lastApplied = s.Tick
	r.metrics.SnapshotsApplied.Inc()
	if r.cfg.OnApply != nil {
		r.cfg.OnApply(id, domain.Snapshot{Tick: s.Tick, Payload: state, DeltaBaseTick: s.BaseTick})
	}
	return nil
}

func (r *Router) reconstruct(store *snapshot.Store, s packet.Snapshot) ([]byte, error) {
	body, err := s.WirePayload()
	if err != nil {
		return nil, err
	}
	if !s.IsDelta() {
		return body, nil
	}
	base, err := store.Get(s.BaseTick)
	if err != nil {
		return nil, domain.ErrDeltaBaseMissing.WithDetails(fmt.Sprintf("base %d for tick %d", s.BaseTick, s.Tick)).WithCause(err)
	}
	return snapshot.Undiff(base.Payload, body), nil
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrDeltaBaseMissing):
		return "delta_base_missing"
	case errors.Is(err, domain.ErrChecksumMismatch):
		return "checksum_mismatch"
	case errors.Is(err, domain.ErrMalformedPacket):
		return "malformed"
	}
	return "store_rejected"
}

// ============================================================================
// Acks
// ============================================================================

// ack advances the slot's acknowledged tick and prunes history at or below
// it, always keeping the last applied snapshot as the delta baseline.
func (r *Router) ack(id domain.SlotID, a packet.Ack) error {
	advanced, err := r.registry.Ack(id, a.Tick)
	if err != nil || !advanced {
		return err
	}

	st := r.stream(id)
	if st.lastApplied == domain.NoTick {
		return nil
	}
	store, err := r.registry.Store(id)
	if err != nil {
		return err
	}
	if n := store.Prune(min(a.Tick+1, st.lastApplied)); n > 0 {
		r.logger.Debug("snapshot history pruned",
			"slot_id", uint32(id),
			"acked", a.Tick,
			"evicted", n,
		)
	}
	return nil
}

// ============================================================================
// Gap detection and resend
// ============================================================================

// CheckGaps requests a resend on every slot whose buffered snapshots have
// waited longer than GapTimeout. It returns the slots that timed out.
func (r *Router) CheckGaps(now time.Time) []domain.SlotID {
	var out []domain.SlotID
	for id, st := range r.streams {
		if len(st.pending) == 0 || st.gapSince.IsZero() {
			continue
		}
		if now.Sub(st.gapSince) < r.cfg.GapTimeout {
			continue
		}

		r.metrics.SnapshotGapTimeouts.Inc()
		r.logger.Warn("snapshot gap timeout",
			"slot_id", uint32(id),
			"applied", st.lastApplied,
			"pending", len(st.pending),
			"error", domain.ErrSnapshotGapTimeout,
		)
		r.requestResend(id, st.lastApplied+1)
		st.gapSince = now
		out = append(out, id)
	}
	return out
}

func (r *Router) requestResend(id domain.SlotID, from domain.Tick) {
	if from < 0 {
		from = 0
	}
	if !r.limiters.GetOrCreate(id).AllowN(r.cfg.Now(), 1) {
		r.logger.Debug("resend request throttled", "slot_id", uint32(id), "from_tick", from)
		return
	}
	if err := r.send(id, packet.Resend{FromTick: from}); err != nil {
		r.logger.Warn("resend request failed", "slot_id", uint32(id), "error", err)
		return
	}
	r.metrics.ResendRequests.Inc()
}

// LastApplied returns the newest snapshot tick applied on a slot.
func (r *Router) LastApplied(id domain.SlotID) domain.Tick {
	if st, ok := r.streams[id]; ok {
		return st.lastApplied
	}
	return domain.NoTick
}

// Pending returns how many snapshots a slot has buffered.
func (r *Router) Pending(id domain.SlotID) int {
	if st, ok := r.streams[id]; ok {
		return len(st.pending)
	}
	return 0
}

// Forget drops per-slot state for a removed slot.
func (r *Router) Forget(id domain.SlotID) {
	delete(r.streams, id)
	r.limiters.Delete(id)
}
