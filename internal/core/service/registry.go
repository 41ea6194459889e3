package service

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/yndnr/slotmesh/internal/core/domain"
	"github.com/yndnr/slotmesh/internal/storage/snapshot"
	"github.com/yndnr/slotmesh/internal/telemetry/logger"
	"github.com/yndnr/slotmesh/internal/telemetry/metric"
)

// RemoveReason says why a slot left the registry.
type RemoveReason string

const (
	ReasonUser             RemoveReason = "user"
	ReasonServerDisconnect RemoveReason = "server_disconnect"
	ReasonError            RemoveReason = "error"
	ReasonAckTimeout       RemoveReason = "ack_timeout"
	ReasonMainLost         RemoveReason = "main_lost"
	ReasonShutdown         RemoveReason = "shutdown"
)

// Abnormal reports whether the removal was caused by a failure.
func (r RemoveReason) Abnormal() bool {
	switch r {
	case ReasonServerDisconnect, ReasonError, ReasonAckTimeout, ReasonMainLost:
		return true
	}
	return false
}

// RemoveHook is called after a slot has been removed.
type RemoveHook func(id domain.SlotID, main bool, reason RemoveReason)

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	// SnapshotCapacity bounds each slot's snapshot history.
	SnapshotCapacity int

	// InputQueueSize bounds each slot's outbound input queue.
	InputQueueSize int

	Logger  logger.Logger
	Metrics *metric.Registry

	// Now is the clock used for slot timestamps.
	Now func() time.Time
}

type registryEntry struct {
	slot  *domain.ConnectionSlot
	store *snapshot.Store
	queue *InputQueue
}

// Registry owns every live ConnectionSlot together with its snapshot store
// and input queue. Ids come from a monotonic counter and are never reused.
type Registry struct {
	cfg     RegistryConfig
	logger  logger.Logger
	metrics *metric.Registry

	mu      sync.RWMutex
	entries map[domain.SlotID]*registryEntry
	order   []domain.SlotID // live ids in registration order
	nextID  domain.SlotID
	mainID  domain.SlotID
	hasMain bool
	caps    domain.Capabilities

	hooks []RemoveHook
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.SnapshotCapacity <= 0 {
		cfg.SnapshotCapacity = snapshot.DefaultCapacity
	}
	if cfg.InputQueueSize <= 0 {
		cfg.InputQueueSize = DefaultInputQueueSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metric.NewRegistry()
	}
	return &Registry{
		cfg:     cfg,
		logger:  logger.OrDefault(cfg.Logger),
		metrics: cfg.Metrics,
		entries: make(map[domain.SlotID]*registryEntry),
	}
}

// OnRemove registers a hook run after every removal, outside the registry lock.
func (r *Registry) OnRemove(h RemoveHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, h)
}

// ============================================================================
// Registration
// ============================================================================

// OpenMain creates the main slot in Connecting. Only one main slot may be live.
func (r *Registry) OpenMain(serverAddress string, protocolVersion uint32) (domain.SlotID, error) {
	if serverAddress == "" {
		return 0, domain.ErrInvalidArgument.WithDetails("server address is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.hasMain {
		return 0, domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("main slot %s already live", r.mainID))
	}

	e := r.addLocked(serverAddress, protocolVersion)
	e.slot.Main = true
	r.mainID = e.slot.ID
	r.hasMain = true
	r.caps = domain.Capabilities{}

	r.metrics.SlotRegistrations.WithLabelValues("main").Inc()
	r.logger.Info("main slot opened",
		"slot_id", uint32(e.slot.ID),
		"server", serverAddress,
		"protocol_version", protocolVersion,
	)
	return e.slot.ID, nil
}

// Register creates a dummy slot in Connecting.
//
// It fails with ConnectionRefused while the main slot is not Online, with
// UnsupportedByServer when the server allows no dummies, and with
// CapacityExceeded when the server's dummy limit is reached. A failed
// Register leaves the registry unchanged.
func (r *Registry) Register(serverAddress string, protocolVersion uint32) (domain.SlotID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.admitLocked(); err != nil {
		r.metrics.SlotRegistrations.WithLabelValues(domain.GetErrorCode(err)).Inc()
		r.logger.Debug("dummy registration rejected", "error", err, "live", len(r.order))
		return 0, err
	}

	e := r.addLocked(serverAddress, protocolVersion)
	r.metrics.SlotRegistrations.WithLabelValues("ok").Inc()
	r.logger.Info("dummy slot registered",
		"slot_id", uint32(e.slot.ID),
		"live", len(r.order),
		"limit", r.caps.DummyLimit(),
	)
	return e.slot.ID, nil
}

func (r *Registry) admitLocked() error {
	if !r.hasMain {
		return domain.ErrConnectionRefused.WithDetails("no main slot")
	}
	main := r.entries[r.mainID].slot
	if main.State != domain.StateOnline {
		return domain.ErrConnectionRefused.WithDetails(fmt.Sprintf("main slot is %s", main.State))
	}
	limit := r.caps.DummyLimit()
	if limit == 0 {
		return domain.ErrUnsupportedByServer
	}
	if len(r.order)+1 > limit+1 {
		return domain.ErrCapacityExceeded.WithDetails(fmt.Sprintf("%d dummies allowed", limit))
	}
	return nil
}

func (r *Registry) addLocked(serverAddress string, protocolVersion uint32) *registryEntry {
	id := r.nextID
	r.nextID++

	e := &registryEntry{
		slot: domain.NewConnectionSlot(id, serverAddress, protocolVersion, r.cfg.Now()),
		store: snapshot.New(
			snapshot.WithCapacity(r.cfg.SnapshotCapacity),
			snapshot.WithLogger(r.logger.With("slot_id", uint32(id))),
		),
		queue: NewInputQueue(r.cfg.InputQueueSize),
	}
	r.entries[id] = e
	r.order = append(r.order, id)
	r.metrics.SlotsLive.Set(float64(len(r.order)))
	return e
}

// ============================================================================
// Removal and state changes
// ============================================================================

// Unregister disconnects a live slot and releases its store and queue.
// Unregistering the main slot removes every dummy first.
func (r *Registry) Unregister(id domain.SlotID, reason RemoveReason) error {
	return r.remove(id, domain.StateDisconnected, reason)
}

// Fail moves a live slot to Error and removes it.
func (r *Registry) Fail(id domain.SlotID, reason RemoveReason) error {
	return r.remove(id, domain.StateError, reason)
}

// Transition validates and applies a state change. Moving to Disconnected
// or Error removes the slot.
func (r *Registry) Transition(id domain.SlotID, to domain.SlotState) error {
	switch to {
	case domain.StateDisconnected:
		return r.remove(id, to, ReasonServerDisconnect)
	case domain.StateError:
		return r.remove(id, to, ReasonError)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return domain.ErrInvalidSlot.WithDetails(id.String())
	}
	from := e.slot.State
	if err := e.slot.Transition(to); err != nil {
		return err
	}
	r.logger.Debug("slot state changed",
		"slot_id", uint32(id),
		"from", from.String(),
		"to", to.String(),
	)
	return nil
}

type removed struct {
	id     domain.SlotID
	main   bool
	reason RemoveReason
}

func (r *Registry) remove(id domain.SlotID, final domain.SlotState, reason RemoveReason) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return domain.ErrInvalidSlot.WithDetails(id.String())
	}

	var gone []removed
	if e.slot.Main {
		// Dummies go first, newest first, so hooks never see a dummy without a main.
		for i := len(r.order) - 1; i >= 0; i-- {
			if d := r.order[i]; d != id {
				r.detachLocked(d, domain.StateDisconnected, ReasonMainLost)
				gone = append(gone, removed{id: d, reason: ReasonMainLost})
			}
		}
	}
	r.detachLocked(id, final, reason)
	gone = append(gone, removed{id: id, main: e.slot.Main, reason: reason})
	hooks := slices.Clone(r.hooks)
	r.mu.Unlock()

	for _, g := range gone {
		for _, h := range hooks {
			h(g.id, g.main, g.reason)
		}
	}
	return nil
}

func (r *Registry) detachLocked(id domain.SlotID, final domain.SlotState, reason RemoveReason) {
	e := r.entries[id]
	if e.slot.State.Live() {
		_ = e.slot.Transition(final)
	}
	e.store.Release()
	e.queue.Close()

	delete(r.entries, id)
	if i := slices.Index(r.order, id); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}
	if e.slot.Main {
		r.hasMain = false
	}

	r.metrics.SlotsLive.Set(float64(len(r.order)))
	r.metrics.SlotRemovals.WithLabelValues(string(reason)).Inc()
	r.logger.Info("slot removed",
		"slot_id", uint32(id),
		"main", e.slot.Main,
		"state", e.slot.State.String(),
		"reason", string(reason),
	)
}

// SetCapabilities records what the server advertised on the main slot.
func (r *Registry) SetCapabilities(caps domain.Capabilities) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.caps = caps
	if r.hasMain {
		r.entries[r.mainID].slot.Capabilities = caps
	}
	r.logger.Info("server capabilities negotiated",
		"dummy_allowed", caps.DummyAllowed,
		"max_dummies", caps.MaxDummies,
		"extended", caps.Extended,
		"dummy_limit", caps.DummyLimit(),
	)
}

// Capabilities returns the negotiated capabilities.
func (r *Registry) Capabilities() domain.Capabilities {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.caps
}

// Ack records a server acknowledgment on a slot.
func (r *Registry) Ack(id domain.SlotID, tick domain.Tick) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return false, domain.ErrInvalidSlot.WithDetails(id.String())
	}
	return e.slot.Ack(tick, r.cfg.Now()), nil
}

// Overdue lists live slots that have been silent longer than deadline.
func (r *Registry) Overdue(now time.Time, deadline time.Duration) []domain.SlotID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.SlotID
	for _, id := range r.order {
		if r.entries[id].slot.AckOverdue(now, deadline) {
			out = append(out, id)
		}
	}
	return out
}

// ============================================================================
// Accessors
// ============================================================================

// Live returns live slot ids in registration order.
func (r *Registry) Live() []domain.SlotID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// IsLive reports whether id names a live slot.
func (r *Registry) IsLive(id domain.SlotID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[id]
	return ok
}

// Count returns the number of live slots, main included.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Main returns the main slot id.
func (r *Registry) Main() (domain.SlotID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mainID, r.hasMain
}

// MainOnline reports whether the main slot has completed its handshake.
func (r *Registry) MainOnline() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hasMain && r.entries[r.mainID].slot.State == domain.StateOnline
}

// Dummies returns live dummy ids in registration order.
func (r *Registry) Dummies() []domain.SlotID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.SlotID, 0, len(r.order))
	for _, id := range r.order {
		if !r.hasMain || id != r.mainID {
			out = append(out, id)
		}
	}
	return out
}

// Slot returns a copy of a live slot.
func (r *Registry) Slot(id domain.SlotID) (*domain.ConnectionSlot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, domain.ErrInvalidSlot.WithDetails(id.String())
	}
	return e.slot.Clone(), nil
}

// Slots returns copies of every live slot in registration order.
func (r *Registry) Slots() []*domain.ConnectionSlot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.ConnectionSlot, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id].slot.Clone())
	}
	return out
}

// Store returns the snapshot store of a live slot.
func (r *Registry) Store(id domain.SlotID) (*snapshot.Store, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, domain.ErrInvalidSlot.WithDetails(id.String())
	}
	return e.store, nil
}

// Queue returns the input queue of a live slot.
func (r *Registry) Queue(id domain.SlotID) (*InputQueue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, domain.ErrInvalidSlot.WithDetails(id.String())
	}
	return e.queue, nil
}

// SlotStats implements metric.SlotStatsSource.
func (r *Registry) SlotStats() []metric.SlotStat {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]metric.SlotStat, 0, len(r.order))
	for _, id := range r.order {
		e := r.entries[id]
		out = append(out, metric.SlotStat{
			SlotID:          uint32(id),
			State:           e.slot.State.String(),
			StoredSnapshots: e.store.Len(),
			QueuedFrames:    e.queue.Len(),
			AckedTick:       int64(e.slot.AckedTick),
		})
	}
	return out
}
