// Package store owns the shared poll cycle against the telemetry gateway.
// All consumers (HTTP handlers, WebSocket feed, alert dispatcher) read from
// one store instead of each running its own fetch loop, so the upstream sees
// one request per tick regardless of how many dashboard views are open.
package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"chamber-monitor/internal/config"
	"chamber-monitor/internal/logging"
	"chamber-monitor/internal/models"
	"chamber-monitor/internal/rules"
	"chamber-monitor/internal/stats"
)

// Gateway is the upstream client surface the store polls. Satisfied by
// *tb.Client; tests stub it.
type Gateway interface {
	Latest(ctx context.Context) (models.Reading, error)
	History(ctx context.Context, window time.Duration, maxPoints int) ([]models.Sample, error)
}

// Notifier receives alerts that transitioned to firing. Satisfied by
// *dispatch.Service.
type Notifier interface {
	QueueTask(task models.Task)
}

// Update is one push to WebSocket subscribers.
type Update struct {
	Type      string          `json:"type"` // "telemetry" or "stats"
	Telemetry *Snapshot       `json:"telemetry,omitempty"`
	Alerts    []models.Alert  `json:"alerts,omitempty"`
	Stats     *models.Summary `json:"stats,omitempty"`
}

// Snapshot is the latest-values state as served to consumers.
type Snapshot struct {
	Reading   models.Reading `json:"reading"`
	Status    models.Status  `json:"status"`
	FetchedAt time.Time      `json:"fetched_at"`
	Err       error          `json:"-"`
}

// Store periodically polls the gateway and fans results out to subscribers.
type Store struct {
	gw       Gateway
	logger   *logging.Logger
	cfg      config.Config
	notifier Notifier

	now func() time.Time

	// single-flight guards: a tick is skipped while the previous fetch of
	// the same kind is still running
	latestBusy  atomic.Bool
	historyBusy atomic.Bool

	// sequence stamps so only the newest-issued fetch may apply its result
	latestSeq         atomic.Int64
	latestAppliedSeq  int64
	historySeq        atomic.Int64
	historyAppliedSeq int64

	mu         sync.RWMutex
	snapshot   Snapshot
	history    []models.Sample
	historyOK  bool
	historyErr error
	summary    models.Summary
	alerts     []models.Alert
	prevFiring map[string]models.Severity

	subMu sync.Mutex
	subs  map[chan Update]struct{}
}

// New constructs a Store around a gateway client.
func New(gw Gateway, logger *logging.Logger, cfg config.Config) *Store {
	return &Store{
		gw:     gw,
		logger: logger,
		cfg:    cfg,
		now:    time.Now,
		snapshot: Snapshot{
			Status: models.StatusUnknown,
		},
		prevFiring: map[string]models.Severity{},
		subs:       map[chan Update]struct{}{},
	}
}

// SetNotifier wires the alert dispatcher. Optional; nil disables fan-out.
func (s *Store) SetNotifier(n Notifier) {
	s.notifier = n
}

// Run fetches immediately, then repeats on fixed tickers until ctx is done.
// Tickers are stopped unconditionally on return.
func (s *Store) Run(ctx context.Context) {
	s.RefreshLatest(ctx)
	s.RefreshHistory(ctx)

	latestTicker := time.NewTicker(s.cfg.Poll.LatestInterval)
	historyTicker := time.NewTicker(s.cfg.Poll.HistoryInterval)
	defer latestTicker.Stop()
	defer historyTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Infof("poll store stopped")
			return
		case <-latestTicker.C:
			go s.RefreshLatest(ctx)
		case <-historyTicker.C:
			go s.RefreshHistory(ctx)
		}
	}
}

// RefreshLatest performs one latest-values fetch. At most one runs at a time;
// a call overlapping an in-flight fetch returns without doing anything.
func (s *Store) RefreshLatest(ctx context.Context) {
	if !s.latestBusy.CompareAndSwap(false, true) {
		return
	}
	defer s.latestBusy.Store(false)

	seq := s.latestSeq.Add(1)
	reading, err := s.gw.Latest(ctx)
	s.applyLatest(seq, reading, err)
}

// RefreshHistory performs one history fetch under the same overlap policy.
func (s *Store) RefreshHistory(ctx context.Context) {
	if !s.historyBusy.CompareAndSwap(false, true) {
		return
	}
	defer s.historyBusy.Store(false)

	seq := s.historySeq.Add(1)
	samples, err := s.gw.History(ctx, s.cfg.Poll.HistoryWindow, s.cfg.Poll.HistoryMaxPts)
	if err != nil {
		s.logger.Warnf("history fetch failed: %v", err)
		s.mu.Lock()
		s.historyErr = err
		s.mu.Unlock()
		return
	}
	s.applyHistory(seq, samples)
}

func (s *Store) applyLatest(seq int64, reading models.Reading, err error) {
	now := s.now()

	s.mu.Lock()
	if seq < s.latestAppliedSeq {
		// A newer fetch already applied; discard this stale result.
		s.mu.Unlock()
		return
	}
	s.latestAppliedSeq = seq

	if err != nil {
		s.logger.Warnf("latest fetch failed: %v", err)
		// Previous values are retained; only status and error change. A
		// store that never fetched successfully stays UNKNOWN.
		if !s.snapshot.FetchedAt.IsZero() {
			s.snapshot.Status = models.StatusOffline
		}
		s.snapshot.Err = err
	} else {
		s.snapshot.Reading = reading
		s.snapshot.Status = deriveStatus(reading, now)
		s.snapshot.FetchedAt = now
		s.snapshot.Err = nil
	}

	s.alerts = rules.Evaluate(s.snapshot.Reading, s.snapshot.Status, now)
	fired := s.firingEdges(s.alerts)
	snap := s.snapshot
	alerts := append([]models.Alert(nil), s.alerts...)
	s.mu.Unlock()

	for _, a := range fired {
		s.dispatch(a)
	}
	s.broadcast(Update{Type: "telemetry", Telemetry: &snap, Alerts: alerts})
}

func (s *Store) applyHistory(seq int64, samples []models.Sample) {
	s.mu.Lock()
	if seq < s.historyAppliedSeq {
		s.mu.Unlock()
		return
	}
	s.historyAppliedSeq = seq
	s.history = samples
	s.historyOK = true
	s.historyErr = nil
	s.summary = stats.Compute(samples)
	summary := s.summary
	s.mu.Unlock()

	s.broadcast(Update{Type: "stats", Stats: &summary})
}

// firingEdges returns alerts newly firing (or escalated) since the previous
// evaluation. The API alert feed stays un-deduplicated; edge detection only
// gates the outbound notification channels. Caller holds s.mu.
func (s *Store) firingEdges(current []models.Alert) []models.Alert {
	var fired []models.Alert
	next := make(map[string]models.Severity, len(current))
	for _, a := range current {
		next[a.ID] = a.Severity
		if prev, ok := s.prevFiring[a.ID]; !ok || a.Severity > prev {
			fired = append(fired, a)
		}
	}
	s.prevFiring = next
	return fired
}

func (s *Store) dispatch(a models.Alert) {
	if s.notifier == nil {
		return
	}
	s.notifier.QueueTask(models.Task{
		RequestID:  uuid.New().String(),
		RuleID:     a.ID,
		Title:      a.Title,
		Severity:   a.Severity,
		ValueText:  a.ValueText,
		Suggestion: a.Suggestion,
		TS:         a.TS,
	})
}

func deriveStatus(r models.Reading, now time.Time) models.Status {
	if r.TS == nil {
		return models.StatusOffline
	}
	if now.UnixMilli()-*r.TS > rules.StaleAfter.Milliseconds() {
		return models.StatusOffline
	}
	return models.StatusOnline
}

// Snapshot returns the latest-values state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// History returns the current merged history window, whether any history
// fetch has succeeded yet, and the most recent fetch error.
func (s *Store) History() ([]models.Sample, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Sample(nil), s.history...), s.historyOK, s.historyErr
}

// Stats returns the current statistics summary.
func (s *Store) Stats() models.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summary
}

// Alerts returns the alerts from the most recent evaluation.
func (s *Store) Alerts() []models.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Alert(nil), s.alerts...)
}

// Subscribe registers an update channel. The returned cancel func must be
// called on consumer teardown; it removes and closes the channel. Slow
// consumers lose updates instead of blocking the poll cycle.
func (s *Store) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, 8)
	s.subMu.Lock()
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()

	cancel := func() {
		s.subMu.Lock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
		s.subMu.Unlock()
	}
	return ch, cancel
}

func (s *Store) broadcast(u Update) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- u:
		default:
			// drop for slow subscriber
		}
	}
}
