package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chamber-monitor/internal/config"
	"chamber-monitor/internal/logging"
	"chamber-monitor/internal/models"
)

type stubGateway struct {
	mu        sync.Mutex
	reading   models.Reading
	latestErr error
	samples   []models.Sample
	histErr   error

	latestCalls  atomic.Int32
	historyCalls atomic.Int32
	block        chan struct{} // when set, Latest blocks until closed
}

func (g *stubGateway) Latest(ctx context.Context) (models.Reading, error) {
	g.latestCalls.Add(1)
	if g.block != nil {
		<-g.block
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reading, g.latestErr
}

func (g *stubGateway) History(ctx context.Context, window time.Duration, maxPoints int) ([]models.Sample, error) {
	g.historyCalls.Add(1)
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.samples, g.histErr
}

func (g *stubGateway) set(reading models.Reading, err error) {
	g.mu.Lock()
	g.reading = reading
	g.latestErr = err
	g.mu.Unlock()
}

type stubNotifier struct {
	mu    sync.Mutex
	tasks []models.Task
}

func (n *stubNotifier) QueueTask(task models.Task) {
	n.mu.Lock()
	n.tasks = append(n.tasks, task)
	n.mu.Unlock()
}

func (n *stubNotifier) taskIDs() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var ids []string
	for _, t := range n.tasks {
		ids = append(ids, t.RuleID)
	}
	return ids
}

func testCfg() config.Config {
	var cfg config.Config
	cfg.Poll.LatestInterval = 5 * time.Second
	cfg.Poll.HistoryInterval = 15 * time.Second
	cfg.Poll.HistoryWindow = 24 * time.Hour
	cfg.Poll.HistoryMaxPts = 1000
	return cfg
}

func freshReading(now time.Time, temp, hum float64) models.Reading {
	ts := now.UnixMilli() - 1000
	return models.Reading{Temperature: &temp, Humidity: &hum, TS: &ts}
}

func newTestStore(gw *stubGateway) *Store {
	s := New(gw, logging.Discard(), testCfg())
	s.now = func() time.Time { return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestRefreshLatestAppliesSnapshot(t *testing.T) {
	gw := &stubGateway{}
	s := newTestStore(gw)
	gw.set(freshReading(s.now(), 25, 80), nil)

	s.RefreshLatest(context.Background())

	snap := s.Snapshot()
	if snap.FetchedAt.IsZero() {
		t.Fatal("snapshot not applied")
	}
	if snap.Status != models.StatusOnline {
		t.Fatalf("expected ONLINE, got %s", snap.Status)
	}
	if snap.Reading.Temperature == nil || *snap.Reading.Temperature != 25 {
		t.Fatalf("reading not applied: %+v", snap.Reading)
	}
}

func TestStatusUnknownBeforeFirstSuccess(t *testing.T) {
	gw := &stubGateway{latestErr: errors.New("boom")}
	s := newTestStore(gw)

	if got := s.Snapshot().Status; got != models.StatusUnknown {
		t.Fatalf("expected UNKNOWN before first fetch, got %s", got)
	}

	s.RefreshLatest(context.Background())
	snap := s.Snapshot()
	if snap.Status != models.StatusUnknown {
		t.Fatalf("expected UNKNOWN before first success, got %s", snap.Status)
	}
	if snap.Err == nil {
		t.Fatal("fetch error not recorded")
	}
}

func TestFailureRetainsPreviousValues(t *testing.T) {
	gw := &stubGateway{}
	s := newTestStore(gw)
	gw.set(freshReading(s.now(), 25, 80), nil)
	s.RefreshLatest(context.Background())

	gw.set(models.Reading{}, errors.New("upstream down"))
	s.RefreshLatest(context.Background())

	snap := s.Snapshot()
	if snap.Status != models.StatusOffline {
		t.Fatalf("expected OFFLINE after failed poll, got %s", snap.Status)
	}
	if snap.Reading.Temperature == nil || *snap.Reading.Temperature != 25 {
		t.Fatalf("previous values must be retained, got %+v", snap.Reading)
	}
}

func TestStaleReadingIsOffline(t *testing.T) {
	gw := &stubGateway{}
	s := newTestStore(gw)
	stale := s.now().Add(-3 * time.Minute).UnixMilli()
	temp, hum := 25.0, 80.0
	gw.set(models.Reading{Temperature: &temp, Humidity: &hum, TS: &stale}, nil)

	s.RefreshLatest(context.Background())
	if got := s.Snapshot().Status; got != models.StatusOffline {
		t.Fatalf("expected OFFLINE for stale reading, got %s", got)
	}
	alerts := s.Alerts()
	if len(alerts) != 1 || alerts[0].ID != "gateway-offline" {
		t.Fatalf("expected single offline alert, got %+v", alerts)
	}
}

func TestSingleFlight(t *testing.T) {
	gw := &stubGateway{block: make(chan struct{})}
	s := newTestStore(gw)
	gw.set(freshReading(s.now(), 25, 80), nil)

	done := make(chan struct{})
	go func() {
		s.RefreshLatest(context.Background())
		close(done)
	}()

	// Wait for the first fetch to be in flight, then issue an overlapping
	// refresh: it must return without a second gateway call.
	deadline := time.After(2 * time.Second)
	for gw.latestCalls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("first fetch never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	s.RefreshLatest(context.Background())
	if got := gw.latestCalls.Load(); got != 1 {
		t.Fatalf("overlapping refresh reached the gateway: %d calls", got)
	}

	close(gw.block)
	<-done
}

func TestFiringEdgesNotifyOnce(t *testing.T) {
	gw := &stubGateway{}
	s := newTestStore(gw)
	n := &stubNotifier{}
	s.SetNotifier(n)

	// WARN temp-high fires on the first cycle only.
	gw.set(freshReading(s.now(), 29, 80), nil)
	s.RefreshLatest(context.Background())
	s.RefreshLatest(context.Background())
	if ids := n.taskIDs(); len(ids) != 1 || ids[0] != "temp-high" {
		t.Fatalf("expected one temp-high task, got %v", ids)
	}

	// Escalation to CRIT fires again.
	gw.set(freshReading(s.now(), 31, 80), nil)
	s.RefreshLatest(context.Background())
	if ids := n.taskIDs(); len(ids) != 2 {
		t.Fatalf("expected second task on escalation, got %v", ids)
	}

	// Recovery then re-fire notifies again.
	gw.set(freshReading(s.now(), 25, 80), nil)
	s.RefreshLatest(context.Background())
	gw.set(freshReading(s.now(), 29, 80), nil)
	s.RefreshLatest(context.Background())
	if ids := n.taskIDs(); len(ids) != 3 {
		t.Fatalf("expected third task after recovery and re-fire, got %v", ids)
	}
}

func TestHistoryAndStats(t *testing.T) {
	gw := &stubGateway{}
	s := newTestStore(gw)
	temp, hum := 25.0, 80.0
	gw.mu.Lock()
	gw.samples = []models.Sample{
		{TS: 1, Temperature: &temp, Humidity: &hum},
		{TS: 2, Temperature: &temp, Humidity: &hum},
	}
	gw.mu.Unlock()

	s.RefreshHistory(context.Background())

	samples, ok, err := s.History()
	if !ok || err != nil {
		t.Fatalf("history not applied: ok=%v err=%v", ok, err)
	}
	if len(samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}
	sum := s.Stats()
	if sum.IdealPct == nil || *sum.IdealPct != 100 {
		t.Fatalf("stats not recomputed: %+v", sum)
	}
}

func TestHistoryErrorRecorded(t *testing.T) {
	gw := &stubGateway{histErr: errors.New("upstream down")}
	s := newTestStore(gw)

	s.RefreshHistory(context.Background())
	_, ok, err := s.History()
	if ok {
		t.Fatal("history marked ok after failure")
	}
	if err == nil {
		t.Fatal("history error not recorded")
	}
}

func TestSubscribeReceivesUpdatesAndCloses(t *testing.T) {
	gw := &stubGateway{}
	s := newTestStore(gw)
	gw.set(freshReading(s.now(), 25, 80), nil)

	updates, cancel := s.Subscribe()
	s.RefreshLatest(context.Background())

	select {
	case u := <-updates:
		if u.Type != "telemetry" || u.Telemetry == nil {
			t.Fatalf("unexpected update: %+v", u)
		}
	case <-time.After(time.Second):
		t.Fatal("no update received")
	}

	cancel()
	if _, open := <-updates; open {
		t.Fatal("channel not closed after cancel")
	}

	// Broadcast after teardown must not panic or block.
	s.RefreshLatest(context.Background())
}
