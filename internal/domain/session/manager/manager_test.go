// SPDX-License-Identifier: MIT

package manager

import (
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesaops/mesad/internal/domain/session/model"
	"github.com/mesaops/mesad/internal/eventbus"
)

// fakeClock is a mutable time source shared between manager and test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestManager(t *testing.T, clock *fakeClock) (*Manager, *eventbus.Bus) {
	t.Helper()
	bus := eventbus.New(eventbus.WithClock(clock.Now))
	mgr := New(bus, Config{Location: time.UTC}, WithClock(clock.Now))
	return mgr, bus
}

func TestCreateSetsLifetimeInvariant(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 8, 31, 18, 0, 0, 0, time.UTC))
	mgr, bus := newTestManager(t, clock)

	s := mgr.Create("table-5", 5)

	require.NotEmpty(t, s.ID)
	assert.Equal(t, "table-5", s.TableID)
	assert.Equal(t, 5, s.TableNumber)
	assert.Equal(t, model.StatusActive, s.Status)
	assert.True(t, s.ExpiresAt.After(s.CreatedAt), "expiresAt must exceed createdAt")
	assert.Equal(t, DefaultDuration, s.ExpiresAt.Sub(s.CreatedAt))

	hist := bus.History(model.TopicSessionCreated)
	require.Len(t, hist, 1)
	payload, ok := hist[0].Payload.(model.Session)
	require.True(t, ok)
	if diff := cmp.Diff(s, payload); diff != "" {
		t.Fatalf("published snapshot differs from returned session (-want +got):\n%s", diff)
	}
}

func TestGetReturnsSnapshotNotHandle(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 8, 31, 18, 0, 0, 0, time.UTC))
	mgr, _ := newTestManager(t, clock)

	created := mgr.Create("t1", 1)
	got, err := mgr.Get(created.ID)
	require.NoError(t, err)

	got.Status = model.StatusClosed // mutating the copy must not leak back

	again, err := mgr.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, again.Status)
}

func TestGetUnknownIDFails(t *testing.T) {
	clock := newFakeClock(time.Now())
	mgr, _ := newTestManager(t, clock)

	_, err := mgr.Get("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLazyExpiryPublishesExactlyOnce(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 8, 31, 18, 0, 0, 0, time.UTC))
	mgr, bus := newTestManager(t, clock)

	s := mgr.Create("t1", 1)
	clock.Advance(DefaultDuration + time.Minute)

	got, err := mgr.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExpired, got.Status)
	require.Len(t, bus.History(model.TopicSessionExpired), 1)

	// Second read must not re-publish.
	got, err = mgr.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExpired, got.Status)
	assert.Len(t, bus.History(model.TopicSessionExpired), 1)
}

func TestExtendPushesExpiryForward(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 8, 31, 18, 0, 0, 0, time.UTC))
	mgr, bus := newTestManager(t, clock)

	s := mgr.Create("t1", 1)
	extended, err := mgr.Extend(s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ExpiresAt.Add(DefaultExtension), extended.ExpiresAt)
	assert.True(t, extended.ExpiresAt.After(extended.CreatedAt))
	require.Len(t, bus.History(model.TopicSessionExtended), 1)
}

func TestExtendOnClosedFailsWithoutMutation(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 8, 31, 18, 0, 0, 0, time.UTC))
	mgr, _ := newTestManager(t, clock)

	s := mgr.Create("t1", 1)
	closed, err := mgr.Close(s.ID)
	require.NoError(t, err)

	_, err = mgr.Extend(s.ID)
	require.ErrorIs(t, err, ErrTerminal)

	got, err := mgr.Get(s.ID)
	require.NoError(t, err)
	assert.True(t, got.ExpiresAt.Equal(closed.ExpiresAt), "expiresAt must not move on failed extend")
	assert.Equal(t, model.StatusClosed, got.Status)
}

func TestExtendOnLazilyExpiredFails(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 8, 31, 18, 0, 0, 0, time.UTC))
	mgr, bus := newTestManager(t, clock)

	s := mgr.Create("t1", 1)
	clock.Advance(DefaultDuration + time.Second)

	_, err := mgr.Extend(s.ID)
	require.ErrorIs(t, err, ErrTerminal)
	// The failed extend itself performed the lazy transition and published it.
	assert.Len(t, bus.History(model.TopicSessionExpired), 1)
}

func TestCloseIsIdempotentFailure(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 8, 31, 18, 0, 0, 0, time.UTC))
	mgr, bus := newTestManager(t, clock)

	s := mgr.Create("t1", 1)
	first, err := mgr.Close(s.ID)
	require.NoError(t, err)

	_, err = mgr.Close(s.ID)
	require.ErrorIs(t, err, ErrTerminal)

	got, err := mgr.Get(s.ID)
	require.NoError(t, err)
	assert.True(t, got.ExpiresAt.Equal(first.ExpiresAt))
	assert.Len(t, bus.History(model.TopicSessionClosed), 1)
}

func TestListPreservesInsertionOrder(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 8, 31, 18, 0, 0, 0, time.UTC))
	mgr, _ := newTestManager(t, clock)

	a := mgr.Create("t1", 1)
	clock.Advance(time.Minute)
	b := mgr.Create("t2", 2)
	clock.Advance(time.Minute)
	c := mgr.Create("t3", 3)

	_, err := mgr.Close(b.ID)
	require.NoError(t, err)

	list := mgr.List()
	require.Len(t, list, 3)
	assert.Equal(t, []string{a.ID, b.ID, c.ID}, []string{list[0].ID, list[1].ID, list[2].ID})
	assert.Equal(t, model.StatusClosed, list[1].Status)
}

func TestStatsScenario(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 8, 31, 18, 0, 0, 0, time.UTC))
	mgr, _ := newTestManager(t, clock)

	before := mgr.Stats()

	s := mgr.Create("table-5", 5)
	after := mgr.Stats()
	assert.Equal(t, before.TotalActive+1, after.TotalActive)
	assert.Equal(t, before.TodayTotal+1, after.TodayTotal)

	_, err := mgr.Close(s.ID)
	require.NoError(t, err)

	final := mgr.Stats()
	assert.Equal(t, before.TotalActive, final.TotalActive)
	assert.Equal(t, after.TodayTotal, final.TodayTotal, "todayTotal counts creations, not closures")
}

func TestStatsExcludesUnsweptExpired(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 8, 31, 18, 0, 0, 0, time.UTC))
	mgr, _ := newTestManager(t, clock)

	mgr.Create("t1", 1)
	clock.Advance(DefaultDuration + time.Minute)

	// No read touched the session, status is still nominally active.
	st := mgr.Stats()
	assert.Zero(t, st.TotalActive, "stats must evaluate freshness, not trust the active flag")
	assert.Equal(t, 1, st.TodayTotal)
}

func TestStatsTodayRollsOverAtMidnight(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 8, 31, 23, 50, 0, 0, time.UTC))
	mgr, _ := newTestManager(t, clock)

	mgr.Create("t1", 1)
	assert.Equal(t, 1, mgr.Stats().TodayTotal)

	clock.Advance(20 * time.Minute) // past midnight
	assert.Zero(t, mgr.Stats().TodayTotal)
}

func TestConcurrentExtendsBothApply(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 8, 31, 18, 0, 0, 0, time.UTC))
	mgr, _ := newTestManager(t, clock)

	s := mgr.Create("t1", 1)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := mgr.Extend(s.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := mgr.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ExpiresAt.Add(2*DefaultExtension), got.ExpiresAt,
		"no extend may be lost under concurrency")
}

func TestConcurrentCloseOnlyOneSucceeds(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 8, 31, 18, 0, 0, 0, time.UTC))
	mgr, _ := newTestManager(t, clock)

	s := mgr.Create("t1", 1)

	const n = 8
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := mgr.Close(s.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrTerminal)
		}
	}
	assert.Equal(t, 1, succeeded)
}

func TestManagerWithoutBusDoesNotPanic(t *testing.T) {
	clock := newFakeClock(time.Now())
	mgr := New(nil, Config{}, WithClock(clock.Now))
	s := mgr.Create("t1", 1)
	_, err := mgr.Close(s.ID)
	require.NoError(t, err)
}
