// SPDX-License-Identifier: MIT

package eventbus

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mesaops/mesad/internal/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	metric := &dto.Metric{}
	require.NoError(t, c.Write(metric))
	return metric.GetCounter().GetValue()
}

func TestPublishAssignsContiguousSequences(t *testing.T) {
	b := New()

	for i := 0; i < 3; i++ {
		env, err := b.Publish("order.updated", map[string]int{"n": i})
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), env.Sequence)
		assert.Equal(t, "order.updated", env.Topic)
		assert.False(t, env.PublishedAt.IsZero())
	}

	// Sequences are per topic, not global.
	env, err := b.Publish("alert.created", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), env.Sequence)
}

func TestHistoryBoundedToMostRecentFifty(t *testing.T) {
	b := New()

	for n := 0; n < 60; n++ {
		_, err := b.Publish("order.updated", map[string]int{"n": n})
		require.NoError(t, err)
	}

	hist := b.History("order.updated")
	require.Len(t, hist, HistoryLimit)

	// Most recent 50, ascending, contiguous run.
	for i, env := range hist {
		assert.Equal(t, uint64(11+i), env.Sequence)
		payload := env.Payload.(map[string]int)
		assert.Equal(t, 10+i, payload["n"])
	}
}

func TestHistoryUnknownTopicIsEmptyNotNil(t *testing.T) {
	b := New()
	hist := b.History("never.published")
	require.NotNil(t, hist)
	assert.Empty(t, hist)
}

func TestHistoryReturnsCopy(t *testing.T) {
	b := New()
	_, err := b.Publish("order.updated", "a")
	require.NoError(t, err)

	hist := b.History("order.updated")
	hist[0].Payload = "tampered"

	again := b.History("order.updated")
	assert.Equal(t, "a", again[0].Payload)
}

func TestSubscribersInvokedInRegistrationOrder(t *testing.T) {
	b := New()

	var order []string
	b.Subscribe("session.created", func(Envelope) { order = append(order, "first") })
	b.Subscribe("session.created", func(Envelope) { order = append(order, "second") })
	b.Subscribe("session.created", func(Envelope) { order = append(order, "third") })

	_, err := b.Publish("session.created", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestUnsubscribeRemovesExactlyOneRegistration(t *testing.T) {
	b := New()

	var a, c int
	cancelA := b.Subscribe("session.created", func(Envelope) { a++ })
	b.Subscribe("session.created", func(Envelope) { c++ })

	_, err := b.Publish("session.created", nil)
	require.NoError(t, err)

	cancelA()
	cancelA() // idempotent

	_, err = b.Publish("session.created", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, a, "unsubscribed handler must not be invoked again")
	assert.Equal(t, 2, c, "co-subscriber keeps receiving")
}

func TestSubscribeDoesNotReplayHistory(t *testing.T) {
	b := New()
	_, err := b.Publish("alert.created", "early")
	require.NoError(t, err)

	var got []Envelope
	b.Subscribe("alert.created", func(e Envelope) { got = append(got, e) })
	assert.Empty(t, got, "subscription is live-only; replay goes through History")

	require.Len(t, b.History("alert.created"), 1)
}

func TestHandlerPanicIsIsolated(t *testing.T) {
	b := New()

	before := counterValue(t, metrics.BusHandlerPanicsTotal.WithLabelValues("session.created"))

	var survived bool
	b.Subscribe("session.created", func(Envelope) { panic("boom") })
	b.Subscribe("session.created", func(Envelope) { survived = true })

	env, err := b.Publish("session.created", nil)
	require.NoError(t, err)
	assert.True(t, survived, "panic in earlier handler must not stop fan-out")

	// History stays intact.
	hist := b.History("session.created")
	require.Len(t, hist, 1)
	assert.Equal(t, env.Sequence, hist[0].Sequence)

	after := counterValue(t, metrics.BusHandlerPanicsTotal.WithLabelValues("session.created"))
	assert.Greater(t, after, before)
}

func TestReentrantPublishSameTopicFailsFast(t *testing.T) {
	b := New()

	var reentrantErr error
	b.Subscribe("session.created", func(Envelope) {
		_, reentrantErr = b.Publish("session.created", "again")
	})

	_, err := b.Publish("session.created", "first")
	require.NoError(t, err)
	require.ErrorIs(t, reentrantErr, ErrReentrantPublish)

	// The rejected publish left no trace.
	require.Len(t, b.History("session.created"), 1)
}

func TestPublishDifferentTopicFromHandlerIsAllowed(t *testing.T) {
	b := New()

	b.Subscribe("session.created", func(e Envelope) {
		_, err := b.Publish("audit.trail", e.Sequence)
		assert.NoError(t, err)
	})

	_, err := b.Publish("session.created", nil)
	require.NoError(t, err)
	require.Len(t, b.History("audit.trail"), 1)
}

func TestCrossTopicPublishCycleFailsFastInsteadOfDeadlocking(t *testing.T) {
	b := New()

	var cycleErr error
	b.Subscribe("a", func(Envelope) {
		_, _ = b.Publish("b", nil)
	})
	b.Subscribe("b", func(Envelope) {
		_, cycleErr = b.Publish("a", nil)
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := b.Publish("a", nil)
		assert.NoError(t, err)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish cycle deadlocked")
	}
	require.ErrorIs(t, cycleErr, ErrReentrantPublish)
}

func TestConcurrentPublishersObserveTotalOrderPerTopic(t *testing.T) {
	b := New()

	var mu sync.Mutex
	var seen []uint64
	b.Subscribe("order.updated", func(e Envelope) {
		mu.Lock()
		seen = append(seen, e.Sequence)
		mu.Unlock()
	})

	const workers = 8
	const perWorker = 25

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				_, err := b.Publish("order.updated", fmt.Sprintf("%d-%d", w, i))
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	require.Len(t, seen, workers*perWorker)
	for i, seq := range seen {
		require.Equal(t, uint64(i+1), seq, "handler observed out-of-order envelope")
	}

	hist := b.History("order.updated")
	require.Len(t, hist, HistoryLimit)
	assert.Equal(t, uint64(workers*perWorker), hist[len(hist)-1].Sequence)
}

func TestDrainAllHistoryIsTopicTaggedAndStable(t *testing.T) {
	b := New()

	_, _ = b.Publish("beta", 1)
	_, _ = b.Publish("alpha", 1)
	_, _ = b.Publish("beta", 2)

	all := b.DrainAllHistory()
	require.Len(t, all, 3)
	assert.Equal(t, "alpha", all[0].Topic)
	assert.Equal(t, "beta", all[1].Topic)
	assert.Equal(t, uint64(1), all[1].Sequence)
	assert.Equal(t, uint64(2), all[2].Sequence)

	// Drain does not clear.
	assert.Len(t, b.DrainAllHistory(), 3)
	assert.Equal(t, []string{"alpha", "beta"}, b.Topics())
}

func TestWithClockControlsPublishedAt(t *testing.T) {
	frozen := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	b := New(WithClock(func() time.Time { return frozen }))

	env, err := b.Publish("session.created", nil)
	require.NoError(t, err)
	assert.True(t, env.PublishedAt.Equal(frozen))
}
