package archive

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/skio-race/internal/metrics"
)

type memStore struct {
	mu   sync.Mutex
	recs []RaceRecord
	fail bool
}

func (s *memStore) save(_ context.Context, rec *RaceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("db down")
	}
	s.recs = append(s.recs, *rec)
	return nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}

func sampleRace() Race {
	return Race{
		RoomCode: "ABC123", MapSeed: 1, LegSeed: 2, CheckpointCount: 3,
		StartedAt: 1_700_000_000_000, FinishedAt: 1_700_000_060_000,
		Results: []Result{
			{PlayerID: "p1", Name: "Ada", Rank: 1, FinishedMs: 56000, Splits: []int64{1, 2, 56000}},
			{PlayerID: "p2", Name: "Bob", Rank: 2, Withdrawn: true},
		},
	}
}

func TestToRecord(t *testing.T) {
	rec := toRecord(sampleRace())
	require.Len(t, rec.Results, 2)
	assert.Equal(t, int64(1_700_000_000_000), rec.StartedAt.UnixMilli())
	assert.Equal(t, rec.ID, rec.Results[0].RaceID)
	require.NotNil(t, rec.Results[0].FinishedMs)
	assert.Equal(t, int64(56000), *rec.Results[0].FinishedMs)
	assert.Nil(t, rec.Results[1].FinishedMs, "withdrawals have no time")
	assert.NotEqual(t, rec.Results[0].ID, rec.Results[1].ID)
}

func TestWriter_StoresQueuedRaces(t *testing.T) {
	store := &memStore{}
	w := newWriter(store.save, zap.NewNop(), nil, 4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.True(t, w.Enqueue(sampleRace()))
	require.True(t, w.Enqueue(sampleRace()))
	require.Eventually(t, func() bool { return store.count() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("writer did not stop")
	}
}

func TestWriter_DropsWhenFull(t *testing.T) {
	var m metrics.Registry
	w := newWriter((&memStore{}).save, zap.NewNop(), &m, 1)

	assert.True(t, w.Enqueue(sampleRace()))
	assert.False(t, w.Enqueue(sampleRace()))
	assert.Equal(t, int64(1), m.Snapshot()["archive_dropped"])
}

func TestWriter_FlushesOnShutdown(t *testing.T) {
	store := &memStore{}
	w := newWriter(store.save, zap.NewNop(), nil, 4)
	w.Enqueue(sampleRace())
	w.Enqueue(sampleRace())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, w.Run(ctx))
	assert.Equal(t, 2, store.count())
}

func TestWriter_SaveErrorsAreLogged(t *testing.T) {
	store := &memStore{fail: true}
	w := newWriter(store.save, zap.NewNop(), nil, 4)
	w.Enqueue(sampleRace())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, w.Run(ctx))
	assert.Zero(t, store.count())
}
