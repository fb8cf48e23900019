package projector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"standings/internal/standings"
	"standings/pkg/cache"
	"standings/pkg/changestream"
	"standings/pkg/consumer"
	"standings/pkg/logger"
	"standings/pkg/result"
	"standings/pkg/retry"
	"standings/pkg/snapshot"
	"standings/pkg/store"
	"standings/pkg/worker"
)

type MockConsumer struct{ mock.Mock }

func (m *MockConsumer) Consume(ctx context.Context) (<-chan consumer.Message, <-chan error) {
	args := m.Called(ctx)
	return args.Get(0).(<-chan consumer.Message), args.Get(1).(<-chan error)
}

func (m *MockConsumer) Commit(ctx context.Context, msgs ...consumer.Message) error {
	return m.Called(ctx, msgs).Error(0)
}

func (m *MockConsumer) Close() error { return m.Called().Error(0) }

type MockStore struct{ mock.Mock }

func (m *MockStore) GetEvent(ctx context.Context, id string) (store.Event, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(store.Event), args.Error(1)
}

func (m *MockStore) ListSchedule(ctx context.Context, groupID string) ([]store.ScheduledMatch, error) {
	args := m.Called(ctx, groupID)
	s, _ := args.Get(0).([]store.ScheduledMatch)
	return s, args.Error(1)
}

func (m *MockStore) FindMatches(ctx context.Context, ids []string) ([]result.Match, error) {
	args := m.Called(ctx, ids)
	ms, _ := args.Get(0).([]result.Match)
	return ms, args.Error(1)
}

func (m *MockStore) UpsertMatch(ctx context.Context, match result.Match) error {
	return m.Called(ctx, match).Error(0)
}

type MockWriter struct{ mock.Mock }

func (m *MockWriter) Write(ctx context.Context, groupIDs []string, rows []snapshot.Row) error {
	return m.Called(ctx, groupIDs, rows).Error(0)
}

func (m *MockWriter) Close() error { return m.Called().Error(0) }

type MockFlusher struct{ mock.Mock }

func (m *MockFlusher) Flush(ctx context.Context, groupIDs []string) error {
	return m.Called(ctx, groupIDs).Error(0)
}

func newStandings(st store.Store) (*standings.Service, *cache.Cache) {
	c := cache.New(cache.NewMemory(), cache.TTLs{
		cache.ClassSchedule: time.Minute,
		cache.ClassMatch:    time.Minute,
	}, logger.Nop())
	return standings.NewService(logger.Nop(), st, c), c
}

func message(t *testing.T, change changestream.ResultChange, offset int64) consumer.Message {
	t.Helper()
	data, err := json.Marshal(change)
	require.NoError(t, err)
	return consumer.Message{Key: []byte(change.GroupID), Value: data, Offset: offset}
}

func TestHandleMessageInvalidatesAndSubmits(t *testing.T) {
	ctx := context.Background()
	svc, c := newStandings(new(MockStore))
	require.NoError(t, c.Set(ctx, cache.ClassMatch, "m1", result.Match{ID: "m1"}))
	require.NoError(t, c.Set(ctx, cache.ClassSchedule, "g-a", []store.ScheduledMatch{{ID: "m1"}}))

	mc := new(MockConsumer)
	mf := new(MockFlusher)
	mf.On("Flush", mock.Anything, []string{"g-a"}).Return(nil).Once()
	mc.On("Commit", mock.Anything, mock.Anything).Return(nil).Once()

	pool := worker.NewWorkerPool(logger.Nop(), mf, mc, worker.Config{Workers: 1, BatchSize: 10, FlushInterval: time.Hour})
	s := NewService(logger.Nop(), mc, pool, svc)
	pool.Start(ctx)

	msg := message(t, changestream.ResultChange{ID: "t1", Operation: "replace", MatchID: "m1", GroupID: "g-a"}, 4)
	require.NoError(t, s.handleMessage(ctx, msg))
	require.NoError(t, pool.Shutdown(ctx))

	var m result.Match
	ok, _ := c.Get(ctx, cache.ClassMatch, "m1", &m)
	assert.False(t, ok)
	var sched []store.ScheduledMatch
	ok, _ = c.Get(ctx, cache.ClassSchedule, "g-a", &sched)
	assert.False(t, ok)

	mf.AssertExpectations(t)
	mc.AssertExpectations(t)
}

func TestHandleMessageCommitsMalformed(t *testing.T) {
	svc, _ := newStandings(new(MockStore))
	mc := new(MockConsumer)
	pool := worker.NewWorkerPool(logger.Nop(), new(MockFlusher), mc, worker.Config{Workers: 1})
	s := NewService(logger.Nop(), mc, pool, svc)

	msg := consumer.Message{Value: []byte("not json"), Offset: 9}
	mc.On("Commit", mock.Anything, []consumer.Message{msg}).Return(nil).Once()

	pool.Start(context.Background())
	require.NoError(t, s.handleMessage(context.Background(), msg))
	require.NoError(t, pool.Shutdown(context.Background()))
	mc.AssertExpectations(t)
}

func TestStartStopsWhenContextEnds(t *testing.T) {
	svc, _ := newStandings(new(MockStore))
	mc := new(MockConsumer)
	pool := worker.NewWorkerPool(logger.Nop(), new(MockFlusher), mc, worker.Config{Workers: 1})
	s := NewService(logger.Nop(), mc, pool, svc)

	msgs := make(chan consumer.Message)
	errs := make(chan error)
	mc.On("Consume", mock.Anything).Return((<-chan consumer.Message)(msgs), (<-chan error)(errs))
	mc.On("Close").Return(nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("projector did not stop")
	}
	mc.AssertExpectations(t)
}

func TestRebuilderWritesLatestStandings(t *testing.T) {
	st := new(MockStore)
	svc, _ := newStandings(st)
	mw := new(MockWriter)

	st.On("ListSchedule", mock.Anything, "g-a").Return([]store.ScheduledMatch{{ID: "m1", MatchNumber: 1}, {ID: "m2", MatchNumber: 2}}, nil)
	st.On("FindMatches", mock.Anything, []string{"m1", "m2"}).Return([]result.Match{
		{ID: "m1", GroupID: "g-a", MatchNumber: 1, Teams: []result.TeamResult{{TeamID: "a", TotalPoint: 5}}},
		{ID: "m2", GroupID: "g-a", MatchNumber: 2, Teams: []result.TeamResult{{TeamID: "b", TotalPoint: 9}}},
	}, nil)
	st.On("ListSchedule", mock.Anything, "g-gone").Return([]store.ScheduledMatch{}, nil)

	mw.On("Write", mock.Anything, []string{"g-a", "g-gone"}, mock.MatchedBy(func(rows []snapshot.Row) bool {
		return len(rows) == 2 &&
			rows[0].EntityKey == "b" && rows[0].Rank == 1 && rows[0].AfterMatch == "m2" &&
			rows[1].EntityKey == "a" && rows[1].Rank == 2
	})).Return(nil).Once()

	r := NewRebuilder(svc, mw, logger.Nop())
	require.NoError(t, r.Flush(context.Background(), []string{"g-a", "g-gone"}))
	mw.AssertExpectations(t)
}

func TestRebuilderSurfacesStoreErrors(t *testing.T) {
	st := new(MockStore)
	svc, _ := newStandings(st)
	mw := new(MockWriter)

	st.On("ListSchedule", mock.Anything, "g-a").Return(nil, errors.New("no reachable servers"))

	err := NewRebuilder(svc, mw, logger.Nop()).Flush(context.Background(), []string{"g-a"})
	assert.Error(t, err)
	mw.AssertNotCalled(t, "Write", mock.Anything, mock.Anything, mock.Anything)
}

func TestRebuilderRetriedByPool(t *testing.T) {
	st := new(MockStore)
	svc, _ := newStandings(st)
	mw := new(MockWriter)
	mc := new(MockConsumer)

	st.On("ListSchedule", mock.Anything, "g-a").Return([]store.ScheduledMatch{}, nil)
	mw.On("Write", mock.Anything, []string{"g-a"}, mock.Anything).Return(errors.New("deadlock detected")).Once()
	mw.On("Write", mock.Anything, []string{"g-a"}, mock.Anything).Return(nil).Once()
	mc.On("Commit", mock.Anything, mock.Anything).Return(nil).Once()

	pool := worker.NewWorkerPool(logger.Nop(), NewRebuilder(svc, mw, logger.Nop()), mc, worker.Config{
		Workers:   1,
		BatchSize: 1,
		Retry:     retry.Options{MaxAttempts: 2, InitialInterval: time.Millisecond, Multiplier: 1, Classifier: retry.Transient},
	})
	pool.Start(context.Background())
	require.NoError(t, pool.Submit(context.Background(), worker.Job{GroupID: "g-a"}))
	require.NoError(t, pool.Shutdown(context.Background()))

	mw.AssertExpectations(t)
	mc.AssertExpectations(t)
}
