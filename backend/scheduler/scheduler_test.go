package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/model"
	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/service"
)

type fakeNotifier struct {
	mu    sync.Mutex
	calls []string

	contract func(days int) (int, error)
	document func(days int) (int, error)
	payment  func() (int, error)
	cleanup  func(days int) (int64, error)
}

func (f *fakeNotifier) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeNotifier) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeNotifier) NotifyContractExpiry(ctx context.Context, store service.Store, days int) (int, error) {
	f.record(fmt.Sprintf("contract:%d", days))
	if f.contract != nil {
		return f.contract(days)
	}
	return 1, nil
}

func (f *fakeNotifier) NotifyDocumentExpiry(ctx context.Context, store service.Store, days int) (int, error) {
	f.record(fmt.Sprintf("document:%d", days))
	if f.document != nil {
		return f.document(days)
	}
	return 1, nil
}

func (f *fakeNotifier) NotifyPaymentDue(ctx context.Context, store service.Store) (int, error) {
	f.record("payment")
	if f.payment != nil {
		return f.payment()
	}
	return 1, nil
}

func (f *fakeNotifier) CleanupOldNotifications(ctx context.Context, store service.Store, daysOld int) (int64, error) {
	f.record(fmt.Sprintf("cleanup:%d", daysOld))
	if f.cleanup != nil {
		return f.cleanup(daysOld)
	}
	return 0, nil
}

type fakeSessions struct {
	mu       sync.Mutex
	store    service.Store
	err      error
	opened   int
	released int
}

func (f *fakeSessions) Session(ctx context.Context) (service.Store, func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, nil, f.err
	}
	f.opened++
	return f.store, func() {
		f.mu.Lock()
		f.released++
		f.mu.Unlock()
	}, nil
}

type fakeLocker struct {
	err      error
	acquired int
	released int
}

func (f *fakeLocker) Acquire(ctx context.Context) (func(), error) {
	if f.err != nil {
		return nil, f.err
	}
	f.acquired++
	return func() { f.released++ }, nil
}

func newSessions() *fakeSessions {
	return &fakeSessions{store: service.NewMemoryStore(nil)}
}

func TestTickRunsPipelinesInOrder(t *testing.T) {
	notifier := &fakeNotifier{}
	sessions := newSessions()
	s := New(sessions, notifier, Options{Tiers: []int{1, 30, 7}})

	report, err := s.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"contract:30", "contract:7", "contract:1",
		"document:30", "document:7", "document:1",
		"payment",
	}, notifier.Calls())
	require.Len(t, report.Results, 3)
	assert.Equal(t, 3, report.Results[0].Created)
	assert.Equal(t, []TierResult{{30, 1}, {7, 1}, {1, 1}}, report.Results[0].Tiers)
	assert.Equal(t, 7, report.Created())
	assert.NotEmpty(t, report.TickID)
	assert.False(t, report.Stopped)
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, 1, sessions.opened)
	assert.Equal(t, 1, sessions.released)
}

func TestTickIsolatesPipelineFailures(t *testing.T) {
	storeDown := fmt.Errorf("query contracts: %w", service.ErrStoreUnavailable)
	notifier := &fakeNotifier{
		contract: func(days int) (int, error) {
			if days == 7 {
				return 1, storeDown
			}
			return 2, nil
		},
		document: func(days int) (int, error) {
			panic("nil document")
		},
	}
	sessions := newSessions()
	s := New(sessions, notifier, Options{})

	report, err := s.Tick(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 3)

	contract := report.Results[0]
	assert.ErrorIs(t, contract.Err, service.ErrStoreUnavailable)
	assert.Equal(t, 3, contract.Created)
	assert.Len(t, contract.Tiers, 2, "tier 1 is not attempted after tier 7 fails")
	assert.Contains(t, contract.Error, "7 day tier")

	document := report.Results[1]
	require.Error(t, document.Err)
	assert.Contains(t, document.Err.Error(), "panicked")

	payment := report.Results[2]
	assert.True(t, payment.OK())
	assert.Equal(t, 1, payment.Created)

	assert.Len(t, report.Failed(), 2)
	assert.Equal(t, 1, sessions.released, "session released even when pipelines fail")
	assert.Equal(t, StateIdle, s.State())

	// The next tick proceeds normally.
	notifier.contract = nil
	notifier.document = nil
	report, err = s.Tick(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Failed())
}

func TestTickStoreUnavailable(t *testing.T) {
	notifier := &fakeNotifier{}
	sessions := &fakeSessions{err: errors.New("dial tcp: connection refused")}
	s := New(sessions, notifier, Options{})

	report, err := s.Tick(context.Background(), ContractExpiry, Cleanup)
	require.NoError(t, err)
	require.Len(t, report.Results, 2)
	for _, res := range report.Results {
		assert.ErrorIs(t, res.Err, service.ErrStoreUnavailable)
		assert.Zero(t, res.Created)
	}
	assert.Empty(t, notifier.Calls())
}

func TestTickCleanup(t *testing.T) {
	notifier := &fakeNotifier{cleanup: func(days int) (int64, error) { return 5, nil }}
	s := New(newSessions(), notifier, Options{CleanupDays: 45})

	report, err := s.Tick(context.Background(), Cleanup)
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, int64(5), report.Results[0].Deleted)
	assert.Equal(t, []string{"cleanup:45"}, notifier.Calls())
}

func TestTickUnknownPipeline(t *testing.T) {
	s := New(newSessions(), &fakeNotifier{}, Options{})

	report, err := s.Tick(context.Background(), Pipeline("bogus"))
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Error(t, report.Results[0].Err)
}

func TestStopWaitsForRunningPipeline(t *testing.T) {
	started := make(chan struct{})
	unblock := make(chan struct{})
	notifier := &fakeNotifier{
		contract: func(days int) (int, error) {
			if days == 30 {
				close(started)
				<-unblock
			}
			return 1, nil
		},
	}
	sessions := newSessions()
	s := New(sessions, notifier, Options{})

	type tickResult struct {
		report Report
		err    error
	}
	tickDone := make(chan tickResult, 1)
	go func() {
		report, err := s.Tick(context.Background())
		tickDone <- tickResult{report, err}
	}()

	<-started
	assert.Equal(t, StateRunning, s.State())
	assert.Equal(t, Status{State: StateRunning, Pipeline: ContractExpiry}, s.Status())

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	require.Eventually(t, s.stopping.Load, time.Second, time.Millisecond)

	select {
	case <-stopped:
		t.Fatal("Stop returned while a pipeline was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(unblock)
	res := <-tickDone
	<-stopped

	require.NoError(t, res.err)
	assert.True(t, res.report.Stopped)
	require.Len(t, res.report.Results, 1, "only the running pipeline completes")
	assert.Equal(t, 3, res.report.Results[0].Created, "the running pipeline is not interrupted")
	assert.Equal(t, []string{"contract:30", "contract:7", "contract:1"}, notifier.Calls())
	assert.Equal(t, StateStopped, s.State())
	assert.Equal(t, Status{State: StateStopped}, s.Status())
	assert.Equal(t, 1, sessions.released)

	_, err := s.Tick(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
}

func TestStopWhenIdle(t *testing.T) {
	notifier := &fakeNotifier{}
	s := New(newSessions(), notifier, Options{})

	s.Stop()
	s.Stop()
	assert.Equal(t, StateStopped, s.State())

	_, err := s.Tick(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
	assert.Empty(t, notifier.Calls())
	assert.ErrorIs(t, s.Run(context.Background()), ErrStopped)
}

func TestTickHonorsLocker(t *testing.T) {
	notifier := &fakeNotifier{}
	sessions := newSessions()
	locker := &fakeLocker{err: ErrLocked}
	s := New(sessions, notifier, Options{Locker: locker})

	_, err := s.Tick(context.Background())
	assert.ErrorIs(t, err, ErrLocked)
	assert.Empty(t, notifier.Calls())
	assert.Zero(t, sessions.opened)
	assert.Equal(t, StateIdle, s.State())

	locker.err = nil
	_, err = s.Tick(context.Background(), PaymentDue)
	require.NoError(t, err)
	assert.Equal(t, 1, locker.acquired)
	assert.Equal(t, 1, locker.released)
}

func TestTickEndToEnd(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 7, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := service.NewMemoryStore(clock)

	for _, name := range []string{"alice", "bob"} {
		require.NoError(t, store.CreateUser(ctx, &model.User{Username: name, Role: model.RoleManager, Active: true}))
	}
	start, _ := model.ParseDate("2024-01-01")
	end, _ := model.ParseDate("2024-06-20")
	require.NoError(t, store.CreateContract(ctx, &model.Contract{
		Number:          "KZH-2024-01-AAAAAA",
		ClientName:      "Aigerim",
		PropertyAddress: "Almaty",
		StartDate:       start,
		EndDate:         end,
		Status:          model.StatusActive,
	}))

	opts := service.DefaultOptions()
	opts.Clock = clock
	s := New(store, service.NewNotificationService(opts), Options{})

	report, err := s.Tick(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Failed())
	assert.Equal(t, 2, report.Results[0].Created, "contract expiry notified once across tiers")
	assert.Equal(t, 0, report.Results[1].Created)
	assert.Equal(t, 2, report.Results[2].Created)

	report, err = s.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Created(), "second tick within cooldown")
}

func TestRunRejectsBadSchedule(t *testing.T) {
	s := New(newSessions(), &fakeNotifier{}, Options{ContractExpiryCron: "every day"})
	assert.Error(t, s.Run(context.Background()))
}

func TestRunStopsOnContextCancel(t *testing.T) {
	s := New(newSessions(), &fakeNotifier{}, Options{
		ContractExpiryCron: "0 9 * * *",
		CleanupCron:        "0 2 * * 0",
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, StateStopped, s.State())
}

func TestParsePipeline(t *testing.T) {
	for _, p := range AllPipelines {
		got, err := ParsePipeline(string(p))
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	_, err := ParsePipeline("expiry")
	assert.Error(t, err)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "stopped", StateStopped.String())
}

func TestRedisLockerUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	locker := NewRedisLocker(client, "kzh:test:tick", time.Minute)
	_, err := locker.Acquire(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLocked)
}
