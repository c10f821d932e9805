package services_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/ocr-gateway/internal/models"
	services "github.com/magabrotheeeer/ocr-gateway/internal/services/quota"
	"github.com/magabrotheeeer/ocr-gateway/internal/storage"
)

// memStore счётчики в памяти с той же семантикой, что у upsert в PostgreSQL.
type memStore struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newMemStore() *memStore {
	return &memStore{counts: make(map[string]int64)}
}

func (s *memStore) ReserveQuota(_ context.Context, uid, day string, limit int64) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := uid + "/" + day
	if s.counts[key] >= limit {
		return s.counts[key], false, nil
	}
	s.counts[key]++
	return s.counts[key], true, nil
}

func (s *memStore) GetQuotaUsage(_ context.Context, uid, day string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[uid+"/"+day], nil
}

// Мок для Store
type StoreMock struct {
	mock.Mock
}

func (m *StoreMock) ReserveQuota(ctx context.Context, uid, day string, limit int64) (int64, bool, error) {
	args := m.Called(ctx, uid, day, limit)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

func (m *StoreMock) GetQuotaUsage(ctx context.Context, uid, day string) (int64, error) {
	args := m.Called(ctx, uid, day)
	return args.Get(0).(int64), args.Error(1)
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const today = "2024-01-01"

func TestLedger_Limit(t *testing.T) {
	l := services.NewLedger(newMemStore(), nil, 3, newLogger())

	tests := []struct {
		plan models.Plan
		want int64
	}{
		{models.PlanFree, 20},
		{models.PlanPro, 1000},
		{models.PlanProPlus, 5000},
		{models.PlanEnterprise, services.Unlimited},
		{models.Plan("gold"), 20},
		{models.Plan(""), 20},
	}
	for _, tt := range tests {
		t.Run(string(tt.plan), func(t *testing.T) {
			assert.Equal(t, tt.want, l.Limit(tt.plan))
		})
	}
}

func TestLedger_LimitOverrides(t *testing.T) {
	l := services.NewLedger(newMemStore(), map[string]int64{"free": 5, "team": 50}, 3, newLogger())

	assert.Equal(t, int64(5), l.Limit(models.PlanFree))
	assert.Equal(t, int64(5), l.Limit("unknown"), "unknown plans follow the configured free limit")
	assert.Equal(t, int64(50), l.Limit("team"))
	assert.Equal(t, int64(1000), l.Limit(models.PlanPro))
	assert.Equal(t, int64(20), services.DefaultLimits[models.PlanFree], "defaults are not mutated")
}

func TestLedger_CheckAndReserve_Boundary(t *testing.T) {
	store := newMemStore()
	store.counts["u1/"+today] = 19
	l := services.NewLedger(store, nil, 3, newLogger())
	ctx := context.Background()

	res, err := l.CheckAndReserve(ctx, "u1", models.PlanFree, today)
	require.NoError(t, err)
	assert.Equal(t, services.Reservation{Decision: services.Allowed, Used: 19, Limit: 20}, res)
	assert.Equal(t, int64(20), store.counts["u1/"+today])

	res, err = l.CheckAndReserve(ctx, "u1", models.PlanFree, today)
	require.NoError(t, err)
	assert.Equal(t, services.Reservation{Decision: services.Denied, Used: 20, Limit: 20}, res)
	assert.Equal(t, int64(20), store.counts["u1/"+today])
}

func TestLedger_CheckAndReserve_UnknownPlanFallsBackToFree(t *testing.T) {
	store := newMemStore()
	store.counts["u1/"+today] = 20
	l := services.NewLedger(store, nil, 3, newLogger())

	res, err := l.CheckAndReserve(context.Background(), "u1", models.Plan("platinum"), today)
	require.NoError(t, err)
	assert.Equal(t, services.Denied, res.Decision)
	assert.Equal(t, int64(20), res.Limit)
}

func TestLedger_CheckAndReserve_Concurrent(t *testing.T) {
	store := newMemStore()
	l := services.NewLedger(store, map[string]int64{"free": 7}, 3, newLogger())
	ctx := context.Background()

	const workers = 50
	var (
		wg              sync.WaitGroup
		allowed, denied atomic.Int32
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.CheckAndReserve(ctx, "u1", models.PlanFree, today)
			if !assert.NoError(t, err) {
				return
			}
			if res.Decision == services.Allowed {
				allowed.Add(1)
			} else {
				denied.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(7), allowed.Load())
	assert.Equal(t, int32(workers-7), denied.Load())
	assert.Equal(t, int64(7), store.counts["u1/"+today])
}

func TestLedger_CheckAndReserve_Retries(t *testing.T) {
	transient := fmt.Errorf("storage.ReserveQuota: %w", storage.ErrTransient)

	tests := []struct {
		name       string
		setupMocks func(s *StoreMock)
		want       services.Reservation
		wantErr    error
		anyErr     bool
	}{
		{
			name: "succeeds after transient failure",
			setupMocks: func(s *StoreMock) {
				s.On("ReserveQuota", mock.Anything, "u1", today, int64(20)).Return(int64(0), false, transient).Once()
				s.On("ReserveQuota", mock.Anything, "u1", today, int64(20)).Return(int64(3), true, nil).Once()
			},
			want: services.Reservation{Decision: services.Allowed, Used: 2, Limit: 20},
		},
		{
			name: "gives up after max attempts",
			setupMocks: func(s *StoreMock) {
				s.On("ReserveQuota", mock.Anything, "u1", today, int64(20)).Return(int64(0), false, transient).Times(3)
			},
			wantErr: services.ErrBusy,
		},
		{
			name: "non transient error is not retried",
			setupMocks: func(s *StoreMock) {
				s.On("ReserveQuota", mock.Anything, "u1", today, int64(20)).Return(int64(0), false, errors.New("syntax error")).Once()
			},
			anyErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(StoreMock)
			tt.setupMocks(store)
			l := services.NewLedger(store, nil, 3, newLogger())

			res, err := l.CheckAndReserve(context.Background(), "u1", models.PlanFree, today)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.anyErr:
				require.Error(t, err)
				assert.NotErrorIs(t, err, services.ErrBusy)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want, res)
			}
			store.AssertExpectations(t)
		})
	}
}

func TestLedger_CheckAndReserve_CanceledDuringBackoff(t *testing.T) {
	store := new(StoreMock)
	store.On("ReserveQuota", mock.Anything, "u1", today, int64(20)).
		Return(int64(0), false, storage.ErrTransient).Once()
	l := services.NewLedger(store, nil, 3, newLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.CheckAndReserve(ctx, "u1", models.PlanFree, today)
	assert.ErrorIs(t, err, context.Canceled)
	store.AssertExpectations(t)
}

func TestLedger_Peek(t *testing.T) {
	store := newMemStore()
	store.counts["u1/"+today] = 12
	l := services.NewLedger(store, nil, 3, newLogger())

	usage, err := l.Peek(context.Background(), "u1", models.PlanFree, today)
	require.NoError(t, err)
	assert.Equal(t, services.Usage{Used: 12, Limit: 20, Remaining: 8}, usage)
	assert.Equal(t, int64(12), store.counts["u1/"+today], "peek does not reserve")

	store.counts["u2/"+today] = 25
	usage, err = l.Peek(context.Background(), "u2", models.PlanFree, today)
	require.NoError(t, err)
	assert.Zero(t, usage.Remaining)
}

func TestLedger_StoreTimeout(t *testing.T) {
	block := func(args mock.Arguments) {
		<-args.Get(0).(context.Context).Done()
	}

	t.Run("reserve", func(t *testing.T) {
		store := new(StoreMock)
		store.On("ReserveQuota", mock.Anything, "u1", "2024-01-01", int64(20)).
			Run(block).Return(int64(0), false, context.DeadlineExceeded).Once()
		l := services.NewLedger(store, nil, 3, newLogger()).WithStoreTimeout(20 * time.Millisecond)

		_, err := l.CheckAndReserve(context.Background(), "u1", models.PlanFree, "2024-01-01")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.NotErrorIs(t, err, services.ErrBusy)
		store.AssertExpectations(t)
	})

	t.Run("peek", func(t *testing.T) {
		store := new(StoreMock)
		store.On("GetQuotaUsage", mock.Anything, "u1", "2024-01-01").
			Run(block).Return(int64(0), context.DeadlineExceeded).Once()
		l := services.NewLedger(store, nil, 3, newLogger()).WithStoreTimeout(20 * time.Millisecond)

		_, err := l.Peek(context.Background(), "u1", models.PlanFree, "2024-01-01")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		store.AssertExpectations(t)
	})
}
