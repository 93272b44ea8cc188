package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	stdsync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/shopsync/internal/model"
	"github.com/hitoshi/shopsync/internal/product"
)

// --- モック定義 ---

type mockStoreRepo struct {
	listDueForSyncFunc func(ctx context.Context, olderThan time.Time) ([]*model.Store, error)
}

func (m *mockStoreRepo) Create(_ context.Context, _ *model.Store) error { return nil }

func (m *mockStoreRepo) FindByID(_ context.Context, _ string) (*model.Store, error) {
	return nil, nil
}

func (m *mockStoreRepo) List(_ context.Context) ([]*model.Store, error) { return nil, nil }

func (m *mockStoreRepo) ListDueForSync(ctx context.Context, olderThan time.Time) ([]*model.Store, error) {
	if m.listDueForSyncFunc != nil {
		return m.listDueForSyncFunc(ctx, olderThan)
	}
	return nil, nil
}

func (m *mockStoreRepo) UpdateTokens(_ context.Context, _ string, _, _ model.OAuthToken) (*model.Store, error) {
	return nil, nil
}

func (m *mockStoreRepo) UpdateLastSyncedAt(_ context.Context, _ string, _ time.Time) error {
	return nil
}

func (m *mockStoreRepo) DeleteByID(_ context.Context, _ string) error { return nil }

type mockPuller struct {
	pullFunc func(ctx context.Context, storeID string) (*product.PullResult, error)
}

func (m *mockPuller) Pull(ctx context.Context, storeID string) (*product.PullResult, error) {
	if m.pullFunc != nil {
		return m.pullFunc(ctx, storeID)
	}
	return &product.PullResult{StoreID: storeID}, nil
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// --- スケジューラのテスト ---

func TestNewScheduler_DefaultConcurrency(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	// 0以下の場合はデフォルトの5を使用する
	s := NewScheduler(&mockStoreRepo{}, &mockPuller{}, logger, time.Hour, 0)
	if s.maxConcurrency != 5 {
		t.Errorf("maxConcurrency = %d, want 5 (default)", s.maxConcurrency)
	}
}

func TestScheduler_RunOnce_PullsDueStores(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	stores := []*model.Store{
		{ID: "store-1", StoreName: "Shop A"},
		{ID: "store-2", StoreName: "Shop B"},
	}

	var pulledIDs []string
	var mu stdsync.Mutex

	repo := &mockStoreRepo{
		listDueForSyncFunc: func(ctx context.Context, olderThan time.Time) ([]*model.Store, error) {
			return stores, nil
		},
	}
	puller := &mockPuller{
		pullFunc: func(ctx context.Context, storeID string) (*product.PullResult, error) {
			mu.Lock()
			pulledIDs = append(pulledIDs, storeID)
			mu.Unlock()
			return &product.PullResult{StoreID: storeID}, nil
		},
	}

	s := NewScheduler(repo, puller, logger, time.Hour, 5)
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() がエラーを返した: %v", err)
	}

	if len(pulledIDs) != 2 {
		t.Errorf("同期されたストア数 = %d, want 2", len(pulledIDs))
	}
}

func TestScheduler_RunOnce_PassesThresholdTime(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	var gotOlderThan time.Time
	repo := &mockStoreRepo{
		listDueForSyncFunc: func(ctx context.Context, olderThan time.Time) ([]*model.Store, error) {
			gotOlderThan = olderThan
			return nil, nil
		},
	}

	interval := 6 * time.Hour
	s := NewScheduler(repo, &mockPuller{}, logger, interval, 5)

	before := time.Now()
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() がエラーを返した: %v", err)
	}

	// 閾値は「現在時刻 - 同期間隔」付近であること
	want := before.Add(-interval)
	if gotOlderThan.Before(want.Add(-5*time.Second)) || gotOlderThan.After(want.Add(5*time.Second)) {
		t.Errorf("olderThan = %v, want ~%v", gotOlderThan, want)
	}
}

func TestScheduler_RunOnce_RepoError(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	repo := &mockStoreRepo{
		listDueForSyncFunc: func(ctx context.Context, olderThan time.Time) ([]*model.Store, error) {
			return nil, errors.New("db connection failed")
		},
	}

	s := NewScheduler(repo, &mockPuller{}, logger, time.Hour, 5)
	if err := s.RunOnce(context.Background()); err == nil {
		t.Fatal("RunOnce() はリポジトリエラー時にエラーを返すべき")
	}
}

func TestScheduler_RunOnce_ConcurrencyLimit(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	stores := make([]*model.Store, 20)
	for i := range stores {
		stores[i] = &model.Store{ID: fmt.Sprintf("store-%d", i)}
	}

	var maxConcurrent int32
	var currentConcurrent int32
	var pullCount int32

	repo := &mockStoreRepo{
		listDueForSyncFunc: func(ctx context.Context, olderThan time.Time) ([]*model.Store, error) {
			return stores, nil
		},
	}
	puller := &mockPuller{
		pullFunc: func(ctx context.Context, storeID string) (*product.PullResult, error) {
			current := atomic.AddInt32(&currentConcurrent, 1)
			defer atomic.AddInt32(&currentConcurrent, -1)
			atomic.AddInt32(&pullCount, 1)

			// 最大同時実行数を記録
			for {
				old := atomic.LoadInt32(&maxConcurrent)
				if current <= old {
					break
				}
				if atomic.CompareAndSwapInt32(&maxConcurrent, old, current) {
					break
				}
			}

			time.Sleep(10 * time.Millisecond)
			return &product.PullResult{StoreID: storeID}, nil
		},
	}

	s := NewScheduler(repo, puller, logger, time.Hour, 3)
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() がエラーを返した: %v", err)
	}

	if atomic.LoadInt32(&pullCount) != 20 {
		t.Errorf("プル回数 = %d, want 20", atomic.LoadInt32(&pullCount))
	}
	if atomic.LoadInt32(&maxConcurrent) > 3 {
		t.Errorf("最大同時実行数 = %d, 3以下であるべき", atomic.LoadInt32(&maxConcurrent))
	}
}

func TestScheduler_RunOnce_PullErrorDoesNotStopOthers(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	stores := []*model.Store{
		{ID: "store-1"},
		{ID: "store-2"},
		{ID: "store-3"},
	}

	var pullCount int32

	repo := &mockStoreRepo{
		listDueForSyncFunc: func(ctx context.Context, olderThan time.Time) ([]*model.Store, error) {
			return stores, nil
		},
	}
	puller := &mockPuller{
		pullFunc: func(ctx context.Context, storeID string) (*product.PullResult, error) {
			atomic.AddInt32(&pullCount, 1)
			if storeID == "store-2" {
				return nil, errors.New("pull failed")
			}
			return &product.PullResult{StoreID: storeID}, nil
		},
	}

	s := NewScheduler(repo, puller, logger, time.Hour, 5)
	// 個別ストアの同期エラーはRunOnceのエラーとはならない
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() は個別同期エラーでもエラーを返さないべき: %v", err)
	}

	if atomic.LoadInt32(&pullCount) != 3 {
		t.Errorf("全ストアの同期が試行されるべき: got %d, want 3", atomic.LoadInt32(&pullCount))
	}
}

func TestScheduler_RunOnce_LogsPullError(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	repo := &mockStoreRepo{
		listDueForSyncFunc: func(ctx context.Context, olderThan time.Time) ([]*model.Store, error) {
			return []*model.Store{{ID: "store-1", StoreName: "Shop A"}}, nil
		},
	}
	puller := &mockPuller{
		pullFunc: func(ctx context.Context, storeID string) (*product.PullResult, error) {
			return nil, errors.New("timeout")
		},
	}

	s := NewScheduler(repo, puller, logger, time.Hour, 5)
	_ = s.RunOnce(context.Background())

	logOutput := buf.String()
	if !strings.Contains(logOutput, "ERROR") {
		t.Errorf("同期エラー時にERRORレベルのログが記録されていない: %s", logOutput)
	}

	// ログは構造化JSONであること
	line := strings.Split(strings.TrimSpace(logOutput), "\n")[0]
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Errorf("ログ行がJSONとしてパースできない: %v", err)
	}
}
