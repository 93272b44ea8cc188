// Package sync はストア商品のバックグラウンド同期処理を提供する。
package sync

import (
	"context"
	"log/slog"
	stdsync "sync"
	"time"

	"github.com/hitoshi/shopsync/internal/product"
	"github.com/hitoshi/shopsync/internal/repository"
)

// ProductPuller はストアの商品プルを実行するインターフェース。
type ProductPuller interface {
	// Pull はストアの商品を全ページ取得して保存する。
	Pull(ctx context.Context, storeID string) (*product.PullResult, error)
}

// Scheduler はストア商品同期のスケジューリングと並列制御を行う。
// 一定間隔のティッカーで同期対象ストアを取得し、
// semaphoreパターンで最大並列数を制御しながらプルを実行する。
type Scheduler struct {
	storeRepo      repository.StoreRepository
	puller         ProductPuller
	logger         *slog.Logger
	interval       time.Duration
	maxConcurrency int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値5を使用する。
func NewScheduler(
	storeRepo repository.StoreRepository,
	puller ProductPuller,
	logger *slog.Logger,
	interval time.Duration,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 5
	}
	return &Scheduler{
		storeRepo:      storeRepo,
		puller:         puller,
		logger:         logger,
		interval:       interval,
		maxConcurrency: maxConcurrency,
	}
}

// Start はティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("同期スケジューラを開始しました",
		slog.Duration("interval", s.interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("同期サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("同期スケジューラを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("同期サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は同期対象ストアを1回取得し、並列でプルを実行する。
// 最終同期から間隔以上経過した（または未同期の）ストアが対象となる。
// 1ストアの失敗は他のストアの同期を妨げない。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	stores, err := s.storeRepo.ListDueForSync(ctx, start.Add(-s.interval))
	if err != nil {
		return err
	}

	if len(stores) == 0 {
		s.logger.Info("同期対象のストアはありません")
		return nil
	}

	s.logger.Info("同期サイクルを開始します",
		slog.Int("store_count", len(stores)),
	)

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, s.maxConcurrency)
	var wg stdsync.WaitGroup

	for _, st := range stores {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(storeID, storeName string) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			if _, err := s.puller.Pull(ctx, storeID); err != nil {
				s.logger.Error("ストア同期に失敗しました",
					slog.String("store_id", storeID),
					slog.String("store_name", storeName),
					slog.String("error", err.Error()),
				)
			}
		}(st.ID, st.StoreName)
	}

	wg.Wait()

	duration := time.Since(start)
	s.logger.Info("同期サイクルが完了しました",
		slog.Int("store_count", len(stores)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
