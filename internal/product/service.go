// Package product はマーケットプレイスからの商品プルと商品データの参照を提供する。
package product

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/shopsync/internal/metrics"
	"github.com/hitoshi/shopsync/internal/model"
	"github.com/hitoshi/shopsync/internal/repository"
	"github.com/hitoshi/shopsync/internal/store"
)

// StoreService はプルに必要なストア操作のインターフェース。
type StoreService interface {
	Get(ctx context.Context, id string) (*model.Store, error)
	ClientForStore(ctx context.Context, s *model.Store) (store.MarketplaceClient, *model.Store, error)
	MarkSynced(ctx context.Context, storeID string, syncedAt time.Time) error
}

// Service は商品のページネーションプルと参照を提供する。
type Service struct {
	products repository.ProductRepository
	stores   StoreService
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
	pageSize int
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(products repository.ProductRepository, stores StoreService, collector metrics.MetricsCollector, logger *slog.Logger, pageSize int) *Service {
	return &Service{
		products: products,
		stores:   stores,
		metrics:  collector,
		logger:   logger,
		pageSize: pageSize,
	}
}

// PullResult は商品プルの結果。
type PullResult struct {
	StoreID  string `json:"store_id"`
	Pages    int    `json:"pages"`
	Products int    `json:"products"`
}

// Pull はストアの商品をページ単位で全件取得し、保存する。
// ページごとに即座に永続化するため、途中で失敗しても取得済みページは残る。
// 終端の判定は空ページのみで行う。1ページの件数がページサイズ未満でも、
// 次のページが空と確認できるまでは取得を続ける。
func (s *Service) Pull(ctx context.Context, storeID string) (*PullResult, error) {
	start := time.Now()

	st, err := s.stores.Get(ctx, storeID)
	if err != nil {
		return nil, err
	}

	client, st, err := s.stores.ClientForStore(ctx, st)
	if err != nil {
		s.metrics.RecordPullFailure(storeID, "token")
		return nil, err
	}

	result := &PullResult{StoreID: storeID}
	offset := 0

	for {
		page, err := client.GetProducts(ctx, offset, s.pageSize)
		if err != nil {
			s.metrics.RecordPullFailure(storeID, "fetch")
			s.logger.Error("商品ページの取得に失敗しました",
				slog.String("store_id", storeID),
				slog.Int("offset", offset),
				slog.String("error", err.Error()),
			)
			return nil, err
		}

		if len(page.Products) == 0 {
			break
		}

		inserted, err := s.products.BulkInsert(ctx, storeID, page.Products)
		if err != nil {
			s.metrics.RecordPullFailure(storeID, "persist")
			return nil, err
		}

		result.Pages++
		result.Products += inserted
		s.metrics.RecordPagesFetched(1)
		s.metrics.RecordProductsInserted(inserted)

		offset += s.pageSize
	}

	if err := s.stores.MarkSynced(ctx, storeID, time.Now()); err != nil {
		s.logger.Warn("最終同期時刻の更新に失敗しました",
			slog.String("store_id", storeID),
			slog.String("error", err.Error()),
		)
	}

	s.metrics.RecordPullSuccess(storeID)
	s.metrics.RecordPullLatency(time.Since(start))
	s.logger.Info("商品プルが完了しました",
		slog.String("store_id", storeID),
		slog.Int("pages", result.Pages),
		slog.Int("products", result.Products),
		slog.Duration("elapsed", time.Since(start)),
	)

	return result, nil
}

// List はストアの商品一覧を返す。
func (s *Service) List(ctx context.Context, storeID string, limit, offset int) ([]*model.Product, error) {
	if _, err := s.stores.Get(ctx, storeID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.products.ListByStoreID(ctx, storeID, limit, offset)
}

// Count はストアの商品数を返す。
func (s *Service) Count(ctx context.Context, storeID string) (int, error) {
	return s.products.CountByStoreID(ctx, storeID)
}

// Clear はストアの商品を全削除する。再同期前のリセットに使用する。
func (s *Service) Clear(ctx context.Context, storeID string) error {
	if _, err := s.stores.Get(ctx, storeID); err != nil {
		return err
	}
	return s.products.DeleteByStoreID(ctx, storeID)
}
