// Package store はマーケットプレイスストアのOAuth連携とトークン管理を提供する。
package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/shopsync/internal/lazada"
	"github.com/hitoshi/shopsync/internal/metrics"
	"github.com/hitoshi/shopsync/internal/model"
	"github.com/hitoshi/shopsync/internal/repository"
)

// MarketplaceClient はストアのゲートウェイに紐付いたAPIクライアント。
type MarketplaceClient interface {
	GetSeller(ctx context.Context) (*lazada.Seller, error)
	GetProducts(ctx context.Context, offset, limit int) (*lazada.ProductPage, error)
}

// ClientFactory はマーケットプレイスクライアントの生成とOAuth操作を提供する。
type ClientFactory interface {
	AuthorizationURL(redirectURI, state string) string
	CreateAccessToken(ctx context.Context, code string) (*lazada.TokenResponse, error)
	RefreshAccessToken(ctx context.Context, refreshToken string) (*lazada.TokenResponse, error)
	ClientFor(region, accessToken string) (MarketplaceClient, error)
}

// lazadaFactory は*lazada.FactoryをClientFactoryに適合させる。
type lazadaFactory struct {
	f *lazada.Factory
}

// NewLazadaFactory はLazadaのFactoryをClientFactoryとしてラップする。
func NewLazadaFactory(f *lazada.Factory) ClientFactory {
	return &lazadaFactory{f: f}
}

func (a *lazadaFactory) AuthorizationURL(redirectURI, state string) string {
	return a.f.AuthorizationURL(redirectURI, state)
}

func (a *lazadaFactory) CreateAccessToken(ctx context.Context, code string) (*lazada.TokenResponse, error) {
	return a.f.CreateAccessToken(ctx, code)
}

func (a *lazadaFactory) RefreshAccessToken(ctx context.Context, refreshToken string) (*lazada.TokenResponse, error) {
	return a.f.RefreshAccessToken(ctx, refreshToken)
}

func (a *lazadaFactory) ClientFor(region, accessToken string) (MarketplaceClient, error) {
	return a.f.ClientFor(region, accessToken)
}

// Service はストアのOAuth連携・トークンリフレッシュ・CRUDを提供する。
type Service struct {
	stores      repository.StoreRepository
	factory     ClientFactory
	metrics     metrics.MetricsCollector
	logger      *slog.Logger
	redirectURI string

	// refreshMu はストアIDごとのリフレッシュロックを保護する。
	refreshMu    sync.Mutex
	refreshLocks map[string]*sync.Mutex
}

// NewService はServiceの新しいインスタンスを生成する。
// redirectURIはOAuthコールバックのリダイレクト先URL。
func NewService(stores repository.StoreRepository, factory ClientFactory, collector metrics.MetricsCollector, logger *slog.Logger, redirectURI string) *Service {
	return &Service{
		stores:       stores,
		factory:      factory,
		metrics:      collector,
		logger:       logger,
		redirectURI:  redirectURI,
		refreshLocks: make(map[string]*sync.Mutex),
	}
}

// AuthorizationURL はセラーをリダイレクトするOAuth認可URLを生成する。
func (s *Service) AuthorizationURL(state string) string {
	return s.factory.AuthorizationURL(s.redirectURI, state)
}

// Authorize は認可コードをトークンペアに交換し、ストアとして登録する。
// トークンの有効期限は交換時刻 + expires_in秒の絶対時刻で保存する。
func (s *Service) Authorize(ctx context.Context, code string) (*model.Store, error) {
	if code == "" {
		return nil, model.NewValidationError("認可コードが指定されていません。")
	}

	tokenResp, err := s.factory.CreateAccessToken(ctx, code)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	access := model.OAuthToken{
		Token:    tokenResp.AccessToken,
		ExpireAt: now.Add(time.Duration(tokenResp.ExpiresIn) * time.Second),
	}
	refresh := model.OAuthToken{
		Token:    tokenResp.RefreshToken,
		ExpireAt: now.Add(time.Duration(tokenResp.RefreshExpiresIn) * time.Second),
	}

	// 未対応の国のトークンは保存前に弾く
	client, err := s.factory.ClientFor(tokenResp.Country, access.Token)
	if err != nil {
		return nil, err
	}

	seller, err := client.GetSeller(ctx)
	if err != nil {
		return nil, err
	}

	shopData, err := json.Marshal(seller)
	if err != nil {
		return nil, err
	}

	store := &model.Store{
		ID:            uuid.New().String(),
		ShopType:      model.ShopTypeLazada,
		CountryRegion: tokenResp.Country,
		StoreName:     seller.Name,
		ShopData:      shopData,
		AccessToken:   access,
		RefreshToken:  refresh,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.stores.Create(ctx, store); err != nil {
		return nil, err
	}

	s.logger.Info("ストアを連携しました",
		slog.String("store_id", store.ID),
		slog.String("store_name", store.StoreName),
		slog.String("country_region", store.CountryRegion),
	)

	return store, nil
}

// EnsureFreshAccessToken はアクセストークンが期限切れならリフレッシュして返す。
// ストアIDごとのロックで同時リフレッシュを直列化し、ロック獲得後に
// 最新状態を再読込することで、同じストアの重複リフレッシュを防ぐ。
func (s *Service) EnsureFreshAccessToken(ctx context.Context, store *model.Store) (*model.Store, error) {
	if !store.AccessToken.Expired(time.Now()) {
		return store, nil
	}

	lock := s.lockFor(store.ID)
	lock.Lock()
	defer lock.Unlock()

	// 待機中に別のゴルーチンがリフレッシュ済みの可能性がある
	current, err := s.stores.FindByID(ctx, store.ID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, model.NewStoreNotFoundError(store.ID)
	}
	if !current.AccessToken.Expired(time.Now()) {
		return current, nil
	}

	tokenResp, err := s.factory.RefreshAccessToken(ctx, current.RefreshToken.Token)
	if err != nil {
		s.logger.Error("アクセストークンの更新に失敗しました",
			slog.String("store_id", store.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	s.metrics.RecordTokenRefresh(store.ID)

	now := time.Now()
	access := model.OAuthToken{
		Token:    tokenResp.AccessToken,
		ExpireAt: now.Add(time.Duration(tokenResp.ExpiresIn) * time.Second),
	}
	refresh := model.OAuthToken{
		Token:    tokenResp.RefreshToken,
		ExpireAt: now.Add(time.Duration(tokenResp.RefreshExpiresIn) * time.Second),
	}

	updated, err := s.stores.UpdateTokens(ctx, store.ID, access, refresh)
	if err != nil {
		return nil, err
	}

	s.logger.Info("アクセストークンを更新しました",
		slog.String("store_id", store.ID),
		slog.Time("expire_at", access.ExpireAt),
	)

	return updated, nil
}

// ClientForStore は有効なアクセストークンを保証した上でAPIクライアントを返す。
func (s *Service) ClientForStore(ctx context.Context, store *model.Store) (MarketplaceClient, *model.Store, error) {
	fresh, err := s.EnsureFreshAccessToken(ctx, store)
	if err != nil {
		return nil, nil, err
	}
	client, err := s.factory.ClientFor(fresh.CountryRegion, fresh.AccessToken.Token)
	if err != nil {
		return nil, nil, err
	}
	return client, fresh, nil
}

// Get は指定IDのストアを取得する。
func (s *Service) Get(ctx context.Context, id string) (*model.Store, error) {
	store, err := s.stores.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, model.NewStoreNotFoundError(id)
	}
	return store, nil
}

// List は全ストアを返す。
func (s *Service) List(ctx context.Context) ([]*model.Store, error) {
	return s.stores.List(ctx)
}

// Delete は指定IDのストアを削除する。所属する商品も削除される。
func (s *Service) Delete(ctx context.Context, id string) error {
	store, err := s.stores.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if store == nil {
		return model.NewStoreNotFoundError(id)
	}
	return s.stores.DeleteByID(ctx, id)
}

// MarkSynced は商品同期の完了時刻を記録する。
func (s *Service) MarkSynced(ctx context.Context, storeID string, syncedAt time.Time) error {
	return s.stores.UpdateLastSyncedAt(ctx, storeID, syncedAt)
}

// lockFor はストアIDに対応するリフレッシュロックを返す。
func (s *Service) lockFor(storeID string) *sync.Mutex {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	lock, ok := s.refreshLocks[storeID]
	if !ok {
		lock = &sync.Mutex{}
		s.refreshLocks[storeID] = lock
	}
	return lock
}
