package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/shopsync/internal/model"
)

// PostgresStoreRepo はPostgreSQLを使用したストアリポジトリ。
type PostgresStoreRepo struct {
	db *sql.DB
}

// NewPostgresStoreRepo はPostgresStoreRepoを生成する。
func NewPostgresStoreRepo(db *sql.DB) *PostgresStoreRepo {
	return &PostgresStoreRepo{db: db}
}

const storeColumns = `id, shop_type, country_region, store_name, shop_data,
	access_token, access_token_expires_at, refresh_token, refresh_token_expires_at,
	last_synced_at, created_at, updated_at`

// scanStore は1行分のストアをスキャンする。
func scanStore(row interface{ Scan(dest ...any) error }) (*model.Store, error) {
	store := &model.Store{}
	var shopData []byte
	err := row.Scan(
		&store.ID, &store.ShopType, &store.CountryRegion, &store.StoreName, &shopData,
		&store.AccessToken.Token, &store.AccessToken.ExpireAt,
		&store.RefreshToken.Token, &store.RefreshToken.ExpireAt,
		&store.LastSyncedAt, &store.CreatedAt, &store.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	store.ShopData = shopData
	return store, nil
}

// Create はストアを作成する。
func (r *PostgresStoreRepo) Create(ctx context.Context, store *model.Store) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO stores (id, shop_type, country_region, store_name, shop_data,
		   access_token, access_token_expires_at, refresh_token, refresh_token_expires_at,
		   created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		store.ID, store.ShopType, store.CountryRegion, store.StoreName, []byte(store.ShopData),
		store.AccessToken.Token, store.AccessToken.ExpireAt,
		store.RefreshToken.Token, store.RefreshToken.ExpireAt,
		store.CreatedAt, store.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert store: %w", err)
	}
	return nil
}

// FindByID は指定IDのストアを取得する。見つからない場合はnilを返す。
func (r *PostgresStoreRepo) FindByID(ctx context.Context, id string) (*model.Store, error) {
	store, err := scanStore(r.db.QueryRowContext(ctx,
		`SELECT `+storeColumns+` FROM stores WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find store by ID: %w", err)
	}
	return store, nil
}

// List は全ストアを作成日時降順で返す。
func (r *PostgresStoreRepo) List(ctx context.Context) ([]*model.Store, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+storeColumns+` FROM stores ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list stores: %w", err)
	}
	defer rows.Close()

	return collectStores(rows)
}

// ListDueForSync は最終同期がolderThanより古い（または未同期の）ストアを返す。
func (r *PostgresStoreRepo) ListDueForSync(ctx context.Context, olderThan time.Time) ([]*model.Store, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+storeColumns+` FROM stores
		 WHERE last_synced_at IS NULL OR last_synced_at < $1
		 ORDER BY last_synced_at ASC NULLS FIRST`,
		olderThan)
	if err != nil {
		return nil, fmt.Errorf("failed to list stores due for sync: %w", err)
	}
	defer rows.Close()

	return collectStores(rows)
}

// collectStores は複数行のストアをスキャンして返す。
func collectStores(rows *sql.Rows) ([]*model.Store, error) {
	var stores []*model.Store
	for rows.Next() {
		store, err := scanStore(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan store: %w", err)
		}
		stores = append(stores, store)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stores: %w", err)
	}
	return stores, nil
}

// UpdateTokens はアクセストークン/リフレッシュトークンのペアを更新し、
// 更新後のストアを返す。
func (r *PostgresStoreRepo) UpdateTokens(ctx context.Context, storeID string, access, refresh model.OAuthToken) (*model.Store, error) {
	store, err := scanStore(r.db.QueryRowContext(ctx,
		`UPDATE stores
		 SET access_token = $2, access_token_expires_at = $3,
		     refresh_token = $4, refresh_token_expires_at = $5,
		     updated_at = now()
		 WHERE id = $1
		 RETURNING `+storeColumns,
		storeID, access.Token, access.ExpireAt, refresh.Token, refresh.ExpireAt))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("store not found: %s", storeID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update store tokens: %w", err)
	}
	return store, nil
}

// UpdateLastSyncedAt は最終同期時刻を更新する。
func (r *PostgresStoreRepo) UpdateLastSyncedAt(ctx context.Context, storeID string, syncedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE stores SET last_synced_at = $2, updated_at = now() WHERE id = $1`,
		storeID, syncedAt)
	if err != nil {
		return fmt.Errorf("failed to update last synced at: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのストアを削除する。所属する商品はCASCADE削除される。
func (r *PostgresStoreRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM stores WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete store: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("store not found: %s", id)
	}
	return nil
}

// compile-time interface check
var _ StoreRepository = (*PostgresStoreRepo)(nil)
