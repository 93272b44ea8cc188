package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hitoshi/shopsync/internal/model"
)

// PostgresProductRepo はPostgreSQLを使用した商品リポジトリ。
type PostgresProductRepo struct {
	db *sql.DB
}

// NewPostgresProductRepo はPostgresProductRepoを生成する。
func NewPostgresProductRepo(db *sql.DB) *PostgresProductRepo {
	return &PostgresProductRepo{db: db}
}

// BulkInsert は1ページ分の商品ペイロードをストアに紐付けて一括作成し、作成件数を返す。
// pq.CopyInを使用してページ全体を1トランザクションで書き込む。
// ページ単位で呼び出すことで、プル途中の失敗時にも取得済みページは失われない。
func (r *PostgresProductRepo) BulkInsert(ctx context.Context, storeID string, payloads []json.RawMessage) (int, error) {
	if len(payloads) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("products",
		"id", "store_id", "payload", "created_at", "updated_at"))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare bulk insert: %w", err)
	}

	now := time.Now()
	for _, payload := range payloads {
		if _, err := stmt.ExecContext(ctx, uuid.New().String(), storeID, string(payload), now, now); err != nil {
			stmt.Close()
			return 0, fmt.Errorf("failed to buffer product row: %w", err)
		}
	}

	// 空のExecでバッファをフラッシュする
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return 0, fmt.Errorf("failed to flush bulk insert: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return 0, fmt.Errorf("failed to close bulk insert statement: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit bulk insert: %w", err)
	}

	return len(payloads), nil
}

// CountByStoreID はストアの商品数を返す。
func (r *PostgresProductRepo) CountByStoreID(ctx context.Context, storeID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM products WHERE store_id = $1`, storeID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return count, nil
}

// ListByStoreID はストアの商品一覧を作成日時降順で返す。
func (r *PostgresProductRepo) ListByStoreID(ctx context.Context, storeID string, limit, offset int) ([]*model.Product, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, store_id, payload, created_at, updated_at
		 FROM products WHERE store_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		storeID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []*model.Product
	for rows.Next() {
		p := &model.Product{}
		var payload []byte
		if err := rows.Scan(&p.ID, &p.StoreID, &payload, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		p.Payload = payload
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate products: %w", err)
	}
	return products, nil
}

// DeleteByStoreID はストアの全商品を削除する。
func (r *PostgresProductRepo) DeleteByStoreID(ctx context.Context, storeID string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM products WHERE store_id = $1`, storeID); err != nil {
		return fmt.Errorf("failed to delete products: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ProductRepository = (*PostgresProductRepo)(nil)
