// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hitoshi/shopsync/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// Create はユーザーを作成する。
	// メールアドレスが重複している場合はDuplicateEmailエラーを返す。
	Create(ctx context.Context, user *model.User) error

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByResetTokenHash はリセットトークンのハッシュでユーザーを検索する。
	// 有効期限が過ぎているレコードは対象外とし、nilを返す。
	FindByResetTokenHash(ctx context.Context, tokenHash string, now time.Time) (*model.User, error)

	// UpdateProfile は名前と電話番号を更新する。パスワードは更新しない。
	UpdateProfile(ctx context.Context, id, name, phone string) (*model.User, error)

	// UpdatePassword はパスワードハッシュと変更時刻を更新し、
	// リセットトークンをクリアする。
	UpdatePassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error

	// SetResetToken はリセットトークンのハッシュと有効期限を保存する。
	SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error

	// List は全ユーザーを作成日時降順で返す。
	List(ctx context.Context) ([]*model.User, error)

	// ListCreatedSince は指定時刻以降に登録されたユーザーを返す。
	ListCreatedSince(ctx context.Context, since time.Time) ([]*model.User, error)

	// DeleteByID は指定IDのユーザーを削除する。
	DeleteByID(ctx context.Context, id string) error
}

// StoreRepository はストアデータの永続化インターフェース。
// OAuthトークンペアはStoreだけが所有するため、トークンの更新は
// UpdateTokens経由でのみ行う。
type StoreRepository interface {
	// Create はストアを作成する。
	Create(ctx context.Context, store *model.Store) error

	// FindByID は指定IDのストアを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Store, error)

	// List は全ストアを返す。
	List(ctx context.Context) ([]*model.Store, error)

	// ListDueForSync は最終同期がolderThanより古い（または未同期の）ストアを返す。
	ListDueForSync(ctx context.Context, olderThan time.Time) ([]*model.Store, error)

	// UpdateTokens はアクセストークン/リフレッシュトークンのペアを更新し、
	// 更新後のストアを返す。
	UpdateTokens(ctx context.Context, storeID string, access, refresh model.OAuthToken) (*model.Store, error)

	// UpdateLastSyncedAt は最終同期時刻を更新する。
	UpdateLastSyncedAt(ctx context.Context, storeID string, syncedAt time.Time) error

	// DeleteByID は指定IDのストアを削除する。
	// 所属する商品はCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// ProductRepository は商品データの永続化インターフェース。
// 商品はページネーションプルによる一括作成のみで、個別更新はしない。
type ProductRepository interface {
	// BulkInsert は1ページ分の商品ペイロードをストアに紐付けて一括作成し、
	// 作成件数を返す。ページ単位で永続化することでメモリ使用量を抑え、
	// プル途中の失敗時にも取得済みページを失わない。
	BulkInsert(ctx context.Context, storeID string, payloads []json.RawMessage) (int, error)

	// CountByStoreID はストアの商品数を返す。
	CountByStoreID(ctx context.Context, storeID string) (int, error)

	// ListByStoreID はストアの商品一覧を作成日時降順で返す。
	ListByStoreID(ctx context.Context, storeID string, limit, offset int) ([]*model.Product, error)

	// DeleteByStoreID はストアの全商品を削除する。再同期前のクリアに使用する。
	DeleteByStoreID(ctx context.Context, storeID string) error
}
