package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/shopsync/internal/model"
)

// uniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const uniqueViolation = "23505"

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const userColumns = `id, name, email, phone, role, password_hash, password_changed_at,
	COALESCE(reset_token_hash, ''), reset_token_expires_at, created_at, updated_at`

// scanUser は1行分のユーザーをスキャンする。
func scanUser(row interface{ Scan(dest ...any) error }) (*model.User, error) {
	user := &model.User{}
	err := row.Scan(
		&user.ID, &user.Name, &user.Email, &user.Phone, &user.Role,
		&user.PasswordHash, &user.PasswordChangedAt,
		&user.ResetTokenHash, &user.ResetTokenExpiresAt,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Create はユーザーを作成する。
// メールアドレスが重複している場合はDuplicateEmailエラーを返す。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, phone, role, password_hash, password_changed_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		user.ID, user.Name, user.Email, user.Phone, user.Role,
		user.PasswordHash, user.PasswordChangedAt, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == uniqueViolation {
			return model.NewDuplicateEmailError()
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// FindByResetTokenHash はリセットトークンのハッシュでユーザーを検索する。
// 有効期限が過ぎているレコードは対象外とし、nilを返す。
func (r *PostgresUserRepo) FindByResetTokenHash(ctx context.Context, tokenHash string, now time.Time) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE reset_token_hash = $1 AND reset_token_expires_at > $2`,
		tokenHash, now))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by reset token: %w", err)
	}
	return user, nil
}

// UpdateProfile は名前と電話番号を更新する。パスワードは更新しない。
func (r *PostgresUserRepo) UpdateProfile(ctx context.Context, id, name, phone string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`UPDATE users SET name = $2, phone = $3, updated_at = now()
		 WHERE id = $1
		 RETURNING `+userColumns,
		id, name, phone))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update user profile: %w", err)
	}
	return user, nil
}

// UpdatePassword はパスワードハッシュと変更時刻を更新し、リセットトークンをクリアする。
func (r *PostgresUserRepo) UpdatePassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET password_hash = $2, password_changed_at = $3,
		     reset_token_hash = NULL, reset_token_expires_at = NULL,
		     updated_at = now()
		 WHERE id = $1`,
		id, passwordHash, changedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %s", id)
	}
	return nil
}

// SetResetToken はリセットトークンのハッシュと有効期限を保存する。
func (r *PostgresUserRepo) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET reset_token_hash = $2, reset_token_expires_at = $3, updated_at = now()
		 WHERE id = $1`,
		id, tokenHash, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to set reset token: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %s", id)
	}
	return nil
}

// List は全ユーザーを作成日時降順で返す。
func (r *PostgresUserRepo) List(ctx context.Context) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	return collectUsers(rows)
}

// ListCreatedSince は指定時刻以降に登録されたユーザーを返す。
func (r *PostgresUserRepo) ListCreatedSince(ctx context.Context, since time.Time) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE created_at >= $1 ORDER BY created_at DESC`,
		since)
	if err != nil {
		return nil, fmt.Errorf("failed to list new users: %w", err)
	}
	defer rows.Close()

	return collectUsers(rows)
}

// collectUsers は複数行のユーザーをスキャンして返す。
func collectUsers(rows *sql.Rows) ([]*model.User, error) {
	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// DeleteByID は指定IDのユーザーを削除する。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %s", id)
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
