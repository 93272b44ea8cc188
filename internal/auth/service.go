// Package auth は認証・認可に関するビジネスロジックを提供する。
// サインアップ、ログイン、パスワード変更・リセット、および
// セッショントークンの検証（パスワード変更による失効を含む）を扱う。
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/shopsync/internal/model"
	"github.com/hitoshi/shopsync/internal/notification"
	"github.com/hitoshi/shopsync/internal/repository"
	"github.com/hitoshi/shopsync/internal/token"
)

const (
	// minPasswordLength はパスワードの最小文字数。
	minPasswordLength = 8
	// resetTokenTTL はパスワードリセットトークンの有効期間。
	resetTokenTTL = 10 * time.Minute
)

// TokenService はセッショントークンの発行・検証インターフェース。
type TokenService interface {
	Issue(userID string) (string, error)
	Verify(tokenStr string) (*token.SessionClaims, error)
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	users    repository.UserRepository
	tokens   TokenService
	notifier notification.Notifier
}

// NewService はServiceを生成する。
func NewService(users repository.UserRepository, tokens TokenService, notifier notification.Notifier) *Service {
	return &Service{
		users:    users,
		tokens:   tokens,
		notifier: notifier,
	}
}

// SignupInput はサインアップの入力。
type SignupInput struct {
	Name            string
	Email           string
	Password        string
	PasswordConfirm string
	Phone           string
}

// Signup は新規ユーザーを作成し、セッショントークンを発行する。
// メールアドレス重複はリポジトリ層でDuplicateEmailエラーになる。
func (s *Service) Signup(ctx context.Context, input SignupInput) (*model.User, string, error) {
	if input.Email == "" || input.Password == "" {
		return nil, "", model.NewValidationError("メールアドレスとパスワードを入力してください。")
	}
	if input.Password != input.PasswordConfirm {
		return nil, "", model.NewValidationError("パスワードと確認用パスワードが一致しません。")
	}
	if len(input.Password) < minPasswordLength {
		return nil, "", model.NewValidationError(fmt.Sprintf("パスワードは%d文字以上で入力してください。", minPasswordLength))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &model.User{
		ID:                uuid.New().String(),
		Name:              input.Name,
		Email:             input.Email,
		Phone:             input.Phone,
		Role:              model.RoleUser,
		PasswordHash:      string(hash),
		PasswordChangedAt: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, "", err
	}

	tok, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to issue session token: %w", err)
	}

	slog.Info("new user signed up", slog.String("user_id", user.ID))
	return user, tok, nil
}

// Login はメールアドレスとパスワードで認証し、セッショントークンを発行する。
// ユーザー不在とパスワード不一致は意図的に同一のエラーを返す
// （ユーザー列挙攻撃を防ぐため）。
func (s *Service) Login(ctx context.Context, email, password string) (*model.User, string, error) {
	if email == "" || password == "" {
		return nil, "", model.NewValidationError("メールアドレスとパスワードを入力してください。")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, "", fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, "", model.NewLoginFailedError()
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, "", model.NewLoginFailedError()
	}

	tok, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to issue session token: %w", err)
	}

	slog.Info("user logged in", slog.String("user_id", user.ID))
	return user, tok, nil
}

// Authenticate はセッショントークンを検証し、現在のユーザーを返す。
// トークンが無効・期限切れ、ユーザーが存在しない、または
// トークン発行後にパスワードが変更されていた場合はUnauthorizedエラーを返す。
// すべての保護された操作はこのメソッドを通過しなければならない。
func (s *Service) Authenticate(ctx context.Context, tokenStr string) (*model.User, error) {
	claims, err := s.tokens.Verify(tokenStr)
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload user: %w", err)
	}
	if user == nil {
		return nil, model.NewUnauthorizedError("このトークンのユーザーは既に存在しません。")
	}

	if user.PasswordChangedAfter(claims.IssuedAt) {
		return nil, model.NewTokenRevokedError()
	}

	return user, nil
}

// UpdatePassword は現在のパスワードを検証した上でパスワードを更新し、
// 新しいセッショントークンを発行する。
// パスワード変更時刻の更新により、既存トークンは全て失効する。
func (s *Service) UpdatePassword(ctx context.Context, userID, currentPassword, newPassword, confirm string) (*model.User, string, error) {
	if newPassword != confirm {
		return nil, "", model.NewValidationError("パスワードと確認用パスワードが一致しません。")
	}
	if len(newPassword) < minPasswordLength {
		return nil, "", model.NewValidationError(fmt.Sprintf("パスワードは%d文字以上で入力してください。", minPasswordLength))
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, "", model.NewUnauthorizedError("このトークンのユーザーは既に存在しません。")
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(currentPassword)) != nil {
		return nil, "", model.NewUnauthorizedError("現在のパスワードが正しくありません。")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	changedAt := time.Now()
	if err := s.users.UpdatePassword(ctx, userID, string(hash), changedAt); err != nil {
		return nil, "", fmt.Errorf("failed to update password: %w", err)
	}
	user.PasswordHash = string(hash)
	user.PasswordChangedAt = changedAt

	tok, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to issue session token: %w", err)
	}

	slog.Info("password updated", slog.String("user_id", user.ID))
	return user, tok, nil
}

// ForgotPassword は一回限りのパスワードリセットトークンを発行し、
// ハッシュと有効期限を保存した上で通知コラボレーターに送付を依頼する。
// 該当ユーザーが存在しない場合はNotFoundエラーを返す。
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	plain, err := generateResetToken()
	if err != nil {
		return fmt.Errorf("failed to generate reset token: %w", err)
	}

	expiresAt := time.Now().Add(resetTokenTTL)
	if err := s.users.SetResetToken(ctx, user.ID, hashResetToken(plain), expiresAt); err != nil {
		return fmt.Errorf("failed to save reset token: %w", err)
	}

	if err := s.notifier.SendPasswordReset(ctx, user, plain); err != nil {
		// 通知の失敗でリセットフロー自体は失敗させない
		slog.Error("failed to send password reset notification",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	slog.Info("password reset token issued", slog.String("user_id", user.ID))
	return nil
}

// ResetPassword はリセットトークンを検証してパスワードを更新し、
// 新しいセッショントークンを発行する。
// トークンは一回限り有効で、使用後（パスワード更新時）にクリアされる。
func (s *Service) ResetPassword(ctx context.Context, plainToken, newPassword, confirm string) (*model.User, string, error) {
	if newPassword != confirm {
		return nil, "", model.NewValidationError("パスワードと確認用パスワードが一致しません。")
	}
	if len(newPassword) < minPasswordLength {
		return nil, "", model.NewValidationError(fmt.Sprintf("パスワードは%d文字以上で入力してください。", minPasswordLength))
	}

	user, err := s.users.FindByResetTokenHash(ctx, hashResetToken(plainToken), time.Now())
	if err != nil {
		return nil, "", fmt.Errorf("failed to find user by reset token: %w", err)
	}
	if user == nil {
		return nil, "", model.NewInvalidResetTokenError()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	// UpdatePasswordはリセットトークンを同時にクリアする（単回使用の保証）
	changedAt := time.Now()
	if err := s.users.UpdatePassword(ctx, user.ID, string(hash), changedAt); err != nil {
		return nil, "", fmt.Errorf("failed to update password: %w", err)
	}
	user.PasswordHash = string(hash)
	user.PasswordChangedAt = changedAt
	user.ResetTokenHash = ""
	user.ResetTokenExpiresAt = nil

	tok, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to issue session token: %w", err)
	}

	slog.Info("password reset completed", slog.String("user_id", user.ID))
	return user, tok, nil
}

// generateResetToken は暗号的に安全なリセットトークンを生成する。
func generateResetToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// hashResetToken はリセットトークンの保存用SHA-256ハッシュ（hex）を計算する。
// 平文トークンはユーザーへの送付にのみ使用し、永続化しない。
func hashResetToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}
