// Package user はユーザー管理機能を提供する。
// 本人のプロフィール操作と管理者向けのユーザー管理を含む。
package user

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/shopsync/internal/model"
	"github.com/hitoshi/shopsync/internal/repository"
)

// recentWindow は新規ユーザー一覧の集計期間。
const recentWindow = 7 * 24 * time.Hour

// Service はユーザー管理のビジネスロジックを提供する。
// パスワードとリセットトークンの操作は扱わない（auth.Serviceの責務）。
type Service struct {
	users  repository.UserRepository
	logger *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(users repository.UserRepository, logger *slog.Logger) *Service {
	return &Service{
		users:  users,
		logger: logger,
	}
}

// Get は指定IDのユーザーを取得する。
func (s *Service) Get(ctx context.Context, id string) (*model.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// UpdateProfile は名前と電話番号を更新する。
// パスワードの変更は受け付けない。
func (s *Service) UpdateProfile(ctx context.Context, id, name, phone string) (*model.User, error) {
	if name == "" {
		return nil, model.NewValidationError("名前を入力してください。")
	}

	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	return s.users.UpdateProfile(ctx, id, name, phone)
}

// List は全ユーザーを返す。管理者向け。
func (s *Service) List(ctx context.Context) ([]*model.User, error) {
	return s.users.List(ctx)
}

// ListRecent は直近7日間に登録されたユーザーを返す。管理者向け。
func (s *Service) ListRecent(ctx context.Context) ([]*model.User, error) {
	return s.users.ListCreatedSince(ctx, time.Now().Add(-recentWindow))
}

// Delete は指定IDのユーザーを削除する。
func (s *Service) Delete(ctx context.Context, id string) error {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	if err := s.users.DeleteByID(ctx, id); err != nil {
		return err
	}

	s.logger.Info("ユーザーを削除しました",
		slog.String("user_id", id),
	)
	return nil
}
