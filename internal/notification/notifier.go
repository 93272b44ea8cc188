// Package notification は外部通知コラボレーターの抽象を提供する。
// メール等の実配送はこのコアの責務ではなく、インターフェースの背後に置く。
package notification

import (
	"context"
	"log/slog"

	"github.com/hitoshi/shopsync/internal/model"
)

// Notifier はユーザー向け通知の送信インターフェース。
type Notifier interface {
	// SendPasswordReset はパスワードリセットトークンをユーザーに送付する。
	// tokenは平文のリセットトークン。実装側はこれを永続化してはならない。
	SendPasswordReset(ctx context.Context, user *model.User, token string) error
}

// LogNotifier は実配送を行わず、送信要求をログに記録するNotifier実装。
// メール配送基盤が未接続の環境（開発・テスト）で使用する。
// トークン自体はログに出さない。
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier はLogNotifierを生成する。
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// SendPasswordReset は送信要求をログに記録する。常に成功する。
func (n *LogNotifier) SendPasswordReset(ctx context.Context, user *model.User, token string) error {
	n.logger.Info("password reset notification requested",
		slog.String("user_id", user.ID),
		slog.Int("token_length", len(token)),
	)
	return nil
}

// compile-time interface check
var _ Notifier = (*LogNotifier)(nil)
