package middleware

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/shopsync/internal/model"
)

// RequireRole は認証済みユーザーのロールを検証するミドルウェアを返す。
// 許可リストに含まれないロールのリクエストは403で遮断し、
// 後続のハンドラーは実行しない。
// 認証ミドルウェアの後に配置すること。
func RequireRole(roles ...model.Role) func(next http.Handler) http.Handler {
	allowed := make(map[model.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := UserFromContext(r.Context())
			if err != nil {
				WriteErrorResponse(w, model.NewUnauthorizedError("ログインしていません。ログインしてからアクセスしてください。"))
				return
			}

			if _, ok := allowed[user.Role]; !ok {
				slog.Warn("権限不足のアクセスを拒否しました",
					slog.String("user_id", user.ID),
					slog.String("role", string(user.Role)),
					slog.String("path", r.URL.Path),
				)
				WriteErrorResponse(w, model.NewForbiddenError())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
