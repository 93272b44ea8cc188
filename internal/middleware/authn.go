// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/hitoshi/shopsync/internal/model"
)

// AuthCookieName は認証トークンを保持するCookieの名前。
const AuthCookieName = "auth_token"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userContextKey はリクエストコンテキストに認証済みユーザーを格納するためのキー。
var userContextKey = contextKey("user")

// Authenticator はトークンの検証とユーザーの解決に必要なインターフェース。
// auth.Serviceの部分集合として定義する。
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.User, error)
}

// NewAuthMiddleware はCookieまたはAuthorizationヘッダーからJWTを読み取り、
// 検証するミドルウェアを返す。
// 認証済みユーザーをリクエストコンテキストに注入する。
// 未認証リクエストには401 Unauthorizedを返す。
func NewAuthMiddleware(authenticator Authenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				WriteErrorResponse(w, model.NewUnauthorizedError("ログインしていません。ログインしてからアクセスしてください。"))
				return
			}

			user, err := authenticator.Authenticate(r.Context(), token)
			if err != nil {
				if apiErr, ok := err.(*model.APIError); ok {
					WriteErrorResponse(w, apiErr)
					return
				}
				WriteInternalServerError(w)
				return
			}

			ctx := ContextWithUser(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractToken はCookieまたはBearerヘッダーから認証トークンを取り出す。
// Cookieを優先する。
func extractToken(r *http.Request) string {
	if cookie, err := r.Cookie(AuthCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// UserFromContext はリクエストコンテキストから認証済みユーザーを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func UserFromContext(ctx context.Context) (*model.User, error) {
	user, ok := ctx.Value(userContextKey).(*model.User)
	if !ok || user == nil {
		return nil, fmt.Errorf("user not found in context")
	}
	return user, nil
}

// UserIDFromContext はリクエストコンテキストから認証済みユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	user, err := UserFromContext(ctx)
	if err != nil {
		return "", err
	}
	return user.ID, nil
}

// ContextWithUser はコンテキストに認証済みユーザーを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}
