package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/hitoshi/shopsync/internal/model"
)

const (
	// csrfCookieName はCSRFトークンを保持するCookieの名前。
	// フロントエンドからJavaScriptで読み取れるよう、HttpOnlyではない。
	csrfCookieName = "csrf_token"

	// csrfHeaderName はリクエストヘッダーからCSRFトークンを読み取る際のヘッダー名。
	csrfHeaderName = "X-CSRF-Token"
)

// CSRFConfig はCSRFミドルウェアの設定。
type CSRFConfig struct {
	CookieSecure bool
	CookieDomain string
}

// NewCSRFMiddleware はCSRFトークンの生成・検証ミドルウェアを返す。
// 認証がCookieベースのため、状態変更メソッド（POST, PUT, PATCH, DELETE）は
// Cookieとヘッダーのダブルサブミット検証を必須とする。
// 安全なメソッド（GET, HEAD, OPTIONS）は検証をスキップし、トークンCookieを設定する。
func NewCSRFMiddleware(config CSRFConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				ensureCSRFCookie(w, r, config)
				next.ServeHTTP(w, r)
				return
			}

			cookieToken, err := r.Cookie(csrfCookieName)
			if err != nil || cookieToken.Value == "" {
				rejectCSRF(w, r, "missing cookie token")
				return
			}

			headerToken := r.Header.Get(csrfHeaderName)
			if headerToken == "" {
				rejectCSRF(w, r, "missing header token")
				return
			}

			if cookieToken.Value != headerToken {
				rejectCSRF(w, r, "token mismatch")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func rejectCSRF(w http.ResponseWriter, r *http.Request, reason string) {
	slog.Warn("CSRF validation failed",
		slog.String("reason", reason),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)
	WriteErrorResponse(w, &model.APIError{
		Code:    "CSRF_VALIDATION_FAILED",
		Status:  http.StatusForbidden,
		Message: "CSRFトークンの検証に失敗しました。",
	})
}

// isSafeMethod は状態を変更しないHTTPメソッドかを判定する。
func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// ensureCSRFCookie はCSRFトークンCookieが未設定の場合に設定する。
func ensureCSRFCookie(w http.ResponseWriter, r *http.Request, config CSRFConfig) {
	if cookie, err := r.Cookie(csrfCookieName); err == nil && cookie.Value != "" {
		return
	}

	token, err := generateCSRFToken()
	if err != nil {
		slog.Error("CSRFトークンの生成に失敗しました",
			slog.String("error", err.Error()),
		)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		Domain:   config.CookieDomain,
		Secure:   config.CookieSecure,
		HttpOnly: false,
		SameSite: http.SameSiteLaxMode,
	})
}

// generateCSRFToken は32バイトの乱数から64文字の16進トークンを生成する。
func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
