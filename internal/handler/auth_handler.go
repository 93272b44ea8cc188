package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/shopsync/internal/auth"
	"github.com/hitoshi/shopsync/internal/middleware"
	"github.com/hitoshi/shopsync/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Signup(ctx context.Context, input auth.SignupInput) (*model.User, string, error)
	Login(ctx context.Context, email, password string) (*model.User, string, error)
	UpdatePassword(ctx context.Context, userID, currentPassword, newPassword, confirm string) (*model.User, string, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, plainToken, newPassword, confirm string) (*model.User, string, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieSecure bool
	CookieDomain string
	CookieMaxAge time.Duration
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

// userResponse はユーザー情報のAPIレスポンス。
// パスワードハッシュとリセットトークンは決して含めない。
type userResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserResponse(user *model.User) userResponse {
	return userResponse{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		Phone:     user.Phone,
		Role:      string(user.Role),
		CreatedAt: user.CreatedAt,
	}
}

// signupRequest はサインアップリクエストのボディ。
type signupRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
	Phone           string `json:"phone"`
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// updatePasswordRequest はパスワード変更リクエストのボディ。
type updatePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	PasswordConfirm string `json:"password_confirm"`
}

// forgotPasswordRequest はパスワードリセット要求のボディ。
type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// resetPasswordRequest はパスワードリセット実行のボディ。
type resetPasswordRequest struct {
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

// Signup はユーザー登録を処理する。
// POST /api/auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "リクエストボディの解析に失敗しました。")
		return
	}

	user, token, err := h.service.Signup(r.Context(), auth.SignupInput{
		Name:            req.Name,
		Email:           req.Email,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
		Phone:           req.Phone,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.setAuthCookie(w, token)
	writeData(w, http.StatusCreated, toUserResponse(user))
}

// Login はログインを処理する。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "リクエストボディの解析に失敗しました。")
		return
	}

	user, token, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.setAuthCookie(w, token)
	writeData(w, http.StatusOK, toUserResponse(user))
}

// Logout はログアウトを処理する。認証Cookieを無効化する。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.clearAuthCookie(w)
	writeData(w, http.StatusOK, nil)
}

// UpdatePassword はログイン中ユーザーのパスワード変更を処理する。
// 変更後は新しいトークンを再発行する。
// PATCH /api/auth/password
func (h *AuthHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, model.NewUnauthorizedError("ログインしていません。ログインしてからアクセスしてください。"))
		return
	}

	var req updatePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "リクエストボディの解析に失敗しました。")
		return
	}

	updated, token, err := h.service.UpdatePassword(r.Context(), user.ID, req.CurrentPassword, req.NewPassword, req.PasswordConfirm)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.setAuthCookie(w, token)
	writeData(w, http.StatusOK, toUserResponse(updated))
}

// ForgotPassword はパスワードリセットトークンの発行を処理する。
// POST /api/auth/forgot-password
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "リクエストボディの解析に失敗しました。")
		return
	}

	if err := h.service.ForgotPassword(r.Context(), req.Email); err != nil {
		handleServiceError(w, err)
		return
	}

	writeData(w, http.StatusOK, map[string]string{
		"message": "パスワードリセット用のトークンを送信しました。",
	})
}

// ResetPassword はリセットトークンによるパスワード再設定を処理する。
// 成功時は新しいトークンを発行してログイン状態にする。
// PATCH /api/auth/reset-password/{token}
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	plainToken := chi.URLParam(r, "token")

	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "リクエストボディの解析に失敗しました。")
		return
	}

	user, token, err := h.service.ResetPassword(r.Context(), plainToken, req.Password, req.PasswordConfirm)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.setAuthCookie(w, token)
	writeData(w, http.StatusOK, toUserResponse(user))
}

// setAuthCookie はHTTP Onlyの認証Cookieを設定する。
func (h *AuthHandler) setAuthCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AuthCookieName,
		Value:    token,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   int(h.config.CookieMaxAge.Seconds()),
		Secure:   h.config.CookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearAuthCookie は認証Cookieを失効させる。
func (h *AuthHandler) clearAuthCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AuthCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		Secure:   h.config.CookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
