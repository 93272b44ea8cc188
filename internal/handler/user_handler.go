package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/shopsync/internal/middleware"
	"github.com/hitoshi/shopsync/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	Get(ctx context.Context, id string) (*model.User, error)
	UpdateProfile(ctx context.Context, id, name, phone string) (*model.User, error)
	List(ctx context.Context) ([]*model.User, error)
	ListRecent(ctx context.Context) ([]*model.User, error)
	Delete(ctx context.Context, id string) error
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{service: service}
}

// updateProfileRequest はプロフィール更新リクエストのボディ。
type updateProfileRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Me はログイン中ユーザーの情報を返す。
// GET /api/users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, model.NewUnauthorizedError("ログインしていません。ログインしてからアクセスしてください。"))
		return
	}
	writeData(w, http.StatusOK, toUserResponse(user))
}

// UpdateMe はログイン中ユーザーのプロフィール更新を処理する。
// PATCH /api/users/me
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, model.NewUnauthorizedError("ログインしていません。ログインしてからアクセスしてください。"))
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "リクエストボディの解析に失敗しました。")
		return
	}

	updated, err := h.service.UpdateProfile(r.Context(), user.ID, req.Name, req.Phone)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, toUserResponse(updated))
}

// DeleteMe はログイン中ユーザーの退会を処理する。
// DELETE /api/users/me
func (h *UserHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, model.NewUnauthorizedError("ログインしていません。ログインしてからアクセスしてください。"))
		return
	}

	if err := h.service.Delete(r.Context(), user.ID); err != nil {
		handleServiceError(w, err)
		return
	}
	writeNoContent(w)
}

// List は全ユーザー一覧を返す。管理者専用。
// GET /api/users
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, toUserResponses(users))
}

// ListRecent は直近7日間に登録されたユーザー一覧を返す。管理者専用。
// GET /api/users/new
func (h *UserHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListRecent(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, toUserResponses(users))
}

// Get は指定IDのユーザー情報を返す。管理者専用。
// GET /api/users/{id}
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, toUserResponse(user))
}

// Update は指定IDのユーザーのプロフィール更新を処理する。管理者専用。
// PATCH /api/users/{id}
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "リクエストボディの解析に失敗しました。")
		return
	}

	updated, err := h.service.UpdateProfile(r.Context(), chi.URLParam(r, "id"), req.Name, req.Phone)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, toUserResponse(updated))
}

// Delete は指定IDのユーザー削除を処理する。管理者専用。
// DELETE /api/users/{id}
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	writeNoContent(w)
}

func toUserResponses(users []*model.User) []userResponse {
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	return out
}
