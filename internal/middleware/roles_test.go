package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/shopsync/internal/model"
)

func TestRequireRole_AllowsMatchingRole(t *testing.T) {
	mw := RequireRole(model.RoleAdmin)
	nextCalled := false
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	ctx := ContextWithUser(req.Context(), &model.User{ID: "admin-1", Role: model.RoleAdmin})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req.WithContext(ctx))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if !nextCalled {
		t.Error("許可されたロールで後続ハンドラーが呼ばれるべき")
	}
}

func TestRequireRole_BlocksOtherRole(t *testing.T) {
	mw := RequireRole(model.RoleAdmin)
	nextCalled := false
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	ctx := ContextWithUser(req.Context(), &model.User{ID: "user-1", Role: model.RoleUser})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req.WithContext(ctx))

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
	// 403の書き込み後に処理が続行されないこと
	if nextCalled {
		t.Error("権限不足で後続ハンドラーが呼ばれるべきではない")
	}
}

func TestRequireRole_NoUser_Returns401(t *testing.T) {
	mw := RequireRole(model.RoleAdmin)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("未認証で後続ハンドラーが呼ばれるべきではない")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRequireRole_MultipleRoles(t *testing.T) {
	mw := RequireRole(model.RoleUser, model.RoleAdmin)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/api/stores", nil)
	ctx := ContextWithUser(req.Context(), &model.User{ID: "user-1", Role: model.RoleUser})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req.WithContext(ctx))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
