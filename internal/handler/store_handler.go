package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/shopsync/internal/model"
	"github.com/hitoshi/shopsync/internal/product"
)

// oauthStateCookieName はOAuth状態トークンを保持するCookieの名前。
const oauthStateCookieName = "oauth_state"

// oauthStateTTL は認可フロー開始からコールバックまでの猶予時間。
const oauthStateTTL = 10 * time.Minute

// StoreServiceInterface はストアハンドラーが必要とするサービスインターフェース。
type StoreServiceInterface interface {
	AuthorizationURL(state string) string
	Authorize(ctx context.Context, code string) (*model.Store, error)
	Get(ctx context.Context, id string) (*model.Store, error)
	List(ctx context.Context) ([]*model.Store, error)
	Delete(ctx context.Context, id string) error
}

// ProductServiceInterface は商品操作のサービスインターフェース。
type ProductServiceInterface interface {
	Pull(ctx context.Context, storeID string) (*product.PullResult, error)
	List(ctx context.Context, storeID string, limit, offset int) ([]*model.Product, error)
	Count(ctx context.Context, storeID string) (int, error)
	Clear(ctx context.Context, storeID string) error
}

// StoreHandlerConfig はストアハンドラーの設定。
type StoreHandlerConfig struct {
	CookieSecure bool
	CookieDomain string
}

// StoreHandler はマーケットプレイス連携と商品のHTTPハンドラー。
type StoreHandler struct {
	stores   StoreServiceInterface
	products ProductServiceInterface
	config   StoreHandlerConfig
}

// NewStoreHandler はStoreHandlerを生成する。
func NewStoreHandler(stores StoreServiceInterface, products ProductServiceInterface, config StoreHandlerConfig) *StoreHandler {
	return &StoreHandler{
		stores:   stores,
		products: products,
		config:   config,
	}
}

// storeResponse はストア情報のAPIレスポンス。
// アクセストークン/リフレッシュトークンは決して含めない。
type storeResponse struct {
	ID            string          `json:"id"`
	ShopType      string          `json:"shop_type"`
	CountryRegion string          `json:"country_region"`
	StoreName     string          `json:"store_name"`
	ShopData      json.RawMessage `json:"shop_data,omitempty"`
	LastSyncedAt  *time.Time      `json:"last_synced_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

func toStoreResponse(s *model.Store) storeResponse {
	return storeResponse{
		ID:            s.ID,
		ShopType:      string(s.ShopType),
		CountryRegion: s.CountryRegion,
		StoreName:     s.StoreName,
		ShopData:      s.ShopData,
		LastSyncedAt:  s.LastSyncedAt,
		CreatedAt:     s.CreatedAt,
	}
}

// productResponse は商品情報のAPIレスポンス。
type productResponse struct {
	ID        string          `json:"id"`
	StoreID   string          `json:"store_id"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// authorizeRequest はOAuthコールバックリクエストのボディ。
type authorizeRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

// AuthURL はOAuth認可URLを生成して返す。
// CSRF対策のstateトークンを発行し、検証用にCookieへ保存する。
// GET /api/lazada/auth-url
func (h *StoreHandler) AuthURL(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		handleServiceError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookieName,
		Value:    state,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   int(oauthStateTTL.Seconds()),
		Secure:   h.config.CookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	writeData(w, http.StatusOK, map[string]string{
		"url": h.stores.AuthorizationURL(state),
	})
}

// Callback はOAuthコールバックを処理し、ストアを登録する。
// stateがCookieの値と一致しない場合は認可を拒否する。
// POST /api/lazada/callback
func (h *StoreHandler) Callback(w http.ResponseWriter, r *http.Request) {
	var req authorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "リクエストボディの解析に失敗しました。")
		return
	}

	cookie, err := r.Cookie(oauthStateCookieName)
	if err != nil || cookie.Value == "" || cookie.Value != req.State {
		writeBadRequest(w, "OAuth状態トークンの検証に失敗しました。認可フローを最初からやり直してください。")
		return
	}

	// stateは使い捨て
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		Secure:   h.config.CookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	store, err := h.stores.Authorize(r.Context(), req.Code)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusCreated, toStoreResponse(store))
}

// List は連携済みストア一覧を返す。
// GET /api/stores
func (h *StoreHandler) List(w http.ResponseWriter, r *http.Request) {
	stores, err := h.stores.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	out := make([]storeResponse, 0, len(stores))
	for _, s := range stores {
		out = append(out, toStoreResponse(s))
	}
	writeData(w, http.StatusOK, out)
}

// Get は指定IDのストア情報を返す。
// GET /api/stores/{id}
func (h *StoreHandler) Get(w http.ResponseWriter, r *http.Request) {
	store, err := h.stores.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, toStoreResponse(store))
}

// Delete はストアの連携解除を処理する。所属する商品も削除される。
// DELETE /api/stores/{id}
func (h *StoreHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.stores.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	writeNoContent(w)
}

// Pull はストアの商品プルを実行する。
// POST /api/stores/{id}/pull
func (h *StoreHandler) Pull(w http.ResponseWriter, r *http.Request) {
	result, err := h.products.Pull(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, result)
}

// ListProducts はストアの商品一覧を返す。
// GET /api/stores/{id}/products
func (h *StoreHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "id")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	items, err := h.products.List(r.Context(), storeID, limit, offset)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	total, err := h.products.Count(r.Context(), storeID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	out := make([]productResponse, 0, len(items))
	for _, p := range items {
		out = append(out, productResponse{
			ID:        p.ID,
			StoreID:   p.StoreID,
			Payload:   p.Payload,
			CreatedAt: p.CreatedAt,
		})
	}
	writeData(w, http.StatusOK, map[string]any{
		"total":    total,
		"products": out,
	})
}

// ClearProducts はストアの商品を全削除する。
// DELETE /api/stores/{id}/products
func (h *StoreHandler) ClearProducts(w http.ResponseWriter, r *http.Request) {
	if err := h.products.Clear(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	writeNoContent(w)
}

// generateState は32バイトの乱数から64文字の16進stateトークンを生成する。
func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
