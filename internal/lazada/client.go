// Package lazada はLazada Open Platform APIのクライアントを提供する。
// OAuthトークンの発行・更新、セラー情報と商品一覧の取得を含む。
package lazada

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hitoshi/shopsync/internal/model"
)

const (
	// defaultAuthGatewayURL はトークン発行・更新APIのゲートウェイ。
	// 商品APIと異なり、国に依存しない。
	defaultAuthGatewayURL = "https://auth.lazada.com/rest"
	// defaultAuthorizeURL はセラーが認可するOAuth認可ページのURL。
	defaultAuthorizeURL = "https://auth.lazada.com/oauth/authorize"

	// maxAttempts は429/5xx/ネットワークエラー時の最大試行回数。
	maxAttempts = 3
	// initialRetryDelay はリトライの初回遅延。2倍ずつ増加する。
	initialRetryDelay = 500 * time.Millisecond
)

// Config はLazadaクライアントの設定。
type Config struct {
	AppKey    string
	AppSecret string

	HTTPClient *http.Client
	Logger     *slog.Logger

	// テスト用にオーバーライド可能なURL
	AuthGatewayURL string
	AuthorizeURL   string
	GatewayURL     string // 設定時は国別ゲートウェイより優先される
}

// Factory はLazada APIクライアントのファクトリー。
// 国に依存しないOAuth操作もここが担う。
type Factory struct {
	cfg Config
}

// NewFactory はFactoryの新しいインスタンスを生成する。
func NewFactory(cfg Config) *Factory {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.AuthGatewayURL == "" {
		cfg.AuthGatewayURL = defaultAuthGatewayURL
	}
	if cfg.AuthorizeURL == "" {
		cfg.AuthorizeURL = defaultAuthorizeURL
	}
	return &Factory{cfg: cfg}
}

// AuthorizationURL はセラーをリダイレクトするOAuth認可URLを生成する。
// stateはコールバックで検証するCSRF対策トークン。
func (f *Factory) AuthorizationURL(redirectURI, state string) string {
	params := url.Values{
		"client_id":     {f.cfg.AppKey},
		"redirect_uri":  {redirectURI},
		"force_auth":    {"true"},
		"response_type": {"code"},
		"state":         {state},
	}
	return f.cfg.AuthorizeURL + "?" + params.Encode()
}

// TokenResponse はトークン発行・更新APIのレスポンス。
// expires_in / refresh_expires_in は秒単位の有効期間。
type TokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
	Country          string `json:"country"`
	Account          string `json:"account"`
}

// CreateAccessToken は認可コードをアクセストークンに交換する。
func (f *Factory) CreateAccessToken(ctx context.Context, code string) (*TokenResponse, error) {
	body, err := f.doRequest(ctx, f.cfg.AuthGatewayURL, "/auth/token/create", map[string]string{
		"code": code,
	}, "")
	if err != nil {
		return nil, err
	}

	var resp TokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, model.NewUpstreamError("トークンレスポンスのパースに失敗しました")
	}
	if resp.AccessToken == "" {
		return nil, model.NewUpstreamError("アクセストークンが空です")
	}
	return &resp, nil
}

// RefreshAccessToken はリフレッシュトークンでアクセストークンを更新する。
func (f *Factory) RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	body, err := f.doRequest(ctx, f.cfg.AuthGatewayURL, "/auth/token/refresh", map[string]string{
		"refresh_token": refreshToken,
	}, "")
	if err != nil {
		return nil, err
	}

	var resp TokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, model.NewUpstreamError("トークンレスポンスのパースに失敗しました")
	}
	if resp.AccessToken == "" {
		return nil, model.NewUpstreamError("アクセストークンが空です")
	}
	return &resp, nil
}

// ClientFor は指定の国・地域コード向けのAPIクライアントを生成する。
// 未対応のコードはエラーを返す。
func (f *Factory) ClientFor(region, accessToken string) (*Client, error) {
	country, err := CountryFromRegion(region)
	if err != nil {
		return nil, err
	}
	gateway := f.cfg.GatewayURL
	if gateway == "" {
		gateway = country.GatewayURL()
	}
	return &Client{
		f:           f,
		gatewayURL:  gateway,
		accessToken: accessToken,
	}, nil
}

// Client は国別ゲートウェイに紐付いたAPIクライアント。
// Factory.ClientForで生成する。
type Client struct {
	f           *Factory
	gatewayURL  string
	accessToken string
}

// Seller はセラー情報。
type Seller struct {
	Name     string `json:"name"`
	SellerID int64  `json:"seller_id"`
	Email    string `json:"email"`
}

// GetSeller は認可されたセラーの情報を取得する。
func (c *Client) GetSeller(ctx context.Context) (*Seller, error) {
	body, err := c.f.doRequest(ctx, c.gatewayURL, "/seller/get", nil, c.accessToken)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data Seller `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, model.NewUpstreamError("セラー情報のパースに失敗しました")
	}
	return &resp.Data, nil
}

// ProductPage は商品一覧APIの1ページ分のレスポンス。
type ProductPage struct {
	TotalProducts int               `json:"total_products"`
	Products      []json.RawMessage `json:"products"`
}

// GetProducts は商品一覧を1ページ取得する。
// 空ページ（Productsが空）が終端の合図となる。
func (c *Client) GetProducts(ctx context.Context, offset, limit int) (*ProductPage, error) {
	body, err := c.f.doRequest(ctx, c.gatewayURL, "/products/get", map[string]string{
		"offset": strconv.Itoa(offset),
		"limit":  strconv.Itoa(limit),
	}, c.accessToken)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data ProductPage `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, model.NewUpstreamError("商品一覧のパースに失敗しました")
	}
	return &resp.Data, nil
}

// apiEnvelope は全APIレスポンス共通のエンベロープ。
// codeが"0"以外はAPIレベルのエラーを表す。
type apiEnvelope struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

// doRequest は署名付きGETリクエストを実行し、レスポンスボディを返す。
// 429/5xx/ネットワークエラーは指数バックオフ付きでリトライする。
// 4xxやAPIレベルのエラーはリトライせず即座に失敗させる。
func (f *Factory) doRequest(ctx context.Context, baseURL, apiPath string, apiParams map[string]string, accessToken string) ([]byte, error) {
	var lastErr error
	delay := initialRetryDelay

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		// timestampを含めて署名するため、リトライごとにURLを作り直す。
		// バックオフ後に同じ署名を使い回すとゲートウェイに弾かれる。
		body, retryable, err := f.once(ctx, f.signedURL(baseURL, apiPath, apiParams, accessToken), apiPath)
		if err == nil {
			return body, nil
		}
		if !retryable {
			return nil, err
		}

		lastErr = err
		f.cfg.Logger.Warn("Lazada APIの呼び出しをリトライします",
			slog.String("api_path", apiPath),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
	}

	return nil, lastErr
}

// signedURL は共通パラメータと署名を付与したリクエストURLを組み立てる。
func (f *Factory) signedURL(baseURL, apiPath string, apiParams map[string]string, accessToken string) string {
	params := map[string]string{
		"app_key":     f.cfg.AppKey,
		"timestamp":   strconv.FormatInt(time.Now().UnixMilli(), 10),
		"sign_method": "sha256",
	}
	if accessToken != "" {
		params["access_token"] = accessToken
	}
	for k, v := range apiParams {
		params[k] = v
	}
	params["sign"] = Sign(f.cfg.AppSecret, apiPath, params)

	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	return baseURL + apiPath + "?" + values.Encode()
}

// once は1回分のHTTPリクエストを実行する。
// 2番目の戻り値はエラーがリトライ可能かどうかを示す。
func (f *Factory) once(ctx context.Context, reqURL, apiPath string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}

	resp, err := f.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, true, model.NewUpstreamError(err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, model.NewUpstreamError("レスポンスボディの読み取りに失敗しました")
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, true, model.NewUpstreamError(fmt.Sprintf("%s がステータス %d を返しました", apiPath, resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, model.NewUpstreamError(fmt.Sprintf("%s がステータス %d を返しました", apiPath, resp.StatusCode))
	}

	var env apiEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, false, model.NewUpstreamError("レスポンスJSONのパースに失敗しました")
	}
	if env.Code != "0" {
		return nil, false, model.NewUpstreamError(fmt.Sprintf("%s がエラーコード %s を返しました: %s", apiPath, env.Code, env.Message))
	}

	return body, false, nil
}
