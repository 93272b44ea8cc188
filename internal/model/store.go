// Package model はドメインモデルを定義する。
package model

import (
	"encoding/json"
	"time"
)

// ShopType はストアが属するマーケットプレイスの種別を表す。
type ShopType string

const (
	// ShopTypeLazada はLazadaマーケットプレイス。
	ShopTypeLazada ShopType = "lazada"
)

// OAuthToken はマーケットプレイスのOAuthトークンと絶対有効期限のペアを表す。
// ExpireAtは常に「発行時刻 + expires_in秒」で計算する。
type OAuthToken struct {
	Token    string
	ExpireAt time.Time
}

// Expired は有効期限が過ぎているかを判定する。
// expireAt <= now を期限切れとして扱う。
func (t OAuthToken) Expired(now time.Time) bool {
	return !t.ExpireAt.After(now)
}

// Store はOAuth連携済みのマーケットプレイスストアを表す。
// アクセストークン/リフレッシュトークンのペアはStoreだけが所有し、
// トークンリフレッシュガード以外から更新してはならない。
type Store struct {
	ID            string
	ShopType      ShopType
	CountryRegion string
	StoreName     string
	// ShopData はマーケットプレイスから取得したセラープロフィールのスナップショット。
	// 正規化せずそのまま保持する。
	ShopData     json.RawMessage
	AccessToken  OAuthToken
	RefreshToken OAuthToken
	// LastSyncedAt は商品同期が最後に完了した時刻。未同期の場合はnil。
	LastSyncedAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
