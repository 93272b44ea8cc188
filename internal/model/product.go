// Package model はドメインモデルを定義する。
package model

import (
	"encoding/json"
	"time"
)

// Product はマーケットプレイスから取得した商品を表す。
// ペイロードはマーケットプレイス固有のJSONをそのまま保持し、正規化しない。
// 商品は所属Storeに存在依存する（Store削除時にCASCADE削除される）。
// ページネーションプルによる一括作成のみで、この層から個別更新はしない。
type Product struct {
	ID        string
	StoreID   string
	Payload   json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}
