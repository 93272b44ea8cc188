// Package model はドメインモデルを定義する。
package model

import "time"

// Role はユーザーの権限区分を表す。
type Role string

const (
	// RoleUser は一般ユーザー。
	RoleUser Role = "user"
	// RoleAdmin は管理者ユーザー。
	RoleAdmin Role = "admin"
)

// Valid は既知のロールかどうかを判定する。
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}

// User はサービス利用ユーザーを表す。
// PasswordHashはbcryptハッシュ。APIレスポンスには含めないこと。
type User struct {
	ID                string
	Name              string
	Email             string
	Phone             string
	Role              Role
	PasswordHash      string
	PasswordChangedAt time.Time
	// ResetTokenHash はパスワードリセットトークンのSHA-256ハッシュ（hex）。
	// 未発行の場合は空文字列。トークンは一度使用されたらクリアされる。
	ResetTokenHash      string
	ResetTokenExpiresAt *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// PasswordChangedAfter は指定時刻より後にパスワードが変更されたかを判定する。
// trueの場合、issuedAt時点で発行されたセッショントークンは無効として扱う
// （ブロックリストを持たないパスワード変更による失効方式）。
// JWTのiatは秒精度のため、比較は秒に切り詰めて行う。
// 同秒の変更は失効させない（変更直後に再発行されるトークンを生かすため）。
func (u *User) PasswordChangedAfter(issuedAt time.Time) bool {
	return u.PasswordChangedAt.Truncate(time.Second).After(issuedAt.Truncate(time.Second))
}

// HasValidResetToken は有効期限内のリセットトークンが発行済みかを判定する。
func (u *User) HasValidResetToken(now time.Time) bool {
	if u.ResetTokenHash == "" || u.ResetTokenExpiresAt == nil {
		return false
	}
	return u.ResetTokenExpiresAt.After(now)
}
