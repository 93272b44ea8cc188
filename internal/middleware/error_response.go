package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/shopsync/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
type ErrorResponseBody struct {
	Status  string `json:"status"` // 常に "error"
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// すべてのAPIエンドポイントで一貫したエラーレスポンスを提供する。
func WriteErrorResponse(w http.ResponseWriter, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.Status)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Status:  "error",
		Code:    apiErr.Code,
		Message: apiErr.Message,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, &model.APIError{
		Code:    "INTERNAL_ERROR",
		Status:  http.StatusInternalServerError,
		Message: "内部エラーが発生しました。",
	})
}
