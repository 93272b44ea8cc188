// Package handler はHTTP APIのハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/shopsync/internal/middleware"
	"github.com/hitoshi/shopsync/internal/model"
)

// successResponse は成功レスポンスの統一フォーマット。
type successResponse struct {
	Status string `json:"status"` // 常に "success"
	Data   any    `json:"data,omitempty"`
}

// writeData は統一フォーマットで成功レスポンスを書き込む。
func writeData(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(successResponse{
		Status: "success",
		Data:   data,
	})
}

// writeNoContent は204 No Contentを書き込む。
func writeNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// handleServiceError はサービス層から返されたエラーをHTTPレスポンスに変換する。
// APIErrorはそのステータスコードとコードで返し、それ以外は詳細を
// ログのみに記録して500を返す。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, apiErr)
		return
	}

	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// writeBadRequest は不正なリクエストボディのエラーレスポンスを書き込む。
func writeBadRequest(w http.ResponseWriter, message string) {
	middleware.WriteErrorResponse(w, model.NewValidationError(message))
}
