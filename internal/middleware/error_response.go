package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/confide/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// WriteError はドメインエラーを対応するHTTPステータスの統一レスポンスに変換して書き込む。
// 変換できないエラーはログに記録し500を返す。
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr, ok := model.ToAPIError(err)
	if !ok {
		slog.Error("unhandled error",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		WriteInternalServerError(w)
		return
	}
	if errors.Is(err, model.ErrProviderUnavailable) {
		slog.Warn("provider unavailable",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	WriteErrorResponse(w, StatusForCode(apiErr.Code), apiErr)
}

// StatusForCode はエラーコードに対応するHTTPステータスを返す。
func StatusForCode(code string) int {
	switch code {
	case model.ErrCodeInvalidCredentials, model.ErrCodeNotAuthenticated:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeRecordNotFound:
		return http.StatusNotFound
	case model.ErrCodeRegistrationRejected, model.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case model.ErrCodeStoreUnprovisioned, model.ErrCodeProviderUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
