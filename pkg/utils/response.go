package utils

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/murphlabs/murph/backend/pkg/apperr"
)

// RespondJSON 发送JSON响应
func RespondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// RespondError 发送错误响应
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, ErrorBody{Error: message, Kind: string(apperr.InvalidArgument)})
}

// ErrorBody is the error envelope every handler writes.
type ErrorBody struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	Retryable bool   `json:"retryable"`
}

// RespondAppError 按错误类别选择状态码，并告诉前端能否重试。
func RespondAppError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	RespondJSON(w, apperr.HTTPStatus(kind), ErrorBody{
		Error:     apperr.Message(err),
		Kind:      string(kind),
		Retryable: apperr.Retryable(err),
	})
}

// DecodeJSON 解析请求体，失败时返回 InvalidArgument。
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		return apperr.New(apperr.InvalidArgument, "decode", "invalid request body")
	}
	return nil
}
