// Package httputil holds small HTTP helpers shared by the REST gateway.
package httputil

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ngo-portal/event-chat/pkg/logger"
)

type envelope map[string]any

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.L().Error("write json response failed", "err", err)
	}
}

// Error пишет унифицированную ошибку: {"error":{"message":...}}.
func Error(ctx context.Context, w http.ResponseWriter, status int, msg string) {
	if status >= http.StatusInternalServerError {
		logger.FromContext(ctx).Error("request failed", "status", status, "msg", msg)
	}
	JSON(w, status, envelope{
		"error": envelope{"message": msg},
	})
}
