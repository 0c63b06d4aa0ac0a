package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ngo-portal/event-chat/internal/domain"
	httpmw "github.com/ngo-portal/event-chat/internal/transport/http/middleware"
	"github.com/ngo-portal/event-chat/pkg/httputil"
	"github.com/ngo-portal/event-chat/pkg/logger"

	"github.com/go-chi/chi/v5"
)

const HeaderNextCursor = "X-Next-Cursor"

type ChatSvc interface {
	Post(ctx context.Context, senderID, eventID, content string) (*domain.Message, error)
	History(ctx context.Context, userID, eventID string, limit int, before string) (domain.Page, error)
}

type Handler struct {
	chatSvc ChatSvc
}

func NewHandler(chat ChatSvc) *Handler {
	return &Handler{chatSvc: chat}
}

// GET /events/{id}/messages?limit=&before=
// Ответ: массив сообщений от старых к новым; курсор следующей (более старой)
// страницы приходит в заголовке X-Next-Cursor.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	user, ok := httpmw.UserFromCtx(r.Context())
	if !ok {
		httputil.Error(r.Context(), w, http.StatusUnauthorized, msgUnauthenticated)
		return
	}
	eventID := chi.URLParam(r, "id")

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			httputil.Error(r.Context(), w, http.StatusBadRequest, msgInvalidLimit)
			return
		}
		limit = n
	}

	page, err := h.chatSvc.History(r.Context(), user.ID, eventID, limit, r.URL.Query().Get("before"))
	if err != nil {
		h.fail(w, r, "handler.ListMessages", err)
		return
	}

	if page.Next != nil {
		next, err := domain.EncodeCursor(*page.Next)
		if err != nil {
			h.fail(w, r, "handler.ListMessages.EncodeCursor", err)
			return
		}
		w.Header().Set(HeaderNextCursor, next)
	}
	httputil.JSON(w, http.StatusOK, page.Messages)
}

// POST /events/{id}/messages
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := httpmw.UserFromCtx(r.Context())
	if !ok {
		httputil.Error(r.Context(), w, http.StatusUnauthorized, msgUnauthenticated)
		return
	}
	eventID := chi.URLParam(r, "id")

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.FromContext(r.Context()).Debug("handler.PostMessage.Decode", "err", err)
		httputil.Error(r.Context(), w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	msg, err := h.chatSvc.Post(r.Context(), user.ID, eventID, req.Content)
	if err != nil {
		h.fail(w, r, "handler.PostMessage", err)
		return
	}
	httputil.JSON(w, http.StatusCreated, msg)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error(op, "err", err)
	}
	httputil.Error(r.Context(), w, status, msg)
}
