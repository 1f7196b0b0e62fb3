package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	domain "github.com/oggyb/sms-gateway/internal/domain/message"
	"github.com/oggyb/sms-gateway/internal/request"
	"github.com/oggyb/sms-gateway/internal/response"
	"github.com/oggyb/sms-gateway/internal/service"
)

// IdempotencyKeyHeader carries the client's send_msg:<token> key.
const IdempotencyKeyHeader = "Idempotency-Key"

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// MessageService is what the message endpoints need from the service layer.
type MessageService interface {
	Lookup(ctx context.Context, key string) (*domain.Message, error)
	Submit(ctx context.Context, in service.SubmitInput) (*domain.Message, bool, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Message, error)
	List(ctx context.Context, f domain.Filter) ([]*domain.Message, int64, error)
}

// MessageHandler wires HTTP endpoints to the message service.
type MessageHandler struct {
	msgSvc MessageService
	logger *slog.Logger
}

// NewMessageHandler constructs a new MessageHandler with its dependencies.
func NewMessageHandler(msgSvc MessageService, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{msgSvc: msgSvc, logger: logger}
}

// Create godoc
// @Summary     Submit a message
// @Description Creates a message for the idempotency key and enqueues it for dispatch.
// @Description A repeated key returns the stored message with 200 and enqueues nothing.
// @Tags        messages
// @Accept      json
// @Produce     json
// @Param       Idempotency-Key header string                        true "send_msg:<token>"
// @Param       request         body   request.CreateMessageRequest true "Message"
// @Success     201 {object} response.MessageResponse
// @Success     200 {object} response.MessageResponse
// @Failure     400 {object} response.ErrorResponse
// @Failure     500 {object} response.ErrorResponse
// @Router      /messages [post]
func (h *MessageHandler) Create(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get(IdempotencyKeyHeader)
	if _, err := domain.ParseIdempotencyKey(key); err != nil {
		response.RespondError(w, http.StatusBadRequest, domain.MsgInvalidIdempotencyKey)
		return
	}

	// A known key returns the stored message as is; the body is not read.
	existing, err := h.msgSvc.Lookup(r.Context(), key)
	switch {
	case err == nil:
		response.RespondJSON(w, http.StatusOK, response.FromDomainMessage(existing))
		return
	case !errors.Is(err, domain.ErrNotFound):
		respondErr(w, r, h.logger, err, msgMessageNotFound)
		return
	}

	var req request.CreateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.RespondError(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}
	if err := request.Validate(req); err != nil {
		response.RespondError(w, http.StatusBadRequest, schemaMessage(err))
		return
	}

	msg, created, err := h.msgSvc.Submit(r.Context(), service.SubmitInput{
		IdempotencyKey: key,
		SenderID:       req.SenderID,
		Recipient:      req.Recipient,
		Text:           req.Text,
	})
	if err != nil {
		respondErr(w, r, h.logger, err, msgMessageNotFound)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	response.RespondJSON(w, status, response.FromDomainMessage(msg))
}

// Get godoc
// @Summary     Get a message
// @Tags        messages
// @Produce     json
// @Param       id path string true "Message id"
// @Success     200 {object} response.MessageResponse
// @Failure     404 {object} response.ErrorResponse
// @Router      /messages/{id} [get]
func (h *MessageHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		// An id that cannot exist is reported the same as an unknown one.
		response.RespondError(w, http.StatusNotFound, msgMessageNotFound)
		return
	}

	msg, err := h.msgSvc.Get(r.Context(), id)
	if err != nil {
		respondErr(w, r, h.logger, err, msgMessageNotFound)
		return
	}

	response.RespondJSON(w, http.StatusOK, response.FromDomainMessage(msg))
}

// List godoc
// @Summary     List messages
// @Description Returns a paginated list of messages, newest first.
// @Tags        messages
// @Produce     json
// @Param       status query string false "Filter by status" Enums(INITIATED, QUEUED, SENT, DELIVERED, FAILED)
// @Param       page   query int    false "Page number"         default(1)
// @Param       limit  query int    false "Page size (max 100)" default(20)
// @Success     200 {object} response.MessageListResponse
// @Failure     400 {object} response.ErrorResponse
// @Failure     500 {object} response.ErrorResponse
// @Router      /messages [get]
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := domain.Filter{Page: 1, Limit: defaultPageLimit}
	if v := q.Get("status"); v != "" {
		status, ok := domain.ParseStatus(v)
		if !ok {
			response.RespondError(w, http.StatusBadRequest, domain.MsgInvalidStatus)
			return
		}
		f.Status = status
	}
	if v, err := strconv.Atoi(q.Get("page")); err == nil && v > 0 {
		f.Page = v
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 && v <= maxPageLimit {
		f.Limit = v
	}

	items, total, err := h.msgSvc.List(r.Context(), f)
	if err != nil {
		respondErr(w, r, h.logger, err, msgMessageNotFound)
		return
	}

	response.RespondJSON(w, http.StatusOK, response.MessageListPayload{
		Items: response.FromDomainMessages(items),
		Total: total,
		Page:  f.Page,
		Limit: f.Limit,
	})
}
