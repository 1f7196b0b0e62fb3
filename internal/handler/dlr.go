package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	domain "github.com/oggyb/sms-gateway/internal/domain/message"
	"github.com/oggyb/sms-gateway/internal/response"
	"github.com/oggyb/sms-gateway/internal/signature"
)

// maxReceiptBytes bounds the webhook body read into memory.
const maxReceiptBytes = 64 << 10

// ReceiptProcessor applies a signed delivery receipt.
type ReceiptProcessor interface {
	Handle(ctx context.Context, body []byte, sig string) (*domain.Message, error)
}

// DLRHandler receives delivery receipts from the SMS provider.
type DLRHandler struct {
	processor ReceiptProcessor
	logger    *slog.Logger
}

func NewDLRHandler(processor ReceiptProcessor, logger *slog.Logger) *DLRHandler {
	return &DLRHandler{processor: processor, logger: logger}
}

// Receive godoc
// @Summary     Delivery receipt webhook
// @Description Applies a DELIVERED or FAILED receipt. The X-Provider-Signature header must be
// @Description the hex HMAC-SHA256 of the raw body under the shared secret.
// @Tags        webhooks
// @Accept      json
// @Produce     json
// @Param       X-Provider-Signature header string                  true "hex HMAC-SHA256 of the body"
// @Param       request              body   request.DeliveryReceipt true "Receipt"
// @Success     200 {object} response.ReceiptResponse
// @Failure     400 {object} response.ErrorResponse
// @Failure     403 {object} response.ErrorResponse
// @Failure     404 {object} response.ErrorResponse
// @Failure     409 {object} response.ErrorResponse
// @Router      /webhooks/dlr [post]
func (h *DLRHandler) Receive(w http.ResponseWriter, r *http.Request) {
	// The signature covers the exact bytes, so the body is read raw.
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxReceiptBytes))
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, domain.MsgMissingFields)
		return
	}

	msg, err := h.processor.Handle(r.Context(), body, r.Header.Get(signature.Header))
	if err != nil {
		respondErr(w, r, h.logger, err, msgReferenceNotFound)
		return
	}

	response.RespondJSON(w, http.StatusOK, response.ReceiptPayload{
		Message:   msgDLRProcessed,
		MessageID: msg.ID.String(),
		Status:    string(msg.Status),
	})
}
