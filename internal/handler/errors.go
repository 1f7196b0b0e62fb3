package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	domain "github.com/oggyb/sms-gateway/internal/domain/message"
	"github.com/oggyb/sms-gateway/internal/response"
)

const (
	msgMessageNotFound   = "Message not found."
	msgReferenceNotFound = "Message with provider reference not found."
	msgInvalidSignature  = "Invalid signature."
	msgReceiptConflict   = "Message status does not accept this receipt."
	msgInvalidJSON       = "Invalid JSON body."
	msgInvalidID         = "Invalid message id."
	msgInternal          = "Internal server error."
	msgDLRProcessed      = "DLR processed successfully."
)

// respondErr maps a service error to a status code and writes it.
// notFound is the message used for domain.ErrNotFound.
func respondErr(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, notFound string) {
	var (
		ve *domain.ValidationError
		se *domain.SignatureError
	)

	switch {
	case errors.As(err, &ve):
		response.RespondError(w, http.StatusBadRequest, ve.Message)
	case errors.As(err, &se):
		response.RespondError(w, http.StatusForbidden, msgInvalidSignature)
	case errors.Is(err, domain.ErrNotFound):
		response.RespondError(w, http.StatusNotFound, notFound)
	case errors.Is(err, domain.ErrConflict):
		response.RespondError(w, http.StatusConflict, msgReceiptConflict)
	default:
		logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
		response.RespondError(w, http.StatusInternalServerError, msgInternal)
	}
}

// schemaMessage turns validator output into the user-facing message.
func schemaMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if fe.Field() == "SenderID" && fe.Tag() == "max" {
				return domain.MsgInvalidSender
			}
		}
	}
	return domain.MsgMissingFields
}
