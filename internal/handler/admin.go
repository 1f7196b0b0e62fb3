package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/oggyb/sms-gateway/internal/queue"
	"github.com/oggyb/sms-gateway/internal/request"
	"github.com/oggyb/sms-gateway/internal/response"
	"github.com/oggyb/sms-gateway/internal/scheduler"
)

// DeadLetterReader lists abandoned dispatch work.
type DeadLetterReader interface {
	DeadLetters(ctx context.Context, limit int) ([]queue.DeadLetter, error)
}

// AdminHandler exposes operator controls: the overdue monitor schedule
// and the dead-letter list.
type AdminHandler struct {
	monitor scheduler.SchedulerService
	dead    DeadLetterReader
	logger  *slog.Logger
}

func NewAdminHandler(monitor scheduler.SchedulerService, dead DeadLetterReader, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{monitor: monitor, dead: dead, logger: logger}
}

// StartStopScheduler godoc
// @Summary     Control the overdue monitor
// @Description Starts or stops the periodic overdue receipt sweep.
// @Tags        scheduler
// @Accept      json
// @Produce     json
// @Param       request body request.SchedulerRequest true "Scheduler action (start|stop)"
// @Success     200 {object} response.SchedulerControlResponse
// @Failure     400 {object} response.ErrorResponse
// @Failure     500 {object} response.ErrorResponse
// @Router      /scheduler [post]
func (h *AdminHandler) StartStopScheduler(w http.ResponseWriter, r *http.Request) {
	var req request.SchedulerRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.RespondError(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}
	if err := request.Validate(req); err != nil {
		response.RespondError(w, http.StatusBadRequest, "action must be 'start' or 'stop'")
		return
	}

	control, msg := h.monitor.Start, "scheduler started"
	if req.Action == "stop" {
		control, msg = h.monitor.Stop, "scheduler stopped"
	}
	if err := control(); err != nil {
		h.logger.ErrorContext(r.Context(), "scheduler control failed", "action", req.Action, "error", err)
		response.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response.RespondJSON(w, http.StatusOK, response.SchedulerControlPayload{
		Message: msg,
		Running: h.monitor.IsRunning(),
	})
}

// DeadLetters godoc
// @Summary     List dead letters
// @Description Returns the most recent dispatches that were abandoned.
// @Tags        dispatch
// @Produce     json
// @Param       limit query int false "Maximum records (max 500)" default(50)
// @Success     200 {object} response.DeadLettersResponse
// @Failure     500 {object} response.ErrorResponse
// @Router      /dead-letters [get]
func (h *AdminHandler) DeadLetters(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 500 {
		limit = v
	}

	items, err := h.dead.DeadLetters(r.Context(), limit)
	if err != nil {
		respondErr(w, r, h.logger, err, "")
		return
	}

	response.RespondJSON(w, http.StatusOK, response.FromDeadLetters(items))
}
