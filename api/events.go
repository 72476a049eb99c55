package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/hookline/hookline"
	"github.com/hookline/hookline/dlog"
	"github.com/hookline/hookline/event"
	"github.com/hookline/hookline/id"
)

type ingestRequest struct {
	EventType string          `json:"eventType"`
	Payload   json.RawMessage `json:"payload"`
}

type ingestResponse struct {
	EventID      id.ID     `json:"eventId"`
	ReceivedAt   time.Time `json:"receivedAt"`
	Duplicate    bool      `json:"duplicate"`
	ProcessingMs int64     `json:"processingMs"`
}

func (h *Handler) createEvent(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req ingestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "invalid request body")
		return
	}

	evt, dup, err := h.svc.Ingest(r.Context(), hookline.IngestInput{
		IdempotencyKey: r.Header.Get("X-Idempotency-Key"),
		EventType:      req.EventType,
		Payload:        req.Payload,
	})
	if err != nil {
		switch {
		case errors.Is(err, hookline.ErrMissingIdempotencyKey):
			writeError(w, http.StatusBadRequest, codeMissingIdempotencyKey, "X-Idempotency-Key header is required")
		case errors.Is(err, hookline.ErrInvalidEventType),
			errors.Is(err, hookline.ErrInvalidPayload),
			errors.Is(err, hookline.ErrPayloadTooLarge),
			errors.Is(err, hookline.ErrPayloadValidationFailed):
			writeError(w, http.StatusBadRequest, codeValidation, err.Error())
		default:
			h.writeInternal(w, err)
		}
		return
	}

	writeJSON(w, http.StatusAccepted, ingestResponse{
		EventID:      evt.ID,
		ReceivedAt:   evt.ReceivedAt,
		Duplicate:    dup,
		ProcessingMs: time.Since(start).Milliseconds(),
	})
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	offset, limit := pagination(r)

	from, err := queryTime(r, "startDate")
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "startDate must be RFC 3339")
		return
	}
	to, err := queryTime(r, "endDate")
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "endDate must be RFC 3339")
		return
	}

	events, err := h.svc.Store().ListEvents(r.Context(), event.ListOpts{
		Offset: offset,
		Limit:  limit,
		Type:   queryParam(r, "eventType"),
		From:   from,
		To:     to,
	})
	if err != nil {
		h.writeInternal(w, err)
		return
	}

	writeJSON(w, http.StatusOK, events)
}

type eventDetail struct {
	Event        *event.Event `json:"event"`
	DeliveryLogs []*dlog.Log  `json:"delivery_logs"`
}

func (h *Handler) getEvent(w http.ResponseWriter, r *http.Request) {
	evtID, err := id.ParseEventID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, codeEventNotFound, "event not found")
		return
	}

	evt, getErr := h.svc.Store().GetEvent(r.Context(), evtID)
	if getErr != nil {
		if errors.Is(getErr, hookline.ErrEventNotFound) {
			writeError(w, http.StatusNotFound, codeEventNotFound, "event not found")
			return
		}
		h.writeInternal(w, getErr)
		return
	}

	logs, logsErr := h.svc.Store().ListLogs(r.Context(), dlog.ListOpts{EventID: &evt.ID})
	if logsErr != nil {
		h.writeInternal(w, logsErr)
		return
	}

	writeJSON(w, http.StatusOK, eventDetail{Event: evt, DeliveryLogs: logs})
}
