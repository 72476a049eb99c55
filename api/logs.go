package api

import (
	"errors"
	"net/http"

	"github.com/hookline/hookline"
	"github.com/hookline/hookline/dlog"
	"github.com/hookline/hookline/id"
)

func (h *Handler) listLogs(w http.ResponseWriter, r *http.Request) {
	offset, limit := pagination(r)
	opts := dlog.ListOpts{
		Offset:    offset,
		Limit:     limit,
		EventType: queryParam(r, "eventType"),
	}

	if v := queryParam(r, "eventId"); v != "" {
		evtID, err := id.ParseEventID(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeValidation, "eventId is not a valid event ID")
			return
		}
		opts.EventID = &evtID
	}
	if v := queryParam(r, "subscriptionId"); v != "" {
		subID, err := id.ParseSubscriptionID(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeValidation, "subscriptionId is not a valid subscription ID")
			return
		}
		opts.SubscriptionID = &subID
	}
	if v := queryParam(r, "status"); v != "" {
		status := dlog.Status(v)
		switch status {
		case dlog.StatusPending, dlog.StatusSuccess, dlog.StatusFailed:
			opts.Status = &status
		default:
			writeError(w, http.StatusBadRequest, codeValidation, "status must be pending, success, or failed")
			return
		}
	}

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
	opts.From, opts.To = from, to

	logs, err := h.svc.Store().ListLogs(r.Context(), opts)
	if err != nil {
		h.writeInternal(w, err)
		return
	}

	writeJSON(w, http.StatusOK, logs)
}

func (h *Handler) getLog(w http.ResponseWriter, r *http.Request) {
	logID, err := id.ParseDeliveryLogID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, codeLogNotFound, "delivery log not found")
		return
	}

	row, getErr := h.svc.Store().GetLog(r.Context(), logID)
	if getErr != nil {
		if errors.Is(getErr, hookline.ErrDeliveryLogNotFound) {
			writeError(w, http.StatusNotFound, codeLogNotFound, "delivery log not found")
			return
		}
		h.writeInternal(w, getErr)
		return
	}

	writeJSON(w, http.StatusOK, row)
}

func (h *Handler) retryLog(w http.ResponseWriter, r *http.Request) {
	logID, err := id.ParseDeliveryLogID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, codeLogNotFound, "delivery log not found")
		return
	}

	if retryErr := h.svc.RetryDelivery(r.Context(), logID); retryErr != nil {
		switch {
		case errors.Is(retryErr, hookline.ErrDeliveryLogNotFound):
			writeError(w, http.StatusNotFound, codeLogNotFound, "delivery log not found")
		case errors.Is(retryErr, hookline.ErrRetryNotAllowed):
			writeError(w, http.StatusBadRequest, codeInvalidRetry, retryErr.Error())
		case errors.Is(retryErr, hookline.ErrSubscriptionInactive):
			writeError(w, http.StatusBadRequest, codeInactiveSubscription, retryErr.Error())
		case errors.Is(retryErr, hookline.ErrEventNotFound):
			writeError(w, http.StatusNotFound, codeEventNotFound, "event not found")
		case errors.Is(retryErr, hookline.ErrSubscriptionNotFound):
			writeError(w, http.StatusNotFound, codeSubscriptionNotFound, "subscription not found")
		default:
			h.writeInternal(w, retryErr)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "enqueued"})
}
