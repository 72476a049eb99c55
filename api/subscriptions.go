package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/hookline/hookline"
	"github.com/hookline/hookline/id"
	"github.com/hookline/hookline/subscription"
)

type subscriptionRequest struct {
	EventType string `json:"event_type"`
	TargetURL string `json:"target_url"`
	Active    *bool  `json:"is_active,omitempty"`
}

// createdSubscription carries the signing secret alongside the subscription.
// This is the only response that ever contains the secret.
type createdSubscription struct {
	*subscription.Subscription
	SecretKey string `json:"secret_key"`
}

func (h *Handler) createSubscription(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "invalid request body")
		return
	}

	sub, err := h.svc.Subscriptions().Create(r.Context(), subscription.Input{
		EventType: req.EventType,
		TargetURL: req.TargetURL,
		Active:    req.Active,
	})
	if err != nil {
		switch {
		case errors.Is(err, hookline.ErrInvalidTargetURL):
			writeError(w, http.StatusBadRequest, codeInvalidURL, err.Error())
		case errors.Is(err, subscription.ErrInvalidEventType):
			writeError(w, http.StatusBadRequest, codeValidation, err.Error())
		case errors.Is(err, hookline.ErrDuplicateSubscription):
			writeError(w, http.StatusConflict, codeDuplicateSubscription, err.Error())
		default:
			h.writeInternal(w, err)
		}
		return
	}

	writeJSON(w, http.StatusCreated, createdSubscription{
		Subscription: sub,
		SecretKey:    sub.Secret,
	})
}

func (h *Handler) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	offset, limit := pagination(r)

	opts := subscription.ListOpts{
		Offset:    offset,
		Limit:     limit,
		EventType: queryParam(r, "eventType"),
	}
	if v := queryParam(r, "isActive"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeValidation, "isActive must be true or false")
			return
		}
		opts.Active = &active
	}

	subs, err := h.svc.Subscriptions().List(r.Context(), opts)
	if err != nil {
		h.writeInternal(w, err)
		return
	}

	writeJSON(w, http.StatusOK, subs)
}

func (h *Handler) getSubscription(w http.ResponseWriter, r *http.Request) {
	subID, err := id.ParseSubscriptionID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, codeSubscriptionNotFound, "subscription not found")
		return
	}

	sub, getErr := h.svc.Subscriptions().Get(r.Context(), subID)
	if getErr != nil {
		if errors.Is(getErr, hookline.ErrSubscriptionNotFound) {
			writeError(w, http.StatusNotFound, codeSubscriptionNotFound, "subscription not found")
			return
		}
		h.writeInternal(w, getErr)
		return
	}

	writeJSON(w, http.StatusOK, sub)
}

func (h *Handler) updateSubscription(w http.ResponseWriter, r *http.Request) {
	subID, err := id.ParseSubscriptionID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, codeSubscriptionNotFound, "subscription not found")
		return
	}

	var req subscriptionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "invalid request body")
		return
	}

	sub, updateErr := h.svc.Subscriptions().Update(r.Context(), subID, subscription.Input{
		EventType: req.EventType,
		TargetURL: req.TargetURL,
		Active:    req.Active,
	})
	if updateErr != nil {
		switch {
		case errors.Is(updateErr, hookline.ErrSubscriptionNotFound):
			writeError(w, http.StatusNotFound, codeSubscriptionNotFound, "subscription not found")
		case errors.Is(updateErr, hookline.ErrInvalidTargetURL):
			writeError(w, http.StatusBadRequest, codeInvalidURL, updateErr.Error())
		case errors.Is(updateErr, subscription.ErrInvalidEventType):
			writeError(w, http.StatusBadRequest, codeValidation, updateErr.Error())
		case errors.Is(updateErr, hookline.ErrDuplicateSubscription):
			writeError(w, http.StatusConflict, codeDuplicateSubscription, updateErr.Error())
		default:
			h.writeInternal(w, updateErr)
		}
		return
	}

	writeJSON(w, http.StatusOK, sub)
}

func (h *Handler) deleteSubscription(w http.ResponseWriter, r *http.Request) {
	subID, err := id.ParseSubscriptionID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, codeSubscriptionNotFound, "subscription not found")
		return
	}

	if deleteErr := h.svc.Subscriptions().Delete(r.Context(), subID); deleteErr != nil {
		if errors.Is(deleteErr, hookline.ErrSubscriptionNotFound) {
			writeError(w, http.StatusNotFound, codeSubscriptionNotFound, "subscription not found")
			return
		}
		h.writeInternal(w, deleteErr)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
