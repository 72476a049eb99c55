package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hookline/hookline"
	"github.com/hookline/hookline/event"
)

func (h *Handler) putSchema(w http.ResponseWriter, r *http.Request) {
	eventType := r.PathValue("eventType")
	if !event.ValidType(eventType) {
		writeError(w, http.StatusBadRequest, codeValidation, "invalid event type name")
		return
	}

	var raw json.RawMessage
	if err := decodeJSON(w, r, &raw); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "invalid request body")
		return
	}

	sch, err := h.svc.Catalog().Put(r.Context(), eventType, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, sch)
}

func (h *Handler) listSchemas(w http.ResponseWriter, r *http.Request) {
	schemas, err := h.svc.Catalog().List(r.Context())
	if err != nil {
		h.writeInternal(w, err)
		return
	}

	writeJSON(w, http.StatusOK, schemas)
}

func (h *Handler) getSchema(w http.ResponseWriter, r *http.Request) {
	sch, err := h.svc.Catalog().Get(r.Context(), r.PathValue("eventType"))
	if err != nil {
		if errors.Is(err, hookline.ErrSchemaNotFound) {
			writeError(w, http.StatusNotFound, codeSchemaNotFound, "schema not found")
			return
		}
		h.writeInternal(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sch)
}

func (h *Handler) deleteSchema(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Catalog().Delete(r.Context(), r.PathValue("eventType")); err != nil {
		if errors.Is(err, hookline.ErrSchemaNotFound) {
			writeError(w, http.StatusNotFound, codeSchemaNotFound, "schema not found")
			return
		}
		h.writeInternal(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
