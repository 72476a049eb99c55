package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// Stable machine-readable error codes. Clients branch on the code, not the
// message.
const (
	codeMissingIdempotencyKey = "MISSING_IDEMPOTENCY_KEY"
	codeValidation            = "VALIDATION_ERROR"
	codeInvalidURL            = "INVALID_URL"
	codeDuplicateSubscription = "DUPLICATE_SUBSCRIPTION"
	codeEventNotFound         = "EVENT_NOT_FOUND"
	codeSubscriptionNotFound  = "SUBSCRIPTION_NOT_FOUND"
	codeLogNotFound           = "LOG_NOT_FOUND"
	codeSchemaNotFound        = "SCHEMA_NOT_FOUND"
	codeInvalidRetry          = "INVALID_RETRY"
	codeInactiveSubscription  = "INACTIVE_SUBSCRIPTION"
	codeInternal              = "INTERNAL_ERROR"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// JSON helpers.

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best effort
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{Code: code, Message: msg}})
}

// writeInternal reports a 500, hiding the underlying error outside dev mode.
func (h *Handler) writeInternal(w http.ResponseWriter, err error) {
	msg := "internal server error"
	if h.devMode {
		msg = err.Error()
	}
	writeError(w, http.StatusInternalServerError, codeInternal, msg)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// queryParam returns a query parameter value, or empty string if not present.
func queryParam(r *http.Request, key string) string {
	return r.URL.Query().Get(key)
}

// queryInt returns a query parameter as int or a default value.
func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}

// pagination maps 1-based page/limit query parameters to offset/limit.
func pagination(r *http.Request) (offset, limit int) {
	page := queryInt(r, "page", 1)
	if page < 1 {
		page = 1
	}
	limit = queryInt(r, "limit", 50)
	return (page - 1) * limit, limit
}

// queryTime parses an RFC 3339 query parameter, returning nil when absent.
func queryTime(r *http.Request, key string) (*time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
