package api

import (
	"net/http"

	"github.com/hookline/hookline/queue"
)

type eventStats struct {
	Total int64 `json:"total"`
}

type subscriptionStats struct {
	Total    int64 `json:"total"`
	Active   int64 `json:"active"`
	Inactive int64 `json:"inactive"`
}

type deliveryStats struct {
	Total       int64   `json:"total"`
	Success     int64   `json:"success"`
	Failed      int64   `json:"failed"`
	Pending     int64   `json:"pending"`
	SuccessRate float64 `json:"successRate"`
}

type topicStats struct {
	Depth  int64 `json:"depth"`
	Failed int64 `json:"failed"`
}

type statsResponse struct {
	Events        eventStats            `json:"events"`
	Subscriptions subscriptionStats     `json:"subscriptions"`
	Deliveries    deliveryStats         `json:"deliveries"`
	Queue         map[string]topicStats `json:"queue"`
}

func (h *Handler) getStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	st, err := h.svc.Store().Stats(ctx)
	if err != nil {
		h.writeInternal(w, err)
		return
	}

	rate := 0.0
	if st.DeliveriesTotal > 0 {
		rate = float64(st.DeliveriesSuccess) / float64(st.DeliveriesTotal) * 100
	}

	resp := statsResponse{
		Events: eventStats{Total: st.EventsTotal},
		Subscriptions: subscriptionStats{
			Total:    st.SubscriptionsTotal,
			Active:   st.SubscriptionsActive,
			Inactive: st.SubscriptionsInactive,
		},
		Deliveries: deliveryStats{
			Total:       st.DeliveriesTotal,
			Success:     st.DeliveriesSuccess,
			Failed:      st.DeliveriesFailed,
			Pending:     st.DeliveriesPending,
			SuccessRate: rate,
		},
		Queue: make(map[string]topicStats, 2),
	}

	for _, topic := range []string{queue.TopicFanout, queue.TopicDelivery} {
		depth, depthErr := h.svc.Queue().Depth(ctx, topic)
		if depthErr != nil {
			h.writeInternal(w, depthErr)
			return
		}
		failed, failedErr := h.svc.Queue().FailedCount(ctx, topic)
		if failedErr != nil {
			h.writeInternal(w, failedErr)
			return
		}
		resp.Queue[topic] = topicStats{Depth: depth, Failed: failed}
	}

	writeJSON(w, http.StatusOK, resp)
}
