package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/capacity"
	"github.com/xraph/capacity/quota"
	"github.com/xraph/capacity/transfer"
	"github.com/xraph/capacity/usage"
)

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Health(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) listResources(w http.ResponseWriter, r *http.Request) {
	resources, err := h.engine.ListResources(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"resources": resources})
}

func (h *Handler) listQuotas(w http.ResponseWriter, r *http.Request) {
	productIDs := r.URL.Query()["product_id"]
	if len(productIDs) == 0 {
		writeError(w, http.StatusBadRequest, "missing required query parameter \"product_id\"")
		return
	}

	quotas, err := h.engine.ListQuotas(r.Context(), productIDs)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quotas": quotas})
}

func (h *Handler) uploadQuotas(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items := make([]quota.Allocation, len(req.Quotas))
	for i, q := range req.Quotas {
		items[i] = quota.Allocation{ResourceID: q.ResourceID, Limit: q.Limit}
	}

	quotas, err := h.engine.UploadQuotas(r.Context(), chi.URLParam(r, "productID"), items)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quotas": quotas})
}

func (h *Handler) simulateTransfer(w http.ResponseWriter, r *http.Request) {
	var req draftRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sim, err := h.engine.SimulateTransfer(r.Context(), req.draft())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sim)
}

func (h *Handler) commitTransfer(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.engine.CommitToken(r.Context(), req.draft(), req.SnapshotToken)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, commitResponse{Outcome: OutcomeCommitted, Result: res})
	case errors.Is(err, capacity.ErrConflict):
		writeJSON(w, http.StatusConflict, commitResponse{Outcome: OutcomeConflict, Error: err.Error()})
	case errors.Is(err, capacity.ErrInsufficientLimit):
		writeJSON(w, http.StatusUnprocessableEntity, commitResponse{Outcome: OutcomeInsufficientLimit, Error: err.Error()})
	default:
		writeEngineError(w, err)
	}
}

func (h *Handler) usageReport(w http.ResponseWriter, r *http.Request) {
	start, err := parseDay(r, "start")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	end, err := parseDay(r, "end")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	productID := chi.URLParam(r, "productID")
	// The end day is inclusive.
	series, err := h.engine.GetUsageReport(r.Context(), productID, start, end.Add(24*time.Hour-time.Nanosecond))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"product_id": productID,
		"start":      start.Format(dateLayout),
		"end":        end.Format(dateLayout),
		"series":     series,
	})
}

func (h *Handler) recordSamples(w http.ResponseWriter, r *http.Request) {
	var req samplesRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	productID := chi.URLParam(r, "productID")
	accepted := 0
	for _, s := range req.Samples {
		free := s.Limit - s.Usage
		if s.Free != nil {
			free = *s.Free
		}
		err := h.engine.RecordSample(r.Context(), &usage.Sample{
			ProductID:  productID,
			ResourceID: s.ResourceID,
			Timestamp:  s.Timestamp,
			Usage:      s.Usage,
			Limit:      s.Limit,
			Free:       free,
		})
		if err != nil {
			writeJSON(w, statusOf(err), map[string]any{"error": err.Error(), "accepted": accepted})
			return
		}
		accepted++
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": accepted})
}

func (d draftRequest) draft() transfer.Draft {
	return transfer.Draft{
		FromProductID: d.FromProductID,
		ToProductID:   d.ToProductID,
		ResourceID:    d.ResourceID,
		Amount:        d.Amount,
	}
}
