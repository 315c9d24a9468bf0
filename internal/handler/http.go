package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/duonganh203/benkyo/internal/models"
)

type HTTPHandler struct {
	service   models.Service
	optimizer models.Optimizer
}

func NewHTTPHandler(service models.Service, optimizer models.Optimizer) *HTTPHandler {
	return &HTTPHandler{
		service:   service,
		optimizer: optimizer,
	}
}

type reviewRequest struct {
	CardID       string `json:"cardId"`
	Rating       int    `json:"rating"`
	ReviewTimeMs int64  `json:"reviewTimeMs"`
}

type reviewResponse struct {
	State    models.State `json:"state"`
	Due      string       `json:"due"`
	Interval int          `json:"interval"`
}

type dueCardsResponse struct {
	DueCardIDs []string `json:"dueCardIds"`
}

type paramsRequest struct {
	FSRSParams json.RawMessage `json:"fsrsParams"`
}

func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) ProcessReview(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.CardID == "" {
		writeError(w, http.StatusBadRequest, "cardId is required")
		return
	}

	result, err := h.service.ProcessReview(r.Context(), userIDFrom(r.Context()), req.CardID, models.Rating(req.Rating), req.ReviewTimeMs)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, reviewResponse{
		State:    result.State,
		Due:      result.Due.UTC().Format(time.RFC3339),
		Interval: result.Interval,
	})
}

func (h *HTTPHandler) DueCards(w http.ResponseWriter, r *http.Request) {
	ids, err := h.service.GetDueCards(r.Context(), userIDFrom(r.Context()), chi.URLParam(r, "deckID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dueCardsResponse{DueCardIDs: ids})
}

// TriggerOptimization answers 200 with success false when the run itself
// failed, and 409 when another run holds the deck.
func (h *HTTPHandler) TriggerOptimization(w http.ResponseWriter, r *http.Request) {
	result, err := h.optimizer.TriggerManualOptimization(r.Context(), chi.URLParam(r, "deckID"), userIDFrom(r.Context()))
	if err != nil {
		if errors.Is(err, models.ErrOptimizationInProgress) && result != nil {
			writeJSON(w, http.StatusConflict, result)
			return
		}
		writeServiceError(w, r, err)
		return
	}

	if result.Weights == nil {
		result.Weights = []float64{}
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) OptimizationStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.optimizer.GetStatus(r.Context(), chi.URLParam(r, "deckID"), userIDFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

func (h *HTTPHandler) GetParams(w http.ResponseWriter, r *http.Request) {
	params, err := h.service.GetParams(r.Context(), userIDFrom(r.Context()), chi.URLParam(r, "deckID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, params)
}

// UpdateParams applies the fields present in the body on top of the stored
// params. The stored weights are only written when the body carries w.
func (h *HTTPHandler) UpdateParams(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userIDFrom(ctx)
	deckID := chi.URLParam(r, "deckID")

	current, err := h.service.GetParams(ctx, userID, deckID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	var req paramsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.FSRSParams) == 0 || bytes.Equal(req.FSRSParams, []byte("null")) {
		writeError(w, http.StatusBadRequest, "fsrsParams is required")
		return
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(req.FSRSParams, &fields); err != nil {
		writeError(w, http.StatusBadRequest, "invalid fsrsParams: "+err.Error())
		return
	}
	_, hasWeights := fields["w"]

	dec := json.NewDecoder(bytes.NewReader(req.FSRSParams))
	dec.DisallowUnknownFields()
	if err := dec.Decode(current); err != nil {
		writeError(w, http.StatusBadRequest, "invalid fsrsParams: "+err.Error())
		return
	}

	updated, err := h.service.UpdateParams(ctx, userID, deckID, *current, !hasWeights)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *HTTPHandler) CardState(w http.ResponseWriter, r *http.Request) {
	memory, err := h.service.GetCardMemory(r.Context(), userIDFrom(r.Context()), chi.URLParam(r, "cardID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, memory)
}

func (h *HTTPHandler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	cardID := chi.URLParam(r, "cardID")
	if err := h.service.DeleteCard(r.Context(), userIDFrom(r.Context()), cardID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
