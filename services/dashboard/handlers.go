package dashboard

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/masterries/AutoAnalyse/internal/analysis"
	"github.com/masterries/AutoAnalyse/internal/store"
	"github.com/masterries/AutoAnalyse/logger"
)

// Handlers exposes the read-only dashboard endpoints over the store.
type Handlers struct {
	store *store.Store
	log   *logger.Logger
}

// NewHandlers creates the dashboard handlers.
func NewHandlers(st *store.Store) *Handlers {
	return &Handlers{store: st, log: logger.ForDashboard()}
}

// ScoredVehicle is one vehicle with its market score attached.
type ScoredVehicle struct {
	analysis.Vehicle
	Score analysis.Score `json:"score"`
}

// VehiclesResponse bundles the scored vehicles with their market analysis.
type VehiclesResponse struct {
	Vehicles       []ScoredVehicle         `json:"vehicles"`
	MarketAnalysis analysis.MarketAnalysis `json:"market_analysis"`
}

// GetMakesModels lists all distinct (make, model) pairs with their active
// listing counts.
func (h *Handlers) GetMakesModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.store.VehicleModels(r.Context())
	if err != nil {
		h.serverError(w, err)
		return
	}
	if models == nil {
		models = []store.VehicleModel{}
	}
	writeJSON(w, http.StatusOK, models)
}

// GetVehicles returns a model's vehicles sorted best score first, together
// with the cohort's market analysis.
func (h *Handlers) GetVehicles(w http.ResponseWriter, r *http.Request) {
	carMake := chi.URLParam(r, "make")
	carModel := chi.URLParam(r, "model")

	listings, err := h.store.ListingsByPrice(r.Context(), carMake, carModel)
	if err != nil {
		h.serverError(w, err)
		return
	}

	vehicles := make([]analysis.Vehicle, 0, len(listings))
	for _, l := range listings {
		vehicles = append(vehicles, analysis.NewVehicle(l))
	}

	market := analysis.Market(vehicles)

	scored := make([]ScoredVehicle, 0, len(vehicles))
	for _, v := range vehicles {
		scored = append(scored, ScoredVehicle{
			Vehicle: v,
			Score:   analysis.VehicleScore(v, market),
		})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score.TotalScore > scored[j].Score.TotalScore
	})

	writeJSON(w, http.StatusOK, VehiclesResponse{
		Vehicles:       scored,
		MarketAnalysis: market,
	})
}

// GetAnalysis returns the market analysis for one (make, model).
func (h *Handlers) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	carMake := chi.URLParam(r, "make")
	carModel := chi.URLParam(r, "model")

	listings, err := h.store.ActiveListings(r.Context(), carMake, carModel)
	if err != nil {
		h.serverError(w, err)
		return
	}

	vehicles := make([]analysis.Vehicle, 0, len(listings))
	for _, l := range listings {
		vehicles = append(vehicles, analysis.NewVehicle(l))
	}

	writeJSON(w, http.StatusOK, analysis.Market(vehicles))
}

// GetStats returns the store statistics for one (make, model).
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	carMake := chi.URLParam(r, "make")
	carModel := chi.URLParam(r, "model")

	stats, err := h.store.Statistics(r.Context(), carMake, carModel)
	if err != nil {
		h.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GetPriceHistory returns the price change ledger for one (make, model),
// newest first. An optional limit query parameter bounds the row count.
func (h *Handlers) GetPriceHistory(w http.ResponseWriter, r *http.Request) {
	carMake := chi.URLParam(r, "make")
	carModel := chi.URLParam(r, "model")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSONError(w, http.StatusBadRequest, "invalid limit value")
			return
		}
		limit = n
	}

	history, err := h.store.PriceHistory(r.Context(), carMake, carModel, limit)
	if err != nil {
		h.serverError(w, err)
		return
	}
	if history == nil {
		history = []store.PriceChange{}
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *Handlers) serverError(w http.ResponseWriter, err error) {
	h.log.Error().Err(err).Msg("Request failed")
	writeJSONError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
