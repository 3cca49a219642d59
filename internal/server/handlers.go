package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/aristath/sentinel-vault/internal/modules/persistence"
)

const defaultJournalLimit = 50

// VaultHandlers serves the vault read models
type VaultHandlers struct {
	vault   VaultReader
	journal JournalReader
	log     zerolog.Logger
}

// NewVaultHandlers creates vault handlers
func NewVaultHandlers(vault VaultReader, journal JournalReader, log zerolog.Logger) *VaultHandlers {
	return &VaultHandlers{
		vault:   vault,
		journal: journal,
		log:     log.With().Str("handler", "vault").Logger(),
	}
}

// HandleSummary handles GET /api/vault
func (h *VaultHandlers) HandleSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.log, http.StatusOK, h.vault.Summary())
}

// HandleFees handles GET /api/vault/fees
func (h *VaultHandlers) HandleFees(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.log, http.StatusOK, h.vault.FeeState())
}

type routeStep struct {
	Adapter domain.AdapterID `json:"adapter"`
	Params  int              `json:"params_bytes"`
}

// HandleRoute handles GET /api/vault/route
func (h *VaultHandlers) HandleRoute(w http.ResponseWriter, r *http.Request) {
	route := h.vault.Route()
	out := make([]routeStep, len(route))
	for i, e := range route {
		out[i] = routeStep{Adapter: e.Adapter, Params: len(e.Params)}
	}
	writeJSON(w, h.log, http.StatusOK, out)
}

// HandleJournal handles GET /api/vault/journal?limit=N
func (h *VaultHandlers) HandleJournal(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeJSON(w, h.log, http.StatusOK, []persistence.JournalEntry{})
		return
	}

	limit := defaultJournalLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, h.log, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := h.journal.Journal(r.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read journal")
		writeError(w, h.log, http.StatusInternalServerError, "failed to read journal")
		return
	}
	if entries == nil {
		entries = []persistence.JournalEntry{}
	}
	writeJSON(w, h.log, http.StatusOK, entries)
}

// HandleMarkets handles GET /api/markets
func (h *VaultHandlers) HandleMarkets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.log, http.StatusOK, h.vault.Markets())
}

// HandleMarket handles GET /api/markets/{id}
func (h *VaultHandlers) HandleMarket(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseMarketID(chi.URLParam(r, "id"))
	if err != nil || id.IsZero() {
		writeError(w, h.log, http.StatusBadRequest, "invalid market id")
		return
	}

	market, err := h.vault.Market(id)
	if errors.Is(err, domain.ErrUnknownMarket) {
		writeError(w, h.log, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, h.log, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, h.log, http.StatusOK, market)
}

func writeJSON(w http.ResponseWriter, log zerolog.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func writeError(w http.ResponseWriter, log zerolog.Logger, status int, message string) {
	writeJSON(w, log, status, map[string]string{"error": message})
}
