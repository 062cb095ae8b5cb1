package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/partshub/api/internal/platform/httpx"
	"github.com/partshub/api/internal/services"
)

const maxShipmentRequestBody = 1 << 20

// ShipmentHandlers exposes landed cost analysis, manifest building, exports and drafts.
type ShipmentHandlers struct {
	planning services.ShipmentPlanningService
	drafts   services.DraftService
}

// NewShipmentHandlers constructs the shipment handler set. Either service may be nil, in which
// case its endpoints answer 503.
func NewShipmentHandlers(planning services.ShipmentPlanningService, drafts services.DraftService) *ShipmentHandlers {
	return &ShipmentHandlers{
		planning: planning,
		drafts:   drafts,
	}
}

// Routes registers the shipment endpoints. The analyze action sits beside the /shipments
// collection, so routes are registered on the API root.
func (h *ShipmentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/shipments:analyze", h.analyze)
	r.Route("/shipments", func(rt chi.Router) {
		rt.Post("/manifest", h.buildManifest)
		rt.Post("/exports", h.export)
		rt.Get("/rate-presets", h.ratePresets)
		rt.Post("/drafts", h.saveDraft)
		rt.Get("/drafts", h.listDrafts)
		rt.Get("/drafts/{draftId}", h.loadDraft)
		rt.Delete("/drafts/{draftId}", h.deleteDraft)
	})
}

type analyzeShipmentRequest struct {
	Rates      ratesPayload          `json:"rates"`
	Lines      []manifestLinePayload `json:"lines"`
	PriceField string                `json:"priceField,omitempty"`
}

type exportShipmentRequest struct {
	Name       string                `json:"name"`
	Rates      ratesPayload          `json:"rates"`
	Lines      []manifestLinePayload `json:"lines"`
	PriceField string                `json:"priceField,omitempty"`
}

type manifestItemPayload struct {
	VariantID   string           `json:"variantId"`
	Quantity    int              `json:"quantity"`
	TargetPrice *decimal.Decimal `json:"targetPrice,omitempty"`
}

type buildManifestRequest struct {
	Items []manifestItemPayload `json:"items"`
}

type saveDraftRequest struct {
	Name  string                `json:"name"`
	Rates ratesPayload          `json:"rates"`
	Lines []manifestLinePayload `json:"lines"`
}

type exportPayload struct {
	Bucket    string `json:"bucket"`
	Object    string `json:"object"`
	Bytes     int64  `json:"bytes"`
	CreatedAt string `json:"createdAt"`
}

type draftSummaryPayload struct {
	DraftID   string `json:"draftId"`
	Name      string `json:"name"`
	SavedAt   string `json:"savedAt"`
	LineCount int    `json:"lineCount"`
}

type draftPayload struct {
	DraftID string                `json:"draftId"`
	Name    string                `json:"name"`
	SavedAt string                `json:"savedAt"`
	Rates   ratesPayload          `json:"rates"`
	Lines   []manifestLinePayload `json:"lines"`
}

func (h *ShipmentHandlers) analyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.planning == nil {
		writeServiceUnavailable(ctx, w, "shipment planning")
		return
	}

	var req analyzeShipmentRequest
	if !decodeJSONBody(w, r, maxShipmentRequestBody, &req) {
		return
	}
	rates, err := req.Rates.toRateConfig()
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_rate_config", err.Error(), http.StatusBadRequest))
		return
	}

	analysis, err := h.planning.AnalyzeShipment(ctx, services.AnalyzeShipmentCommand{
		Rates:      rates,
		Lines:      toManifestLines(req.Lines),
		PriceField: services.PriceField(strings.TrimSpace(req.PriceField)),
	})
	if err != nil {
		writeShipmentError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildAnalysisPayload(analysis))
}

func (h *ShipmentHandlers) buildManifest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.planning == nil {
		writeServiceUnavailable(ctx, w, "shipment planning")
		return
	}

	var req buildManifestRequest
	if !decodeJSONBody(w, r, maxShipmentRequestBody, &req) {
		return
	}
	items := make([]services.ManifestItemRequest, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, services.ManifestItemRequest{
			VariantID:   strings.TrimSpace(item.VariantID),
			Quantity:    item.Quantity,
			TargetPrice: item.TargetPrice,
		})
	}

	lines, err := h.planning.BuildManifest(ctx, items)
	if err != nil {
		writeShipmentError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"lines": buildManifestLinePayloads(lines)})
}

func (h *ShipmentHandlers) export(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.planning == nil {
		writeServiceUnavailable(ctx, w, "shipment planning")
		return
	}

	var req exportShipmentRequest
	if !decodeJSONBody(w, r, maxShipmentRequestBody, &req) {
		return
	}
	rates, err := req.Rates.toRateConfig()
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_rate_config", err.Error(), http.StatusBadRequest))
		return
	}

	result, err := h.planning.ExportAnalysis(ctx, services.ExportAnalysisCommand{
		Name:       strings.TrimSpace(req.Name),
		Rates:      rates,
		Lines:      toManifestLines(req.Lines),
		PriceField: services.PriceField(strings.TrimSpace(req.PriceField)),
	})
	if err != nil {
		writeShipmentError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, exportPayload{
		Bucket:    result.Bucket,
		Object:    result.Object,
		Bytes:     result.Bytes,
		CreatedAt: formatTime(result.CreatedAt),
	})
}

func (h *ShipmentHandlers) ratePresets(w http.ResponseWriter, r *http.Request) {
	if h.planning == nil {
		writeServiceUnavailable(r.Context(), w, "shipment planning")
		return
	}
	presets := h.planning.RatePresets()
	out := make([]ratePresetPayload, 0, len(presets))
	for _, preset := range presets {
		out = append(out, ratePresetPayload{
			Name:        preset.Name,
			Description: preset.Description,
			Rates:       buildRatesPayload(preset.Rates),
		})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"presets": out})
}

func (h *ShipmentHandlers) saveDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.drafts == nil {
		writeServiceUnavailable(ctx, w, "draft")
		return
	}

	var req saveDraftRequest
	if !decodeJSONBody(w, r, maxShipmentRequestBody, &req) {
		return
	}
	rates, err := req.Rates.toRateConfig()
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_rate_config", err.Error(), http.StatusBadRequest))
		return
	}

	id, err := h.drafts.Save(ctx, services.SaveDraftCommand{
		Name:  req.Name,
		Rates: rates,
		Lines: toManifestLines(req.Lines),
	})
	if err != nil {
		writeShipmentError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]string{"draftId": id})
}

func (h *ShipmentHandlers) listDrafts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.drafts == nil {
		writeServiceUnavailable(ctx, w, "draft")
		return
	}
	summaries, err := h.drafts.List(ctx)
	if err != nil {
		writeShipmentError(ctx, w, err)
		return
	}
	out := make([]draftSummaryPayload, 0, len(summaries))
	for _, summary := range summaries {
		out = append(out, draftSummaryPayload{
			DraftID:   summary.ID,
			Name:      summary.Name,
			SavedAt:   formatTime(summary.SavedAt),
			LineCount: summary.LineCount,
		})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"drafts": out})
}

func (h *ShipmentHandlers) loadDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.drafts == nil {
		writeServiceUnavailable(ctx, w, "draft")
		return
	}
	draft, err := h.drafts.Load(ctx, strings.TrimSpace(chi.URLParam(r, "draftId")))
	if err != nil {
		writeShipmentError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, draftPayload{
		DraftID: draft.ID,
		Name:    draft.Name,
		SavedAt: formatTime(draft.SavedAt),
		Rates:   buildRatesPayload(draft.Rates),
		Lines:   buildManifestLinePayloads(draft.Lines),
	})
}

func (h *ShipmentHandlers) deleteDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.drafts == nil {
		writeServiceUnavailable(ctx, w, "draft")
		return
	}
	if err := h.drafts.Delete(ctx, strings.TrimSpace(chi.URLParam(r, "draftId"))); err != nil {
		writeShipmentError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeServiceUnavailable(ctx context.Context, w http.ResponseWriter, name string) {
	httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", name+" service not available", http.StatusServiceUnavailable))
}

func writeShipmentError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrInvalidRateConfig):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_rate_config", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrInvalidManifestLine):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_manifest_line", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrUnknownPriceField):
		httpx.WriteError(ctx, w, httpx.NewError("unknown_price_field", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrShipmentInvalidInput), errors.Is(err, services.ErrDraftInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogVariantNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("variant_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrDraftNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("draft_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrExportUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("export_unavailable", "analysis export is not available", http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrCatalogUnavailable), errors.Is(err, services.ErrDraftUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "storage temporarily unavailable", http.StatusServiceUnavailable))
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("timeout", "request timed out", http.StatusGatewayTimeout))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("shipment_error", "failed to process shipment request", http.StatusInternalServerError))
	}
}
