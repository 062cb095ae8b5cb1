package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"

	"github.com/partshub/api/internal/repositories"
)

var (
	// ErrShipmentInvalidInput signals an empty or malformed manifest request.
	ErrShipmentInvalidInput = errors.New("shipment: invalid input")
	// ErrCatalogVariantNotFound indicates a requested variant is absent from the catalog.
	ErrCatalogVariantNotFound = errors.New("shipment: catalog variant not found")
	// ErrCatalogUnavailable indicates the catalog could not be reached.
	ErrCatalogUnavailable = errors.New("shipment: catalog unavailable")
	// ErrExportUnavailable indicates exports are not configured or the write failed.
	ErrExportUnavailable = errors.New("shipment: export unavailable")
)

// ShipmentPlanningServiceDeps bundles the collaborators of the shipment planning service.
type ShipmentPlanningServiceDeps struct {
	Catalog  repositories.CatalogRepository
	Engine   *LandedCostEngine
	Exporter ReportExporter
	Presets  []RatePreset
	Locale   language.Tag
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type shipmentPlanningService struct {
	catalog  repositories.CatalogRepository
	engine   *LandedCostEngine
	exporter ReportExporter
	presets  []RatePreset
	locale   language.Tag
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewShipmentPlanningService wires dependencies into a concrete ShipmentPlanningService.
func NewShipmentPlanningService(deps ShipmentPlanningServiceDeps) (ShipmentPlanningService, error) {
	if deps.Catalog == nil {
		return nil, errors.New("shipment planning service: catalog repository is required")
	}
	if deps.Engine == nil {
		return nil, errors.New("shipment planning service: landed cost engine is required")
	}
	locale := deps.Locale
	if locale == language.Und {
		locale = language.English
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &shipmentPlanningService{
		catalog:  deps.Catalog,
		engine:   deps.Engine,
		exporter: deps.Exporter,
		presets:  append([]RatePreset(nil), deps.Presets...),
		locale:   locale,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *shipmentPlanningService) BuildManifest(ctx context.Context, items []ManifestItemRequest) ([]ManifestLine, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: at least one item is required", ErrShipmentInvalidInput)
	}
	ids := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for i, item := range items {
		id := strings.TrimSpace(item.VariantID)
		if id == "" {
			return nil, fmt.Errorf("%w: item %d: variant id is required", ErrShipmentInvalidInput, i)
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: item %d: quantity must be positive", ErrShipmentInvalidInput, i)
		}
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	variants, err := s.catalog.FindVariants(ctx, ids)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}

	lines := make([]ManifestLine, 0, len(items))
	for _, item := range items {
		id := strings.TrimSpace(item.VariantID)
		variant, ok := variants[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrCatalogVariantNotFound, id)
		}
		line := ManifestLine{
			VariantID:       variant.VariantID,
			Name:            variant.Name,
			SKU:             variant.SKU,
			Quantity:        item.Quantity,
			UnitCostForeign: variant.UnitCostForeign,
			ItemsPerCarton:  variant.ItemsPerCarton,
			Dimensions:      variant.Dimensions,
			TargetPrice:     decimal.Zero,
			Candidates: CandidatePrices{
				Retail:   variant.RetailPrice,
				Online:   variant.OnlinePrice,
				Proposed: variant.ProposedPrice,
			},
		}
		switch {
		case item.TargetPrice != nil:
			line.TargetPrice = *item.TargetPrice
		case variant.RetailPrice != nil:
			line.TargetPrice = *variant.RetailPrice
		}
		if err := ValidateManifestLine(line); err != nil {
			return nil, fmt.Errorf("variant %s: %w", id, err)
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func (s *shipmentPlanningService) AnalyzeShipment(ctx context.Context, cmd AnalyzeShipmentCommand) (ShipmentAnalysis, error) {
	lines := cmd.Lines
	if cmd.PriceField != "" {
		priced, err := SetUniformTargetPrice(lines, cmd.PriceField)
		if err != nil {
			return ShipmentAnalysis{}, err
		}
		lines = priced
	}
	analysis, err := s.engine.Analyze(cmd.Rates, lines)
	if err != nil {
		return ShipmentAnalysis{}, err
	}
	s.logger(ctx, "shipment.analyzed", map[string]any{
		"lines":      len(lines),
		"landedCost": analysis.Summary.TotalLandedCost.StringFixed(2),
		"profit":     analysis.Summary.ProjectedProfit.StringFixed(2),
	})
	return analysis, nil
}

func (s *shipmentPlanningService) ExportAnalysis(ctx context.Context, cmd ExportAnalysisCommand) (ExportResult, error) {
	if s.exporter == nil {
		return ExportResult{}, fmt.Errorf("%w: exports bucket not configured", ErrExportUnavailable)
	}
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		name = "shipment"
	}
	analysis, err := s.AnalyzeShipment(ctx, AnalyzeShipmentCommand{
		Rates:      cmd.Rates,
		Lines:      cmd.Lines,
		PriceField: cmd.PriceField,
	})
	if err != nil {
		return ExportResult{}, err
	}

	var buf bytes.Buffer
	if err := RenderAnalysisCSV(&buf, name, analysis, s.locale); err != nil {
		return ExportResult{}, fmt.Errorf("shipment: render export: %w", err)
	}

	result, err := s.exporter.WriteReport(ctx, ReportObject{
		Name:        name,
		ContentType: "text/csv",
		CreatedAt:   s.clock(),
		Body:        &buf,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return ExportResult{}, err
		}
		return ExportResult{}, fmt.Errorf("%w: %v", ErrExportUnavailable, err)
	}
	s.logger(ctx, "shipment.exported", map[string]any{"object": result.Object, "bytes": result.Bytes})
	return result, nil
}

func (s *shipmentPlanningService) RatePresets() []RatePreset {
	return append([]RatePreset(nil), s.presets...)
}
