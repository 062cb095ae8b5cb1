package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	domain "github.com/partshub/api/internal/domain"
	"github.com/partshub/api/internal/repositories"
)

const (
	maxClosingNotesLength  = 1000
	maxNotesSanitizePasses = 4
)

var (
	// ErrClosingInvalidInput signals malformed dates or negative counted cash.
	ErrClosingInvalidInput = errors.New("closing: invalid input")
	// ErrClosingAlreadyExists indicates the business day has already been closed.
	ErrClosingAlreadyExists = errors.New("closing: already exists for date")
	// ErrClosingAmendmentNotAllowed is returned for any attempt to change a recorded closing.
	ErrClosingAmendmentNotAllowed = errors.New("closing: amendment not allowed")
	// ErrClosingUnavailable indicates the closing or ledger storage could not be reached.
	ErrClosingUnavailable = errors.New("closing: storage unavailable")
)

// ComputeExpected sums the ledger entries that fall on the business day containing asOf. The day
// runs from local midnight in asOf's location up to the next midnight. Cash entries contribute to
// the expected drawer cash; every other method is totalled separately.
func ComputeExpected(entries []LedgerEntry, asOf time.Time) ExpectedTotals {
	start, end := businessDay(asOf)
	totals := ExpectedTotals{
		Date:          start.Format(domain.ClosingDateLayout),
		ExpectedCash:  decimal.Zero,
		DigitalTotals: map[PaymentMethod]decimal.Decimal{},
	}
	for _, entry := range entries {
		if entry.Timestamp.Before(start) || !entry.Timestamp.Before(end) {
			continue
		}
		totals.EntryCount++
		method := NormalizePaymentMethod(string(entry.PaymentMethod))
		if method == domain.PaymentMethodCash {
			totals.ExpectedCash = totals.ExpectedCash.Add(entry.Amount)
			continue
		}
		totals.DigitalTotals[method] = totals.DigitalTotals[method].Add(entry.Amount)
	}
	return totals
}

// ClassifyVariance labels a variance as balanced, surplus or shortage.
func ClassifyVariance(variance decimal.Decimal) VarianceStatus {
	switch variance.Sign() {
	case 1:
		return domain.VarianceSurplus
	case -1:
		return domain.VarianceShortage
	default:
		return domain.VarianceBalanced
	}
}

// NormalizePaymentMethod lowercases the method and maps an empty value to unspecified.
func NormalizePaymentMethod(raw string) PaymentMethod {
	method := strings.ToLower(strings.TrimSpace(raw))
	switch method {
	case "":
		return domain.PaymentMethodUnspecified
	case "ewallet", "e-wallet":
		return domain.PaymentMethodEWallet
	default:
		return PaymentMethod(method)
	}
}

func businessDay(asOf time.Time) (time.Time, time.Time) {
	loc := asOf.Location()
	start := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// ClosingServiceDeps bundles the collaborators required to construct a closing service.
type ClosingServiceDeps struct {
	Closings    repositories.ClosingRepository
	Ledger      repositories.LedgerRepository
	Events      ClosingEventPublisher
	Location    *time.Location
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type closingService struct {
	closings repositories.ClosingRepository
	ledger   repositories.LedgerRepository
	events   ClosingEventPublisher
	location *time.Location
	clock    func() time.Time
	newID    func() string
	notes    *bluemonday.Policy
	logger   func(context.Context, string, map[string]any)
}

// NewClosingService wires dependencies into a concrete ClosingService implementation.
func NewClosingService(deps ClosingServiceDeps) (ClosingService, error) {
	if deps.Closings == nil {
		return nil, errors.New("closing service: closing repository is required")
	}
	if deps.Ledger == nil {
		return nil, errors.New("closing service: ledger repository is required")
	}
	location := deps.Location
	if location == nil {
		location = time.UTC
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &closingService{
		closings: deps.Closings,
		ledger:   deps.Ledger,
		events:   deps.Events,
		location: location,
		clock:    clock,
		newID:    idGen,
		notes:    bluemonday.StrictPolicy(),
		logger:   logger,
	}, nil
}

func (s *closingService) Today() string {
	return s.clock().In(s.location).Format(domain.ClosingDateLayout)
}

func (s *closingService) ExpectedForDate(ctx context.Context, date string) (ExpectedTotals, error) {
	day, err := s.parseDate(date)
	if err != nil {
		return ExpectedTotals{}, err
	}
	start, end := businessDay(day)
	entries, err := s.ledger.ListEntries(ctx, start, end)
	if err != nil {
		return ExpectedTotals{}, s.mapRepositoryError(err)
	}
	return ComputeExpected(entries, day), nil
}

func (s *closingService) CloseShift(ctx context.Context, cmd CloseShiftCommand) (ClosingRecord, error) {
	day, err := s.parseDate(cmd.Date)
	if err != nil {
		return ClosingRecord{}, err
	}
	if cmd.ActualCash.IsNegative() {
		return ClosingRecord{}, fmt.Errorf("%w: counted cash must not be negative", ErrClosingInvalidInput)
	}
	date := day.Format(domain.ClosingDateLayout)

	if _, err := s.closings.FindByDate(ctx, date); err == nil {
		return ClosingRecord{}, fmt.Errorf("%w: %s", ErrClosingAlreadyExists, date)
	} else if !repositories.IsNotFound(err) {
		return ClosingRecord{}, s.mapRepositoryError(err)
	}

	variance := cmd.ActualCash.Sub(cmd.ExpectedCash)
	record := ClosingRecord{
		ID:            s.newID(),
		Date:          date,
		ExpectedCash:  cmd.ExpectedCash,
		ActualCash:    cmd.ActualCash,
		DigitalTotals: copyTotals(cmd.DigitalTotals),
		Variance:      variance,
		Status:        ClassifyVariance(variance),
		Notes:         s.sanitizeNotes(cmd.Notes),
		ClosedBy:      strings.TrimSpace(cmd.ClosedBy),
		CreatedAt:     s.clock().UTC(),
	}

	if err := s.closings.Create(ctx, record); err != nil {
		if repositories.IsClosingAlreadyExists(err) {
			return ClosingRecord{}, fmt.Errorf("%w: %s", ErrClosingAlreadyExists, date)
		}
		return ClosingRecord{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "closing.shift_closed", map[string]any{
		"date":     record.Date,
		"variance": record.Variance.StringFixed(2),
		"status":   string(record.Status),
	})
	s.publish(ctx, record)
	return record, nil
}

func (s *closingService) CloseShiftFromLedger(ctx context.Context, cmd CloseShiftFromLedgerCommand) (ClosingRecord, error) {
	expected, err := s.ExpectedForDate(ctx, cmd.Date)
	if err != nil {
		return ClosingRecord{}, err
	}
	return s.CloseShift(ctx, CloseShiftCommand{
		Date:          expected.Date,
		ExpectedCash:  expected.ExpectedCash,
		ActualCash:    cmd.ActualCash,
		DigitalTotals: expected.DigitalTotals,
		Notes:         cmd.Notes,
		ClosedBy:      cmd.ClosedBy,
	})
}

func (s *closingService) ListClosings(ctx context.Context, from, to string) ([]ClosingRecord, error) {
	var err error
	if from, err = s.optionalDate(from); err != nil {
		return nil, err
	}
	if to, err = s.optionalDate(to); err != nil {
		return nil, err
	}
	if from != "" && to != "" && from > to {
		return nil, fmt.Errorf("%w: range start after end", ErrClosingInvalidInput)
	}
	records, err := s.closings.ListRange(ctx, from, to)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].Date < records[j].Date })
	return records, nil
}

// AmendClosing always fails. A recorded closing is terminal for its date.
func (s *closingService) AmendClosing(ctx context.Context, date string) error {
	s.logger(ctx, "closing.amend_rejected", map[string]any{"date": strings.TrimSpace(date)})
	return fmt.Errorf("%w: %s", ErrClosingAmendmentNotAllowed, strings.TrimSpace(date))
}

func (s *closingService) publish(ctx context.Context, record ClosingRecord) {
	if s.events == nil {
		return
	}
	event := ShiftClosedEvent{
		ClosingID:    record.ID,
		Date:         record.Date,
		ExpectedCash: record.ExpectedCash.String(),
		ActualCash:   record.ActualCash.String(),
		Variance:     record.Variance.String(),
		Status:       string(record.Status),
		ClosedBy:     record.ClosedBy,
		ClosedAt:     record.CreatedAt,
	}
	if _, err := s.events.PublishShiftClosed(ctx, event); err != nil {
		s.logger(ctx, "closing.event_publish_failed", map[string]any{
			"date":  record.Date,
			"error": err.Error(),
		})
	}
}

func (s *closingService) parseDate(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return s.clock().In(s.location), nil
	}
	day, err := time.ParseInLocation(domain.ClosingDateLayout, trimmed, s.location)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrClosingInvalidInput)
	}
	return day, nil
}

func (s *closingService) optionalDate(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", nil
	}
	if _, err := time.ParseInLocation(domain.ClosingDateLayout, trimmed, s.location); err != nil {
		return "", fmt.Errorf("%w: date must be YYYY-MM-DD", ErrClosingInvalidInput)
	}
	return trimmed, nil
}

// sanitizeNotes strips markup until the text is stable, so entity-encoded tags cannot come back to
// life once decoded.
func (s *closingService) sanitizeNotes(raw string) string {
	cleaned := raw
	stable := false
	for i := 0; i < maxNotesSanitizePasses; i++ {
		next := html.UnescapeString(s.notes.Sanitize(cleaned))
		if next == cleaned {
			stable = true
			break
		}
		cleaned = next
	}
	if !stable {
		cleaned = s.notes.Sanitize(cleaned)
	}
	cleaned = strings.TrimSpace(cleaned)
	if utf8.RuneCountInString(cleaned) > maxClosingNotesLength {
		cleaned = string([]rune(cleaned)[:maxClosingNotesLength])
	}
	return cleaned
}

func (s *closingService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
		return fmt.Errorf("%w: %v", ErrClosingUnavailable, err)
	}
	return fmt.Errorf("closing: %w", err)
}

func copyTotals(src map[PaymentMethod]decimal.Decimal) map[PaymentMethod]decimal.Decimal {
	out := make(map[PaymentMethod]decimal.Decimal, len(src))
	for method, amount := range src {
		key := NormalizePaymentMethod(string(method))
		out[key] = out[key].Add(amount)
	}
	return out
}
