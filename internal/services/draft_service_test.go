package services

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"
)

type fakeDraftRepo struct {
	drafts    map[string]ShipmentDraft
	insertErr error
}

func newFakeDraftRepo() *fakeDraftRepo {
	return &fakeDraftRepo{drafts: map[string]ShipmentDraft{}}
}

func (f *fakeDraftRepo) Insert(_ context.Context, draft ShipmentDraft) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.drafts[draft.ID] = draft
	return nil
}

func (f *fakeDraftRepo) FindByID(_ context.Context, id string) (ShipmentDraft, error) {
	draft, ok := f.drafts[id]
	if !ok {
		return ShipmentDraft{}, notFoundError{}
	}
	return draft, nil
}

func (f *fakeDraftRepo) List(context.Context) ([]DraftSummary, error) {
	out := make([]DraftSummary, 0, len(f.drafts))
	for _, draft := range f.drafts {
		out = append(out, DraftSummary{ID: draft.ID, Name: draft.Name, SavedAt: draft.SavedAt, LineCount: len(draft.Lines)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SavedAt.After(out[j].SavedAt) })
	return out, nil
}

func (f *fakeDraftRepo) Delete(_ context.Context, id string) error {
	if _, ok := f.drafts[id]; !ok {
		return notFoundError{}
	}
	delete(f.drafts, id)
	return nil
}

func newTestDraftService(t *testing.T, repo *fakeDraftRepo) DraftService {
	t.Helper()
	ids := []string{"drf_a", "drf_b", "drf_c"}
	tick := 0
	svc, err := NewDraftService(DraftServiceDeps{
		Drafts: repo,
		Clock: func() time.Time {
			return time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC).Add(time.Duration(tick) * time.Minute)
		},
		IDGenerator: func() string {
			id := ids[tick]
			tick++
			return id
		},
	})
	if err != nil {
		t.Fatalf("NewDraftService: %v", err)
	}
	return svc
}

func TestDraftService_SaveLoadRoundTrip(t *testing.T) {
	repo := newFakeDraftRepo()
	svc := newTestDraftService(t, repo)
	ctx := context.Background()

	rates := sampleRates()
	rates.Duty = DutyMode{Kind: DutyPercent, Percent: dec("7.5")}
	line := sampleLine()
	line.UnitCostForeign = dec("10.125")

	id, err := svc.Save(ctx, SaveDraftCommand{Name: "  June container ", Rates: rates, Lines: []ManifestLine{line}})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if id != "drf_a" {
		t.Fatalf("expected drf_a, got %s", id)
	}

	draft, err := svc.Load(ctx, id)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if draft.Name != "June container" {
		t.Fatalf("expected trimmed name, got %q", draft.Name)
	}
	assertDecimal(t, "exchange rate", draft.Rates.ExchangeRate, "4.75")
	assertDecimal(t, "duty percent", draft.Rates.Duty.Percent, "7.5")
	assertDecimal(t, "unit cost", draft.Lines[0].UnitCostForeign, "10.125")
}

func TestDraftService_ListNewestFirst(t *testing.T) {
	repo := newFakeDraftRepo()
	svc := newTestDraftService(t, repo)
	ctx := context.Background()

	for _, name := range []string{"first", "second"} {
		if _, err := svc.Save(ctx, SaveDraftCommand{Name: name, Rates: sampleRates(), Lines: []ManifestLine{sampleLine()}}); err != nil {
			t.Fatalf("Save %s: %v", name, err)
		}
	}
	summaries, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(summaries) != 2 || summaries[0].Name != "second" || summaries[0].LineCount != 1 {
		t.Fatalf("unexpected summaries %#v", summaries)
	}
}

func TestDraftService_Validation(t *testing.T) {
	svc := newTestDraftService(t, newFakeDraftRepo())
	ctx := context.Background()

	if _, err := svc.Save(ctx, SaveDraftCommand{Name: " ", Rates: sampleRates()}); !errors.Is(err, ErrDraftInvalidInput) {
		t.Fatalf("expected invalid input for blank name, got %v", err)
	}
	bad := sampleRates()
	bad.ExchangeRate = dec("0")
	if _, err := svc.Save(ctx, SaveDraftCommand{Name: "x", Rates: bad}); !errors.Is(err, ErrDraftInvalidInput) {
		t.Fatalf("expected invalid input for bad rates, got %v", err)
	}
	if _, err := svc.Load(ctx, ""); !errors.Is(err, ErrDraftInvalidInput) {
		t.Fatalf("expected invalid input for empty id, got %v", err)
	}
}

func TestDraftService_ValidationKeepsCause(t *testing.T) {
	svc := newTestDraftService(t, newFakeDraftRepo())
	ctx := context.Background()

	bad := sampleRates()
	bad.ExchangeRate = dec("-1")
	_, err := svc.Save(ctx, SaveDraftCommand{Name: "x", Rates: bad})
	if !errors.Is(err, ErrDraftInvalidInput) || !errors.Is(err, ErrInvalidRateConfig) {
		t.Fatalf("expected draft and rate config errors, got %v", err)
	}

	line := sampleLine()
	line.Quantity = 0
	_, err = svc.Save(ctx, SaveDraftCommand{Name: "x", Rates: sampleRates(), Lines: []ManifestLine{line}})
	if !errors.Is(err, ErrDraftInvalidInput) || !errors.Is(err, ErrInvalidManifestLine) {
		t.Fatalf("expected draft and manifest line errors, got %v", err)
	}
}

func TestDraftService_NotFoundAndDelete(t *testing.T) {
	repo := newFakeDraftRepo()
	svc := newTestDraftService(t, repo)
	ctx := context.Background()

	if _, err := svc.Load(ctx, "drf_missing"); !errors.Is(err, ErrDraftNotFound) {
		t.Fatalf("expected ErrDraftNotFound, got %v", err)
	}
	id, err := svc.Save(ctx, SaveDraftCommand{Name: "temp", Rates: sampleRates(), Lines: []ManifestLine{sampleLine()}})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := svc.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := svc.Delete(ctx, id); !errors.Is(err, ErrDraftNotFound) {
		t.Fatalf("expected ErrDraftNotFound on second delete, got %v", err)
	}
}

func TestDraftService_MapsUnavailable(t *testing.T) {
	repo := newFakeDraftRepo()
	repo.insertErr = unavailableError{}
	svc := newTestDraftService(t, repo)

	_, err := svc.Save(context.Background(), SaveDraftCommand{Name: "x", Rates: sampleRates(), Lines: []ManifestLine{sampleLine()}})
	if !errors.Is(err, ErrDraftUnavailable) {
		t.Fatalf("expected ErrDraftUnavailable, got %v", err)
	}
}
