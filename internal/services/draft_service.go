package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/partshub/api/internal/repositories"
)

const maxDraftNameLength = 120

var (
	// ErrDraftInvalidInput signals a missing name or an invalid rate config or manifest.
	ErrDraftInvalidInput = errors.New("draft: invalid input")
	// ErrDraftNotFound indicates the requested draft does not exist.
	ErrDraftNotFound = errors.New("draft: not found")
	// ErrDraftUnavailable indicates draft storage could not be reached.
	ErrDraftUnavailable = errors.New("draft: storage unavailable")
)

// DraftServiceDeps bundles the collaborators required to construct a draft service.
type DraftServiceDeps struct {
	Drafts      repositories.DraftRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type draftService struct {
	drafts repositories.DraftRepository
	clock  func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)
}

// NewDraftService wires dependencies into a concrete DraftService implementation.
func NewDraftService(deps DraftServiceDeps) (DraftService, error) {
	if deps.Drafts == nil {
		return nil, errors.New("draft service: draft repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return "drf_" + strings.ToLower(ulid.Make().String())
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &draftService{
		drafts: deps.Drafts,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *draftService) Save(ctx context.Context, cmd SaveDraftCommand) (string, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return "", fmt.Errorf("%w: name is required", ErrDraftInvalidInput)
	}
	if len([]rune(name)) > maxDraftNameLength {
		return "", fmt.Errorf("%w: name exceeds %d characters", ErrDraftInvalidInput, maxDraftNameLength)
	}
	if err := ValidateRateConfig(cmd.Rates); err != nil {
		return "", fmt.Errorf("%w: %w", ErrDraftInvalidInput, err)
	}
	if err := ValidateManifest(cmd.Lines); err != nil {
		return "", fmt.Errorf("%w: %w", ErrDraftInvalidInput, err)
	}

	draft := ShipmentDraft{
		ID:      s.newID(),
		Name:    name,
		Rates:   cmd.Rates,
		Lines:   append([]ManifestLine(nil), cmd.Lines...),
		SavedAt: s.clock(),
	}
	if err := s.drafts.Insert(ctx, draft); err != nil {
		return "", s.mapRepositoryError(err)
	}
	s.logger(ctx, "draft.saved", map[string]any{"draftId": draft.ID, "lines": len(draft.Lines)})
	return draft.ID, nil
}

func (s *draftService) Load(ctx context.Context, draftID string) (ShipmentDraft, error) {
	id := strings.TrimSpace(draftID)
	if id == "" {
		return ShipmentDraft{}, fmt.Errorf("%w: draft id is required", ErrDraftInvalidInput)
	}
	draft, err := s.drafts.FindByID(ctx, id)
	if err != nil {
		return ShipmentDraft{}, s.mapRepositoryError(err)
	}
	return draft, nil
}

func (s *draftService) List(ctx context.Context) ([]DraftSummary, error) {
	drafts, err := s.drafts.List(ctx)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return drafts, nil
}

func (s *draftService) Delete(ctx context.Context, draftID string) error {
	id := strings.TrimSpace(draftID)
	if id == "" {
		return fmt.Errorf("%w: draft id is required", ErrDraftInvalidInput)
	}
	if err := s.drafts.Delete(ctx, id); err != nil {
		return s.mapRepositoryError(err)
	}
	s.logger(ctx, "draft.deleted", map[string]any{"draftId": id})
	return nil
}

func (s *draftService) mapRepositoryError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrDraftNotFound
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrDraftUnavailable, err)
		}
	}
	return fmt.Errorf("draft: %w", err)
}
