// Package reconcile computes the match sets between the latest protocol
// snapshot and the latest transmittal snapshot, and every report derived
// from them. Nothing is cached between calls.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/protocol-recon/backend/internal/storage/models"
	"github.com/protocol-recon/backend/internal/timing"
	"github.com/protocol-recon/backend/internal/view"
)

// ErrNoPrimaryData is returned by operations that need a primary snapshot
// when none has been ingested.
var ErrNoPrimaryData = errors.New("no primary snapshot available")

// PendingFormula selects the registry count pendiente_aconex is measured against.
type PendingFormula string

const (
	PendingUniverse PendingFormula = "universe"
	PendingClosed   PendingFormula = "closed"
)

// Store supplies the latest load of each source. Either may be nil.
type Store interface {
	LatestLoads(ctx context.Context) (*models.PrimaryLoad, *models.SecondaryLoad, error)
}

type Config struct {
	Groups            []models.DisciplineGroup
	PendingFormula    PendingFormula
	MaxPageSize       int
	MaxUnmatchedLimit int
}

type Engine struct {
	store Store
	cfg   Config
	obs   timing.Observer
}

func NewEngine(store Store, cfg Config, obs timing.Observer) *Engine {
	if cfg.PendingFormula == "" {
		cfg.PendingFormula = PendingUniverse
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 500
	}
	if cfg.MaxUnmatchedLimit <= 0 {
		cfg.MaxUnmatchedLimit = 1000
	}
	return &Engine{store: store, cfg: cfg, obs: timing.OrNop(obs)}
}

func (e *Engine) Groups() []models.DisciplineGroup {
	return e.cfg.Groups
}

func (e *Engine) load(ctx context.Context) (*models.PrimaryLoad, *models.SecondaryLoad, error) {
	p, s, err := e.store.LatestLoads(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load latest snapshots: %w", err)
	}
	return p, s, nil
}

func (e *Engine) resolveGroup(key string) (*models.DisciplineGroup, error) {
	if key == "" {
		return nil, nil
	}
	g, ok := models.FindGroup(e.cfg.Groups, key)
	if !ok {
		return nil, &view.ValidationError{Field: "group", Message: fmt.Sprintf("unknown group %q", key)}
	}
	return &g, nil
}

func (e *Engine) Cards(ctx context.Context) (cards Cards, err error) {
	defer timing.Track(e.obs, "cards", time.Now(), &err)

	p, s, err := e.load(ctx)
	if err != nil {
		return Cards{}, err
	}
	return ComputeCards(p, s), nil
}

func (e *Engine) Disciplines(ctx context.Context) (rows []DisciplineRow, err error) {
	defer timing.Track(e.obs, "disciplines", time.Now(), &err)

	p, s, err := e.load(ctx)
	if err != nil {
		return nil, err
	}
	return DisciplineBreakdown(p, s), nil
}

func (e *Engine) GroupBreakdown(ctx context.Context) (rows []GroupRow, err error) {
	defer timing.Track(e.obs, "groups", time.Now(), &err)

	p, s, err := e.load(ctx)
	if err != nil {
		return nil, err
	}
	return GroupBreakdown(p, s, e.cfg.Groups), nil
}

func (e *Engine) Subsystems(ctx context.Context, group string) (rows []SubsystemRow, err error) {
	defer timing.Track(e.obs, "subsystems", time.Now(), &err)

	g, err := e.resolveGroup(group)
	if err != nil {
		return nil, err
	}
	p, s, err := e.load(ctx)
	if err != nil {
		return nil, err
	}
	return SubsystemBreakdown(p, s, g, e.cfg.PendingFormula), nil
}

// UnmatchedQuery selects unmatched transmittals. A nil Window returns all rows.
type UnmatchedQuery struct {
	Strict bool
	Query  string
	Window *view.Window
}

type UnmatchedResult struct {
	Strict bool           `json:"strict"`
	Total  int            `json:"total"`
	Items  []UnmatchedRow `json:"items"`
}

func (e *Engine) Unmatched(ctx context.Context, q UnmatchedQuery) (res UnmatchedResult, err error) {
	defer timing.Track(e.obs, "unmatched", time.Now(), &err)

	p, s, err := e.load(ctx)
	if err != nil {
		return UnmatchedResult{}, err
	}
	rows := Unmatched(p, s, q.Strict, q.Query)
	res = UnmatchedResult{Strict: q.Strict, Total: len(rows), Items: rows}
	if q.Window != nil {
		res.Items = view.Apply(rows, *q.Window)
	}
	return res, nil
}

// UnmatchedWindow validates limit/offset against the configured maximum.
func (e *Engine) UnmatchedWindow(limit, offset int) (view.Window, error) {
	return view.NewWindow(limit, offset, e.cfg.MaxUnmatchedLimit)
}

func (e *Engine) UnmatchedSummary(ctx context.Context) (sum UnmatchedDiagnostics, err error) {
	defer timing.Track(e.obs, "unmatched_summary", time.Now(), &err)

	p, s, err := e.load(ctx)
	if err != nil {
		return UnmatchedDiagnostics{}, err
	}
	return DiagnoseUnmatched(p, s), nil
}

func (e *Engine) Duplicates(ctx context.Context, strict bool) (groups []DuplicateGroup, err error) {
	defer timing.Track(e.obs, "duplicates", time.Now(), &err)

	_, s, err := e.load(ctx)
	if err != nil {
		return nil, err
	}
	return Duplicates(s, strict), nil
}

// SSErrors returns every SS-error row. A nil page returns the full list.
func (e *Engine) SSErrors(ctx context.Context, page *view.PageRequest) (res view.Page[SSErrorRow], err error) {
	defer timing.Track(e.obs, "ss_errors", time.Now(), &err)

	p, s, err := e.load(ctx)
	if err != nil {
		return view.Page[SSErrorRow]{}, err
	}
	rows := SSErrors(p, s)
	if page == nil {
		return view.Page[SSErrorRow]{Rows: rows, Total: len(rows), Page: 1, PageSize: len(rows)}, nil
	}
	return view.Paginate(rows, *page), nil
}

// PageRequest validates pagination against the configured maximum.
func (e *Engine) PageRequest(page, pageSize int) (view.PageRequest, error) {
	return view.NewPageRequest(page, pageSize, e.cfg.MaxPageSize)
}

// ProtocolList filters and paginates the latest primary snapshot. The filter
// is validated before any data is read.
func (e *Engine) ProtocolList(ctx context.Context, f view.ProtocolFilter, page view.PageRequest) (res view.Page[view.ProtocolRow], err error) {
	defer timing.Track(e.obs, "protocol_list", time.Now(), &err)

	if err := f.Validate(e.cfg.Groups); err != nil {
		return view.Page[view.ProtocolRow]{}, err
	}
	p, s, err := e.load(ctx)
	if err != nil {
		return view.Page[view.ProtocolRow]{}, err
	}
	rows := view.ShapeProtocols(view.FilterProtocols(Annotate(p, s), &f))
	return view.Paginate(rows, page), nil
}

// ProtocolExport returns every filtered row. It fails with ErrNoPrimaryData
// when no primary snapshot exists.
func (e *Engine) ProtocolExport(ctx context.Context, f view.ProtocolFilter) (rows []view.ProtocolRow, err error) {
	defer timing.Track(e.obs, "protocol_export", time.Now(), &err)

	if err := f.Validate(e.cfg.Groups); err != nil {
		return nil, err
	}
	p, s, err := e.load(ctx)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNoPrimaryData
	}
	return view.ShapeProtocols(view.FilterProtocols(Annotate(p, s), &f)), nil
}

func (e *Engine) Options(ctx context.Context) (opts Options, err error) {
	defer timing.Track(e.obs, "options", time.Now(), &err)

	p, _, err := e.load(ctx)
	if err != nil {
		return Options{}, err
	}
	return ProtocolOptions(p), nil
}
