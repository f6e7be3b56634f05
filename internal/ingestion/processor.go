package ingestion

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/protocol-recon/backend/internal/events"
	"github.com/protocol-recon/backend/internal/locking"
	"github.com/protocol-recon/backend/internal/storage/models"
	"github.com/protocol-recon/backend/internal/timing"
	"github.com/protocol-recon/backend/pkg/logger"
	"github.com/protocol-recon/backend/pkg/utils"
)

// Store is the snapshot persistence the processor writes through.
type Store interface {
	CreatePrimarySnapshot(ctx context.Context, filename, fileHash string, rows []models.PrimaryRecord) (*models.Snapshot, error)
	CreateSecondarySnapshot(ctx context.Context, filename, fileHash string, rows []models.SecondaryRecord) (*models.Snapshot, error)
	ReplacePrimarySnapshot(ctx context.Context, filename, fileHash string, rows []models.PrimaryRecord) (*models.Snapshot, int, error)
	ReplaceSecondarySnapshot(ctx context.Context, filename, fileHash string, rows []models.SecondaryRecord) (*models.Snapshot, int, error)
	FindByHash(ctx context.Context, source models.Source, fileHash string) (*models.Snapshot, error)
	PurgeOld(ctx context.Context, source models.Source, keep int) (int, error)
	PurgeAll(ctx context.Context, source models.Source) (int, error)
}

type Publisher interface {
	Publish(e events.Event)
}

// Recorder counts ingested rows and purged snapshots.
type Recorder interface {
	RowsIngested(source models.Source, n int)
	SnapshotsPurged(source models.Source, n int)
}

type ProcessorConfig struct {
	Keep               int
	HardResetPrimary   bool
	HardResetSecondary bool
}

// HardReset is the default for an upload that does not say.
func (c ProcessorConfig) HardReset(source models.Source) bool {
	if source == models.SourcePrimary {
		return c.HardResetPrimary
	}
	return c.HardResetSecondary
}

type Upload struct {
	Source   models.Source
	Filename string
	Content  []byte
	// Hard overrides the configured hard reset when set.
	Hard *bool
}

type Result struct {
	OK           bool   `json:"ok"`
	SnapshotID   int64  `json:"snapshot_id"`
	RowsInserted int    `json:"rows_inserted"`
	Sheet        string `json:"sheet"`
	HeaderRow    int    `json:"header_row"`
	ContentHash  string `json:"content_hash"`
	DuplicateOf  *int64 `json:"duplicate_of,omitempty"`
	Purged       int    `json:"purged"`
}

type Processor struct {
	adapter   *Adapter
	store     Store
	locker    locking.Locker
	publisher Publisher
	recorder  Recorder
	observer  timing.Observer
	cfg       ProcessorConfig
}

func NewProcessor(adapter *Adapter, store Store, locker locking.Locker, publisher Publisher, cfg ProcessorConfig) *Processor {
	if cfg.Keep < 1 {
		cfg.Keep = 2
	}
	return &Processor{
		adapter:   adapter,
		store:     store,
		locker:    locker,
		publisher: publisher,
		observer:  timing.Nop,
		cfg:       cfg,
	}
}

// WithObserver sets the timing observer and, when it also implements
// Recorder, the ingestion counters.
func (p *Processor) WithObserver(o timing.Observer) *Processor {
	p.observer = timing.OrNop(o)
	if r, ok := o.(Recorder); ok {
		p.recorder = r
	}
	return p
}

func lockKey(source models.Source) string {
	return "ingest:" + string(source)
}

// Ingest parses an upload and stores it as the newest snapshot of its
// source. A hard reset and the new snapshot commit together, so a rejected
// upload changes nothing.
func (p *Processor) Ingest(ctx context.Context, up Upload) (res *Result, err error) {
	defer timing.Track(p.observer, "ingest_"+string(up.Source), time.Now(), &err)

	hash := utils.HashBytes(up.Content)
	logger.Info("Ingesting upload",
		zap.String("source", string(up.Source)),
		zap.String("filename", up.Filename),
		zap.Int("bytes", len(up.Content)),
	)

	parsed, err := p.adapter.Parse(up.Source, up.Content)
	if err != nil {
		return nil, err
	}

	res, snapshotID, err := p.commit(ctx, up, parsed, hash)
	if err != nil {
		return nil, err
	}

	logger.Info("Upload ingested",
		zap.String("source", string(up.Source)),
		zap.String("filename", up.Filename),
		zap.Int64("snapshot_id", snapshotID),
		zap.Int("rows", res.RowsInserted),
		zap.Int("purged", res.Purged),
	)

	if p.recorder != nil {
		p.recorder.RowsIngested(up.Source, res.RowsInserted)
		p.recorder.SnapshotsPurged(up.Source, res.Purged)
	}
	if p.publisher != nil {
		e := events.New(events.TypeSnapshotCreated, string(up.Source))
		e.SnapshotID = snapshotID
		e.Rows = res.RowsInserted
		e.Deleted = res.Purged
		p.publisher.Publish(e)
	}
	return res, nil
}

// commit runs the write sequence under the source lock.
func (p *Processor) commit(ctx context.Context, up Upload, parsed *Parsed, hash string) (*Result, int64, error) {
	unlock, err := p.locker.Acquire(ctx, lockKey(up.Source))
	if err != nil {
		return nil, 0, err
	}
	defer p.release(ctx, up.Source, unlock)

	res := &Result{
		Sheet:       parsed.Sheet,
		HeaderRow:   parsed.HeaderRow,
		ContentHash: hash,
	}

	dup, err := p.store.FindByHash(ctx, up.Source, hash)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to look up content hash: %w", err)
	}
	if dup != nil {
		id := dup.ID
		res.DuplicateOf = &id
		logger.Info("Upload repeats an earlier snapshot", zap.String("source", string(up.Source)), zap.Int64("snapshot_id", id))
	}

	hard := p.cfg.HardReset(up.Source)
	if up.Hard != nil {
		hard = *up.Hard
	}
	var (
		snap     *models.Snapshot
		replaced int
	)
	switch {
	case up.Source == models.SourcePrimary && hard:
		snap, replaced, err = p.store.ReplacePrimarySnapshot(ctx, up.Filename, hash, parsed.Primary)
	case up.Source == models.SourcePrimary:
		snap, err = p.store.CreatePrimarySnapshot(ctx, up.Filename, hash, parsed.Primary)
	case hard:
		snap, replaced, err = p.store.ReplaceSecondarySnapshot(ctx, up.Filename, hash, parsed.Secondary)
	default:
		snap, err = p.store.CreateSecondarySnapshot(ctx, up.Filename, hash, parsed.Secondary)
	}
	if err != nil {
		return nil, 0, err
	}
	res.Purged += replaced
	res.OK = true
	res.SnapshotID = snap.ID
	res.RowsInserted = parsed.Rows()

	// The snapshot is committed; a failed purge only leaves an extra
	// generation behind until the next upload.
	deleted, perr := p.store.PurgeOld(ctx, up.Source, p.cfg.Keep)
	if perr != nil {
		logger.Warn("Retention purge failed", zap.String("source", string(up.Source)), zap.Error(perr))
	}
	res.Purged += deleted
	return res, snap.ID, nil
}

func (p *Processor) release(ctx context.Context, source models.Source, unlock locking.Unlock) {
	if err := unlock(context.WithoutCancel(ctx)); err != nil {
		logger.Warn("Failed to release ingestion lock", zap.String("source", string(source)), zap.Error(err))
	}
}

// Reset deletes every snapshot of a source.
func (p *Processor) Reset(ctx context.Context, source models.Source) (deleted int, err error) {
	defer timing.Track(p.observer, "reset_"+string(source), time.Now(), &err)

	deleted, err = p.purgeAll(ctx, source)
	if err != nil {
		return 0, err
	}
	logger.Info("Source reset", zap.String("source", string(source)), zap.Int("deleted", deleted))

	if p.recorder != nil {
		p.recorder.SnapshotsPurged(source, deleted)
	}
	if p.publisher != nil {
		e := events.New(events.TypeSnapshotsPurged, string(source))
		e.Deleted = deleted
		p.publisher.Publish(e)
	}
	return deleted, nil
}

func (p *Processor) purgeAll(ctx context.Context, source models.Source) (int, error) {
	unlock, err := p.locker.Acquire(ctx, lockKey(source))
	if err != nil {
		return 0, err
	}
	defer p.release(ctx, source, unlock)

	deleted, err := p.store.PurgeAll(ctx, source)
	if err != nil {
		return 0, fmt.Errorf("failed to reset %s: %w", source, err)
	}
	return deleted, nil
}
