package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/protocol-recon/backend/internal/normalize"
	"github.com/protocol-recon/backend/internal/storage/models"
	"github.com/protocol-recon/backend/pkg/logger"
)

const snapshotColumns = `id, source, filename, file_hash, loaded_at, row_count`

// CreatePrimarySnapshot persists a primary snapshot and all of its rows in a
// single transaction. Normalized columns are computed here from the raw ones.
func (c *Client) CreatePrimarySnapshot(ctx context.Context, filename, fileHash string, rows []models.PrimaryRecord) (*models.Snapshot, error) {
	snap, _, err := c.writePrimary(ctx, filename, fileHash, rows, false)
	return snap, err
}

// ReplacePrimarySnapshot deletes every primary snapshot and creates the new
// one in the same transaction. On error the earlier snapshots survive.
func (c *Client) ReplacePrimarySnapshot(ctx context.Context, filename, fileHash string, rows []models.PrimaryRecord) (*models.Snapshot, int, error) {
	return c.writePrimary(ctx, filename, fileHash, rows, true)
}

// CreateSecondarySnapshot is the secondary counterpart of CreatePrimarySnapshot.
func (c *Client) CreateSecondarySnapshot(ctx context.Context, filename, fileHash string, rows []models.SecondaryRecord) (*models.Snapshot, error) {
	snap, _, err := c.writeSecondary(ctx, filename, fileHash, rows, false)
	return snap, err
}

func (c *Client) ReplaceSecondarySnapshot(ctx context.Context, filename, fileHash string, rows []models.SecondaryRecord) (*models.Snapshot, int, error) {
	return c.writeSecondary(ctx, filename, fileHash, rows, true)
}

func (c *Client) writePrimary(ctx context.Context, filename, fileHash string, rows []models.PrimaryRecord, replace bool) (*models.Snapshot, int, error) {
	for i := range rows {
		if err := checkLimits(models.SourcePrimary, i+1, primaryLimits(&rows[i])); err != nil {
			return nil, 0, err
		}
	}

	return c.createSnapshot(ctx, models.SourcePrimary, filename, fileHash, len(rows), replace, func(tx *sql.Tx, snapshotID int64) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO primary_records
				(snapshot_id, code, category, description, tag, subsystem, discipline, status, code_norm, subsystem_norm)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare primary insert: %w", err)
		}
		defer stmt.Close()

		for i, r := range rows {
			_, err := stmt.ExecContext(ctx, snapshotID,
				r.Code, r.Category, r.Description, r.Tag, r.Subsystem, r.Discipline, r.Status,
				normalize.Code(r.Code), normalize.Code(r.Subsystem),
			)
			if err != nil {
				return asDataError(models.SourcePrimary, i+1, fmt.Errorf("failed to insert primary row: %w", err))
			}
		}
		return nil
	})
}

func (c *Client) writeSecondary(ctx context.Context, filename, fileHash string, rows []models.SecondaryRecord, replace bool) (*models.Snapshot, int, error) {
	for i := range rows {
		if err := checkLimits(models.SourceSecondary, i+1, secondaryLimits(&rows[i])); err != nil {
			return nil, 0, err
		}
	}

	return c.createSnapshot(ctx, models.SourceSecondary, filename, fileHash, len(rows), replace, func(tx *sql.Tx, snapshotID int64) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO secondary_records
				(snapshot_id, document_no, title, discipline, function, subsystem_text, subsystem_code,
				 system_no, file_name, equipment_tag, date_received, revision, transmitted,
				 document_no_norm, subsystem_code_norm)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare secondary insert: %w", err)
		}
		defer stmt.Close()

		for i, r := range rows {
			_, err := stmt.ExecContext(ctx, snapshotID,
				r.DocumentNo, r.Title, r.Discipline, r.Function, r.SubsystemText, r.SubsystemCode,
				r.SystemNo, r.FileName, r.EquipmentTag, r.DateReceived, r.Revision, r.Transmitted,
				normalize.Code(r.DocumentNo), normalize.Code(r.SubsystemCode),
			)
			if err != nil {
				return asDataError(models.SourceSecondary, i+1, fmt.Errorf("failed to insert secondary row: %w", err))
			}
		}
		return nil
	})
}

func (c *Client) createSnapshot(ctx context.Context, source models.Source, filename, fileHash string, rowCount int, replace bool, insertRows func(*sql.Tx, int64) error) (*models.Snapshot, int, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	deleted := 0
	if replace {
		if deleted, err = deleteSnapshots(ctx, tx, source, 0); err != nil {
			return nil, 0, err
		}
	}

	loadedAt := c.now().UTC()
	result, err := tx.ExecContext(ctx, `
		INSERT INTO snapshots (source, filename, file_hash, loaded_at, row_count)
		VALUES (?, ?, ?, ?, ?)
	`, string(source), filename, fileHash, loadedAt.UnixMilli(), rowCount)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to insert snapshot: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read snapshot id: %w", err)
	}

	if err := insertRows(tx, id); err != nil {
		return nil, 0, err
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("failed to commit snapshot: %w", err)
	}

	logger.Info("Snapshot created",
		zap.String("source", string(source)),
		zap.Int64("snapshot_id", id),
		zap.String("filename", filename),
		zap.Int("rows", rowCount),
		zap.Int("replaced", deleted),
	)

	return &models.Snapshot{
		ID:       id,
		Source:   source,
		Filename: filename,
		FileHash: fileHash,
		LoadedAt: time.UnixMilli(loadedAt.UnixMilli()).UTC(),
		RowCount: rowCount,
	}, deleted, nil
}

// LatestSnapshot returns nil when the source has no snapshot.
func (c *Client) LatestSnapshot(ctx context.Context, source models.Source) (*models.Snapshot, error) {
	return nthSnapshot(ctx, c.db, source, 0)
}

// PreviousSnapshot returns nil when fewer than two snapshots exist.
func (c *Client) PreviousSnapshot(ctx context.Context, source models.Source) (*models.Snapshot, error) {
	return nthSnapshot(ctx, c.db, source, 1)
}

func nthSnapshot(ctx context.Context, q querier, source models.Source, offset int) (*models.Snapshot, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+snapshotColumns+`
		FROM snapshots
		WHERE source = ?
		ORDER BY loaded_at DESC, id DESC
		LIMIT 1 OFFSET ?
	`, string(source), offset)

	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return snap, nil
}

// ListSnapshots returns snapshots newest first. An empty source lists both.
func (c *Client) ListSnapshots(ctx context.Context, source models.Source) ([]models.Snapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM snapshots`
	var args []any
	if source != "" {
		query += ` WHERE source = ?`
		args = append(args, string(source))
	}
	query += ` ORDER BY loaded_at DESC, id DESC`

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := []models.Snapshot{}
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snapshots = append(snapshots, *snap)
	}
	return snapshots, rows.Err()
}

// FindByHash returns the newest snapshot of the source with the same content
// fingerprint, or nil.
func (c *Client) FindByHash(ctx context.Context, source models.Source, fileHash string) (*models.Snapshot, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT `+snapshotColumns+`
		FROM snapshots
		WHERE source = ? AND file_hash = ?
		ORDER BY loaded_at DESC, id DESC
		LIMIT 1
	`, string(source), fileHash)

	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find snapshot by hash: %w", err)
	}
	return snap, nil
}

// PurgeOld deletes every snapshot of the source except the keep most recent.
func (c *Client) PurgeOld(ctx context.Context, source models.Source, keep int) (int, error) {
	if keep < 1 {
		return 0, fmt.Errorf("retention must keep at least one snapshot, got %d", keep)
	}
	return c.purge(ctx, source, keep)
}

// PurgeAll deletes every snapshot of the source.
func (c *Client) PurgeAll(ctx context.Context, source models.Source) (int, error) {
	return c.purge(ctx, source, 0)
}

func (c *Client) purge(ctx context.Context, source models.Source, keep int) (int, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	deleted, err := deleteSnapshots(ctx, tx, source, keep)
	if err != nil || deleted == 0 {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit purge: %w", err)
	}

	logger.Info("Snapshots purged",
		zap.String("source", string(source)),
		zap.Int("kept", keep),
		zap.Int("deleted", deleted),
	)
	return deleted, nil
}

// deleteSnapshots removes all but the keep newest snapshots of the source
// and their rows inside tx.
func deleteSnapshots(ctx context.Context, tx *sql.Tx, source models.Source, keep int) (int, error) {
	ids, err := snapshotIDs(ctx, tx, source)
	if err != nil {
		return 0, err
	}
	if len(ids) <= keep {
		return 0, nil
	}
	ids = ids[keep:]

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	table := "primary_records"
	if source == models.SourceSecondary {
		table = "secondary_records"
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE snapshot_id IN (`+placeholders+`)`, args...); err != nil {
		return 0, fmt.Errorf("failed to delete rows: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete snapshots: %w", err)
	}
	deleted, _ := result.RowsAffected()
	return int(deleted), nil
}

func snapshotIDs(ctx context.Context, q querier, source models.Source) ([]int64, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id FROM snapshots WHERE source = ? ORDER BY loaded_at DESC, id DESC
	`, string(source))
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshot ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LatestLoads reads the latest primary and secondary loads. Either may be nil.
func (c *Client) LatestLoads(ctx context.Context) (*models.PrimaryLoad, *models.SecondaryLoad, error) {
	var (
		primary   *models.PrimaryLoad
		secondary *models.SecondaryLoad
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.readTx(gctx, func(tx *sql.Tx) error {
			snap, err := nthSnapshot(gctx, tx, models.SourcePrimary, 0)
			if err != nil || snap == nil {
				return err
			}
			rows, err := primaryRows(gctx, tx, snap.ID)
			if err != nil {
				return err
			}
			primary = &models.PrimaryLoad{Snapshot: *snap, Rows: rows}
			return nil
		})
	})
	g.Go(func() error {
		return c.readTx(gctx, func(tx *sql.Tx) error {
			snap, err := nthSnapshot(gctx, tx, models.SourceSecondary, 0)
			if err != nil || snap == nil {
				return err
			}
			rows, err := secondaryRows(gctx, tx, snap.ID)
			if err != nil {
				return err
			}
			secondary = &models.SecondaryLoad{Snapshot: *snap, Rows: rows}
			return nil
		})
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return primary, secondary, nil
}

// PrimaryGenerations reads the latest and previous primary loads in one
// transaction. Either may be nil.
func (c *Client) PrimaryGenerations(ctx context.Context) (*models.PrimaryLoad, *models.PrimaryLoad, error) {
	var latest, previous *models.PrimaryLoad

	err := c.readTx(ctx, func(tx *sql.Tx) error {
		for offset, dst := range []**models.PrimaryLoad{&latest, &previous} {
			snap, err := nthSnapshot(ctx, tx, models.SourcePrimary, offset)
			if err != nil {
				return err
			}
			if snap == nil {
				return nil
			}
			rows, err := primaryRows(ctx, tx, snap.ID)
			if err != nil {
				return err
			}
			*dst = &models.PrimaryLoad{Snapshot: *snap, Rows: rows}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return latest, previous, nil
}

func primaryRows(ctx context.Context, q querier, snapshotID int64) ([]models.PrimaryRecord, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, snapshot_id, code, category, description, tag, subsystem, discipline, status, code_norm, subsystem_norm
		FROM primary_records
		WHERE snapshot_id = ?
		ORDER BY id
	`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("failed to query primary rows: %w", err)
	}
	defer rows.Close()

	var records []models.PrimaryRecord
	for rows.Next() {
		var r models.PrimaryRecord
		if err := rows.Scan(&r.ID, &r.SnapshotID, &r.Code, &r.Category, &r.Description, &r.Tag,
			&r.Subsystem, &r.Discipline, &r.Status, &r.CodeNorm, &r.SubsystemNorm); err != nil {
			return nil, fmt.Errorf("failed to scan primary row: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func secondaryRows(ctx context.Context, q querier, snapshotID int64) ([]models.SecondaryRecord, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, snapshot_id, document_no, title, discipline, function, subsystem_text, subsystem_code,
		       system_no, file_name, equipment_tag, date_received, revision, transmitted,
		       document_no_norm, subsystem_code_norm
		FROM secondary_records
		WHERE snapshot_id = ?
		ORDER BY id
	`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("failed to query secondary rows: %w", err)
	}
	defer rows.Close()

	var records []models.SecondaryRecord
	for rows.Next() {
		var r models.SecondaryRecord
		if err := rows.Scan(&r.ID, &r.SnapshotID, &r.DocumentNo, &r.Title, &r.Discipline, &r.Function,
			&r.SubsystemText, &r.SubsystemCode, &r.SystemNo, &r.FileName, &r.EquipmentTag,
			&r.DateReceived, &r.Revision, &r.Transmitted, &r.DocumentNoNorm, &r.SubsystemCodeNorm); err != nil {
			return nil, fmt.Errorf("failed to scan secondary row: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(s rowScanner) (*models.Snapshot, error) {
	var (
		snap     models.Snapshot
		source   string
		fileHash sql.NullString
		loadedAt int64
	)
	if err := s.Scan(&snap.ID, &source, &snap.Filename, &fileHash, &loadedAt, &snap.RowCount); err != nil {
		return nil, err
	}
	snap.Source = models.Source(source)
	snap.FileHash = fileHash.String
	snap.LoadedAt = time.UnixMilli(loadedAt).UTC()
	return &snap, nil
}
