package repository

import (
	"context"
	"database/sql"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/ocr-fusion/internal/entity"
)

const tableEngineRun = "engine_run"

var engineRunColumns = []string{
	"id", "run_id", "ts", "source_path", "source_sha256", "engine", "engine_version",
	"device", "lang", "oem", "psm", "format", "available", "exit_code", "duration_sec",
	"stderr", "out_path", "notes",
}

const timestampLayout = "2006-01-02T15:04:05Z"

// RecordEngineRuns stores runs in a single transaction. Runs without an ID get one.
func (s *Store) RecordEngineRuns(ctx context.Context, runs []entity.EngineRun) error {
	if len(runs) == 0 {
		return nil
	}
	rows := make([][]any, len(runs))
	for i, r := range runs {
		id := r.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		rows[i] = []any{
			id.String(), r.RunID.String(), r.Timestamp.UTC().Format(timestampLayout),
			r.SourcePath, r.SourceSHA256, r.Engine, r.EngineVersion,
			r.Device, r.Lang, nullInt(r.OEM), nullInt(r.PSM), r.Format,
			r.Available, r.ExitCode, r.DurationSec,
			r.Stderr, r.OutPath, r.Notes,
		}
	}
	if err := s.insertRows(ctx, tableEngineRun, engineRunColumns, rows); err != nil {
		s.logger.Error("failed to record engine runs", "rows", len(runs), "error", err)
		return wrapDB("record engine runs", err)
	}
	s.logger.Debug("recorded engine runs", "rows", len(runs))
	return nil
}

// ListEngineRuns returns the runs recorded under runID ordered by source path, engine and psm.
func (s *Store) ListEngineRuns(ctx context.Context, runID uuid.UUID) ([]entity.EngineRun, error) {
	query, args := s.builder().
		Select(engineRunColumns...).
		From(entsql.Table(tableEngineRun)).
		Where(entsql.EQ("run_id", runID.String())).
		OrderBy("source_path", "engine", "psm", "format").
		Query()

	rows := &entsql.Rows{}
	if err := s.drv.Query(ctx, query, args, rows); err != nil {
		return nil, wrapDB("list engine runs", err)
	}
	defer rows.Close()

	var out []entity.EngineRun
	for rows.Next() {
		var (
			r                       entity.EngineRun
			id, run, ts             string
			sha, version, dev, lang sql.NullString
			format, stderr          sql.NullString
			outPath, notes          sql.NullString
			oem, psm                sql.NullInt64
		)
		if err := rows.Scan(
			&id, &run, &ts, &r.SourcePath, &sha, &r.Engine, &version,
			&dev, &lang, &oem, &psm, &format, &r.Available, &r.ExitCode, &r.DurationSec,
			&stderr, &outPath, &notes,
		); err != nil {
			return nil, wrapDB("scan engine run", err)
		}
		r.ID, _ = uuid.Parse(id)
		r.RunID, _ = uuid.Parse(run)
		r.Timestamp, _ = time.Parse(timestampLayout, ts)
		r.SourceSHA256 = sha.String
		r.EngineVersion = version.String
		r.Device = dev.String
		r.Lang = lang.String
		r.OEM = intPtr(oem)
		r.PSM = intPtr(psm)
		r.Format = format.String
		r.Stderr = stderr.String
		r.OutPath = outPath.String
		r.Notes = notes.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDB("list engine runs", err)
	}
	return out, nil
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
