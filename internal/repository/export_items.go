package repository

import (
	"context"
	"strings"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/ocr-fusion/internal/entity"
)

const tableExportItem = "export_item"

var exportItemColumns = []string{
	"run_id", "doc_id", "source_image", "num_candidates", "has_curator", "cer", "wer",
	"curator_len", "input_len", "candidates_present", "multi_hyp_mode", "selected_candidates",
}

// RecordExportItems stores the items of one export in a single transaction.
func (s *Store) RecordExportItems(ctx context.Context, items []entity.ExportItem) error {
	if len(items) == 0 {
		return nil
	}
	rows := make([][]any, len(items))
	for i, it := range items {
		rows[i] = []any{
			it.RunID.String(), it.DocID, it.SourceImage, it.NumCandidates, it.HasCurator, it.CER, it.WER,
			it.CuratorLen, it.InputLen, strings.Join(it.CandidatesPresent, ";"), it.MultiHypMode,
			strings.Join(it.SelectedCandidates, ";"),
		}
	}
	if err := s.insertRows(ctx, tableExportItem, exportItemColumns, rows); err != nil {
		s.logger.Error("failed to record export items", "rows", len(items), "error", err)
		return wrapDB("record export items", err)
	}
	s.logger.Debug("recorded export items", "rows", len(items))
	return nil
}

// ListExportItems returns the items of runID ordered by doc ID.
func (s *Store) ListExportItems(ctx context.Context, runID uuid.UUID) ([]entity.ExportItem, error) {
	query, args := s.builder().
		Select(exportItemColumns...).
		From(entsql.Table(tableExportItem)).
		Where(entsql.EQ("run_id", runID.String())).
		OrderBy("doc_id").
		Query()

	rows := &entsql.Rows{}
	if err := s.drv.Query(ctx, query, args, rows); err != nil {
		return nil, wrapDB("list export items", err)
	}
	defer rows.Close()

	var out []entity.ExportItem
	for rows.Next() {
		var (
			it                entity.ExportItem
			run               string
			present, selected string
		)
		if err := rows.Scan(
			&run, &it.DocID, &it.SourceImage, &it.NumCandidates, &it.HasCurator, &it.CER, &it.WER,
			&it.CuratorLen, &it.InputLen, &present, &it.MultiHypMode, &selected,
		); err != nil {
			return nil, wrapDB("scan export item", err)
		}
		it.RunID, _ = uuid.Parse(run)
		it.CandidatesPresent = splitKeys(present)
		it.SelectedCandidates = splitKeys(selected)
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDB("list export items", err)
	}
	return out, nil
}

func splitKeys(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ";")
}
