package service

import (
	"context"
	"time"

	"github.com/eeslabs/embedding-core/internal/eeserrors"
	"github.com/eeslabs/embedding-core/internal/providers"
	"github.com/eeslabs/embedding-core/internal/repository"
)

// MigrateOptions configures migrateEmbeddings.
type MigrateOptions struct {
	// PreserveOriginal, when true, writes the re-embedded row under a
	// derived URI instead of replacing the original. See the "preserveOriginal
	// URI derivation" Open Question Decision in SPEC_FULL.md.
	PreserveOriginal bool
	BatchSize        int
	ContinueOnError  bool
}

// MigrateDetail is one row's migration outcome.
type MigrateDetail struct {
	ID     int64
	URI    string
	Status string // "success", "error", or "not_attempted"
	Error  string
}

// MigrateResult is migrateEmbeddings' aggregated response.
type MigrateResult struct {
	TotalProcessed int
	Successful     int
	Failed         int
	DurationMs     int64
	Details        []MigrateDetail
}

// migratedURISuffix separates the original URI from the derivation
// marker when PreserveOriginal is set.
const migratedURISuffix = "::migrated::"

// MigrateEmbeddings implements spec.md §4.4's migrateEmbeddings: every
// row whose model_name equals fromModel is re-embedded with toModel.
// When options.PreserveOriginal is set, the new row is written under
// "<uri>::migrated::<toModel>" rather than replacing the source row
// (SPEC_FULL.md's Open Question Decision for this derivation). When
// options.ContinueOnError is false, the first per-item failure aborts
// the run and every remaining row is reported "not_attempted".
func (s *Service) MigrateEmbeddings(ctx context.Context, fromModel, toModel string, opts MigrateOptions) (*MigrateResult, error) {
	if opts.BatchSize < 1 || opts.BatchSize > 1000 {
		return nil, eeserrors.NewValidationError("batchSize", "must be an integer in [1, 1000]")
	}
	if fromModel == "" || toModel == "" {
		return nil, eeserrors.NewValidationError("model", "fromModel and toModel are required")
	}

	start := time.Now()

	rows, err := s.collectRowsForModel(ctx, fromModel, opts.BatchSize)
	if err != nil {
		return nil, err
	}

	result := &MigrateResult{}
	aborted := false

	for _, row := range rows {
		result.TotalProcessed++

		if aborted {
			result.Details = append(result.Details, MigrateDetail{ID: row.ID, URI: row.URI, Status: "not_attempted"})
			result.Failed++
			continue
		}

		detail, migErr := s.migrateOneRow(ctx, row, toModel, opts.PreserveOriginal)
		if migErr != nil {
			result.Failed++
			result.Details = append(result.Details, detail)
			if !opts.ContinueOnError {
				aborted = true
			}
			continue
		}

		result.Successful++
		result.Details = append(result.Details, detail)
	}

	result.DurationMs = time.Since(start).Milliseconds()
	return result, nil
}

type migrationRow struct {
	ID   int64
	URI  string
	Text string
}

// collectRowsForModel walks findAll pages of size batchSize, filtering
// to modelName, since the repository has no bespoke "all rows for model"
// query — spec.md §4.3's findAll already provides exact model_name
// filtering and pagination.
func (s *Service) collectRowsForModel(ctx context.Context, modelName string, batchSize int) ([]migrationRow, error) {
	var rows []migrationRow
	page := 1
	for {
		p, err := s.repo.FindAll(ctx, repository.FindAllParams{ModelName: modelName, Page: page, Limit: batchSize})
		if err != nil {
			return nil, err
		}
		for _, e := range p.Items {
			rows = append(rows, migrationRow{ID: e.ID, URI: e.URI, Text: e.Text})
		}
		if !p.HasNext {
			break
		}
		page++
	}
	return rows, nil
}

func (s *Service) migrateOneRow(ctx context.Context, row migrationRow, toModel string, preserveOriginal bool) (MigrateDetail, error) {
	p := s.providers.Default()
	resp, err := p.GenerateEmbedding(ctx, providers.GenerateRequest{Text: row.Text, ModelName: toModel})
	if err != nil {
		return MigrateDetail{ID: row.ID, URI: row.URI, Status: "error", Error: err.Error()}, err
	}

	if preserveOriginal {
		newURI := row.URI + migratedURISuffix + resp.ResolvedModel
		_, saveErr := s.repo.Save(ctx, newURI, row.Text, resp.ResolvedModel, resp.Vector, nil, nil)
		if saveErr != nil {
			return MigrateDetail{ID: row.ID, URI: row.URI, Status: "error", Error: saveErr.Error()}, saveErr
		}
		return MigrateDetail{ID: row.ID, URI: newURI, Status: "success"}, nil
	}

	if _, updErr := s.repo.ReplaceModelByID(ctx, row.ID, row.Text, resp.ResolvedModel, resp.Vector); updErr != nil {
		return MigrateDetail{ID: row.ID, URI: row.URI, Status: "error", Error: updErr.Error()}, updErr
	}
	return MigrateDetail{ID: row.ID, URI: row.URI, Status: "success"}, nil
}
