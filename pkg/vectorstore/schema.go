package vectorstore

import (
	"context"

	apperrors "github.com/talentmesh/talentmesh/pkg/errors"
)

const (
	embeddingsTable = "candidate_embeddings"
	documentsTable  = "candidate_documents"
)

// embeddingDimensionQuery reads the declared width of the embedding column.
// pgvector stores the dimension directly in atttypmod.
const embeddingDimensionQuery = `
	SELECT a.atttypmod
	FROM pg_attribute a
	JOIN pg_class c ON a.attrelid = c.oid
	JOIN pg_namespace n ON c.relnamespace = n.oid
	WHERE n.nspname = current_schema()
	  AND c.relname = $1
	  AND a.attname = 'embedding'
	  AND NOT a.attisdropped`

const extensionQuery = `SELECT EXISTS(SELECT 1 FROM pg_extension WHERE extname = 'vector')`

const tableExistsQuery = `
	SELECT EXISTS(
		SELECT 1 FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_name = $1
	)`

const uniqueConstraintQuery = `
	SELECT EXISTS(
		SELECT 1 FROM pg_constraint
		WHERE conrelid = $1::regclass AND contype = 'u'
	)`

// indexMethodsQuery lists the access methods of all indexes on a table, so
// the verifier can require both the HNSW index and the IVFFLAT fallback.
const indexMethodsQuery = `
	SELECT am.amname
	FROM pg_class i
	JOIN pg_index ix ON i.oid = ix.indexrelid
	JOIN pg_class t ON ix.indrelid = t.oid
	JOIN pg_am am ON i.relam = am.oid
	WHERE t.relname = $1`

// verifySchema checks every invariant the recall queries depend on: the
// pgvector extension, both tables, the embedding dimension, the upsert
// uniqueness constraint, and the ANN indexes. Any mismatch aborts startup
// rather than letting a misprovisioned database serve wrong results.
func (s *Store) verifySchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	var hasExtension bool
	if err := s.db.QueryRowContext(ctx, extensionQuery).Scan(&hasExtension); err != nil {
		return apperrors.Wrap(err, apperrors.KindSchemaMismatch, "check pgvector extension")
	}
	if !hasExtension {
		return apperrors.New(apperrors.KindSchemaMismatch, "pgvector extension is not installed")
	}

	for _, table := range []string{embeddingsTable, documentsTable} {
		var exists bool
		if err := s.db.QueryRowContext(ctx, tableExistsQuery, table).Scan(&exists); err != nil {
			return apperrors.Wrapf(err, apperrors.KindSchemaMismatch, "check table %s", table)
		}
		if !exists {
			return apperrors.Newf(apperrors.KindSchemaMismatch, "table %s does not exist", table)
		}
	}

	var dim int
	if err := s.db.QueryRowContext(ctx, embeddingDimensionQuery, embeddingsTable).Scan(&dim); err != nil {
		return apperrors.Wrap(err, apperrors.KindSchemaMismatch, "read embedding dimension")
	}
	if dim != s.cfg.Dimensions {
		return apperrors.Newf(apperrors.KindSchemaMismatch,
			"embedding column is vector(%d), configured for %d", dim, s.cfg.Dimensions)
	}

	var hasUnique bool
	if err := s.db.QueryRowContext(ctx, uniqueConstraintQuery, embeddingsTable).Scan(&hasUnique); err != nil {
		return apperrors.Wrap(err, apperrors.KindSchemaMismatch, "check uniqueness constraint")
	}
	if !hasUnique {
		return apperrors.Newf(apperrors.KindSchemaMismatch,
			"table %s is missing the (tenant_id, entity_id, chunk_type) uniqueness constraint", embeddingsTable)
	}

	methods := map[string]bool{}
	rows, err := s.db.QueryContext(ctx, indexMethodsQuery, embeddingsTable)
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindSchemaMismatch, "list embedding indexes")
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var am string
		if err := rows.Scan(&am); err != nil {
			return apperrors.Wrap(err, apperrors.KindSchemaMismatch, "scan index method")
		}
		methods[am] = true
	}
	if err := rows.Err(); err != nil {
		return apperrors.Wrap(err, apperrors.KindSchemaMismatch, "list embedding indexes")
	}
	for _, required := range []string{"hnsw", "ivfflat"} {
		if !methods[required] {
			return apperrors.Newf(apperrors.KindSchemaMismatch,
				"table %s is missing its %s index", embeddingsTable, required)
		}
	}

	return nil
}
