package vectorstore

import (
	"io"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readMigration(t *testing.T, read func(uint) (io.ReadCloser, string, error), version uint) string {
	t.Helper()
	r, _, err := read(version)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()
	body, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NotEmpty(t, body)
	return string(body)
}

// A migration file that fails to parse or lacks its down half only surfaces
// at process start in production. Walk the embedded set here instead.
func TestEmbeddedMigrationSetIsWellFormed(t *testing.T) {
	src, err := iofs.New(migrationsFS, "migrations")
	require.NoError(t, err)
	defer func() { _ = src.Close() }()

	version, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	var versions []uint
	for err == nil {
		versions = append(versions, version)
		readMigration(t, src.ReadUp, version)
		readMigration(t, src.ReadDown, version)
		version, err = src.Next(version)
	}
	assert.Equal(t, []uint{1, 2}, versions)
}

func TestInitialMigrationCreatesEmbeddingSchema(t *testing.T) {
	src, err := iofs.New(migrationsFS, "migrations")
	require.NoError(t, err)
	defer func() { _ = src.Close() }()

	up := readMigration(t, src.ReadUp, 1)
	assert.Contains(t, up, "CREATE EXTENSION IF NOT EXISTS vector")
	assert.Contains(t, up, "vector(768)")
	assert.Contains(t, up, "candidate_embeddings_identity_key UNIQUE (tenant_id, entity_id, chunk_type)")
	assert.Contains(t, up, "USING hnsw")
	assert.Contains(t, up, "USING ivfflat")

	down := readMigration(t, src.ReadDown, 1)
	assert.Contains(t, down, "DROP TABLE IF EXISTS candidate_embeddings")
}

func TestDocumentMigrationCreatesSearchColumns(t *testing.T) {
	src, err := iofs.New(migrationsFS, "migrations")
	require.NoError(t, err)
	defer func() { _ = src.Close() }()

	up := readMigration(t, src.ReadUp, 2)
	assert.Contains(t, up, "candidate_documents")
	assert.Contains(t, up, "search_text")
	assert.Contains(t, up, "USING gin (search_text)")
	assert.Contains(t, up, "PRIMARY KEY (tenant_id, candidate_id)")

	down := readMigration(t, src.ReadDown, 2)
	assert.Contains(t, down, "DROP TABLE IF EXISTS candidate_documents")
}

// Down migrations must drop dependent indexes before their table so a
// rollback never strands index entries.
func TestDownMigrationsDropIndexesFirst(t *testing.T) {
	src, err := iofs.New(migrationsFS, "migrations")
	require.NoError(t, err)
	defer func() { _ = src.Close() }()

	for _, version := range []uint{1, 2} {
		down := readMigration(t, src.ReadDown, version)
		tableAt := strings.Index(down, "DROP TABLE")
		indexAt := strings.Index(down, "DROP INDEX")
		require.GreaterOrEqual(t, tableAt, 0)
		require.GreaterOrEqual(t, indexAt, 0)
		assert.Less(t, indexAt, tableAt)
	}
}
