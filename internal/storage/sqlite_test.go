package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/chunkrank-mcp/pkg/types"
)

func TestMigrations(t *testing.T) {
	ctx := context.Background()

	db, err := openDatabase(":memory:")
	require.NoError(t, err)
	defer db.Close()

	v, err := SchemaVersion(ctx, db)
	require.NoError(t, err)
	assert.True(t, v.Equal(semver.MustParse("0.0.0")))

	require.NoError(t, ApplyMigrations(ctx, db))
	v, err = SchemaVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v.String())

	// Idempotent
	require.NoError(t, ApplyMigrations(ctx, db))

	t.Run("rollback one step", func(t *testing.T) {
		require.NoError(t, RollbackMigration(ctx, db))
		v, err := SchemaVersion(ctx, db)
		require.NoError(t, err)
		assert.Equal(t, "1.0.0", v.String())

		require.NoError(t, ApplyMigrations(ctx, db))
		v, err = SchemaVersion(ctx, db)
		require.NoError(t, err)
		assert.Equal(t, CurrentSchemaVersion, v.String())
	})

	t.Run("newer schema is rejected", func(t *testing.T) {
		_, err := db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES ('9.0.0')")
		require.NoError(t, err)
		assert.Error(t, ApplyMigrations(ctx, db))
	})
}

func TestSQLiteStorage_Persistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chunks.db")

	store, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	_, err = store.Upsert(ctx, types.Chunk{ChunkID: "p1", DocumentID: "doc", Content: "persisted", Embedding: []float32{0.1, 0.2}})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	defer reopened.Close()

	chunks, err := reopened.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "persisted", chunks[0].Content)
	assert.Equal(t, []float32{0.1, 0.2}, chunks[0].Embedding)

	stats, err := reopened.Stats(ctx)
	require.NoError(t, err)
	assert.Greater(t, stats.SizeBytes, int64(0))
	assert.Equal(t, VectorExtensionAvailable, stats.VectorExtension)
}

func TestSQLiteStorage_InsertionOrder(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Upsert(ctx,
		types.Chunk{ChunkID: "z", DocumentID: "doc", PageNumber: 3, Content: "third page first"},
		types.Chunk{ChunkID: "a", DocumentID: "doc", PageNumber: 1, Content: "first page second"},
	)
	require.NoError(t, err)

	// Replacing keeps the original row position
	_, err = store.Upsert(ctx, types.Chunk{ChunkID: "z", DocumentID: "doc", PageNumber: 3, Content: "updated"})
	require.NoError(t, err)

	chunks, err := store.ListByDocument(ctx, "doc")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "updated", chunks[0].Content)
	assert.Equal(t, "first page second", chunks[1].Content)
}
