package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizmatters/agent-builder/circuit-designer/internal/retrieval"
	"github.com/bizmatters/agent-builder/circuit-designer/tests/helpers"
)

func TestPGStoreIntegration(t *testing.T) {
	testDB := helpers.NewTestDatabase(t)
	store := retrieval.NewPGStore(testDB.Pool)
	ctx := context.Background()

	marker := helpers.Marker()
	reg := helpers.SocketRCDRegulation(marker)
	doc := helpers.RingFinalDoc(marker)
	testDB.SeedRegulation(t, reg)
	testDB.SeedDesignDoc(t, doc)

	t.Run("keyword regulations", func(t *testing.T) {
		rows, err := store.KeywordRegulations(ctx, marker, 10)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, reg.ID, rows[0].ID)
		assert.Equal(t, reg.Section, rows[0].Section)
	})

	t.Run("keyword wildcards are literal", func(t *testing.T) {
		rows, err := store.KeywordRegulations(ctx, marker+"%", 10)
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("fetch keeps lookup order and skips unknown ids", func(t *testing.T) {
		rows, err := store.FetchRegulations(ctx, []string{"missing-" + marker, reg.ID})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, reg.Content, rows[0].Content)
	})

	t.Run("keyword design knowledge", func(t *testing.T) {
		rows, err := store.KeywordDesignKnowledge(ctx, marker, 10)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, doc.ID, rows[0].ID)
		assert.Equal(t, doc.Topic, rows[0].Topic)
	})
}
