package expander

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medialib/scenesearch/internal/storage"
	"github.com/medialib/scenesearch/pkg/types"
)

func setupExpander(t *testing.T) (*Expander, *storage.SemanticDB) {
	t.Helper()
	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db), db
}

func TestExpandNoSynonyms(t *testing.T) {
	e, _ := setupExpander(t)

	result := e.Expand(context.Background(), "car chase", "en")

	assert.Equal(t, "car chase", result.Original)
	assert.Empty(t, result.Variants)
}

func TestExpandSubstitutesSynonyms(t *testing.T) {
	e, _ := setupExpander(t)
	ctx := context.Background()

	require.NoError(t, e.AddSynonym(ctx, "car", "automobile", "en", 0.9))

	result := e.Expand(ctx, "car chase", "en")

	assert.Equal(t, "car chase", result.Original)
	assert.Contains(t, result.Variants, "automobile chase")
}

func TestExpandBidirectional(t *testing.T) {
	e, _ := setupExpander(t)
	ctx := context.Background()

	require.NoError(t, e.AddSynonym(ctx, "car", "automobile", "en", 0.9))

	result := e.Expand(ctx, "automobile chase", "en")
	assert.Contains(t, result.Variants, "car chase")
}

func TestExpandSkipsLowWeightSynonyms(t *testing.T) {
	e, db := setupExpander(t)
	ctx := context.Background()

	require.NoError(t, db.UpsertSynonym(ctx, &types.Synonym{
		Word: "car", Synonym: "vehicle", Weight: 0.1, Language: "en",
	}))

	result := e.Expand(ctx, "car chase", "en")
	assert.Empty(t, result.Variants)
}

func TestExpandRespectsMaxVariants(t *testing.T) {
	_, db := setupExpander(t)
	ctx := context.Background()

	for _, syn := range []string{"auto", "automobile", "vehicle", "motorcar", "ride"} {
		require.NoError(t, db.UpsertSynonym(ctx, &types.Synonym{
			Word: "car", Synonym: syn, Weight: 0.9, Language: "en",
		}))
	}

	result := New(db, WithMaxVariants(2)).Expand(ctx, "car", "en")
	assert.Len(t, result.Variants, 2)
}

func TestExpandLanguageIsolation(t *testing.T) {
	e, _ := setupExpander(t)
	ctx := context.Background()

	require.NoError(t, e.AddSynonym(ctx, "car", "coche", "es", 0.9))

	result := e.Expand(ctx, "car chase", "en")
	assert.Empty(t, result.Variants)

	result = e.Expand(ctx, "car chase", "es")
	assert.Contains(t, result.Variants, "coche chase")
}

func TestExpandCaseInsensitive(t *testing.T) {
	e, _ := setupExpander(t)
	ctx := context.Background()

	require.NoError(t, e.AddSynonym(ctx, "Car", "Automobile", "en", 0.9))

	result := e.Expand(ctx, "CAR chase", "en")
	assert.Contains(t, result.Variants, "automobile chase")
}

func TestExpandEmptyQuery(t *testing.T) {
	e, _ := setupExpander(t)

	result := e.Expand(context.Background(), "   ", "en")
	assert.Empty(t, result.Variants)
}

func TestAddSynonymValidation(t *testing.T) {
	e, _ := setupExpander(t)
	ctx := context.Background()

	err := e.AddSynonym(ctx, "", "automobile", "en", 0.9)
	assert.ErrorIs(t, err, types.ErrInvalidInput)

	err = e.AddSynonym(ctx, "car", "  ", "en", 0.9)
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestRecordAndSuggest(t *testing.T) {
	e, _ := setupExpander(t)
	ctx := context.Background()

	e.RecordQuery(ctx, "dragon battle")
	e.RecordQuery(ctx, "dragon battle")
	e.RecordQuery(ctx, "dramatic ending")

	suggestions, err := e.Suggest(ctx, "dra", 10)
	require.NoError(t, err)
	require.Len(t, suggestions, 2)
	assert.Equal(t, "dragon battle", suggestions[0].Query)
	assert.Equal(t, 2, suggestions[0].UseCount)
}

func TestRecordQueryIgnoresBlank(t *testing.T) {
	e, _ := setupExpander(t)
	ctx := context.Background()

	e.RecordQuery(ctx, "  ")

	suggestions, err := e.Suggest(ctx, "", 10)
	require.NoError(t, err)
	assert.Empty(t, suggestions)
}
