package catalog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForLanguage(t *testing.T) {
	repos, err := ForLanguage("python")
	require.NoError(t, err)
	require.NotEmpty(t, repos)
	assert.Equal(t, "fastapi", repos[0].Name)
	assert.Equal(t, "python", repos[0].Language)
	assert.NotEmpty(t, repos[0].Topics)

	repos, err = ForLanguage("TypeScript")
	require.NoError(t, err)
	assert.NotEmpty(t, repos, "lookup is case-insensitive")

	repos, err = ForLanguage("cobol")
	require.NoError(t, err)
	assert.Nil(t, repos)
}

func TestLanguages(t *testing.T) {
	langs, err := Languages()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"python", "typescript"}, langs)
}

func TestPromptContext(t *testing.T) {
	ctx := PromptContext("python", 3)
	require.NotEmpty(t, ctx)
	assert.Equal(t, 3, strings.Count(ctx, "\n"), "respects the descriptor cap")
	assert.Contains(t, ctx, "fastapi")

	assert.Empty(t, PromptContext("cobol", 3))
}
