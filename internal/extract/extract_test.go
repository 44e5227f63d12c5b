package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectDirectParse(t *testing.T) {
	obj, ok := Object(`{"title": "Sorting", "score": 0.8}`)
	require.True(t, ok)
	assert.Equal(t, "Sorting", obj["title"])
	assert.Equal(t, 0.8, obj["score"])
}

func TestObjectFencedBlock(t *testing.T) {
	raw := "Here is the result:\n```json\n{\"title\": \"Sorting\"}\n```\nHope that helps!"
	obj, ok := Object(raw)
	require.True(t, ok)
	assert.Equal(t, "Sorting", obj["title"])
}

func TestObjectFencedBlockNoLanguageTag(t *testing.T) {
	raw := "```\n{\"a\": 1}\n```"
	obj, ok := Object(raw)
	require.True(t, ok)
	assert.Equal(t, float64(1), obj["a"])
}

func TestObjectUnterminatedFence(t *testing.T) {
	raw := "```json\n{\"a\": 1}"
	obj, ok := Object(raw)
	require.True(t, ok)
	assert.Equal(t, float64(1), obj["a"])
}

func TestObjectBracedSubstring(t *testing.T) {
	raw := `Sure! The structure you asked for is {"title": "Graphs", "units": [{"title": "Unit 1"}]} as requested.`
	obj, ok := Object(raw)
	require.True(t, ok)
	assert.Equal(t, "Graphs", obj["title"])
}

func TestObjectBracesInsideStrings(t *testing.T) {
	raw := `prefix {"body": "use {} literals", "n": 2} suffix`
	obj, ok := Object(raw)
	require.True(t, ok)
	assert.Equal(t, "use {} literals", obj["body"])
}

func TestObjectRepairTrailingComma(t *testing.T) {
	obj, ok := Object(`{"a": 1, "b": [1, 2, 3,],}`)
	require.True(t, ok)
	assert.Equal(t, float64(1), obj["a"])
}

func TestObjectRepairSmartQuotes(t *testing.T) {
	obj, ok := Object("{“title”: “Sorting”}")
	require.True(t, ok)
	assert.Equal(t, "Sorting", obj["title"])
}

func TestObjectRepairBareKeys(t *testing.T) {
	obj, ok := Object(`{title: "Sorting", units: []}`)
	require.True(t, ok)
	assert.Equal(t, "Sorting", obj["title"])
}

func TestObjectRepairRawNewlineInString(t *testing.T) {
	obj, ok := Object("{\"body\": \"line one\nline two\"}")
	require.True(t, ok)
	assert.Equal(t, "line one\nline two", obj["body"])
}

func TestObjectRepairCombined(t *testing.T) {
	raw := "```json\n{title: “Sorting”, takeaways: [\"a\", \"b\",], }\n```"
	obj, ok := Object(raw)
	require.True(t, ok)
	assert.Equal(t, "Sorting", obj["title"])
}

func TestObjectNoStructure(t *testing.T) {
	for _, raw := range []string{
		"",
		"   ",
		"no json here at all",
		"{not even close",
		"]][[",
	} {
		obj, ok := Object(raw)
		assert.False(t, ok, "raw=%q", raw)
		assert.Nil(t, obj)
	}
}

func TestDecodeTyped(t *testing.T) {
	type skeleton struct {
		Title string   `json:"title"`
		Tags  []string `json:"tags"`
	}
	var s skeleton
	ok := Decode("```json\n{\"title\": \"T\", \"tags\": [\"x\"]}\n```", &s)
	require.True(t, ok)
	assert.Equal(t, "T", s.Title)
	assert.Equal(t, []string{"x"}, s.Tags)

	assert.False(t, Decode("garbage", &s))
}
