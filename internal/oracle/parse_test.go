package oracle

import (
	"strings"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
)

func TestExtractJSONBlock(t *testing.T) {
	t.Run("finds the first top-level block", func(t *testing.T) {
		raw := "Sure! Here you go:\n```json\n{\"a\": 1}\n```\nand {\"b\": 2} too"
		block, err := extractJSONBlock(raw)
		require.NoError(t, err)
		assert.Equal(t, `{"a": 1}`, block)
	})

	t.Run("handles nested objects", func(t *testing.T) {
		raw := `prefix {"outer": {"inner": {"deep": true}}} suffix`
		block, err := extractJSONBlock(raw)
		require.NoError(t, err)
		assert.Equal(t, `{"outer": {"inner": {"deep": true}}}`, block)
	})

	t.Run("ignores braces inside string values", func(t *testing.T) {
		raw := `{"text": "a } brace and a { brace", "n": 1}`
		block, err := extractJSONBlock(raw)
		require.NoError(t, err)
		assert.Equal(t, raw, block)
	})

	t.Run("ignores escaped quotes inside strings", func(t *testing.T) {
		raw := `{"text": "she said \"}\" loudly"}`
		block, err := extractJSONBlock(raw)
		require.NoError(t, err)
		assert.Equal(t, raw, block)
	})

	t.Run("errors when no object exists", func(t *testing.T) {
		_, err := extractJSONBlock("no structured data here")
		assert.Error(t, err)
	})

	t.Run("errors on an unterminated object", func(t *testing.T) {
		_, err := extractJSONBlock(`{"a": {"b": 1}`)
		assert.Error(t, err)
	})
}

func TestParseAnalysis(t *testing.T) {
	t.Run("valid response", func(t *testing.T) {
		raw := `{
			"summary": "Two steps.",
			"elements": [
				{"tag": "input", "text": "Search", "box": {"x": 10, "y": 5, "width": 40, "height": 4}, "inputable": true},
				{"tag": "button", "text": "Go", "box": {"x": 52, "y": 5, "width": 8, "height": 4}, "clickable": true}
			],
			"actions": [
				{"kind": "type", "element": 0, "value": "golang", "description": "Type the query"},
				{"kind": "click", "element": 1, "description": "Submit the search"}
			]
		}`
		analysis, err := parseAnalysis(raw)
		require.NoError(t, err)

		require.Len(t, analysis.Actions, 2)
		assert.Equal(t, schemas.ActionType, analysis.Actions[0].Kind)
		assert.Equal(t, "golang", analysis.Actions[0].Value)
		assert.Equal(t, 0, analysis.Actions[0].Order)
		assert.Equal(t, 1, analysis.Actions[1].Order)
		require.NotNil(t, analysis.Actions[1].Target)
		assert.Equal(t, "Go", analysis.Actions[1].Target.Text)
		assert.Equal(t, schemas.StatusPending, analysis.Actions[0].Status)
	})

	t.Run("target-less action via -1 index", func(t *testing.T) {
		raw := `{"summary": "Wait a moment.", "elements": [], "actions": [{"kind": "wait", "element": -1, "value": "1000"}]}`
		analysis, err := parseAnalysis(raw)
		require.NoError(t, err)
		require.Len(t, analysis.Actions, 1)
		assert.Nil(t, analysis.Actions[0].Target)
	})

	t.Run("boxes are clamped into percentage space", func(t *testing.T) {
		raw := `{"summary": "s", "elements": [{"tag": "div", "box": {"x": 95, "y": -10, "width": 30, "height": 20}}], "actions": []}`
		analysis, err := parseAnalysis(raw)
		require.NoError(t, err)
		require.Len(t, analysis.Elements, 1)
		box := analysis.Elements[0].Box
		assert.Equal(t, 0.0, box.Y)
		assert.LessOrEqual(t, box.X+box.Width, 100.0)
	})

	t.Run("kind matching is case insensitive", func(t *testing.T) {
		raw := `{"summary": "s", "elements": [], "actions": [{"kind": "CLICK", "element": -1}]}`
		analysis, err := parseAnalysis(raw)
		require.NoError(t, err)
		assert.Equal(t, schemas.ActionClick, analysis.Actions[0].Kind)
	})
}

// FuzzExtractJSONBlock ensures the brace scanner never panics and that any
// block it reports is plausibly delimited.
func FuzzExtractJSONBlock(f *testing.F) {
	f.Add([]byte(`{"a": 1}`))
	f.Add([]byte(`text {"a": {"b": "}"}} trailing`))
	f.Add([]byte(`{"unterminated": "`))
	f.Add([]byte(`no braces at all`))
	f.Add([]byte(`{{{{`))

	f.Fuzz(func(t *testing.T, data []byte) {
		fuzzConsumer := fuzz.NewConsumer(data)
		raw, err := fuzzConsumer.GetString()
		if err != nil {
			raw = string(data)
		}

		block, err := extractJSONBlock(raw)
		if err != nil {
			return
		}
		if !strings.HasPrefix(block, "{") || !strings.HasSuffix(block, "}") {
			t.Errorf("extracted block is not brace-delimited: %q", block)
		}
	})
}
