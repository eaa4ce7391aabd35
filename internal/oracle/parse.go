// File: internal/oracle/parse.go
// Description: Strict parsing of the model's untyped text response. The
// response is expected to contain one embedded JSON object; anything else
// (missing block, unbalanced braces, missing fields, unknown kinds, bad
// element indices) is a parse failure that triggers the classifier fallback.

package oracle

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
)

// planElement mirrors the element entries the model is asked to emit.
type planElement struct {
	Tag       string              `json:"tag"`
	Text      string              `json:"text"`
	Box       schemas.BoundingBox `json:"box"`
	Clickable bool                `json:"clickable"`
	Inputable bool                `json:"inputable"`
}

// planAction mirrors the action entries. Element is an index into the
// elements array, or -1 for target-less actions.
type planAction struct {
	Kind        string `json:"kind"`
	Element     *int   `json:"element"`
	Value       string `json:"value"`
	Description string `json:"description"`
}

// planResponse is the strict schema for the model's JSON block.
type planResponse struct {
	Summary  string        `json:"summary"`
	Elements []planElement `json:"elements"`
	Actions  []planAction  `json:"actions"`
}

var validKinds = map[string]schemas.ActionKind{
	"click":    schemas.ActionClick,
	"type":     schemas.ActionType,
	"select":   schemas.ActionSelect,
	"wait":     schemas.ActionWait,
	"navigate": schemas.ActionNavigate,
	"scroll":   schemas.ActionScroll,
}

// parseAnalysis extracts the first top-level curly-brace-delimited block from
// the raw model text and decodes it against the strict schema. Fields are
// never guessed: a deviation fails the parse.
func parseAnalysis(raw string) (schemas.Analysis, error) {
	block, err := extractJSONBlock(raw)
	if err != nil {
		return schemas.Analysis{}, err
	}

	var parsed planResponse
	if err := json.UnmarshalFromString(block, &parsed); err != nil {
		return schemas.Analysis{}, fmt.Errorf("response block is not valid JSON: %w", err)
	}
	if parsed.Summary == "" {
		return schemas.Analysis{}, fmt.Errorf("response missing required 'summary' field")
	}
	if parsed.Actions == nil {
		return schemas.Analysis{}, fmt.Errorf("response missing required 'actions' field")
	}

	elements := make([]schemas.UIElement, len(parsed.Elements))
	for i, el := range parsed.Elements {
		if el.Tag == "" {
			return schemas.Analysis{}, fmt.Errorf("element %d missing required 'tag' field", i)
		}
		elements[i] = schemas.UIElement{
			ID:        fmt.Sprintf("el-%d", i),
			Tag:       el.Tag,
			Text:      el.Text,
			Box:       el.Box.Clamp(),
			Clickable: el.Clickable,
			Inputable: el.Inputable,
		}
	}

	actions := make([]schemas.Action, len(parsed.Actions))
	for i, pa := range parsed.Actions {
		kind, ok := validKinds[strings.ToLower(pa.Kind)]
		if !ok {
			return schemas.Analysis{}, fmt.Errorf("action %d has unknown kind %q", i, pa.Kind)
		}
		action := schemas.Action{
			ID:          fmt.Sprintf("act-%d", i),
			Kind:        kind,
			Value:       pa.Value,
			Description: pa.Description,
			Order:       i,
			Status:      schemas.StatusPending,
		}
		if pa.Element != nil && *pa.Element >= 0 {
			if *pa.Element >= len(elements) {
				return schemas.Analysis{}, fmt.Errorf("action %d references element %d of %d", i, *pa.Element, len(elements))
			}
			target := elements[*pa.Element]
			action.Target = &target
		}
		actions[i] = action
	}

	return schemas.Analysis{
		Elements: elements,
		Summary:  parsed.Summary,
		Actions:  actions,
	}, nil
}

// extractJSONBlock locates the first top-level {...} block in the text,
// tracking string literals so braces inside values do not unbalance the scan.
func extractJSONBlock(raw string) (string, error) {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return "", fmt.Errorf("no JSON object found in response text")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return raw[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unterminated JSON object in response text")
}
