// File: internal/browser/locator.go
// Description: Locator resolution. Candidate XPath expressions are generated
// from the abstract element description and tried in order of specificity;
// a candidate is accepted only when it matches exactly one node on the live
// page. When nothing matches, resolution reports "no locator" and the
// executor falls back to bounding-box coordinates.

package browser

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
)

// attributes probed by the contains() strategies, most specific first.
var locatorAttributes = []string{"id", "name", "aria-label", "placeholder", "title", "value"}

// LocatorResolver implements schemas.Resolver on top of a live driver.
type LocatorResolver struct {
	driver schemas.Driver
	logger *zap.Logger
}

// NewLocatorResolver builds a resolver bound to the given driver.
func NewLocatorResolver(driver schemas.Driver, logger *zap.Logger) *LocatorResolver {
	return &LocatorResolver{
		driver: driver,
		logger: logger.Named("locator"),
	}
}

// Resolve tries each candidate locator against the live page and returns the
// first one matching exactly one node. Zero matches means the element is not
// on the page under that strategy; more than one means the strategy is
// ambiguous. Both advance to the next candidate. An empty locator with a nil
// error tells the caller to fall back to coordinates.
func (r *LocatorResolver) Resolve(ctx context.Context, element *schemas.UIElement) (string, error) {
	if element == nil {
		return "", fmt.Errorf("cannot resolve a nil element")
	}

	for _, candidate := range LocatorCandidates(element) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		count, err := r.driver.MatchCount(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("locator probe failed: %w", err)
		}
		switch {
		case count == 1:
			r.logger.Debug("Locator resolved",
				zap.String("element", element.ID),
				zap.String("locator", candidate),
			)
			return candidate, nil
		case count > 1:
			r.logger.Debug("Locator ambiguous; trying next strategy",
				zap.String("locator", candidate),
				zap.Int("matches", count),
			)
		}
	}

	r.logger.Debug("No locator strategy matched; caller should use coordinates",
		zap.String("element", element.ID),
	)
	return "", nil
}

// LocatorCandidates generates the ordered XPath candidates for an element.
// It is pure: no I/O, no driver. Order encodes specificity, exact text match
// first, then attribute probes, then a bare substring match.
func LocatorCandidates(element *schemas.UIElement) []string {
	tag := strings.ToLower(strings.TrimSpace(element.Tag))
	if tag == "" {
		tag = "*"
	}

	var candidates []string
	text := strings.TrimSpace(element.Text)
	if text != "" {
		literal := xpathLiteral(text)
		candidates = append(candidates,
			fmt.Sprintf(`//%s[normalize-space(.)=%s]`, tag, literal),
		)
		for _, attr := range locatorAttributes {
			candidates = append(candidates,
				fmt.Sprintf(`//%s[contains(@%s, %s)]`, tag, attr, literal),
			)
		}
		candidates = append(candidates,
			fmt.Sprintf(`//%s[contains(normalize-space(.), %s)]`, tag, literal),
		)
	}
	return candidates
}

// xpathLiteral quotes a string for use in an XPath expression. Strings
// containing both quote characters are stitched together with concat().
func xpathLiteral(s string) string {
	switch {
	case !strings.Contains(s, `"`):
		return `"` + s + `"`
	case !strings.Contains(s, `'`):
		return `'` + s + `'`
	default:
		parts := strings.Split(s, `"`)
		quoted := make([]string, 0, len(parts)*2)
		for i, part := range parts {
			if i > 0 {
				quoted = append(quoted, `'"'`)
			}
			if part != "" {
				quoted = append(quoted, `"`+part+`"`)
			}
		}
		return "concat(" + strings.Join(quoted, ", ") + ")"
	}
}
