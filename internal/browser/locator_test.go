package browser

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
)

// stubDriver implements schemas.Driver with overridable match counting. Only
// MatchCount matters to the resolver; the rest are inert.
type stubDriver struct {
	matchCount func(locator string) (int, error)
	probed     []string
}

func (s *stubDriver) Navigate(context.Context, string) error        { return nil }
func (s *stubDriver) Screenshot(context.Context) ([]byte, error)    { return nil, nil }
func (s *stubDriver) Click(context.Context, string) error           { return nil }
func (s *stubDriver) ClickAt(context.Context, float64, float64) error { return nil }
func (s *stubDriver) Fill(context.Context, string, string) error    { return nil }
func (s *stubDriver) Wait(context.Context, int) error               { return nil }
func (s *stubDriver) Scroll(context.Context, float64, float64) error { return nil }
func (s *stubDriver) Viewport(context.Context) (int64, int64, error) { return 1280, 720, nil }
func (s *stubDriver) Close(context.Context) error                   { return nil }

func (s *stubDriver) MatchCount(_ context.Context, locator string) (int, error) {
	s.probed = append(s.probed, locator)
	if s.matchCount != nil {
		return s.matchCount(locator)
	}
	return 0, nil
}

func TestLocatorCandidates(t *testing.T) {
	t.Run("exact text match comes first", func(t *testing.T) {
		el := &schemas.UIElement{Tag: "button", Text: "Add to Cart"}
		candidates := LocatorCandidates(el)
		require.NotEmpty(t, candidates)
		assert.Equal(t, `//button[normalize-space(.)="Add to Cart"]`, candidates[0])
	})

	t.Run("attribute probes follow the text match", func(t *testing.T) {
		el := &schemas.UIElement{Tag: "input", Text: "Promo code"}
		candidates := LocatorCandidates(el)
		require.Greater(t, len(candidates), 2)
		assert.Contains(t, candidates, `//input[contains(@placeholder, "Promo code")]`)
		assert.Contains(t, candidates, `//input[contains(@aria-label, "Promo code")]`)
		// The loose substring probe is the last resort.
		assert.Equal(t, `//input[contains(normalize-space(.), "Promo code")]`, candidates[len(candidates)-1])
	})

	t.Run("blank tag becomes a wildcard", func(t *testing.T) {
		el := &schemas.UIElement{Text: "Checkout"}
		candidates := LocatorCandidates(el)
		require.NotEmpty(t, candidates)
		assert.True(t, strings.HasPrefix(candidates[0], "//*["), "got %q", candidates[0])
	})

	t.Run("no text yields no candidates", func(t *testing.T) {
		el := &schemas.UIElement{Tag: "div"}
		assert.Empty(t, LocatorCandidates(el))
	})

	t.Run("deterministic output", func(t *testing.T) {
		el := &schemas.UIElement{Tag: "a", Text: "Product"}
		assert.Equal(t, LocatorCandidates(el), LocatorCandidates(el))
	})
}

func TestXPathLiteral(t *testing.T) {
	cases := map[string]struct {
		in   string
		want string
	}{
		"plain":          {`Add to Cart`, `"Add to Cart"`},
		"double quotes":  {`say "hi"`, `'say "hi"'`},
		"single quotes":  {`it's here`, `"it's here"`},
		"both quotes":    {`a "b" c's`, `concat("a ", '"', "b", '"', " c's")`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, xpathLiteral(tc.in))
		})
	}
}

func TestResolverPicksFirstUniqueMatch(t *testing.T) {
	el := &schemas.UIElement{Tag: "button", Text: "Add to Cart"}
	exact := `//button[normalize-space(.)="Add to Cart"]`

	driver := &stubDriver{matchCount: func(locator string) (int, error) {
		if locator == exact {
			return 1, nil
		}
		return 0, nil
	}}
	resolver := NewLocatorResolver(driver, zap.NewNop())

	locator, err := resolver.Resolve(context.Background(), el)
	require.NoError(t, err)
	assert.Equal(t, exact, locator)
	assert.Equal(t, []string{exact}, driver.probed, "resolution must stop at the first unique match")
}

func TestResolverSkipsAmbiguousStrategies(t *testing.T) {
	el := &schemas.UIElement{Tag: "a", Text: "Product"}
	driver := &stubDriver{matchCount: func(locator string) (int, error) {
		// The exact text strategy matches several product cards; only the
		// id probe is unique.
		if strings.Contains(locator, "normalize-space(.)=") {
			return 3, nil
		}
		if strings.Contains(locator, "@id") {
			return 1, nil
		}
		return 0, nil
	}}
	resolver := NewLocatorResolver(driver, zap.NewNop())

	locator, err := resolver.Resolve(context.Background(), el)
	require.NoError(t, err)
	assert.Contains(t, locator, "@id")
}

func TestResolverFallsBackToCoordinates(t *testing.T) {
	el := &schemas.UIElement{Tag: "button", Text: "Ghost Button"}
	driver := &stubDriver{} // nothing matches
	resolver := NewLocatorResolver(driver, zap.NewNop())

	locator, err := resolver.Resolve(context.Background(), el)
	require.NoError(t, err, "an unmatched element is not an error at this layer")
	assert.Empty(t, locator)
	assert.NotEmpty(t, driver.probed, "every strategy should have been tried")
}

func TestResolverPropagatesDriverErrors(t *testing.T) {
	el := &schemas.UIElement{Tag: "button", Text: "Checkout"}
	driver := &stubDriver{matchCount: func(string) (int, error) {
		return 0, fmt.Errorf("tab crashed")
	}}
	resolver := NewLocatorResolver(driver, zap.NewNop())

	_, err := resolver.Resolve(context.Background(), el)
	assert.ErrorContains(t, err, "tab crashed")
}

func TestResolverNilElement(t *testing.T) {
	resolver := NewLocatorResolver(&stubDriver{}, zap.NewNop())
	_, err := resolver.Resolve(context.Background(), nil)
	assert.Error(t, err)
}

func TestResolverHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	driver := &stubDriver{}
	resolver := NewLocatorResolver(driver, zap.NewNop())
	_, err := resolver.Resolve(ctx, &schemas.UIElement{Tag: "button", Text: "Checkout"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, driver.probed)
}
