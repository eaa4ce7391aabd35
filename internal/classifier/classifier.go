// File: internal/classifier/classifier.go
// Description: Deterministic goal-to-plan classifier. It is the fallback
// brain of the agent: a data-driven vocabulary table mapping goal substrings
// to canned action templates, with no I/O and no randomness.

package classifier

import (
	"regexp"
	"strings"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
)

// rule binds a set of trigger substrings to one action template. The rule
// table is matched in declaration order; output order follows the table, not
// the order keywords appear in the goal text.
type rule struct {
	// keywords trigger the rule when any of them is a substring of the
	// lower-cased goal.
	keywords []string
	// build produces the action template. It receives the raw goal so a
	// template can lift literal values (e.g. a coupon code) out of it.
	build func(goal string) schemas.Action
}

// couponCodeRe lifts an explicit uppercase coupon code out of the goal text,
// e.g. "apply coupon SAVE20".
var couponCodeRe = regexp.MustCompile(`(?i:coupon|code)\s+([A-Z0-9]{3,})`)

// defaultCouponCode is used when the goal mentions a coupon without naming one.
const defaultCouponCode = "SAVE20"

// rules is the fixed vocabulary table. Extending the classifier means adding
// a row here, not adding control flow.
var rules = []rule{
	{
		keywords: []string{"product", "find"},
		build: func(string) schemas.Action {
			return schemas.Action{
				ID:          "act-find-product",
				Kind:        schemas.ActionClick,
				Description: "Click the first matching product",
				Target: &schemas.UIElement{
					ID:        "el-product-card",
					Tag:       "a",
					Text:      "Product",
					Box:       schemas.BoundingBox{X: 8, Y: 28, Width: 26, Height: 32},
					Clickable: true,
				},
			}
		},
	},
	{
		keywords: []string{"cart", "add"},
		build: func(string) schemas.Action {
			return schemas.Action{
				ID:          "act-add-to-cart",
				Kind:        schemas.ActionClick,
				Description: "Click the add-to-cart button",
				Target: &schemas.UIElement{
					ID:        "el-add-to-cart",
					Tag:       "button",
					Text:      "Add to Cart",
					Box:       schemas.BoundingBox{X: 68, Y: 44, Width: 22, Height: 6},
					Clickable: true,
				},
			}
		},
	},
	{
		keywords: []string{"coupon", "apply"},
		build: func(goal string) schemas.Action {
			code := defaultCouponCode
			if m := couponCodeRe.FindStringSubmatch(goal); m != nil {
				code = m[1]
			}
			return schemas.Action{
				ID:          "act-apply-coupon",
				Kind:        schemas.ActionType,
				Value:       code,
				Description: "Type the coupon code into the promo field",
				Target: &schemas.UIElement{
					ID:        "el-coupon-input",
					Tag:       "input",
					Text:      "Promo code",
					Box:       schemas.BoundingBox{X: 54, Y: 62, Width: 30, Height: 5},
					Inputable: true,
				},
			}
		},
	},
	{
		keywords: []string{"checkout", "guest"},
		build: func(string) schemas.Action {
			return schemas.Action{
				ID:          "act-checkout",
				Kind:        schemas.ActionClick,
				Description: "Click the checkout button",
				Target: &schemas.UIElement{
					ID:        "el-checkout",
					Tag:       "button",
					Text:      "Checkout",
					Box:       schemas.BoundingBox{X: 70, Y: 80, Width: 24, Height: 7},
					Clickable: true,
				},
			}
		},
	},
}

// Classify maps a free-text goal to an ordered action plan. It is pure and
// deterministic: the same goal always yields bit-identical output. A goal
// matching no vocabulary entry yields an empty plan, which callers must treat
// as "nothing to execute", not as a failure.
func Classify(goal string) []schemas.Action {
	lowered := strings.ToLower(goal)

	var plan []schemas.Action
	for _, r := range rules {
		if !matches(lowered, r.keywords) {
			continue
		}
		action := r.build(goal)
		action.Order = len(plan)
		action.Status = schemas.StatusPending
		plan = append(plan, action)
	}
	return plan
}

func matches(lowered string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}
