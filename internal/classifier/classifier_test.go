package classifier

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
)

func TestClassifyShoppingScenario(t *testing.T) {
	goal := "Find a product under $50, add to cart, apply coupon SAVE20, checkout as guest"
	plan := Classify(goal)

	require.Len(t, plan, 4)

	assert.Equal(t, schemas.ActionClick, plan[0].Kind)
	assert.Equal(t, "act-find-product", plan[0].ID)
	assert.Equal(t, schemas.ActionClick, plan[1].Kind)
	assert.Equal(t, "act-add-to-cart", plan[1].ID)
	assert.Equal(t, schemas.ActionType, plan[2].Kind)
	assert.Equal(t, "SAVE20", plan[2].Value)
	assert.Equal(t, schemas.ActionClick, plan[3].Kind)
	assert.Equal(t, "act-checkout", plan[3].ID)

	for i, action := range plan {
		assert.Equal(t, i, action.Order, "orders must be dense and ascending")
		assert.Equal(t, schemas.StatusPending, action.Status)
		require.NotNil(t, action.Target)
	}
}

func TestClassifyOrderFollowsTableNotText(t *testing.T) {
	// Keywords appear in reverse vocabulary order; output order must still
	// follow the table.
	plan := Classify("checkout as guest after you apply the coupon and add to cart the first product you find")
	require.Len(t, plan, 4)
	assert.Equal(t, "act-find-product", plan[0].ID)
	assert.Equal(t, "act-add-to-cart", plan[1].ID)
	assert.Equal(t, "act-apply-coupon", plan[2].ID)
	assert.Equal(t, "act-checkout", plan[3].ID)
}

func TestClassifyNoVocabularyMatch(t *testing.T) {
	assert.Empty(t, Classify("water the office plants"))
	assert.Empty(t, Classify(""))
}

func TestClassifyIsDeterministic(t *testing.T) {
	goal := "find a product, add to cart, apply coupon SAVE20, checkout"
	first := Classify(goal)
	for i := 0; i < 10; i++ {
		if diff := cmp.Diff(first, Classify(goal)); diff != "" {
			t.Fatalf("classifier output drifted between calls (-first +later):\n%s", diff)
		}
	}
}

func TestClassifyCouponCode(t *testing.T) {
	t.Run("lifts an explicit code from the goal", func(t *testing.T) {
		plan := Classify("apply coupon WELCOME10")
		require.Len(t, plan, 1)
		assert.Equal(t, "WELCOME10", plan[0].Value)
	})

	t.Run("defaults when no code is named", func(t *testing.T) {
		plan := Classify("apply the coupon at checkout")
		require.NotEmpty(t, plan)
		assert.Equal(t, "SAVE20", plan[0].Value)
	})

	t.Run("case insensitive trigger, case sensitive code", func(t *testing.T) {
		plan := Classify("Apply Coupon SPRING25")
		require.NotEmpty(t, plan)
		assert.Equal(t, "SPRING25", plan[0].Value)
	})
}

func TestClassifySingleKeyword(t *testing.T) {
	plan := Classify("add this to my cart")
	require.Len(t, plan, 1)
	assert.Equal(t, "act-add-to-cart", plan[0].ID)
	assert.Equal(t, 0, plan[0].Order)
}
