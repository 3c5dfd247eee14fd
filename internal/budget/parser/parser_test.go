package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/centsible/smsbudget/internal/budget/domain"
)

func TestParse_BareInteger(t *testing.T) {
	intent := Parse("2000")
	assert.Equal(t, domain.IntentSetBudget, intent.Kind)
	assert.Equal(t, int64(2000), intent.Amount)
}

func TestParse_DollarAndCommaGrouped(t *testing.T) {
	intent := Parse("$2,500")
	assert.Equal(t, domain.IntentSetBudget, intent.Kind)
	assert.Equal(t, int64(2500), intent.Amount)
}

func TestParse_DecimalRoundsToNearestDollar(t *testing.T) {
	intent := Parse("1499.50")
	assert.Equal(t, domain.IntentSetBudget, intent.Kind)
	assert.Equal(t, int64(1500), intent.Amount)

	intent = Parse("1499.49")
	assert.Equal(t, int64(1499), intent.Amount)
}

func TestParse_BelowFloorIsInvalid(t *testing.T) {
	intent := Parse("50")
	assert.Equal(t, domain.IntentInvalid, intent.Kind)
	assert.Equal(t, "50", intent.RawText)
}

func TestParse_AboveCeilingIsInvalid(t *testing.T) {
	intent := Parse("250000")
	assert.Equal(t, domain.IntentInvalid, intent.Kind)
}

func TestParse_Commands(t *testing.T) {
	cases := map[string]domain.CommandWord{
		"STOP":        domain.CommandStop,
		"stop":        domain.CommandStop,
		"  Stop  ":    domain.CommandStop,
		"UNSUBSCRIBE": domain.CommandStop,
		"cancel":      domain.CommandStop,
		"END":         domain.CommandStop,
		"quit":        domain.CommandStop,
		"START":       domain.CommandStart,
		"yes":         domain.CommandStart,
		"UNSTOP":      domain.CommandStart,
		"HELP":        domain.CommandHelp,
		"info":        domain.CommandHelp,
	}
	for text, want := range cases {
		intent := Parse(text)
		assert.Equal(t, domain.IntentCommand, intent.Kind, "text %q", text)
		assert.Equal(t, want, intent.Command, "text %q", text)
	}
}

func TestParse_LeadingPhrases(t *testing.T) {
	cases := map[string]int64{
		"budget 3000":        3000,
		"my budget is 2500":  2500,
		"set limit 1200":     1200,
		"i want $4,000":      4000,
		"make it 900":        900,
		"goal 100000":        100000,
	}
	for text, want := range cases {
		intent := Parse(text)
		assert.Equal(t, domain.IntentSetBudget, intent.Kind, "text %q", text)
		assert.Equal(t, want, intent.Amount, "text %q", text)
	}
}

func TestParse_WrittenNumbers(t *testing.T) {
	intent := Parse("two thousand please")
	assert.Equal(t, domain.IntentSetBudget, intent.Kind)
	assert.Equal(t, int64(2000), intent.Amount)

	intent = Parse("make it twenty five hundred")
	assert.Equal(t, int64(2500), intent.Amount)
}

// The digit-run fallback deliberately matches digits embedded in unrelated
// text. This pins the permissive behavior so any tightening is a visible
// diff reviewed by the product owner.
func TestParse_DigitRunFallbackIsPermissive(t *testing.T) {
	intent := Parse("see you on 12/2024 maybe")
	assert.Equal(t, domain.IntentSetBudget, intent.Kind)
	assert.Equal(t, int64(2024), intent.Amount)

	intent = Parse("around 1500 next month")
	assert.Equal(t, int64(1500), intent.Amount)
}

func TestParse_Gibberish(t *testing.T) {
	for _, text := range []string{"", "   ", "hello there", "??", "no digits here"} {
		intent := Parse(text)
		assert.Equal(t, domain.IntentInvalid, intent.Kind, "text %q", text)
	}
}
