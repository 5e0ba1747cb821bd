package guardrails

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lumikids/tutorflow/types"
)

func newFilter() *ContentFilter {
	return NewContentFilter(zap.NewNop())
}

func TestFilterCleanTextIsAppropriate(t *testing.T) {
	f := newFilter()
	for _, age := range types.AllAgeGroups() {
		t.Run(string(age), func(t *testing.T) {
			result := f.Filter("Plants need sunlight to grow.", age, nil)
			assert.True(t, result.IsAppropriate)
			assert.Empty(t, result.Violations)
			assert.Equal(t, "Plants need sunlight to grow.", result.FilteredContent)
			assert.Equal(t, 1.0, result.Confidence)
		})
	}
}

func TestFilterPhoneNumberScenario(t *testing.T) {
	f := newFilter()
	const input = "My number is 555-123-4567, call me!"

	for _, age := range types.AllAgeGroups() {
		t.Run(string(age), func(t *testing.T) {
			result := f.Filter(input, age, nil)

			require.Len(t, result.Violations, 1)
			v := result.Violations[0]
			assert.Equal(t, ViolationPersonalInformation, v.Kind)
			assert.Equal(t, SeverityCritical, v.Severity)
			assert.Equal(t, "555-123-4567", v.Span)

			assert.False(t, result.IsAppropriate)
			assert.Contains(t, result.FilteredContent, "[personal information removed]")
			assert.NotContains(t, result.FilteredContent, "555-123-4567")
		})
	}
}

func TestFilterEmailAlwaysCriticalRegardlessOfContext(t *testing.T) {
	f := newFilter()
	// "Educational" surroundings must not soften a PII redaction.
	input := "For homework, email kid@example.com today."

	for _, age := range types.AllAgeGroups() {
		t.Run(string(age), func(t *testing.T) {
			result := f.Filter(input, age, &FilterOptions{AllowEducationalExceptions: true})

			require.NotEmpty(t, result.Violations)
			found := false
			for _, v := range result.Violations {
				if v.Kind == ViolationPersonalInformation {
					found = true
					assert.Equal(t, SeverityCritical, v.Severity)
				}
			}
			assert.True(t, found, "email must be flagged")
			assert.False(t, result.IsAppropriate)
			assert.Contains(t, result.FilteredContent, "[personal information removed]")
			assert.NotContains(t, result.FilteredContent, "kid@example.com")
		})
	}
}

func TestFilterProfanityIsSoftened(t *testing.T) {
	f := newFilter()
	result := f.Filter("That answer is stupid.", types.AgeGroupMiddle, nil)

	require.Len(t, result.Violations, 1)
	assert.Equal(t, ViolationProfanity, result.Violations[0].Kind)
	assert.Equal(t, SeverityMedium, result.Violations[0].Severity)
	assert.Equal(t, "That answer is silly.", result.FilteredContent)
	// Medium alone does not fail the appropriateness rule.
	assert.True(t, result.IsAppropriate)
}

func TestFilterViolenceSeverityEscalatesForYoung(t *testing.T) {
	f := newFilter()
	input := "The soldier raised his gun."

	young := f.Filter(input, types.AgeGroupYoung, nil)
	require.NotEmpty(t, young.Violations)
	assert.Equal(t, SeverityCritical, young.Violations[0].Severity, "high base escalates to critical for young")
	assert.Contains(t, young.FilteredContent, "[removed]")
	assert.False(t, young.IsAppropriate)

	teen := f.Filter(input, types.AgeGroupTeen, nil)
	require.NotEmpty(t, teen.Violations)
	assert.Equal(t, SeverityHigh, teen.Violations[0].Severity)
	assert.False(t, teen.IsAppropriate)
}

func TestFilterEconomicsLeniencyForTeen(t *testing.T) {
	f := newFilter()
	input := "A mortgage is a long-term loan used to buy a home."
	opts := &FilterOptions{AllowEducationalExceptions: true}

	teen := f.Filter(input, types.AgeGroupTeen, opts)
	assert.True(t, teen.IsAppropriate)
	for _, v := range teen.Violations {
		assert.Equal(t, SeverityLow, v.Severity)
	}

	young := f.Filter(input, types.AgeGroupYoung, opts)
	assert.False(t, young.IsAppropriate, "economics terms stay strict for young")
}

func TestFilterBlockedTopics(t *testing.T) {
	f := newFilter()

	result := f.Filter("Some adults enjoy gambling on sports.", types.AgeGroupTeen, nil)
	assert.False(t, result.IsAppropriate)
	foundBlocked := false
	for _, v := range result.Violations {
		if v.Severity == SeverityHigh && v.Kind == ViolationAdultTopic {
			foundBlocked = true
		}
	}
	assert.True(t, foundBlocked)
	// Blocked-topic detection never rewrites text.
	assert.Contains(t, result.FilteredContent, "gambling")
}

func TestFilterEmotionalContent(t *testing.T) {
	f := newFilter()

	// Dense emotional content violates.
	dense := f.Filter("I feel scared and sad and worried.", types.AgeGroupTeen, nil)
	foundViolation := false
	for _, v := range dense.Violations {
		if v.Kind == ViolationEmotionalContent {
			foundViolation = true
			assert.Equal(t, SeverityMedium, v.Severity)
		}
	}
	assert.True(t, foundViolation)

	// Sparse emotional content only warns for older tiers.
	sparse := f.Filter("Some students feel worried before a big test, and that is a completely normal reaction to pressure.", types.AgeGroupTeen, nil)
	for _, v := range sparse.Violations {
		assert.NotEqual(t, ViolationEmotionalContent, v.Kind)
	}
	assert.NotEmpty(t, sparse.Warnings)
}

func TestFilterComplexityAbbreviatesOnlyForYoung(t *testing.T) {
	f := newFilter()
	input := "Photosynthesis is the remarkable biochemical process through which green plants convert sunlight, water, and carbon dioxide into glucose and oxygen."

	young := f.Filter(input, types.AgeGroupYoung, nil)
	assert.Less(t, len(young.FilteredContent), len(input), "young tier abbreviates")

	teen := f.Filter(input, types.AgeGroupTeen, nil)
	assert.Equal(t, input, teen.FilteredContent, "older tiers only warn")
}

func TestFilterFailSafeOnDetectorPanic(t *testing.T) {
	f := newFilter()
	f.stages = append([]filterStage{{
		name: "exploding",
		run: func(string, types.AgeGroup, Policy, FilterOptions) stageOutput {
			panic("detector bug")
		},
	}}, f.stages...)

	result := f.Filter("Anything at all.", types.AgeGroupMiddle, nil)

	assert.False(t, result.IsAppropriate)
	require.Len(t, result.Violations, 1)
	assert.Equal(t, SeverityCritical, result.Violations[0].Severity)
	assert.Equal(t, PolicyFor(types.AgeGroupMiddle).RedirectMessage, result.FilteredContent)
	assert.Equal(t, 0.0, result.Confidence)
}

func TestFilterConfidencePenalties(t *testing.T) {
	f := newFilter()

	short := f.Filter("Hi there!", types.AgeGroupTeen, nil)
	assert.InDelta(t, 0.95, short.Confidence, 1e-9, "short input penalty then clean-pass nudge")

	flagged := f.Filter("My number is 555-123-4567, call me!", types.AgeGroupTeen, nil)
	assert.InDelta(t, 0.7, flagged.Confidence, 1e-9, "one critical violation costs 0.3")
}

func TestFilterIdempotentOnApprovedText(t *testing.T) {
	f := newFilter()
	const input = "Adding fractions works best with a common denominator."

	first := f.Filter(input, types.AgeGroupMiddle, nil)
	require.True(t, first.IsAppropriate)
	require.Empty(t, first.Violations)

	second := f.Filter(first.FilteredContent, types.AgeGroupMiddle, nil)
	assert.Equal(t, first.FilteredContent, second.FilteredContent)
	assert.True(t, second.IsAppropriate)
}

func TestEscalateNeverDowngrades(t *testing.T) {
	assert.Equal(t, SeverityCritical, Escalate(SeverityCritical, SeverityLow))
	assert.Equal(t, SeverityCritical, Escalate(SeverityLow, SeverityCritical))
	assert.Equal(t, SeverityHigh, Escalate(SeverityMedium, SeverityHigh))
	assert.Equal(t, SeverityMedium, Escalate(SeverityMedium, SeverityMedium))
}

func TestFilterProperties(t *testing.T) {
	f := newFilter()
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("confidence stays within [0,1]", prop.ForAll(
		func(text string) bool {
			for _, age := range types.AllAgeGroups() {
				r := f.Filter(text, age, nil)
				if r.Confidence < 0 || r.Confidence > 1 {
					return false
				}
			}
			return true
		},
		gen.AnyString(),
	))

	properties.Property("second pass over an approved clean text is a no-op", prop.ForAll(
		func(text string) bool {
			first := f.Filter(text, types.AgeGroupTeen, nil)
			if !first.IsAppropriate || len(first.Violations) > 0 {
				return true // only approved clean passes must be stable
			}
			second := f.Filter(first.FilteredContent, types.AgeGroupTeen, nil)
			return second.FilteredContent == first.FilteredContent
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
