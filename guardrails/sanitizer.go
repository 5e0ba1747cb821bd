package guardrails

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/lumikids/tutorflow/types"
)

// Sanitizer patterns. These run after the content filter approves a response,
// as defense-in-depth against categories the filter does not specialize in.
var (
	emergencyContactRe = regexp.MustCompile(`(?i)\b911\b|\b999\b|\b112\b|\bcall (?:the )?police\b|\bpoison control\b|\bfire department\b`)

	urlRe = regexp.MustCompile(`(?i)\bhttps?://\S+|\bwww\.\S+|\b[a-z0-9][a-z0-9-]*\.(?:com|org|net|edu|gov|io)\b`)

	harmfulInstructionRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)how to (?:make|build|create) (?:a )?(?:weapon|bomb|explosive|gun|knife)`),
		regexp.MustCompile(`(?i)how to (?:get|buy|make) drugs`),
		regexp.MustCompile(`(?i)(?:don'?t|do not|never) tell (?:your |an? )?(?:parents?|adults?|teachers?|anyone)`),
		regexp.MustCompile(`(?i)keep (?:this|it) (?:a )?secret`),
		regexp.MustCompile(`(?i)meet (?:me|up) (?:alone|in private|in person)`),
	}

	medicalAdviceRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\btake \d+\s?(?:mg|milligrams?|pills?|tablets?)\b[^.!?]*`),
		regexp.MustCompile(`(?i)\byou should take\b[^.!?]*\b(?:medicine|medication|pills?)\b`),
		regexp.MustCompile(`(?i)\bgo to the (?:er|emergency room)\b`),
		regexp.MustCompile(`(?i)\b(?:sounds like|it seems) you have\b[^.!?]*`),
		regexp.MustCompile(`(?i)\byou (?:probably |likely )?have (?:a |an |the )?\w+ (?:infection|flu|virus|disease)\b`),
	}

	legalAdviceRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\byou (?:should|could|can) sue\b[^.!?]*`),
		regexp.MustCompile(`(?i)\bpress charges\b`),
		regexp.MustCompile(`(?i)\btake (?:them|him|her) to court\b`),
		regexp.MustCompile(`(?i)\b(?:that|this|it) is illegal\b`),
		regexp.MustCompile(`(?i)\bagainst the law\b`),
		regexp.MustCompile(`(?i)\byou (?:could|will|might) (?:be )?arrested\b`),
	}

	educationalContextRe = regexp.MustCompile(`(?i)\bin an emergency\b|\bemergency numbers?\b|\bsafety (?:lesson|tip|rule)s?\b|\bimportant numbers\b`)
)

// Neutral redirect placeholders and appended disclaimers. Product copy,
// configurable in spirit; kept here beside the rest of the policy data.
const (
	medicalRedirect   = "[health questions are best answered by a parent, guardian, or doctor]"
	legalRedirect     = "[questions about rules and laws are best discussed with a trusted adult]"
	medicalDisclaimer = "Remember: for any health questions, always check with a parent, guardian, or doctor."
	legalDisclaimer   = "Remember: for questions about rules and laws, a trusted adult is the right person to ask."
)

// ResponseSanitizer is the second safety pass over filter-approved text. It
// removes or replaces unsafe spans, computes a safety score and can veto the
// whole response.
type ResponseSanitizer struct {
	logger *zap.Logger
}

// NewResponseSanitizer creates a sanitizer.
func NewResponseSanitizer(logger *zap.Logger) *ResponseSanitizer {
	return &ResponseSanitizer{logger: logger}
}

// Sanitize runs every sub-check in order. When the result is blocked, the
// returned content is the age-tiered fallback message and the original text is
// discarded.
func (s *ResponseSanitizer) Sanitize(text string, cfg types.SafetyCheckConfig) SanitizeResult {
	pol := PolicyFor(cfg.AgeGroup)
	result := SanitizeResult{SanitizedContent: text, SafetyScore: 1.0}
	current := text

	var criticalMods, advisoryMods int
	var needMedical, needLegal bool

	// 1. Emergency-contact mentions.
	if matches := emergencyContactRe.FindAllString(current, -1); len(matches) > 0 {
		educational := educationalContextRe.MatchString(current) && cfg.AllowEducationalExceptions
		switch {
		case cfg.AgeGroup == types.AgeGroupYoung:
			result.Blocked = true
			result.Modifications = append(result.Modifications, Modification{
				Kind:     ModificationRemoval,
				Original: strings.Join(matches, ", "),
				Reason:   "emergency contact mention blocked for youngest tier",
			})
			criticalMods++
		case educational:
			result.Warnings = append(result.Warnings, "emergency contact kept in educational context")
		default:
			current = emergencyContactRe.ReplaceAllString(current, "")
			result.Modifications = append(result.Modifications, Modification{
				Kind:     ModificationRemoval,
				Original: strings.Join(matches, ", "),
				Reason:   "emergency contact mention removed",
			})
			criticalMods++
		}
	}

	// 2. Embedded URLs/domains.
	if matches := urlRe.FindAllString(current, -1); len(matches) > 0 {
		if cfg.AgeGroup == types.AgeGroupYoung || cfg.ParentalControls.BlockSensitiveTopics || cfg.ParentalControls.BlockExternalLinks {
			current = urlRe.ReplaceAllString(current, "")
			result.Modifications = append(result.Modifications, Modification{
				Kind:     ModificationRemoval,
				Original: strings.Join(matches, ", "),
				Reason:   "external link removed",
			})
			advisoryMods++
		} else {
			result.Warnings = append(result.Warnings, "response contains external links")
		}
	}

	// 3. Harmful instructions always strip and always block.
	for _, re := range harmfulInstructionRes {
		if matches := re.FindAllString(current, -1); len(matches) > 0 {
			current = re.ReplaceAllString(current, "")
			result.Blocked = true
			result.Modifications = append(result.Modifications, Modification{
				Kind:     ModificationRemoval,
				Original: strings.Join(matches, ", "),
				Reason:   "harmful instruction removed",
			})
			criticalMods++
		}
	}

	// 4. Medical-advice phrasing.
	for _, re := range medicalAdviceRes {
		if matches := re.FindAllString(current, -1); len(matches) > 0 {
			current = re.ReplaceAllString(current, medicalRedirect)
			result.Modifications = append(result.Modifications, Modification{
				Kind:        ModificationReplacement,
				Original:    strings.Join(matches, ", "),
				Replacement: medicalRedirect,
				Reason:      "medical advice replaced with redirect",
			})
			result.Warnings = append(result.Warnings, "medical advice phrasing replaced")
			advisoryMods++
			needMedical = true
		}
	}

	// 5. Legal-advice phrasing, same treatment.
	for _, re := range legalAdviceRes {
		if matches := re.FindAllString(current, -1); len(matches) > 0 {
			current = re.ReplaceAllString(current, legalRedirect)
			result.Modifications = append(result.Modifications, Modification{
				Kind:        ModificationReplacement,
				Original:    strings.Join(matches, ", "),
				Replacement: legalRedirect,
				Reason:      "legal advice replaced with redirect",
			})
			result.Warnings = append(result.Warnings, "legal advice phrasing replaced")
			advisoryMods++
			needLegal = true
		}
	}

	// 6. Residual complexity check, warning only.
	if avg := avgSentenceWords(current); avg > float64(pol.MaxSentenceWords) {
		result.Warnings = append(result.Warnings, "response sentence length above tier guideline")
	}
	if avg := avgSyllablesPerWord(current); avg > pol.MaxSyllablesPerWord {
		result.Warnings = append(result.Warnings, "response vocabulary above tier guideline")
	}

	// 7. One short disclaimer per fired category.
	if needMedical {
		current = current + "\n\n" + medicalDisclaimer
		result.Modifications = append(result.Modifications, Modification{
			Kind:        ModificationWarningAdded,
			Replacement: medicalDisclaimer,
			Reason:      "medical disclaimer appended",
		})
	}
	if needLegal {
		current = current + "\n\n" + legalDisclaimer
		result.Modifications = append(result.Modifications, Modification{
			Kind:        ModificationWarningAdded,
			Replacement: legalDisclaimer,
			Reason:      "legal disclaimer appended",
		})
	}

	result.SafetyScore = s.safetyScore(text, current, cfg, criticalMods, advisoryMods, len(result.Modifications))
	if result.SafetyScore < 0.5 {
		result.Blocked = true
	}

	if result.Blocked {
		result.SanitizedContent = pol.FallbackMessage
		s.logger.Info("response blocked by sanitizer",
			zap.String("age_group", string(cfg.AgeGroup)),
			zap.Float64("safety_score", result.SafetyScore),
			zap.Int("modifications", len(result.Modifications)),
		)
	} else {
		result.SanitizedContent = strings.TrimSpace(collapseSpaces(current))
	}
	return result
}

// safetyScore starts at 1.0 and subtracts per the severity of what was
// changed: critical categories 0.3 each, medical/legal advisories 0.1 each, a
// proportional penalty once more than 20% of the content was cut, and a flat
// 0.2 for any modification at all on the youngest tier.
func (s *ResponseSanitizer) safetyScore(original, final string, cfg types.SafetyCheckConfig, criticalMods, advisoryMods, totalMods int) float64 {
	score := 1.0
	score -= 0.3 * float64(criticalMods)
	score -= 0.1 * float64(advisoryMods)

	if len(original) > 0 {
		reduction := 1 - float64(len(final))/float64(len(original))
		if reduction > 0.2 {
			score -= (reduction - 0.2) * 0.5
		}
	}
	if cfg.AgeGroup == types.AgeGroupYoung && totalMods > 0 {
		score -= 0.2
	}
	if score < 0 {
		return 0
	}
	return score
}

var multiSpaceRe = regexp.MustCompile(`[ \t]{2,}`)

// collapseSpaces tidies the gaps left by span removal.
func collapseSpaces(text string) string {
	return multiSpaceRe.ReplaceAllString(text, " ")
}
