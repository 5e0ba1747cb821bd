package guardrails

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/lumikids/tutorflow/types"
)

// FilterOptions carries the optional per-call context for a filter pass.
type FilterOptions struct {
	// AllowEducationalExceptions relaxes the adult-topic economics terms for
	// older tiers when the surrounding product context is a lesson.
	AllowEducationalExceptions bool
}

// stageOutput is what one detector stage hands to the next: possibly rewritten
// text plus its violations and warnings. Rewrites are local substitutions,
// never structural.
type stageOutput struct {
	Text       string
	Violations []ContentViolation
	Warnings   []string
}

// filterStage is one entry of the ordered detector table. Stages are
// independent and individually testable; reordering the table needs no code
// change elsewhere.
type filterStage struct {
	name string
	run  func(text string, age types.AgeGroup, pol Policy, opts FilterOptions) stageOutput
}

// ContentFilter screens model output against age-tiered policy by running an
// ordered table of detector stages over the candidate text.
type ContentFilter struct {
	stages []filterStage
	logger *zap.Logger
}

// NewContentFilter creates a filter with the default stage table.
func NewContentFilter(logger *zap.Logger) *ContentFilter {
	return &ContentFilter{
		stages: []filterStage{
			{"profanity", stageProfanity},
			{"violence", stageViolence},
			{"adult_topics", stageAdultTopics},
			{"personal_information", stagePersonalInformation},
			{"language_complexity", stageLanguageComplexity},
			{"blocked_topics", stageBlockedTopics},
			{"emotional_content", stageEmotionalContent},
		},
		logger: logger,
	}
}

// Filter runs every stage in order over text. Each stage both collects
// violations and may rewrite the text it hands to the next stage. A response
// is appropriate only when no critical and no high violations were found.
func (f *ContentFilter) Filter(text string, age types.AgeGroup, opts *FilterOptions) FilterResult {
	pol := PolicyFor(age)
	options := FilterOptions{}
	if opts != nil {
		options = *opts
	}

	result := FilterResult{FilteredContent: text, Confidence: 1.0}
	current := text

	for _, stage := range f.stages {
		out, err := runStage(stage, current, age, pol, options)
		if err != nil {
			// Fail safe: a broken detector must never let content through.
			f.logger.Error("content filter stage failed",
				zap.String("stage", stage.name),
				zap.String("age_group", string(age)),
				zap.Error(err),
			)
			return FilterResult{
				IsAppropriate:   false,
				FilteredContent: pol.RedirectMessage,
				Violations: []ContentViolation{{
					Kind:        ViolationDangerousActivity,
					Severity:    SeverityCritical,
					Description: fmt.Sprintf("safety check %q failed internally", stage.name),
				}},
				Confidence: 0,
			}
		}
		current = out.Text
		result.Violations = mergeViolations(result.Violations, out.Violations)
		result.Warnings = append(result.Warnings, out.Warnings...)
	}

	result.FilteredContent = current
	result.IsAppropriate = result.CriticalCount() == 0 && result.HighCount() == 0
	result.Confidence = confidenceFor(text, result.Violations)

	if !result.IsAppropriate {
		f.logger.Info("content filtered",
			zap.String("age_group", string(age)),
			zap.Int("violations", len(result.Violations)),
			zap.Float64("confidence", result.Confidence),
		)
	}
	return result
}

// runStage isolates a stage so an internal panic degrades to an error instead
// of taking down the request.
func runStage(stage filterStage, text string, age types.AgeGroup, pol Policy, opts FilterOptions) (out stageOutput, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage %s panicked: %v", stage.name, r)
		}
	}()
	out = stage.run(text, age, pol, opts)
	return out, nil
}

// mergeViolations appends next onto acc, escalating severity when two
// detectors flagged the same span instead of keeping both entries.
func mergeViolations(acc, next []ContentViolation) []ContentViolation {
	for _, v := range next {
		merged := false
		if v.Span != "" {
			for i := range acc {
				if acc[i].Span == v.Span {
					acc[i].Severity = Escalate(acc[i].Severity, v.Severity)
					merged = true
					break
				}
			}
		}
		if !merged {
			acc = append(acc, v)
		}
	}
	return acc
}

// confidenceFor scores how reliable this pass is: short or very long inputs
// and accumulating violations erode it; a clean pass nudges it back up.
func confidenceFor(original string, violations []ContentViolation) float64 {
	confidence := 1.0
	if len(original) < 20 {
		confidence -= 0.1
	}
	if len(original) > 2000 {
		confidence -= 0.1
	}
	for _, v := range violations {
		switch v.Severity {
		case SeverityCritical:
			confidence -= 0.3
		case SeverityHigh:
			confidence -= 0.2
		case SeverityMedium:
			confidence -= 0.1
		case SeverityLow:
			confidence -= 0.05
		}
	}
	if len(violations) > 3 {
		confidence -= 0.1
	}
	if len(violations) > 6 {
		confidence -= 0.1
	}
	if len(violations) == 0 {
		confidence += 0.05
	}
	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}

// --- detector stages -------------------------------------------------------

func stageProfanity(text string, age types.AgeGroup, _ Policy, _ FilterOptions) stageOutput {
	out := stageOutput{Text: text}
	for _, entry := range profanityLexicon {
		matches := entry.re.FindAllString(out.Text, -1)
		if len(matches) == 0 {
			continue
		}
		severity := entry.severity
		if age == types.AgeGroupTeen && severity == SeverityMedium {
			severity = SeverityLow
		}
		for _, m := range matches {
			out.Violations = append(out.Violations, ContentViolation{
				Kind:        ViolationProfanity,
				Severity:    severity,
				Description: "inappropriate language softened",
				Span:        m,
				Replacement: entry.rewrite,
			})
		}
		out.Text = entry.re.ReplaceAllString(out.Text, entry.rewrite)
	}
	return out
}

func stageViolence(text string, _ types.AgeGroup, pol Policy, _ FilterOptions) stageOutput {
	out := stageOutput{Text: text}
	for _, entry := range violenceLexicon {
		matches := entry.re.FindAllString(out.Text, -1)
		if len(matches) == 0 {
			continue
		}
		severity := severityByRank(entry.severity.Rank() + pol.SeverityShift)
		for _, m := range matches {
			v := ContentViolation{
				Kind:        ViolationViolence,
				Severity:    severity,
				Description: "violent language detected",
				Span:        m,
			}
			if severity.Rank() >= SeverityHigh.Rank() {
				v.Replacement = "[removed]"
			}
			out.Violations = append(out.Violations, v)
		}
		if severity.Rank() >= SeverityHigh.Rank() {
			out.Text = entry.re.ReplaceAllString(out.Text, "[removed]")
		}
	}
	return out
}

func stageAdultTopics(text string, age types.AgeGroup, pol Policy, opts FilterOptions) stageOutput {
	out := stageOutput{Text: text}
	for _, entry := range adultLexicon {
		matches := entry.re.FindAllString(text, -1)
		if len(matches) == 0 {
			continue
		}
		severity := severityByRank(entry.severity.Rank() + pol.SeverityShift)
		if entry.educational && pol.EconomicsLenient && opts.AllowEducationalExceptions {
			severity = SeverityLow
		}
		for _, m := range matches {
			out.Violations = append(out.Violations, ContentViolation{
				Kind:        ViolationAdultTopic,
				Severity:    severity,
				Description: "adult topic referenced",
				Span:        m,
			})
		}
	}
	return out
}

func stagePersonalInformation(text string, _ types.AgeGroup, _ Policy, _ FilterOptions) stageOutput {
	out := stageOutput{Text: text}
	for _, pattern := range piiPatterns {
		matches := pattern.re.FindAllString(out.Text, -1)
		if len(matches) == 0 {
			continue
		}
		for _, m := range matches {
			out.Violations = append(out.Violations, ContentViolation{
				Kind:        ViolationPersonalInformation,
				Severity:    SeverityCritical,
				Description: pattern.name + " redacted",
				Span:        m,
				Replacement: piiReplacement,
			})
		}
		out.Text = pattern.re.ReplaceAllString(out.Text, piiReplacement)
	}
	return out
}

func stageLanguageComplexity(text string, _ types.AgeGroup, pol Policy, _ FilterOptions) stageOutput {
	out := stageOutput{Text: text}

	// Redaction markers inserted by earlier stages don't count as prose.
	measured := redactionMarkerRe.ReplaceAllString(text, "")
	sentenceLen := avgSentenceWords(measured)
	syllables := avgSyllablesPerWord(measured)
	tooLong := sentenceLen > float64(pol.MaxSentenceWords)
	tooDense := syllables > pol.MaxSyllablesPerWord

	if !tooLong && !tooDense {
		return out
	}

	if pol.AbbreviateOverlongSentences {
		if tooLong {
			out.Text = abbreviateSentences(text, pol.MaxSentenceWords)
		}
		out.Violations = append(out.Violations, ContentViolation{
			Kind:        ViolationComplexLanguage,
			Severity:    SeverityLow,
			Description: fmt.Sprintf("language above tier readability (%.1f words/sentence, %.2f syllables/word)", sentenceLen, syllables),
		})
		return out
	}

	if tooLong {
		out.Warnings = append(out.Warnings, fmt.Sprintf("average sentence length %.1f exceeds tier guideline of %d words", sentenceLen, pol.MaxSentenceWords))
	}
	if tooDense {
		out.Warnings = append(out.Warnings, fmt.Sprintf("average %.2f syllables per word exceeds tier guideline of %.1f", syllables, pol.MaxSyllablesPerWord))
	}
	return out
}

var redactionMarkerRe = regexp.MustCompile(`\[[a-z ]+\]`)

// abbreviateSentences truncates each overlong sentence to the word limit.
func abbreviateSentences(text string, maxWords int) string {
	sentences := splitSentences(text)
	var b strings.Builder
	for i, s := range sentences {
		words := strings.Fields(s)
		if len(words) > maxWords {
			s = strings.Join(words[:maxWords], " ")
			s = strings.TrimRight(s, ",;:") + "."
		}
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(s)
	}
	return b.String()
}

func stageBlockedTopics(text string, _ types.AgeGroup, pol Policy, _ FilterOptions) stageOutput {
	out := stageOutput{Text: text}
	lower := strings.ToLower(text)
	for _, topic := range pol.BlockedTopics {
		if containsWord(lower, topic.Phrase) {
			out.Violations = append(out.Violations, ContentViolation{
				Kind:        topic.Kind,
				Severity:    topic.Severity,
				Description: fmt.Sprintf("blocked topic %q for this age tier", topic.Phrase),
			})
		}
	}
	return out
}

func stageEmotionalContent(text string, age types.AgeGroup, pol Policy, _ FilterOptions) stageOutput {
	out := stageOutput{Text: text}
	hits := emotionLexicon.FindAllString(text, -1)
	if len(hits) == 0 {
		return out
	}
	words := wordsOf(text)
	density := float64(len(hits)) / float64(len(words))

	if density >= pol.EmotionalDensityThreshold || age == types.AgeGroupYoung {
		out.Violations = append(out.Violations, ContentViolation{
			Kind:        ViolationEmotionalContent,
			Severity:    SeverityMedium,
			Description: fmt.Sprintf("heavy emotional content (density %.2f)", density),
		})
		return out
	}
	out.Warnings = append(out.Warnings, fmt.Sprintf("emotional language present (density %.2f)", density))
	return out
}
