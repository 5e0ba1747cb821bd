package guardrails

// Severity grades a content violation.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities for escalation comparisons.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return -1
	}
}

// Escalate returns the harsher of two severities. Severities only ever go up
// when multiple detectors match the same span, never down.
func Escalate(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// severityByRank maps a rank back to its Severity, clamping to the valid range.
func severityByRank(rank int) Severity {
	switch {
	case rank <= 0:
		return SeverityLow
	case rank == 1:
		return SeverityMedium
	case rank == 2:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}

// ViolationKind is the closed set of policy-breach categories.
type ViolationKind string

const (
	ViolationProfanity           ViolationKind = "profanity"
	ViolationViolence            ViolationKind = "violence"
	ViolationSexual              ViolationKind = "sexual"
	ViolationHate                ViolationKind = "hate"
	ViolationBullying            ViolationKind = "bullying"
	ViolationDangerousActivity   ViolationKind = "dangerous_activity"
	ViolationPersonalInformation ViolationKind = "personal_information"
	ViolationAdultTopic          ViolationKind = "adult_topic"
	ViolationComplexLanguage     ViolationKind = "complex_language"
	ViolationEmotionalContent    ViolationKind = "emotional_content"
	ViolationCommercial          ViolationKind = "commercial"
	ViolationMedicalAdvice       ViolationKind = "medical_advice"
	ViolationLegalAdvice         ViolationKind = "legal_advice"
)

// ContentViolation is one detected policy breach in generated text. Many
// violations may attach to a single filtering pass; the set, not any single
// value, drives the appropriateness decision.
type ContentViolation struct {
	Kind        ViolationKind `json:"kind"`
	Severity    Severity      `json:"severity"`
	Description string        `json:"description"`
	Span        string        `json:"span,omitempty"`
	Replacement string        `json:"replacement,omitempty"`
}

// FilterResult is the outcome of one ContentFilter pass.
type FilterResult struct {
	IsAppropriate   bool               `json:"is_appropriate"`
	FilteredContent string             `json:"filtered_content"`
	Violations      []ContentViolation `json:"violations,omitempty"`
	Confidence      float64            `json:"confidence"`
	Warnings        []string           `json:"warnings,omitempty"`
}

// CriticalCount returns the number of critical violations.
func (r *FilterResult) CriticalCount() int { return r.countSeverity(SeverityCritical) }

// HighCount returns the number of high violations.
func (r *FilterResult) HighCount() int { return r.countSeverity(SeverityHigh) }

func (r *FilterResult) countSeverity(s Severity) int {
	n := 0
	for _, v := range r.Violations {
		if v.Severity == s {
			n++
		}
	}
	return n
}

// ModificationKind classifies a sanitizer change.
type ModificationKind string

const (
	ModificationRemoval      ModificationKind = "removal"
	ModificationReplacement  ModificationKind = "replacement"
	ModificationWarningAdded ModificationKind = "warning_added"
)

// Modification records one sanitizer change, cumulative across sub-checks.
type Modification struct {
	Kind        ModificationKind `json:"kind"`
	Original    string           `json:"original,omitempty"`
	Replacement string           `json:"replacement,omitempty"`
	Reason      string           `json:"reason"`
}

// SanitizeResult is the outcome of one ResponseSanitizer pass.
type SanitizeResult struct {
	SanitizedContent string         `json:"sanitized_content"`
	Warnings         []string       `json:"warnings,omitempty"`
	Blocked          bool           `json:"blocked"`
	Modifications    []Modification `json:"modifications,omitempty"`
	SafetyScore      float64        `json:"safety_score"`
}
