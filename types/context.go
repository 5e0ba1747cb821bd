package types

// LearningStyle selects one of five fixed style-modifier blocks appended to
// the system prompt. The empty string means no style preference was supplied.
type LearningStyle string

const (
	LearningStyleVisual         LearningStyle = "visual"
	LearningStyleAuditory       LearningStyle = "auditory"
	LearningStyleReadingWriting LearningStyle = "reading_writing"
	LearningStyleKinesthetic    LearningStyle = "kinesthetic"
	LearningStyleMultimodal     LearningStyle = "multimodal"
)

// AccessibilityNeed is a fixed accessibility accommodation. Each present need
// appends a prompt block and may scale the completion token budget.
type AccessibilityNeed string

const (
	NeedSimpleLanguage   AccessibilityNeed = "simple_language"
	NeedStepByStep       AccessibilityNeed = "step_by_step"
	NeedRepetition       AccessibilityNeed = "repetition"
	NeedProcessingTime   AccessibilityNeed = "processing_time"
	NeedAttentionSupport AccessibilityNeed = "attention_support"
)

// ConversationContext is the caller-owned request context for one tutoring
// exchange. The pipeline reads it and builds new sequences; it never mutates
// the caller's copy.
type ConversationContext struct {
	ChildID            string              `json:"child_id"`
	AgeGroup           AgeGroup            `json:"age_group"`
	Subject            string              `json:"subject"`
	Topic              string              `json:"topic,omitempty"`
	LearningStyle      LearningStyle       `json:"learning_style,omitempty"`
	AccessibilityNeeds []AccessibilityNeed `json:"accessibility_needs,omitempty"`
	Interests          []string            `json:"interests,omitempty"`
	SessionID          string              `json:"session_id"`
	History            []Message           `json:"history,omitempty"`
}

// HasNeed reports whether the accessibility need is present.
func (c *ConversationContext) HasNeed(need AccessibilityNeed) bool {
	for _, n := range c.AccessibilityNeeds {
		if n == need {
			return true
		}
	}
	return false
}

// ParentalControls are the per-call parental sub-flags of SafetyCheckConfig.
type ParentalControls struct {
	BlockSensitiveTopics bool `json:"block_sensitive_topics"`
	BlockExternalLinks   bool `json:"block_external_links"`
}

// SafetyCheckConfig is supplied per call by the caller and never stored.
type SafetyCheckConfig struct {
	AgeGroup                   AgeGroup         `json:"age_group"`
	StrictMode                 bool             `json:"strict_mode"`
	AllowEducationalExceptions bool             `json:"allow_educational_exceptions"`
	ParentalControls           ParentalControls `json:"parental_controls"`
}
