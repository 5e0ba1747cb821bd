package guardrails

import (
	"regexp"

	"github.com/lumikids/tutorflow/types"
)

// Policy collects every age-tier-dependent threshold, list and canned message
// in one place. Detectors read only through the policy, so the data can be
// replaced without touching detector logic. The English lexicons below are
// illustrative configuration, not an authoritative moderation taxonomy.
type Policy struct {
	// MaxSentenceWords is the readability ceiling for average sentence length.
	MaxSentenceWords int
	// MaxSyllablesPerWord is the readability ceiling for word difficulty.
	MaxSyllablesPerWord float64
	// EmotionalDensityThreshold is the emotion-lexicon hits per word above
	// which emotional content becomes a violation rather than a warning.
	EmotionalDensityThreshold float64
	// SeverityShift raises (positive) lexical severities for this tier.
	SeverityShift int
	// AbbreviateOverlongSentences enables the complexity stage rewrite.
	AbbreviateOverlongSentences bool
	// EconomicsLenient treats educational economics terms as low severity.
	EconomicsLenient bool
	// BlockedTopics are substring-matched against the candidate text.
	BlockedTopics []BlockedTopic
	// RedirectMessage is the generic copy used when a detector fails internally.
	RedirectMessage string
	// FallbackMessage replaces a blocked response wholesale.
	FallbackMessage string
}

// BlockedTopic is one entry of a tier's blocked-topic list.
type BlockedTopic struct {
	Phrase   string
	Kind     ViolationKind
	Severity Severity
}

var policyTable = map[types.AgeGroup]Policy{
	types.AgeGroupYoung: {
		MaxSentenceWords:            8,
		MaxSyllablesPerWord:         1.5,
		EmotionalDensityThreshold:   0.05,
		SeverityShift:               1,
		AbbreviateOverlongSentences: true,
		BlockedTopics: []BlockedTopic{
			{"death", ViolationEmotionalContent, SeverityHigh},
			{"war", ViolationViolence, SeverityHigh},
			{"drugs", ViolationAdultTopic, SeverityHigh},
			{"alcohol", ViolationAdultTopic, SeverityHigh},
			{"gambling", ViolationAdultTopic, SeverityHigh},
			{"dating", ViolationAdultTopic, SeverityHigh},
			{"horror", ViolationEmotionalContent, SeverityHigh},
		},
		RedirectMessage: "Let's talk about something fun instead! What would you like to learn about?",
		FallbackMessage: "That's a tricky one! Let's pick a different question and keep learning together.",
	},
	types.AgeGroupMiddle: {
		MaxSentenceWords:          12,
		MaxSyllablesPerWord:       2.0,
		EmotionalDensityThreshold: 0.10,
		SeverityShift:             0,
		BlockedTopics: []BlockedTopic{
			{"drugs", ViolationAdultTopic, SeverityHigh},
			{"gambling", ViolationAdultTopic, SeverityHigh},
			{"explicit", ViolationAdultTopic, SeverityHigh},
		},
		RedirectMessage: "Let's steer back to your lesson. What part of the topic should we look at next?",
		FallbackMessage: "I can't help with that one, but I'd love to keep working on your questions. What else are you curious about?",
	},
	types.AgeGroupTeen: {
		MaxSentenceWords:          20,
		MaxSyllablesPerWord:       2.6,
		EmotionalDensityThreshold: 0.15,
		SeverityShift:             0,
		EconomicsLenient:          true,
		BlockedTopics: []BlockedTopic{
			{"gambling", ViolationAdultTopic, SeverityHigh},
			{"explicit", ViolationAdultTopic, SeverityHigh},
		},
		RedirectMessage: "That's outside what I can help with here. Want to get back to the subject?",
		FallbackMessage: "I'm not able to answer that here. Let's get back to studying. What's your next question?",
	},
}

// PolicyFor returns the policy for an age group. Unknown groups get the
// strictest tier.
func PolicyFor(age types.AgeGroup) Policy {
	if p, ok := policyTable[age]; ok {
		return p
	}
	return policyTable[types.AgeGroupYoung]
}

// lexEntry is one lexical-match rule: matcher, base severity, optional rewrite.
type lexEntry struct {
	re       *regexp.Regexp
	severity Severity
	rewrite  string // empty means the stage's own rewrite rule applies
}

// profanityLexicon maps inappropriate language to milder synonyms.
var profanityLexicon = []lexEntry{
	{regexp.MustCompile(`(?i)\bstupid\b`), SeverityMedium, "silly"},
	{regexp.MustCompile(`(?i)\bdumb\b`), SeverityMedium, "not the best idea"},
	{regexp.MustCompile(`(?i)\bidiot\b`), SeverityMedium, "goofball"},
	{regexp.MustCompile(`(?i)\bshut up\b`), SeverityMedium, "please stop"},
	{regexp.MustCompile(`(?i)\bhate\b`), SeverityLow, "really dislike"},
	{regexp.MustCompile(`(?i)\bsucks\b`), SeverityLow, "is not great"},
	{regexp.MustCompile(`(?i)\bcrap\b`), SeverityMedium, "nonsense"},
	{regexp.MustCompile(`(?i)\bloser\b`), SeverityMedium, "someone still learning"},
}

// violenceLexicon carries base severities; tiers shift them via SeverityShift.
var violenceLexicon = []lexEntry{
	{regexp.MustCompile(`(?i)\bkill(?:s|ed|ing)?\b`), SeverityMedium, ""},
	{regexp.MustCompile(`(?i)\bmurder(?:s|ed|er)?\b`), SeverityHigh, ""},
	{regexp.MustCompile(`(?i)\bweapons?\b`), SeverityMedium, ""},
	{regexp.MustCompile(`(?i)\bguns?\b`), SeverityHigh, ""},
	{regexp.MustCompile(`(?i)\bknife\b`), SeverityMedium, ""},
	{regexp.MustCompile(`(?i)\bbombs?\b`), SeverityHigh, ""},
	{regexp.MustCompile(`(?i)\bstab(?:bed|bing)?\b`), SeverityHigh, ""},
	{regexp.MustCompile(`(?i)\bshoot(?:s|ing)?\b`), SeverityHigh, ""},
	{regexp.MustCompile(`(?i)\bfight(?:s|ing)?\b`), SeverityLow, ""},
	{regexp.MustCompile(`(?i)\bpunch(?:es|ed|ing)?\b`), SeverityLow, ""},
	{regexp.MustCompile(`(?i)\bblood(?:y)?\b`), SeverityLow, ""},
	{regexp.MustCompile(`(?i)\battack(?:s|ed|ing)?\b`), SeverityMedium, ""},
}

// adultEntry marks economics vocabulary as educational so older tiers can
// discuss it leniently.
type adultEntry struct {
	lexEntry
	educational bool
}

var adultLexicon = []adultEntry{
	{lexEntry{regexp.MustCompile(`(?i)\bgambling\b`), SeverityHigh, ""}, false},
	{lexEntry{regexp.MustCompile(`(?i)\bcasinos?\b`), SeverityHigh, ""}, false},
	{lexEntry{regexp.MustCompile(`(?i)\balcohol\b`), SeverityMedium, ""}, false},
	{lexEntry{regexp.MustCompile(`(?i)\bbeer\b`), SeverityMedium, ""}, false},
	{lexEntry{regexp.MustCompile(`(?i)\bcigarettes?\b`), SeverityMedium, ""}, false},
	{lexEntry{regexp.MustCompile(`(?i)\bvap(?:e|ing)\b`), SeverityMedium, ""}, false},
	{lexEntry{regexp.MustCompile(`(?i)\bdrugs?\b`), SeverityHigh, ""}, false},
	{lexEntry{regexp.MustCompile(`(?i)\bmortgage\b`), SeverityMedium, ""}, true},
	{lexEntry{regexp.MustCompile(`(?i)\bloans?\b`), SeverityMedium, ""}, true},
	{lexEntry{regexp.MustCompile(`(?i)\binterest rates?\b`), SeverityMedium, ""}, true},
	{lexEntry{regexp.MustCompile(`(?i)\btax(?:es)?\b`), SeverityMedium, ""}, true},
	{lexEntry{regexp.MustCompile(`(?i)\binvestments?\b`), SeverityMedium, ""}, true},
	{lexEntry{regexp.MustCompile(`(?i)\bstock market\b`), SeverityMedium, ""}, true},
}

// piiPattern is a structural personal-information matcher. PII is always
// critical and always redacted, regardless of age tier or educational context.
type piiPattern struct {
	name string
	re   *regexp.Regexp
}

const piiReplacement = "[personal information removed]"

var piiPatterns = []piiPattern{
	{"phone number", regexp.MustCompile(`\(\d{3}\)\s?\d{3}[-.\s]?\d{4}|\b\d{3}[-.\s]\d{3}[-.\s]\d{4}\b|\b\d{10}\b`)},
	{"email address", regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
	{"street address", regexp.MustCompile(`(?i)\b\d{1,5}\s+[A-Za-z][A-Za-z ]*?\s(?:street|st|avenue|ave|road|rd|lane|ln|drive|dr|boulevard|blvd|court|ct)\b\.?`)},
	{"identity document", regexp.MustCompile(`(?i)\b(?:passport|social security|ssn|driver'?s licen[cs]e)\s*(?:number|no\.?|#)?\b`)},
}

// emotionLexicon drives the emotional-content density check.
var emotionLexicon = regexp.MustCompile(`(?i)\b(afraid|scared|scary|fear|terrified|sad|crying|cried|depressed|miserable|angry|furious|rage|worried|anxious|anxiety|panic|hopeless|lonely)\b`)
