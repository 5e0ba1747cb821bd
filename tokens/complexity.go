package tokens

import (
	"math"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/lumikids/tutorflow/types"
)

// recentWindow is how many trailing messages the text-based signals examine.
const recentWindow = 5

// subjectBaseScores seed the conceptual-difficulty factor per subject.
var subjectBaseScores = map[string]float64{
	"math":        50,
	"science":     55,
	"programming": 60,
	"history":     45,
	"geography":   40,
	"english":     40,
	"reading":     35,
	"music":       35,
	"art":         30,
	"general":     35,
}

const defaultSubjectBase = 40

// ageConceptOffsets shift conceptual difficulty per tier: the same question
// is conceptually harder work for a younger child.
var ageConceptOffsets = map[types.AgeGroup]float64{
	types.AgeGroupYoung:  -15,
	types.AgeGroupMiddle: 0,
	types.AgeGroupTeen:   15,
}

// advancedTerms bump conceptual difficulty per occurrence.
var advancedTerms = []string{
	"derivative", "integral", "theorem", "equation", "probability", "variable",
	"quantum", "molecule", "velocity", "photosynthesis", "ecosystem", "hypothesis",
	"algorithm", "recursion", "metaphor", "civilization", "democracy", "economy",
}

const advancedTermBonus = 5

// clarificationPhrases signal the child is working to understand, which
// deepens the interaction.
var clarificationPhrases = []string{
	"what do you mean",
	"can you explain",
	"i don't understand",
	"i dont understand",
	"i'm confused",
	"im confused",
}

var complexityWordRe = regexp.MustCompile(`[A-Za-z']+`)

// ComplexityAnalyzer scores how demanding a conversation currently is, from
// four heuristic signals blended with fixed weights. Rule-based on purpose;
// the score steers model selection, nothing else.
type ComplexityAnalyzer struct {
	estimator Estimator
	logger    *zap.Logger
}

// NewComplexityAnalyzer creates an analyzer using est for length signals.
func NewComplexityAnalyzer(est Estimator, logger *zap.Logger) *ComplexityAnalyzer {
	return &ComplexityAnalyzer{estimator: est, logger: logger}
}

// Analyze scores the conversation. Text signals examine only the most recent
// window; the context-length signal counts the whole history. Empty or
// text-free input degrades to a zero score with a logged warning, never an
// error.
func (a *ComplexityAnalyzer) Analyze(messages []types.Message, subject string, age types.AgeGroup) types.ConversationComplexity {
	window := messages
	if len(window) > recentWindow {
		window = window[len(window)-recentWindow:]
	}

	if len(messages) == 0 || HistoryTokens(a.estimator, window) == 0 {
		a.logger.Warn("complexity estimation degraded, defaulting to simple",
			zap.String("subject", subject),
			zap.String("age_group", string(age)),
			zap.Int("messages", len(messages)),
		)
		return types.ConversationComplexity{Level: types.ComplexitySimple}
	}

	factors := types.ComplexityFactors{
		Vocabulary:       a.vocabularyScore(window),
		Conceptual:       a.conceptualScore(window, subject, age),
		ContextLength:    math.Min(float64(len(messages))*10, 100),
		InteractionDepth: a.interactionScore(window, len(messages)),
	}

	score := 0.3*factors.Vocabulary +
		0.4*factors.Conceptual +
		0.2*factors.ContextLength +
		0.1*factors.InteractionDepth

	return types.ConversationComplexity{
		Level:   types.LevelForScore(score),
		Score:   score,
		Factors: factors,
	}
}

// vocabularyScore blends average word length, lexical diversity and the share
// of long words.
func (a *ComplexityAnalyzer) vocabularyScore(window []types.Message) float64 {
	var words []string
	for _, m := range window {
		words = append(words, complexityWordRe.FindAllString(strings.ToLower(m.Content), -1)...)
	}
	if len(words) == 0 {
		return 0
	}

	totalLen := 0
	long := 0
	unique := make(map[string]struct{}, len(words))
	for _, w := range words {
		totalLen += len(w)
		if len(w) > 7 {
			long++
		}
		unique[w] = struct{}{}
	}

	avgLen := float64(totalLen) / float64(len(words))
	diversity := float64(len(unique)) / float64(len(words))
	longFrac := float64(long) / float64(len(words))

	score := 0.4*math.Min(avgLen*10, 100) +
		0.3*diversity*100 +
		0.3*math.Min(longFrac*400, 100)
	return clamp100(score)
}

// conceptualScore starts from the subject's base difficulty, shifts by age
// tier and adds a bonus per advanced-term occurrence.
func (a *ComplexityAnalyzer) conceptualScore(window []types.Message, subject string, age types.AgeGroup) float64 {
	base, ok := subjectBaseScores[strings.ToLower(subject)]
	if !ok {
		base = defaultSubjectBase
	}
	score := base + ageConceptOffsets[age]

	for _, m := range window {
		lower := strings.ToLower(m.Content)
		for _, term := range advancedTerms {
			score += float64(strings.Count(lower, term) * advancedTermBonus)
		}
	}
	return clamp100(score)
}

// interactionScore rewards streaks of user follow-up questions, clarification
// phrases and overall conversation length.
func (a *ComplexityAnalyzer) interactionScore(window []types.Message, totalMessages int) float64 {
	score := 0.0

	streak := 0
	for _, m := range window {
		if m.Role == types.RoleUser && strings.Contains(m.Content, "?") {
			streak++
			score += float64(streak) * 5
		} else {
			streak = 0
		}
	}

	for _, m := range window {
		lower := strings.ToLower(m.Content)
		for _, phrase := range clarificationPhrases {
			if strings.Contains(lower, phrase) {
				score += 15
			}
		}
	}

	score += math.Min(float64(totalMessages)*2.5, 25)
	return clamp100(score)
}

func clamp100(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
