package tokens

import (
	"strings"

	"go.uber.org/zap"

	"github.com/lumikids/tutorflow/types"
)

// softBudgetRatio is the budget share ordinary messages may fill; the
// remainder stays reserved for important ones.
const softBudgetRatio = 0.8

// salientPhrases mark a message worth keeping during pruning.
var salientPhrases = []string{"help", "understand", "confused"}

// Pruner reduces conversation history to a token budget while keeping the
// messages that carry the thread of the lesson.
type Pruner struct {
	estimator Estimator
	logger    *zap.Logger
}

// NewPruner creates a pruner using est to cost messages.
func NewPruner(est Estimator, logger *zap.Logger) *Pruner {
	return &Pruner{estimator: est, logger: logger}
}

// Prune returns a chronologically-ordered subsequence of messages whose
// estimated total never exceeds tokenBudget. A history that already fits is
// returned unchanged. Otherwise the most recent message is kept first (dropped
// only if it alone exceeds the budget), then older messages are admitted
// newest-to-oldest: important ones may fill the whole budget, the rest only
// the soft share.
func (p *Pruner) Prune(messages []types.Message, tokenBudget int, age types.AgeGroup) []types.Message {
	if len(messages) == 0 || tokenBudget < 0 {
		return nil
	}

	counts := make([]int, len(messages))
	total := 0
	for i, m := range messages {
		counts[i] = MessageTokens(p.estimator, m)
		total += counts[i]
	}
	if total <= tokenBudget {
		return messages
	}

	keep := make([]bool, len(messages))
	used := 0

	last := len(messages) - 1
	if counts[last] <= tokenBudget {
		keep[last] = true
		used = counts[last]
	}

	soft := int(float64(tokenBudget) * softBudgetRatio)
	for i := last - 1; i >= 0; i-- {
		c := counts[i]
		switch {
		case isImportant(messages[i]) && used+c <= tokenBudget:
			keep[i] = true
			used += c
		case !isImportant(messages[i]) && used+c <= soft:
			keep[i] = true
			used += c
		}
	}

	pruned := make([]types.Message, 0, len(messages))
	for i, m := range messages {
		if keep[i] {
			pruned = append(pruned, m)
		}
	}

	p.logger.Debug("conversation history pruned",
		zap.String("age_group", string(age)),
		zap.Int("token_budget", tokenBudget),
		zap.Int("messages_in", len(messages)),
		zap.Int("messages_out", len(pruned)),
		zap.Int("tokens_used", used),
	)
	return pruned
}

// isImportant marks messages that anchor the lesson: tutor replies, questions,
// struggle vocabulary and long turns.
func isImportant(m types.Message) bool {
	if m.Role == types.RoleAssistant {
		return true
	}
	if strings.Contains(m.Content, "?") {
		return true
	}
	lower := strings.ToLower(m.Content)
	for _, phrase := range salientPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return len(m.Content) > 50
}
