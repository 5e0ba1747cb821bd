// Package prompt builds the per-request system prompt and call parameters
// from a conversation context. Pure composition over fixed copy tables, no
// I/O.
package prompt

import (
	"fmt"
	"math"
	"strings"

	"github.com/lumikids/tutorflow/types"
)

// Plan is everything the orchestrator needs to shape a completion call.
type Plan struct {
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
}

// maxTokenCap bounds the accessibility-adjusted completion budget.
const maxTokenCap = 1000

// tierProfile is one age tier's fixed prompt scaffold and call parameters.
type tierProfile struct {
	base        string
	safety      string
	structure   string
	temperature float64
	maxTokens   int
}

var tierProfiles = map[types.AgeGroup]tierProfile{
	types.AgeGroupYoung: {
		base: "You are a warm, patient tutor for a young child (around 5-8 years old). " +
			"Use a cheerful, encouraging tone. Keep sentences to 8 words or fewer and " +
			"use only simple, everyday vocabulary. Explain one idea at a time, simply.",
		safety: "Safety rules: never ask for or repeat personal details. Never mention " +
			"scary, violent, or grown-up topics. If a question touches one, gently steer " +
			"back to learning. Always be kind and never tease.",
		structure: "Structure every reply as: a short friendly opening, one simple " +
			"explanation, and one small question to keep the child engaged.",
		temperature: 0.6,
		maxTokens:   300,
	},
	types.AgeGroupMiddle: {
		base: "You are a friendly, supportive tutor for a child around 9-12 years old. " +
			"Keep sentences to 12 words or fewer and prefer common vocabulary, " +
			"introducing new terms with a short definition. Connect ideas to things a " +
			"middle schooler already knows.",
		safety: "Safety rules: never ask for or repeat personal details. Avoid violent, " +
			"adult, or frightening topics; if one comes up, redirect to the lesson. " +
			"Encourage asking a parent or teacher about sensitive subjects.",
		structure: "Structure every reply as: a brief restatement of the question, a " +
			"clear explanation with one example, and an invitation to ask a follow-up.",
		temperature: 0.7,
		maxTokens:   500,
	},
	types.AgeGroupTeen: {
		base: "You are a knowledgeable, respectful tutor for a teenager (around 13-17 " +
			"years old). Sentences may run up to 20 words. Use precise subject " +
			"vocabulary and define specialist terms on first use. Treat the student as a " +
			"capable learner.",
		safety: "Safety rules: never ask for or repeat personal details. Keep advice " +
			"educational; for health, legal, or personal matters, point the student to a " +
			"trusted adult. Avoid graphic or explicit material.",
		structure: "Structure every reply as: a direct answer first, the reasoning " +
			"behind it, and where the topic leads next.",
		temperature: 0.8,
		maxTokens:   800,
	},
}

// learningStyleBlocks are the five fixed style-modifier paragraphs.
var learningStyleBlocks = map[types.LearningStyle]string{
	types.LearningStyleVisual: "This student learns best visually: describe pictures, " +
		"diagrams, shapes, and colors in words, and suggest things to draw or imagine.",
	types.LearningStyleAuditory: "This student learns best by listening: use rhythm, " +
		"rhymes, and spoken-style explanations, and suggest saying ideas out loud.",
	types.LearningStyleReadingWriting: "This student learns best by reading and " +
		"writing: offer lists, definitions, and short things to write down or summarize.",
	types.LearningStyleKinesthetic: "This student learns best by doing: suggest " +
		"hands-on activities, physical examples, and movement tied to the idea.",
	types.LearningStyleMultimodal: "This student learns best with variety: mix " +
		"descriptions, examples to say aloud, things to write, and small activities.",
}

// accessibilityBlocks are the fixed accommodation paragraphs, one per need.
var accessibilityBlocks = map[types.AccessibilityNeed]string{
	types.NeedSimpleLanguage: "Use the simplest words possible and short sentences. " +
		"Avoid idioms and figures of speech; say exactly what you mean.",
	types.NeedStepByStep: "Break every explanation into small numbered steps, one " +
		"action or idea per step, in the exact order to follow.",
	types.NeedRepetition: "Repeat the key idea in different words at least twice, and " +
		"end by summarizing it once more.",
	types.NeedProcessingTime: "Keep replies short and unhurried. Present one idea, " +
		"then pause by asking if the student is ready for the next part.",
	types.NeedAttentionSupport: "Keep replies brief and lively. Use short paragraphs, " +
		"call out the most important point clearly, and avoid long asides.",
}

// needBudgetFactors scale the completion token budget per present need.
var needBudgetFactors = map[types.AccessibilityNeed]float64{
	types.NeedSimpleLanguage: 1.2,
	types.NeedStepByStep:     1.3,
	types.NeedRepetition:     1.4,
	types.NeedProcessingTime: 0.9,
}

// blockOrder fixes the order accessibility blocks are appended in.
var blockOrder = []types.AccessibilityNeed{
	types.NeedSimpleLanguage,
	types.NeedStepByStep,
	types.NeedRepetition,
	types.NeedProcessingTime,
	types.NeedAttentionSupport,
}

// interestHooks are the fixed one-sentence tie-ins for recognized interests.
var interestHooks = map[string]string{
	"dinosaurs":   "When it fits, connect examples to dinosaurs.",
	"space":       "When it fits, connect examples to space and planets.",
	"animals":     "When it fits, connect examples to animals.",
	"sports":      "When it fits, connect examples to sports.",
	"music":       "When it fits, connect examples to music.",
	"art":         "When it fits, connect examples to drawing and art.",
	"video games": "When it fits, connect examples to video games.",
	"reading":     "When it fits, connect examples to books and stories.",
	"nature":      "When it fits, connect examples to the outdoors and nature.",
	"cooking":     "When it fits, connect examples to cooking and baking.",
}

// Composer assembles system prompts. Stateless; the zero value is usable.
type Composer struct{}

// NewComposer creates a composer.
func NewComposer() Composer {
	return Composer{}
}

// Compose builds the system prompt and call parameters for one exchange.
// Sections are appended in a fixed order: tier base, subject/topic, learning
// style, accessibility accommodations, interests, safety guidelines, response
// structure.
func (Composer) Compose(ctx types.ConversationContext) Plan {
	profile, ok := tierProfiles[ctx.AgeGroup]
	if !ok {
		profile = tierProfiles[types.AgeGroupYoung]
	}

	sections := []string{profile.base}

	if ctx.Subject != "" {
		line := fmt.Sprintf("Today's subject is %s.", ctx.Subject)
		if ctx.Topic != "" {
			line = fmt.Sprintf("Today's subject is %s, focusing on %s.", ctx.Subject, ctx.Topic)
		}
		sections = append(sections, line)
	}

	if block, ok := learningStyleBlocks[ctx.LearningStyle]; ok {
		sections = append(sections, block)
	}

	for _, need := range blockOrder {
		if ctx.HasNeed(need) {
			sections = append(sections, accessibilityBlocks[need])
		}
	}

	if hooks := interestLines(ctx.Interests); hooks != "" {
		sections = append(sections, hooks)
	}

	sections = append(sections, profile.safety)
	sections = append(sections, structureSection(profile, &ctx))

	return Plan{
		SystemPrompt: strings.Join(sections, "\n\n"),
		Temperature:  profile.temperature,
		MaxTokens:    tokenBudget(profile, &ctx),
	}
}

// interestLines joins the hook sentence of every recognized interest.
// Unrecognized interests are skipped rather than free-texted into the prompt.
func interestLines(interests []string) string {
	var lines []string
	for _, interest := range interests {
		if hook, ok := interestHooks[strings.ToLower(strings.TrimSpace(interest))]; ok {
			lines = append(lines, hook)
		}
	}
	return strings.Join(lines, " ")
}

// structureSection extends the tier's response-structure paragraph with extra
// rules for the needs that change how a reply must be paced.
func structureSection(profile tierProfile, ctx *types.ConversationContext) string {
	section := profile.structure
	if ctx.HasNeed(types.NeedStepByStep) {
		section += " Number the steps of any explanation."
	}
	if ctx.HasNeed(types.NeedAttentionSupport) {
		section += " Lead with the most important point."
	}
	if ctx.HasNeed(types.NeedProcessingTime) {
		section += " End after a single idea and wait for the student."
	}
	return section
}

// tokenBudget scales the tier's base budget by the factor of each present
// need, compounding multiplicatively, capped at the fixed maximum.
func tokenBudget(profile tierProfile, ctx *types.ConversationContext) int {
	budget := float64(profile.maxTokens)
	for _, need := range blockOrder {
		if factor, ok := needBudgetFactors[need]; ok && ctx.HasNeed(need) {
			budget *= factor
		}
	}
	tokens := int(math.Round(budget))
	if tokens > maxTokenCap {
		return maxTokenCap
	}
	return tokens
}
