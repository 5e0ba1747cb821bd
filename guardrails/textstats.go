package guardrails

import (
	"regexp"
	"strings"
)

var (
	sentenceRe = regexp.MustCompile(`[^.!?]+[.!?]*`)
	wordRe     = regexp.MustCompile(`[A-Za-z']+`)
)

// splitSentences returns the sentences of text including trailing punctuation.
func splitSentences(text string) []string {
	var out []string
	for _, s := range sentenceRe.FindAllString(text, -1) {
		if strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

// wordsOf returns the alphabetic words of text.
func wordsOf(text string) []string {
	return wordRe.FindAllString(text, -1)
}

// containsWord reports whether phrase occurs in text on word boundaries, so
// "war" does not match inside "warm". Both arguments must already be lowercase.
func containsWord(text, phrase string) bool {
	for i := 0; ; i++ {
		j := strings.Index(text[i:], phrase)
		if j < 0 {
			return false
		}
		i += j
		end := i + len(phrase)
		beforeOK := i == 0 || !isWordByte(text[i-1])
		afterOK := end == len(text) || !isWordByte(text[end])
		if beforeOK && afterOK {
			return true
		}
	}
}

func isWordByte(b byte) bool {
	return b == '\'' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// avgSentenceWords is the mean word count per sentence, 0 for empty text.
func avgSentenceWords(text string) float64 {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return 0
	}
	total := 0
	for _, s := range sentences {
		total += len(wordsOf(s))
	}
	return float64(total) / float64(len(sentences))
}

// avgSyllablesPerWord is the mean syllable estimate per word, 0 for empty text.
func avgSyllablesPerWord(text string) float64 {
	words := wordsOf(text)
	if len(words) == 0 {
		return 0
	}
	total := 0
	for _, w := range words {
		total += countSyllables(w)
	}
	return float64(total) / float64(len(words))
}

// countSyllables estimates syllables by counting vowel groups, discounting a
// trailing silent 'e'. Heuristic, floor of one per word.
func countSyllables(word string) int {
	w := strings.ToLower(word)
	count := 0
	prevVowel := false
	for _, r := range w {
		vowel := strings.ContainsRune("aeiouy", r)
		if vowel && !prevVowel {
			count++
		}
		prevVowel = vowel
	}
	if strings.HasSuffix(w, "e") && !strings.HasSuffix(w, "le") && count > 1 {
		count--
	}
	if count < 1 {
		count = 1
	}
	return count
}
