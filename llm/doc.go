// Package llm defines the outbound completion contract and its resilience
// layer. The Provider interface mirrors the external chat-completions API;
// ResilientProvider decorates any Provider with the process-wide circuit
// breaker and bounded exponential retry.
package llm
