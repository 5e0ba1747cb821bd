// Package tokens bounds the cost and context of a tutoring conversation: it
// estimates token counts, scores conversation complexity, recommends a model
// tier, prunes history to a token budget and tracks per-session spend.
package tokens
