// Package tutor orchestrates the tutoring response pipeline: it composes the
// per-child prompt, prunes history to budget, calls the guarded LLM provider,
// screens and sanitizes the reply, and accounts for token spend. Safety
// vetoes and rate limits surface as ordinary responses with fallback copy;
// errors are reserved for provider connectivity and contract failures.
package tutor
