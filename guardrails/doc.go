// Package guardrails enforces age-tiered content policy on model output.
//
// Two passes run in sequence. ContentFilter executes an ordered table of
// detector stages, each collecting violations and optionally rewriting the
// text it hands onward. ResponseSanitizer then re-checks the approved text for
// categories the filter does not specialize in (emergency contacts, links,
// harmful instructions, medical and legal phrasing) and can veto the response
// outright. A veto is data, not an error: callers always receive coherent
// fallback copy from the age tier's policy.
//
// All tier-dependent thresholds, lexicons and canned messages live in the
// policy table; detector logic reads only through it.
package guardrails
