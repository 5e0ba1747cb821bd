// Package types defines the core data model of the tutoring response
// pipeline: conversation messages, age tiers, complexity scores, token usage
// and the pipeline error taxonomy. It is dependency-free on purpose.
package types
