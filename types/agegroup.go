package types

import "fmt"

// AgeGroup is one of three fixed child-age bands. Every policy table in the
// pipeline (sentence-length limits, blocked topics, base prompts, token caps)
// is keyed by AgeGroup, so adding a rule means defining it for all three.
type AgeGroup string

const (
	// AgeGroupYoung covers roughly ages 5-8.
	AgeGroupYoung AgeGroup = "young"
	// AgeGroupMiddle covers roughly ages 9-12.
	AgeGroupMiddle AgeGroup = "middle"
	// AgeGroupTeen covers roughly ages 13-17.
	AgeGroupTeen AgeGroup = "teen"
)

// AllAgeGroups lists every tier. Policy tables range over this slice so an
// incomplete table is caught by tests rather than at lookup time.
func AllAgeGroups() []AgeGroup {
	return []AgeGroup{AgeGroupYoung, AgeGroupMiddle, AgeGroupTeen}
}

// Valid reports whether g is one of the three defined tiers.
func (g AgeGroup) Valid() bool {
	switch g {
	case AgeGroupYoung, AgeGroupMiddle, AgeGroupTeen:
		return true
	}
	return false
}

// ParseAgeGroup converts a string to an AgeGroup.
func ParseAgeGroup(s string) (AgeGroup, error) {
	g := AgeGroup(s)
	if !g.Valid() {
		return "", fmt.Errorf("unknown age group %q", s)
	}
	return g, nil
}
