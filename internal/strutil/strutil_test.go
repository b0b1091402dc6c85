package strutil

import (
	"testing"
)

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		name     string
		s1       string
		s2       string
		expected int
	}{
		{name: "identical strings", s1: "sqlite", s2: "sqlite", expected: 0},
		{name: "case insensitive", s1: "PostgreSQL", s2: "postgresql", expected: 0},
		{name: "one character insertion", s1: "mysq", s2: "mysql", expected: 1},
		{name: "one character deletion", s1: "sqlitee", s2: "sqlite", expected: 1},
		{name: "one character substitution", s1: "sqlita", s2: "sqlite", expected: 1},
		{name: "completely different strings", s1: "xyz", s2: "mysql", expected: 4},
		{name: "no shared characters", s1: "abc", s2: "mysql", expected: 5},
		{name: "empty string", s1: "", s2: "mysql", expected: 5},
		{name: "both empty", s1: "", s2: "", expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			distance := LevenshteinDistance(tt.s1, tt.s2)
			if distance != tt.expected {
				t.Errorf("LevenshteinDistance(%q, %q) = %d; want %d",
					tt.s1, tt.s2, distance, tt.expected)
			}
		})
	}
}

func TestClosestMatch(t *testing.T) {
	providers := []string{"sqlserver", "postgresql", "mysql", "sqlite"}

	tests := []struct {
		name        string
		input       string
		maxDistance int
		expected    string
	}{
		{"exact match", "mysql", 2, "mysql"},
		{"typo", "postgressql", 2, "postgresql"},
		{"missing letter", "sqlserve", 2, "sqlserver"},
		{"too far", "oracle", 2, ""},
		{"strict distance", "mysq", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := ClosestMatch(tt.input, providers, tt.maxDistance)
			if got != tt.expected {
				t.Errorf("ClosestMatch(%q) = %q; want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestClosestMatchEmptyCandidates(t *testing.T) {
	got, distance := ClosestMatch("anything", nil, 2)
	if got != "" || distance != -1 {
		t.Errorf("Expected no match and distance -1, got %q, %d", got, distance)
	}
}

func TestSuggest(t *testing.T) {
	modes := []string{"Single", "PerScript", "None"}

	if got := Suggest("perscrpt", modes); got != `did you mean "PerScript"?` {
		t.Errorf("Unexpected suggestion: %q", got)
	}
	if got := Suggest("zzzzzzzzzzzz", modes); got != "valid values: Single, PerScript, None" {
		t.Errorf("Unexpected fallback: %q", got)
	}
}
