package session

import (
	"strings"
	"testing"
)

func TestValidateName(t *testing.T) {
	valid := []string{"main", "work", "a", "profile-2", "under_score", "0123"}
	for _, name := range valid {
		if err := ValidateName(name); err != nil {
			t.Errorf("ValidateName(%q) = %v, want nil", name, err)
		}
	}

	invalid := []string{"", "Work", "has space", "dot.name", "slash/name", strings.Repeat("a", 65)}
	for _, name := range invalid {
		if err := ValidateName(name); err == nil {
			t.Errorf("ValidateName(%q) = nil, want error", name)
		}
	}
}
