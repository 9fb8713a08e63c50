package mysql

import (
	"errors"
	"strings"
	"testing"
)

func TestCheckTableName(t *testing.T) {
	valid := []string{"worklog_dead_letters", "ops.dead_letters", "DEAD_1", " padded "}
	for _, name := range valid {
		if _, err := checkTableName(name); err != nil {
			t.Fatalf("expected valid name %q: %v", name, err)
		}
	}

	invalid := []string{"dead;drop", "dead-1", "ops..dead", "ops.dead;", "a.b.c", strings.Repeat("x", maxIdentLen+1)}
	for _, name := range invalid {
		if _, err := checkTableName(name); !errors.Is(err, ErrInvalidTableName) {
			t.Fatalf("expected ErrInvalidTableName for %q, got %v", name, err)
		}
	}

	if _, err := checkTableName(""); !errors.Is(err, ErrTableNameRequired) {
		t.Fatalf("expected ErrTableNameRequired, got %v", err)
	}
}
