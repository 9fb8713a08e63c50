package mysql

import (
	"errors"
	"strings"
	"testing"
)

func TestSchema(t *testing.T) {
	schema, err := Schema("worklog_dead_letters")
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	if !strings.Contains(schema, "CREATE TABLE IF NOT EXISTS worklog_dead_letters") {
		t.Fatalf("expected table name in schema")
	}
	if !strings.Contains(schema, "payload BLOB NOT NULL") {
		t.Fatalf("expected BLOB payload in schema")
	}
	if !strings.Contains(schema, "INDEX idx_status_id (status, id)") {
		t.Fatalf("expected status index in schema")
	}
}

func TestSchemaRejectsInvalidTable(t *testing.T) {
	if _, err := Schema("dead;drop"); !errors.Is(err, ErrInvalidTableName) {
		t.Fatalf("expected ErrInvalidTableName, got %v", err)
	}
}
