package mysql

import (
	"fmt"
	"strings"
)

// maxIdentLen is the MySQL limit for one identifier.
const maxIdentLen = 64

// checkTableName accepts table or schema.table made of [A-Za-z0-9_].
func checkTableName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrTableNameRequired
	}
	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return "", fmt.Errorf("%w: %s", ErrInvalidTableName, name)
	}
	for _, part := range parts {
		if !validIdent(part) {
			return "", fmt.Errorf("%w: %s", ErrInvalidTableName, name)
		}
	}
	return name, nil
}

func validIdent(s string) bool {
	if s == "" || len(s) > maxIdentLen {
		return false
	}
	return strings.IndexFunc(s, func(r rune) bool {
		return r != '_' && (r < '0' || r > '9') && (r < 'a' || r > 'z') && (r < 'A' || r > 'Z')
	}) < 0
}
