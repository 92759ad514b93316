package db

import "strings"

// IsUniqueViolation reports whether the provided error references a Postgres
// unique violation constraint. The sqlite message form is matched too so tests
// running against the in-memory driver behave the same way.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
