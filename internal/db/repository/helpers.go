// Package repository implements the domain repository ports on SQLite.
package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"accessledger/internal/domain"
)

// mapDBError translates driver-level errors into domain errors.
func mapDBError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.NotFoundError{Message: "resource not found"}
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return &domain.ConflictError{Message: "resource already exists"}
	}
	return err
}

// encodeStrings serializes a string slice to its JSON column form.
// nil encodes as the empty list.
func encodeStrings(vals []string) string {
	if len(vals) == 0 {
		return "[]"
	}
	b, err := json.Marshal(vals)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// decodeStrings deserializes a JSON string-list column. Malformed values
// decode as empty rather than failing the surrounding scan.
func decodeStrings(raw string) []string {
	if raw == "" || raw == "[]" {
		return nil
	}
	var vals []string
	if err := json.Unmarshal([]byte(raw), &vals); err != nil {
		return nil
	}
	return vals
}

// nullStr converts a *string to its sql.NullString column form.
func nullStr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// strPtr converts a sql.NullString back to a *string.
func strPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
