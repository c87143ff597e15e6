// Package adapter defines the source adapter contract and the built-in
// fixture-backed adapter. Real connectors (IAM APIs, directory services,
// cloud provider APIs) live outside this repository and implement
// SourceAdapter behind their own auth and pagination handling.
package adapter

import (
	"context"

	"accessledger/internal/domain"
)

// SourceAdapter enumerates raw access facts for one source system.
//
// FetchAccessFacts must return the facts in a stable enumeration order:
// the reconciler's "last observed" conflict tie-break is defined as the
// highest position within that order. An empty slice is a valid "no access
// to report" result, distinct from failure. Unrecoverable connection or
// auth problems are reported as *domain.AdapterError.
type SourceAdapter interface {
	SourceSystemID() string
	FetchAccessFacts(ctx context.Context, environmentCode string) ([]domain.RawFact, error)
}
