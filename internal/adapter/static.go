package adapter

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"accessledger/internal/domain"
)

// StaticAdapter serves access facts from a YAML fixture, keyed by
// environment. It is used for seeding, demos, and tests; the fixture shape
// mirrors what a real IAM collector produces.
type StaticAdapter struct {
	sourceSystemID string
	facts          map[string][]domain.RawFact // keyed by environment code
}

// staticFixture is the YAML document shape for a static adapter.
type staticFixture struct {
	SourceSystem string `yaml:"source_system"`
	Environments map[string][]struct {
		Principal     string `yaml:"principal"`
		PrincipalType string `yaml:"principal_type"`
		Service       string `yaml:"service"`
		AccessLevel   string `yaml:"access_level"`
	} `yaml:"environments"`
}

// NewStaticAdapter builds an adapter that always returns the given facts.
func NewStaticAdapter(sourceSystemID string, facts map[string][]domain.RawFact) *StaticAdapter {
	return &StaticAdapter{sourceSystemID: sourceSystemID, facts: facts}
}

// LoadStaticAdapter reads a YAML fixture file into a StaticAdapter.
func LoadStaticAdapter(path string) (*StaticAdapter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read adapter fixture: %w", err)
	}

	var fixture staticFixture
	if err := yaml.Unmarshal(data, &fixture); err != nil {
		return nil, fmt.Errorf("parse adapter fixture %s: %w", path, err)
	}
	if fixture.SourceSystem == "" {
		return nil, fmt.Errorf("adapter fixture %s: source_system is required", path)
	}

	facts := make(map[string][]domain.RawFact, len(fixture.Environments))
	for env, rows := range fixture.Environments {
		for _, row := range rows {
			facts[env] = append(facts[env], domain.RawFact{
				PrincipalID:   row.Principal,
				PrincipalType: row.PrincipalType,
				Service:       row.Service,
				AccessLevel:   row.AccessLevel,
			})
		}
	}

	return NewStaticAdapter(fixture.SourceSystem, facts), nil
}

// SourceSystemID implements SourceAdapter.
func (a *StaticAdapter) SourceSystemID() string { return a.sourceSystemID }

// FetchAccessFacts implements SourceAdapter. Facts are returned in fixture
// order, which is the adapter's documented observation order.
func (a *StaticAdapter) FetchAccessFacts(ctx context.Context, environmentCode string) ([]domain.RawFact, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.AdapterError{SourceSystemID: a.sourceSystemID, Err: err}
	}
	facts := a.facts[environmentCode]
	out := make([]domain.RawFact, len(facts))
	copy(out, facts)
	return out, nil
}

// Compile-time check that StaticAdapter implements SourceAdapter.
var _ SourceAdapter = (*StaticAdapter)(nil)
