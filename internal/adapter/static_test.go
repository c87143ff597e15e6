package adapter

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accessledger/internal/domain"
)

func writeFixture(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadStaticAdapter(t *testing.T) {
	path := writeFixture(t, `
source_system: aws-iam
environments:
  PROD:
    - principal: alice
      principal_type: user
      service: s3
      access_level: read
    - principal: deploy-bot
      principal_type: service_account
      service: ec2
      access_level: admin
  STAGING:
    - principal: alice
      principal_type: user
      service: s3
      access_level: write
`)

	a, err := LoadStaticAdapter(path)
	require.NoError(t, err)
	assert.Equal(t, "aws-iam", a.SourceSystemID())

	facts, err := a.FetchAccessFacts(context.Background(), "PROD")
	require.NoError(t, err)
	require.Len(t, facts, 2)
	assert.Equal(t, domain.RawFact{
		PrincipalID: "alice", PrincipalType: "user",
		Service: "s3", AccessLevel: "read",
	}, facts[0])
	assert.Equal(t, "deploy-bot", facts[1].PrincipalID)

	staging, err := a.FetchAccessFacts(context.Background(), "STAGING")
	require.NoError(t, err)
	require.Len(t, staging, 1)
	assert.Equal(t, "write", staging[0].AccessLevel)
}

func TestLoadStaticAdapter_UnknownEnvironmentIsEmpty(t *testing.T) {
	path := writeFixture(t, `
source_system: github
environments:
  PROD:
    - principal: alice
      principal_type: user
      service: repo
      access_level: admin
`)

	a, err := LoadStaticAdapter(path)
	require.NoError(t, err)

	facts, err := a.FetchAccessFacts(context.Background(), "DEV")
	require.NoError(t, err)
	assert.Empty(t, facts)
}

func TestLoadStaticAdapter_SourceSystemRequired(t *testing.T) {
	path := writeFixture(t, `
environments:
  PROD: []
`)

	_, err := LoadStaticAdapter(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source_system is required")
}

func TestLoadStaticAdapter_MissingFile(t *testing.T) {
	_, err := LoadStaticAdapter(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadStaticAdapter_MalformedYAML(t *testing.T) {
	path := writeFixture(t, "source_system: [unclosed")
	_, err := LoadStaticAdapter(path)
	require.Error(t, err)
}

func TestStaticAdapter_CancelledContext(t *testing.T) {
	a := NewStaticAdapter("aws-iam", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.FetchAccessFacts(ctx, "PROD")
	require.Error(t, err)
	var adapterErr *domain.AdapterError
	require.ErrorAs(t, err, &adapterErr)
	assert.Equal(t, "aws-iam", adapterErr.SourceSystemID)
}

func TestStaticAdapter_ReturnsCopy(t *testing.T) {
	a := NewStaticAdapter("aws-iam", map[string][]domain.RawFact{
		"PROD": {{PrincipalID: "alice", Service: "s3", AccessLevel: "read"}},
	})

	first, err := a.FetchAccessFacts(context.Background(), "PROD")
	require.NoError(t, err)
	first[0].AccessLevel = "admin"

	second, err := a.FetchAccessFacts(context.Background(), "PROD")
	require.NoError(t, err)
	assert.Equal(t, "read", second[0].AccessLevel)
}
