package input

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shpitdev/leads-enrichment-module/internal/enrich"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoad_JSON(t *testing.T) {
	p := writeFile(t, "INPUT.json", `{"apolloLink":" https://app.apollo.io/#/people ","noOfLeads":250,"fileName":"q3-leads"}`)

	req, err := Load(p, Overrides{})
	require.NoError(t, err)
	assert.Equal(t, enrich.Request{SourceLink: "https://app.apollo.io/#/people", LeadCount: 250, OutputName: "q3-leads"}, req)
}

func TestLoad_YAMLWithOverrides(t *testing.T) {
	p := writeFile(t, "input.yaml", "apolloLink: https://a.example\nnoOfLeads: 10\nfileName: first\n")

	req, err := Load(p, Overrides{LeadCount: 99, OutputName: "second"})
	require.NoError(t, err)
	assert.Equal(t, enrich.Request{SourceLink: "https://a.example", LeadCount: 99, OutputName: "second"}, req)
}

func TestLoad_MissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.json")

	_, err := Load(missing, Overrides{SourceLink: "https://a.example"})
	assert.ErrorContains(t, err, "read input")

	req, err := Load(missing, Overrides{SourceLink: "https://a.example", LeadCount: 5, OutputName: "x"})
	require.NoError(t, err)
	assert.Equal(t, 5, req.LeadCount)
}

func TestLoad_ValidationListsEveryField(t *testing.T) {
	p := writeFile(t, "INPUT.json", `{"noOfLeads":0}`)

	_, err := Load(p, Overrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apolloLink is required")
	assert.Contains(t, err.Error(), "noOfLeads must be > 0")
	assert.Contains(t, err.Error(), "fileName is required")
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode([]byte("   "))
	assert.ErrorContains(t, err, "empty input document")

	_, err = Decode([]byte(`{"noOfLeads":"lots"}`))
	assert.ErrorContains(t, err, "parse input")
}
