package input

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shpitdev/leads-enrichment-module/internal/enrich"
)

// Overrides are CLI values that replace fields read from the input file. Zero values are ignored.
type Overrides struct {
	SourceLink string
	LeadCount  int
	OutputName string
}

func (o Overrides) complete() bool {
	return o.SourceLink != "" && o.LeadCount > 0 && o.OutputName != ""
}

// Load reads the request from path (JSON or YAML) and applies overrides.
// A missing file is fine when the overrides supply every field.
func Load(path string, ov Overrides) (enrich.Request, error) {
	var req enrich.Request

	b, err := os.ReadFile(strings.TrimSpace(path))
	switch {
	case err == nil:
		req, err = Decode(b)
		if err != nil {
			return enrich.Request{}, fmt.Errorf("input %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && ov.complete():
	default:
		return enrich.Request{}, fmt.Errorf("read input: %w", err)
	}

	if ov.SourceLink != "" {
		req.SourceLink = ov.SourceLink
	}
	if ov.LeadCount > 0 {
		req.LeadCount = ov.LeadCount
	}
	if ov.OutputName != "" {
		req.OutputName = ov.OutputName
	}
	return req, Validate(req)
}

// Decode parses a request document. JSON input is accepted as YAML.
func Decode(b []byte) (enrich.Request, error) {
	var req enrich.Request
	if len(bytes.TrimSpace(b)) == 0 {
		return req, fmt.Errorf("empty input document")
	}
	if err := yaml.Unmarshal(b, &req); err != nil {
		return enrich.Request{}, fmt.Errorf("parse input: %w", err)
	}
	req.SourceLink = strings.TrimSpace(req.SourceLink)
	req.OutputName = strings.TrimSpace(req.OutputName)
	return req, nil
}

// Validate checks that every request field is present.
func Validate(req enrich.Request) error {
	var errs []error
	if strings.TrimSpace(req.SourceLink) == "" {
		errs = append(errs, fmt.Errorf("apolloLink is required"))
	}
	if req.LeadCount <= 0 {
		errs = append(errs, fmt.Errorf("noOfLeads must be > 0 (got %d)", req.LeadCount))
	}
	if strings.TrimSpace(req.OutputName) == "" {
		errs = append(errs, fmt.Errorf("fileName is required"))
	}
	return errors.Join(errs...)
}
