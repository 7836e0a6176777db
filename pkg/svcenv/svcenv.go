// Package svcenv reads the files a compute module is configured through: service discovery YAML
// and secrets passed either inline or as a file path.
package svcenv

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadDiscovery reads a service discovery file (service id -> single-element URL list) and returns the
// first URL of every requested id. varName names the env var the path came from, for error messages.
//
// Example (YAML):
//
//	api_gateway:
//	  - https://<stack>.palantirfoundry.com/api
func LoadDiscovery(path, varName string, ids ...string) (map[string]string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%s is required", varName)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s file: %w", varName, err)
	}

	var raw map[string][]string
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse %s YAML: %w", varName, err)
	}

	out := make(map[string]string, len(ids))
	for _, id := range ids {
		var v string
		if vals := raw[id]; len(vals) > 0 {
			v = strings.TrimSpace(vals[0])
		}
		if v == "" {
			return nil, fmt.Errorf("%s missing %s", varName, id)
		}
		out[id] = v
	}
	return out, nil
}

// ValueOrFile returns v, or the trimmed contents of the file v names when such a file exists.
// Multi-line values are never treated as paths.
func ValueOrFile(v, varName string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" || strings.ContainsAny(v, "\r\n") {
		return v, nil
	}
	fi, err := os.Stat(v)
	if err != nil || fi.IsDir() {
		return v, nil
	}
	b, err := os.ReadFile(v)
	if err != nil {
		return "", fmt.Errorf("read %s file: %w", varName, err)
	}
	return strings.TrimSpace(string(b)), nil
}

// RequiredValueOrFile is ValueOrFile for the env var varName, failing when it is unset.
func RequiredValueOrFile(varName string) (string, error) {
	v, err := ValueOrFile(os.Getenv(varName), varName)
	if err != nil {
		return "", err
	}
	if v == "" {
		return "", fmt.Errorf("%s is required", varName)
	}
	return v, nil
}
