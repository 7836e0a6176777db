package foundry

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/shpitdev/leads-enrichment-module/pkg/svcenv"
)

// DatasetRef identifies a dataset or stream RID and branch.
type DatasetRef struct {
	RID    string
	Branch string
}

// Env is the Foundry configuration needed to publish enrichment output and usage.
type Env struct {
	Services Services
	// DefaultCAPath is the PEM bundle compute modules provide via DEFAULT_CA_PATH.
	DefaultCAPath string
	Token         string
	Aliases       map[string]DatasetRef
}

// LoadEnv reads the Foundry env vars.
//
// Required:
//   - FOUNDRY_SERVICE_DISCOVERY_V2 or FOUNDRY_URL
//   - BUILD2_TOKEN (file path or value)
//   - RESOURCE_ALIAS_MAP (file path)
func LoadEnv() (Env, error) {
	services, err := loadServicesFromEnv()
	if err != nil {
		return Env{}, err
	}

	token, err := svcenv.RequiredValueOrFile("BUILD2_TOKEN")
	if err != nil {
		return Env{}, err
	}
	aliases, err := readAliasMapEnv("RESOURCE_ALIAS_MAP")
	if err != nil {
		return Env{}, err
	}

	return Env{
		Services:      services,
		DefaultCAPath: strings.TrimSpace(os.Getenv("DEFAULT_CA_PATH")),
		Token:         token,
		Aliases:       aliases,
	}, nil
}

// Resolve looks up an alias from RESOURCE_ALIAS_MAP.
func (e Env) Resolve(alias string) (DatasetRef, error) {
	ref, ok := e.Aliases[strings.TrimSpace(alias)]
	if !ok {
		known := make([]string, 0, len(e.Aliases))
		for k := range e.Aliases {
			known = append(known, k)
		}
		sort.Strings(known)
		return DatasetRef{}, fmt.Errorf("RESOURCE_ALIAS_MAP has no alias %q (known: %s)", alias, strings.Join(known, ", "))
	}
	return ref, nil
}

type aliasEntry struct {
	RID    string  `json:"rid"`
	Branch *string `json:"branch"`
}

func readAliasMapEnv(varName string) (map[string]DatasetRef, error) {
	path := strings.TrimSpace(os.Getenv(varName))
	if path == "" {
		return nil, fmt.Errorf("%s is required", varName)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s file: %w", varName, err)
	}

	var raw map[string]aliasEntry
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse %s JSON: %w", varName, err)
	}
	out := make(map[string]DatasetRef, len(raw))
	for k, v := range raw {
		if strings.TrimSpace(v.RID) == "" {
			return nil, fmt.Errorf("alias %q: rid is required", k)
		}
		ref := DatasetRef{RID: strings.TrimSpace(v.RID)}
		if v.Branch != nil {
			ref.Branch = strings.TrimSpace(*v.Branch)
		}
		out[k] = ref
	}
	return out, nil
}
