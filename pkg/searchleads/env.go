package searchleads

import (
	"fmt"
	"os"
	"strings"

	"github.com/shpitdev/leads-enrichment-module/pkg/svcenv"
)

// Env is the enrichment API configuration read from the environment.
type Env struct {
	Services Services
	APIKey   string
	// DefaultCAPath is the PEM bundle compute modules provide via DEFAULT_CA_PATH. Empty uses system roots.
	DefaultCAPath string
}

// LoadEnv reads the enrichment API settings.
//
// Endpoints come from SEARCHLEADS_SERVICE_DISCOVERY when set, otherwise from
// SEARCHLEADS_API_URL and SEARCHLEADS_STATUS_URL. SEARCHLEADS_API_KEY may hold the key itself
// or a path to a file containing it. DEFAULT_CA_PATH, when set, replaces the system trust store.
func LoadEnv() (Env, error) {
	services, err := loadServicesFromEnv()
	if err != nil {
		return Env{}, err
	}
	key, err := svcenv.RequiredValueOrFile("SEARCHLEADS_API_KEY")
	if err != nil {
		return Env{}, err
	}
	return Env{
		Services:      services,
		APIKey:        key,
		DefaultCAPath: strings.TrimSpace(os.Getenv("DEFAULT_CA_PATH")),
	}, nil
}

func loadServicesFromEnv() (Services, error) {
	if p := strings.TrimSpace(os.Getenv("SEARCHLEADS_SERVICE_DISCOVERY")); p != "" {
		return LoadServicesFromDiscoveryFile(p)
	}

	submit := strings.TrimSpace(os.Getenv("SEARCHLEADS_API_URL"))
	status := strings.TrimSpace(os.Getenv("SEARCHLEADS_STATUS_URL"))
	if submit == "" || status == "" {
		return Services{}, fmt.Errorf("SEARCHLEADS_SERVICE_DISCOVERY or SEARCHLEADS_API_URL + SEARCHLEADS_STATUS_URL are required")
	}
	return Services{SubmitURL: submit, StatusURL: status}, nil
}
