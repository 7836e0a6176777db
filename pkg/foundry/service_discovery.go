package foundry

import (
	"fmt"
	"os"
	"strings"

	"github.com/shpitdev/leads-enrichment-module/pkg/svcenv"
)

// Services holds the Foundry base URLs this module calls.
type Services struct {
	APIGateway  string
	StreamProxy string
}

// loadServicesFromEnv prefers the compute-module discovery file and falls back to FOUNDRY_URL
// for local runs.
func loadServicesFromEnv() (Services, error) {
	if p := strings.TrimSpace(os.Getenv("FOUNDRY_SERVICE_DISCOVERY_V2")); p != "" {
		urls, err := svcenv.LoadDiscovery(p, "FOUNDRY_SERVICE_DISCOVERY_V2", "api_gateway", "stream_proxy")
		if err != nil {
			return Services{}, err
		}
		return Services{APIGateway: urls["api_gateway"], StreamProxy: urls["stream_proxy"]}, nil
	}

	base := strings.TrimSpace(os.Getenv("FOUNDRY_URL"))
	if base == "" {
		return Services{}, fmt.Errorf("FOUNDRY_SERVICE_DISCOVERY_V2 or FOUNDRY_URL is required")
	}
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	base = strings.TrimRight(base, "/")
	return Services{APIGateway: base + "/api", StreamProxy: base + "/stream-proxy/api"}, nil
}
