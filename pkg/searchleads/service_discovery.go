package searchleads

import (
	"github.com/shpitdev/leads-enrichment-module/pkg/svcenv"
)

// Services holds the enrichment API endpoints.
type Services struct {
	SubmitURL string
	StatusURL string
}

// LoadServicesFromDiscoveryFile reads endpoint URLs from a service discovery YAML file:
//
//	submit:
//	  - https://api.searchleads.example/functions/v1/enrich
//	status:
//	  - https://api.searchleads.example/functions/v1/enrich-status
func LoadServicesFromDiscoveryFile(path string) (Services, error) {
	urls, err := svcenv.LoadDiscovery(path, "SEARCHLEADS_SERVICE_DISCOVERY", "submit", "status")
	if err != nil {
		return Services{}, err
	}
	return Services{SubmitURL: urls["submit"], StatusURL: urls["status"]}, nil
}
