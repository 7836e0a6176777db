package consumer

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shpitdev/leads-enrichment-module/pkg/foundry"
	"github.com/shpitdev/leads-enrichment-module/pkg/mockfoundry"
	"github.com/shpitdev/leads-enrichment-module/pkg/mocksearchleads"
	"github.com/shpitdev/leads-enrichment-module/pkg/redact"
	"github.com/shpitdev/leads-enrichment-module/pkg/searchleads"
)

func TestPublicPackagesCompile(t *testing.T) {
	t.Parallel()

	_ = foundry.Env{}
	if srv := mockfoundry.New(t.TempDir()); srv.Handler() == nil {
		t.Fatalf("handler must not be nil")
	}
	if got := redact.Secrets("Authorization: Bearer abc"); strings.Contains(got, "abc") {
		t.Fatalf("token not redacted: %q", got)
	}

	mock := mocksearchleads.New("rec-1", mocksearchleads.Status("completed", 10))
	ts := httptest.NewServer(mock.Handler())
	defer ts.Close()

	client, err := searchleads.NewClient(searchleads.Config{
		Services: searchleads.Services{SubmitURL: ts.URL + "/submit", StatusURL: ts.URL + "/status"},
		APIKey:   "k",
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	body, err := client.Status(context.Background(), "rec-1")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if !strings.Contains(string(body), "completed") {
		t.Fatalf("unexpected status body: %s", body)
	}
}
