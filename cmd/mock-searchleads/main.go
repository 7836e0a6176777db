package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/shpitdev/leads-enrichment-module/pkg/mocksearchleads"
)

func main() {
	addr := defaultString("MOCK_SEARCHLEADS_ADDR", ":8081")
	recordID := defaultString("MOCK_SEARCHLEADS_RECORD_ID", "rec-local-1")
	script := defaultString("MOCK_SEARCHLEADS_SCRIPT", "pending,processing,completed:2500")
	apiKey := defaultString("MOCK_SEARCHLEADS_API_KEY", "")

	fs := flag.NewFlagSet("mock-searchleads", flag.ExitOnError)
	fs.StringVar(&addr, "addr", addr, "Listen address")
	fs.StringVar(&recordID, "record-id", recordID, "record_id issued for every submission")
	fs.StringVar(&script, "script", script, "Comma-separated status replies, e.g. pending,503,completed:2500 (env: MOCK_SEARCHLEADS_SCRIPT)")
	fs.StringVar(&apiKey, "api-key", apiKey, "Require this bearer token when set")
	_ = fs.Parse(os.Args[1:])

	replies, err := mocksearchleads.ParseScript(script)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid script: %v\n", err)
		os.Exit(2)
	}

	srv := mocksearchleads.New(recordID, replies...)
	srv.RequireBearerToken(apiKey)

	_, _ = fmt.Fprintf(os.Stdout, "mock-searchleads listening on %s (submit=/submit status=/status steps=%d)\n", addr, len(replies))
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func defaultString(envVar string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(envVar))
	if v == "" {
		return fallback
	}
	return v
}
