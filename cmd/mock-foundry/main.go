package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/shpitdev/leads-enrichment-module/pkg/mockfoundry"
)

func main() {
	addr := defaultString("MOCK_FOUNDRY_ADDR", ":8080")
	uploadDir := defaultString("MOCK_FOUNDRY_UPLOAD_DIR", "/data/uploads")
	token := defaultString("MOCK_FOUNDRY_TOKEN", "")
	openRIDs := defaultString("MOCK_FOUNDRY_OPEN_RIDS", "")

	fs := flag.NewFlagSet("mock-foundry", flag.ExitOnError)
	fs.StringVar(&addr, "addr", addr, "Listen address")
	fs.StringVar(&uploadDir, "upload-dir", uploadDir, "Directory committed dataset files are mirrored into")
	fs.StringVar(&token, "token", token, "Require this bearer token when set")
	fs.StringVar(&openRIDs, "open-rids", openRIDs, "Comma-separated dataset RIDs to pre-open a master transaction on, as a build would (env: MOCK_FOUNDRY_OPEN_RIDS)")
	_ = fs.Parse(os.Args[1:])

	srv := mockfoundry.New(uploadDir)
	srv.RequireBearerToken(token)
	for _, rid := range splitCSV(openRIDs) {
		txn := srv.OpenTransaction(rid, "master")
		_, _ = fmt.Fprintf(os.Stdout, "opened transaction %s on %s\n", txn, rid)
	}

	_, _ = fmt.Fprintf(os.Stdout, "mock-foundry listening on %s (upload=%s)\n", addr, uploadDir)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		v := strings.TrimSpace(p)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

func defaultString(envVar string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(envVar))
	if v == "" {
		return fallback
	}
	return v
}
