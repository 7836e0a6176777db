package enrich_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shpitdev/leads-enrichment-module/internal/enrich"
)

func strPtr(s string) *string { return &s }

func TestCanonicalize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  *string
		want enrich.Status
	}{
		{raw: strPtr("completed"), want: enrich.StatusCompleted},
		{raw: strPtr("Completed"), want: enrich.StatusCompleted},
		{raw: strPtr("COMPLETED"), want: enrich.StatusCompleted},
		{raw: strPtr("cOmPlEtEd"), want: enrich.StatusCompleted},
		{raw: strPtr("failed"), want: enrich.StatusFailed},
		{raw: strPtr("FAILED"), want: enrich.StatusFailed},
		{raw: strPtr("Cancelled"), want: enrich.StatusCancelled},
		{raw: strPtr("CANCELLED"), want: enrich.StatusCancelled},
		{raw: strPtr("pending"), want: enrich.StatusPending},
		{raw: strPtr("In_Progress"), want: enrich.StatusPending},
		{raw: strPtr("canceled"), want: enrich.StatusUnknown},
		{raw: strPtr(""), want: enrich.StatusUnknown},
		{raw: strPtr("done-ish"), want: enrich.StatusUnknown},
		{raw: strPtr(" completed\n"), want: enrich.StatusUnknown},
		{raw: strPtr("Failed "), want: enrich.StatusUnknown},
		{raw: nil, want: enrich.StatusUnknown},
	}
	for _, tc := range cases {
		got := enrich.Canonicalize(tc.raw)
		assert.Equal(t, tc.want, got, "raw=%v", tc.raw)
	}
}

func TestStatusTerminal(t *testing.T) {
	t.Parallel()

	assert.True(t, enrich.StatusCompleted.Terminal())
	assert.True(t, enrich.StatusFailed.Terminal())
	assert.True(t, enrich.StatusCancelled.Terminal())
	assert.False(t, enrich.StatusPending.Terminal())
	assert.False(t, enrich.StatusUnknown.Terminal())

	assert.True(t, enrich.StatusCancelled.Failed())
	assert.False(t, enrich.StatusCompleted.Failed())
}

func TestParseStatus_ObjectAndSequenceMatch(t *testing.T) {
	t.Parallel()

	obj := `{"enrichment_status":"Completed","enriched_records":"2500","credits_involved":12.5,"file_name":"leads.csv","spreadsheet_url":"https://sheets.example/abc"}`

	single, ok := enrich.ParseStatus([]byte(obj))
	require.True(t, ok)
	wrapped, ok := enrich.ParseStatus([]byte("[" + obj + "]"))
	require.True(t, ok)

	assert.Equal(t, single, wrapped)
	assert.Equal(t, enrich.StatusCompleted, single.Status())
	assert.Equal(t, int64(2500), single.RecordCount())
	require.NotNil(t, single.CreditsUsed)
	assert.InDelta(t, 12.5, *single.CreditsUsed, 1e-9)
	assert.Equal(t, "leads.csv", *single.FileName)
	assert.Equal(t, "https://sheets.example/abc", *single.SpreadsheetURL)
	assert.JSONEq(t, obj, string(single.Raw))
}

func TestParseStatus_SequenceUsesFirstElement(t *testing.T) {
	t.Parallel()

	snap, ok := enrich.ParseStatus([]byte(`[{"enrichment_status":"pending"},{"enrichment_status":"completed"}]`))
	require.True(t, ok)
	assert.Equal(t, enrich.StatusPending, snap.Status())
}

func TestParseStatus_NoUsableData(t *testing.T) {
	t.Parallel()

	for _, body := range []string{"", "   ", "null", "[]", "[null]", "not json", `"completed"`, "42", "[1,2]"} {
		_, ok := enrich.ParseStatus([]byte(body))
		assert.False(t, ok, "body=%q", body)
	}
}

func TestParseStatus_ObjectWithoutStatusIsUnknown(t *testing.T) {
	t.Parallel()

	snap, ok := enrich.ParseStatus([]byte(`{}`))
	require.True(t, ok)
	assert.Nil(t, snap.RawStatus)
	assert.Equal(t, enrich.StatusUnknown, snap.Status())
	assert.Equal(t, int64(0), snap.RecordCount())
	assert.Nil(t, snap.CreditsUsed)
}

func TestParseStatus_NullFieldsStayAbsent(t *testing.T) {
	t.Parallel()

	snap, ok := enrich.ParseStatus([]byte(`{"enrichment_status":null,"enriched_records":null,"credits_involved":"3","file_name":null}`))
	require.True(t, ok)
	assert.Nil(t, snap.RawStatus)
	assert.Nil(t, snap.EnrichedRecords)
	assert.Nil(t, snap.FileName)
	require.NotNil(t, snap.CreditsUsed)
	assert.InDelta(t, 3.0, *snap.CreditsUsed, 1e-9)
}

func TestResultPayload(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "{}", string(enrich.Result{}.Payload()))

	snap, ok := enrich.ParseStatus([]byte(`[{"enrichment_status":"completed","x":1}]`))
	require.True(t, ok)
	assert.JSONEq(t, `{"enrichment_status":"completed","x":1}`, string(enrich.Result{Snapshot: snap}.Payload()))
}
