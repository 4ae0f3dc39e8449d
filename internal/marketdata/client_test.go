package marketdata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/macropulse/internal/common"
)

func TestGetRealTimeQuotes_Batch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/real-time/US10Y.GBOND" {
			t.Errorf("path = %s, want /real-time/US10Y.GBOND", r.URL.Path)
		}
		if got := r.URL.Query().Get("s"); got != "DX-Y.INDX" {
			t.Errorf("s = %q, want DX-Y.INDX", got)
		}
		if r.URL.Query().Get("api_token") != "test-key" {
			t.Error("missing api_token")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"code":"US10Y.GBOND","close":4.52,"timestamp":1756400000},
			{"code":"DX-Y.INDX","close":105.0,"timestamp":1756400000}
		]`))
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL))
	quotes, err := client.GetRealTimeQuotes(context.Background(), []string{"US10Y.GBOND", "DX-Y.INDX"})
	if err != nil {
		t.Fatalf("GetRealTimeQuotes() error = %v", err)
	}
	if len(quotes) != 2 {
		t.Fatalf("quotes = %d, want 2", len(quotes))
	}
	if quotes[0].Close != 4.52 {
		t.Errorf("Close = %v, want 4.52", quotes[0].Close)
	}
}

func TestGetRealTimeQuotes_SingleObjectResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"GSPC.INDX","close":6450.0}`))
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL))
	quotes, err := client.GetRealTimeQuotes(context.Background(), []string{"GSPC.INDX"})
	if err != nil {
		t.Fatalf("GetRealTimeQuotes() error = %v", err)
	}
	if len(quotes) != 1 || quotes[0].Close != 6450.0 {
		t.Errorf("quotes = %+v, want one entry with close 6450", quotes)
	}
}

func TestGetRealTimeQuotes_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte("subscription required"))
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL))
	_, err := client.GetRealTimeQuotes(context.Background(), []string{"GSPC.INDX"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusPaymentRequired {
		t.Errorf("StatusCode = %d, want 402", apiErr.StatusCode)
	}
}

func TestSource_Snapshot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"code":"US10Y.GBOND","close":4.52},
			{"code":"DX-Y.INDX","close":105.0}
		]`))
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL))
	source := NewSource(client, []common.IndicatorConfig{
		{ID: "treasury_10y", Ticker: "US10Y.GBOND"},
		{ID: "dxy", Ticker: "DX-Y.INDX"},
	}, arbor.NewLogger())

	snapshot, err := source.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snapshot.Values["treasury_10y"] != 4.52 || snapshot.Values["dxy"] != 105.0 {
		t.Errorf("Values = %+v", snapshot.Values)
	}
	if snapshot.CapturedAt.IsZero() {
		t.Error("CapturedAt not set")
	}
}

func TestSource_SnapshotMissingQuote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"code":"US10Y.GBOND","close":4.52}]`))
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL))
	source := NewSource(client, []common.IndicatorConfig{
		{ID: "treasury_10y", Ticker: "US10Y.GBOND"},
		{ID: "dxy", Ticker: "DX-Y.INDX"},
	}, arbor.NewLogger())

	_, err := source.Snapshot(context.Background())
	if err == nil {
		t.Fatal("Snapshot() expected error for missing quote")
	}
}
