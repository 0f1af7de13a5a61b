package marketplace

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"nft-sniper/internal/config"
)

const testContract = "sei1collection"

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(config.MarketplaceConfig{
		BaseURL:  srv.URL,
		Denom:    "usei",
		PageSize: 25,
		Timeout:  5 * time.Second,
	}, srv.Client(), nil)
}

func TestQueryByIdentifier_ParsesListing(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/nfts/"+testContract+"/tokens" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("token_id") != "42" || q.Get("token_id_exact") != "true" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"tokens":[{"id":"42","id_int":42,"owner":"sei1seller",
			"traits":[{"type":"Hat","value":"Crown"}],
			"auction":{"type":"fixed_price","price":[{"amount":"100","denom":"usei"}]}}]}`))
	})

	listing, err := client.QueryByIdentifier(context.Background(), testContract, "42")
	if err != nil {
		t.Fatalf("QueryByIdentifier returned error: %v", err)
	}
	if listing.TokenID != "42" {
		t.Errorf("unexpected token id %q", listing.TokenID)
	}
	if !listing.Price.Amount.Equal(decimal.NewFromInt(100)) || listing.Price.Denom != "usei" {
		t.Errorf("unexpected price %+v", listing.Price)
	}
	if !listing.Purchasable() {
		t.Errorf("expected listing to be purchasable")
	}
	if len(listing.Traits) != 1 || listing.Traits[0].Type != "Hat" {
		t.Errorf("unexpected traits %+v", listing.Traits)
	}
}

func TestQueryByIdentifier_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tokens":[]}`))
	})

	_, err := client.QueryByIdentifier(context.Background(), testContract, "7")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if IsSourceUnavailable(err) {
		t.Fatalf("not found must not be reported as source unavailable")
	}
}

func TestQuerySweep_SendsFiltersAndReadsNestedTraits(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		for key, want := range map[string]string{
			"buy_now_only":  "true",
			"max_price":     "150",
			"sort_by_price": "asc",
			"page":          "1",
			"page_size":     "10",
		} {
			if got := q.Get(key); got != want {
				t.Errorf("query %s=%q, want %q", key, got, want)
			}
		}
		_, _ = w.Write([]byte(`{"tokens":[
			{"id_int":1,"token":{"traits":[{"type":"Eyes","value":"Laser"}]},"auction":{"price":[{"amount":"10"}]}},
			{"id":"2","auction":{"type":"english","price":[{"amount":"20","denom":"usei"}]}},
			{"id":"3"}]}`))
	})

	listings, err := client.QuerySweep(context.Background(), testContract, SweepQuery{
		MaxPrice: decimal.NewFromInt(150),
		PageSize: 10,
	})
	if err != nil {
		t.Fatalf("QuerySweep returned error: %v", err)
	}
	if len(listings) != 3 {
		t.Fatalf("expected 3 listings, got %d", len(listings))
	}
	if listings[0].TokenID != "1" || len(listings[0].Traits) != 1 || listings[0].Price.Denom != "usei" {
		t.Errorf("unexpected first listing %+v", listings[0])
	}
	if listings[1].State != StateAuction || listings[1].Purchasable() {
		t.Errorf("expected auction listing to be non purchasable, got %+v", listings[1])
	}
	if listings[2].State != StateNotForSale || listings[2].Traits == nil {
		t.Errorf("unexpected not-for-sale listing %+v", listings[2])
	}
}

func TestQuerySweep_UpstreamErrorMessage(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{name: "json message", status: http.StatusBadGateway, body: `{"message":"indexer lagging"}`, message: "indexer lagging"},
		{name: "raw json", status: http.StatusBadRequest, body: `{"error":"bad page"}`, message: `{"error":"bad page"}`},
		{name: "status text", status: http.StatusServiceUnavailable, body: `<html>down</html>`, message: "Service Unavailable"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})

			_, err := client.QuerySweep(context.Background(), testContract, SweepQuery{})
			var srcErr *SourceUnavailableError
			if !errors.As(err, &srcErr) {
				t.Fatalf("expected SourceUnavailableError, got %v", err)
			}
			if srcErr.Status != tc.status {
				t.Errorf("status=%d want %d", srcErr.Status, tc.status)
			}
			if srcErr.Message != tc.message {
				t.Errorf("message=%q want %q", srcErr.Message, tc.message)
			}
		})
	}
}

func TestQuerySweep_TransportError(t *testing.T) {
	client := NewClient(config.MarketplaceConfig{BaseURL: "http://127.0.0.1:1", Timeout: time.Second}, nil, nil)

	_, err := client.QuerySweep(context.Background(), testContract, SweepQuery{})
	if !IsSourceUnavailable(err) {
		t.Fatalf("expected SourceUnavailable for transport error, got %v", err)
	}
}

func TestFetch_RateLimitedWithinDeadline(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"tokens":[]}`))
	}))
	t.Cleanup(srv.Close)
	client := NewClient(config.MarketplaceConfig{BaseURL: srv.URL, Denom: "usei", RateLimit: 1}, srv.Client(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := client.QuerySweep(ctx, testContract, SweepQuery{}); err != nil {
		t.Fatalf("first query should use the burst: %v", err)
	}
	start := time.Now()
	_, err := client.QuerySweep(ctx, testContract, SweepQuery{})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if IsSourceUnavailable(err) {
		t.Errorf("rate limiting must not be reported as source unavailable")
	}
	if elapsed := time.Since(start); elapsed > 40*time.Millisecond {
		t.Errorf("rate limited query should fail fast, took %s", elapsed)
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("expected one upstream request, got %d", n)
	}
}

func TestFetch_WarnsOnceForUnknownAuctionType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tokens":[
			{"id":"1","auction":{"type":"reserve_price","price":[{"amount":"10","denom":"usei"}]}},
			{"id":"2","auction":{"type":"reserve_price","price":[{"amount":"20","denom":"usei"}]}},
			{"id":"3","auction":{"type":"timed_auction","price":[{"amount":"30","denom":"usei"}]}}]}`))
	}))
	t.Cleanup(srv.Close)

	core, logs := observer.New(zapcore.WarnLevel)
	client := NewClient(config.MarketplaceConfig{BaseURL: srv.URL, Denom: "usei"}, srv.Client(), zap.New(core))

	for i := 0; i < 2; i++ {
		listings, err := client.QuerySweep(context.Background(), testContract, SweepQuery{})
		if err != nil {
			t.Fatalf("QuerySweep returned error: %v", err)
		}
		for _, l := range listings {
			if l.State != StateAuction {
				t.Errorf("token %s should be classified as auction, got %s", l.TokenID, l.State)
			}
		}
	}

	warnings := logs.FilterField(zap.String("auction_type", "reserve_price")).All()
	if len(warnings) != 1 {
		t.Errorf("expected a single warning for reserve_price, got %d", len(warnings))
	}
	if logs.Len() != 1 {
		t.Errorf("known auction types must not warn, got %d entries", logs.Len())
	}
}
