package staked

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"stakeledger/config"
	"stakeledger/core/events"
	"stakeledger/crypto"
	"stakeledger/native/staking"
)

const testSecret = "test-secret"

type serverFixture struct {
	*testHarness
	indexer *Indexer
	hub     *Hub
	server  *httptest.Server
}

func newServerFixture(t *testing.T, limiter *RateLimiter) *serverFixture {
	t.Helper()
	indexer, err := OpenIndexer(config.IndexerConfig{
		Driver: config.IndexerDriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "events.db"),
	}, nil)
	if err != nil {
		t.Fatalf("open indexer: %v", err)
	}
	t.Cleanup(func() { _ = indexer.Close() })
	hub := NewHub()
	h := newHarness(t, hub, indexer)

	srv := NewServer(h.processor, indexer, hub, NewAuthenticator(testSecret, "stakectl"), limiter, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &serverFixture{testHarness: h, indexer: indexer, hub: hub, server: ts}
}

func (f *serverFixture) do(t *testing.T, method, path string, caller *crypto.Address, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if caller != nil {
		token, err := IssueToken(testSecret, "stakectl", *caller, time.Minute)
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	var decoded any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	out, _ := decoded.(map[string]any)
	return resp, out
}

func TestServerHealthAndStatus(t *testing.T) {
	f := newServerFixture(t, nil)

	resp, _ := f.do(t, http.MethodGet, "/healthz", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status %d", resp.StatusCode)
	}
	if resp.Header.Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}

	resp, body := f.do(t, http.MethodGet, "/v1/status", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code %d", resp.StatusCode)
	}
	if body["owner"] != ownerAddr.String() || body["rewardAsset"] != "RWD" || body["poolCount"] != float64(1) {
		t.Fatalf("unexpected status body: %v", body)
	}
}

func TestServerStakeFlow(t *testing.T) {
	f := newServerFixture(t, nil)
	alice := aliceAddr

	resp, _ := f.do(t, http.MethodPost, "/v1/pools/0/stake", nil, stakeRequest{Amount: "100", Value: "100"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	f.ticker.Set(100)
	resp, body := f.do(t, http.MethodPost, "/v1/pools/0/stake", &alice, stakeRequest{Amount: "100", Value: "100"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stake status %d: %v", resp.StatusCode, body)
	}

	resp, body = f.do(t, http.MethodGet, "/v1/pools/0/positions/"+alice.String(), nil, nil)
	if resp.StatusCode != http.StatusOK || body["amount"] != "100" {
		t.Fatalf("unexpected position %d: %v", resp.StatusCode, body)
	}

	f.ticker.Set(200)
	_, body = f.do(t, http.MethodGet, "/v1/pools/0/pending/"+alice.String(), nil, nil)
	if body["pending"] != "10000" {
		t.Fatalf("unexpected pending: %v", body)
	}
	resp, body = f.do(t, http.MethodPost, "/v1/pools/0/rewards/claim", &alice, nil)
	if resp.StatusCode != http.StatusOK || body["amount"] != "10000" {
		t.Fatalf("unexpected claim %d: %v", resp.StatusCode, body)
	}

	resp, body = f.do(t, http.MethodPost, "/v1/pools/0/unstake", &alice, amountRequest{Amount: "30"})
	if resp.StatusCode != http.StatusOK || body["index"] != float64(0) {
		t.Fatalf("unexpected unstake %d: %v", resp.StatusCode, body)
	}
	resp, body = f.do(t, http.MethodPost, "/v1/pools/0/unstakes/0/claim", &alice, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 while locked, got %d: %v", resp.StatusCode, body)
	}
	f.ticker.Advance(testLockTicks)
	resp, body = f.do(t, http.MethodPost, "/v1/pools/0/unstakes/0/claim", &alice, nil)
	if resp.StatusCode != http.StatusOK || body["amount"] != "30" {
		t.Fatalf("unexpected unstake claim %d: %v", resp.StatusCode, body)
	}

	_, body = f.do(t, http.MethodGet, "/v1/accounts/"+alice.String()+"/balance?asset=RWD", nil, nil)
	if body["balance"] != "10000" {
		t.Fatalf("unexpected balance: %v", body)
	}
}

func TestServerErrorMapping(t *testing.T) {
	f := newServerFixture(t, nil)
	alice := aliceAddr

	resp, _ := f.do(t, http.MethodGet, "/v1/pools/9", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	resp, _ = f.do(t, http.MethodGet, "/v1/pools/abc", nil, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %d", resp.StatusCode)
	}
	resp, _ = f.do(t, http.MethodPost, "/v1/admin/pools", &alice, addPoolRequest{Asset: "RWD", Weight: 10, MinDeposit: "1"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	resp, _ = f.do(t, http.MethodPost, "/v1/pools/0/stake", &alice, stakeRequest{Amount: "100", Value: "1"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for value mismatch, got %d", resp.StatusCode)
	}

	operator := operatorAddr
	resp, _ = f.do(t, http.MethodPost, "/v1/admin/pause", &operator, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pause status %d", resp.StatusCode)
	}
	resp, _ = f.do(t, http.MethodPost, "/v1/pools/0/stake", &alice, stakeRequest{Amount: "100", Value: "100"})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while paused, got %d", resp.StatusCode)
	}
	resp, body := f.do(t, http.MethodPost, "/v1/admin/pools", &operator, addPoolRequest{Asset: "RWD", Weight: 10, MinDeposit: "1", UnstakeLockTicks: 3})
	if resp.StatusCode != http.StatusOK || body["id"] != float64(1) {
		t.Fatalf("unexpected add pool %d: %v", resp.StatusCode, body)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{staking.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("wrap: %w", staking.ErrUnauthorized), http.StatusForbidden},
		{staking.ErrPaused, http.StatusServiceUnavailable},
		{staking.ErrNotInitialized, http.StatusServiceUnavailable},
		{staking.ErrStillLocked, http.StatusConflict},
		{staking.ErrAlreadyClaimed, http.StatusConflict},
		{staking.ErrBelowMinimum, http.StatusBadRequest},
		{staking.ErrInsufficientBalance, http.StatusBadRequest},
		{staking.ErrAssetTransferFailed, http.StatusUnprocessableEntity},
		{context.Canceled, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Errorf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestServerRateLimit(t *testing.T) {
	f := newServerFixture(t, NewRateLimiter(1, 1))

	resp, _ := f.do(t, http.MethodGet, "/v1/status", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first request status %d", resp.StatusCode)
	}
	resp, _ = f.do(t, http.MethodGet, "/v1/status", nil, nil)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
}

func TestServerEventHistory(t *testing.T) {
	f := newServerFixture(t, nil)
	alice := aliceAddr

	f.ticker.Set(100)
	resp, _ := f.do(t, http.MethodPost, "/v1/pools/0/stake", &alice, stakeRequest{Amount: "100", Value: "100"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stake status %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, f.server.URL+"/v1/events?type="+events.TypeStaked, nil)
	httpResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	defer httpResp.Body.Close()
	var out []eventView
	if err := json.NewDecoder(httpResp.Body).Decode(&out); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(out) != 1 || out[0].Tick != 100 || out[0].Attributes["account"] != alice.String() {
		t.Fatalf("unexpected events: %+v", out)
	}
	if out[0].Seq != 4 {
		t.Fatalf("expected genesis events to precede the stake, got seq %d", out[0].Seq)
	}
}

func TestServerEventStream(t *testing.T) {
	f := newServerFixture(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/v1/events/ws?type=" + events.TypeStaked
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	deadline := time.Now().Add(2 * time.Second)
	for f.hub.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	f.ticker.Set(100)
	if err := f.processor.Stake(ctx, aliceAddr, 0, big.NewInt(100), big.NewInt(100)); err != nil {
		t.Fatalf("stake: %v", err)
	}
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev eventView
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Type != events.TypeStaked || ev.Attributes["amount"] != "100" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}
