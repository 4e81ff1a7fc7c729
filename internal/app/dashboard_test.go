package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/truthboard/config"
	"github.com/vadiminshakov/truthboard/internal/balance"
	"github.com/vadiminshakov/truthboard/internal/domain"
)

const (
	icpCanister   = "ryjl3-tyaaa-aaaaa-aaaba-cai"
	truthCanister = "mxzaz-hqaaa-aaaar-qaada-cai"
)

// fakeGateway answers ledger queries; canisters listed in down reject every call.
func fakeGateway(t *testing.T, down ...string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")

		for _, id := range down {
			if strings.Contains(r.URL.Path, id) {
				_ = json.NewEncoder(w).Encode(map[string]any{
					"status": "rejected", "reject_code": 5, "reject_message": "canister trapped",
				})
				return
			}
		}

		var reply any
		switch req.Method {
		case "account_balance":
			reply = map[string]any{"e8s": 123456789}
		case "icrc1_balance_of":
			reply = "500000000"
		default:
			reply = map[string]any{"echo": req.Method}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "replied", "reply": reply})
	}))
	t.Cleanup(server.Close)
	return server
}

func testConfig(t *testing.T, gateway string) config.Config {
	t.Helper()
	raw := config.Default()
	raw.Gateway = gateway
	raw.Listen = "127.0.0.1:0"
	raw.WALDir = t.TempDir()
	raw.RefreshInterval = 10 * time.Millisecond
	raw.Accounts = []string{"2vxsx-fae"}
	cfg, err := config.Parse(raw)
	require.NoError(t, err)
	return cfg
}

func TestDashboard_FetchIsTracked(t *testing.T) {
	cfg := testConfig(t, fakeGateway(t).URL)
	d, err := New(cfg, zap.NewNop())
	require.NoError(t, err)

	p, err := d.Aggregator.Fetch(context.Background(), cfg.Accounts[0])
	require.NoError(t, err)
	assert.False(t, p.Degraded())

	icp, _ := p.Entry("icp")
	assert.Equal(t, "1.2345", icp.Amount)
	truth, _ := p.Entry("truth")
	assert.Equal(t, "5.0000", truth.Amount)

	assert.False(t, d.Loading.Status().IsLoading)
	history := d.Loading.History()
	require.Len(t, history, 2)
	services := []string{history[0].Service, history[1].Service}
	assert.ElementsMatch(t, []string{"icp", "truth"}, services)
}

func TestDashboard_PartialOutage(t *testing.T) {
	cfg := testConfig(t, fakeGateway(t, truthCanister).URL)
	d, err := New(cfg, nil)
	require.NoError(t, err)

	p, err := d.Aggregator.Fetch(context.Background(), cfg.Accounts[0])
	require.NoError(t, err)

	truth, _ := p.Entry("truth")
	assert.Equal(t, domain.UnavailableAmount, truth.Amount)
	assert.Contains(t, truth.Error, "canister trapped")
	assert.False(t, d.Loading.Status().IsLoading)
}

func TestDashboard_TotalOutage(t *testing.T) {
	cfg := testConfig(t, fakeGateway(t, icpCanister, truthCanister).URL)
	d, err := New(cfg, nil)
	require.NoError(t, err)

	_, err = d.Aggregator.Fetch(context.Background(), cfg.Accounts[0])
	assert.ErrorIs(t, err, balance.ErrAllLedgersFailed)
	assert.False(t, d.Loading.Status().IsLoading)
}

func TestDashboard_Canister(t *testing.T) {
	cfg := testConfig(t, fakeGateway(t).URL)
	d, err := New(cfg, nil)
	require.NoError(t, err)

	_, err = d.Canister("bogus")
	assert.Error(t, err)

	c, err := d.Canister(icpCanister)
	require.NoError(t, err)
	reply, err := c.Query(context.Background(), "name", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"echo":"name"}`, string(reply))

	history := d.Loading.History()
	require.Len(t, history, 1)
	assert.Equal(t, icpCanister, history[0].Service)
	assert.Equal(t, "name", history[0].Method)
}

func TestDashboard_Serve(t *testing.T) {
	cfg := testConfig(t, fakeGateway(t).URL)
	d, err := New(cfg, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Serve(ctx) }()

	// the refresher drives tracked ledger calls through the store
	require.Eventually(t, func() bool { return len(d.Loading.History()) >= 4 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not stop")
	}
}
