package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/truthboard/config"
	"github.com/vadiminshakov/truthboard/internal/domain"
)

func fakeGateway(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string          `json:"method"`
			Args   json.RawMessage `json:"args"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		var reply any
		switch req.Method {
		case "account_balance":
			reply = map[string]any{"e8s": 250000000}
		case "icrc1_balance_of":
			reply = "100000000"
		default:
			reply = map[string]any{"method": req.Method, "args": req.Args}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "replied", "reply": reply})
	}))
	t.Cleanup(server.Close)
	return server
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configPath, verbose, callUpdate = "", false, false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestBalanceCommand(t *testing.T) {
	t.Setenv(config.GatewayEnv, fakeGateway(t).URL)

	out, err := execute(t, "balance", "2vxsx-fae")
	require.NoError(t, err)
	assert.Contains(t, out, "2vxsx-fae")
	assert.Contains(t, out, "2.5000")
	assert.Contains(t, out, "1.0000")
	assert.Contains(t, out, "TRUTH")
}

func TestBalanceCommand_InvalidAccount(t *testing.T) {
	t.Setenv(config.GatewayEnv, fakeGateway(t).URL)

	_, err := execute(t, "balance", "2vxsx-fae.01")
	assert.ErrorIs(t, err, domain.ErrInvalidAccount)
}

func TestCallCommand(t *testing.T) {
	t.Setenv(config.GatewayEnv, fakeGateway(t).URL)

	out, err := execute(t, "call", "ryjl3-tyaaa-aaaaa-aaaba-cai", "symbol", `{"x":1}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"method":"symbol","args":{"x":1}}`, out)

	_, err = execute(t, "call", "ryjl3-tyaaa-aaaaa-aaaba-cai", "symbol", `{broken`)
	assert.ErrorContains(t, err, "incorrect json args")
}

func TestRenderPortfolio(t *testing.T) {
	out := renderPortfolio(domain.Portfolio{
		Account:   "2vxsx-fae",
		FetchedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Entries: []domain.BalanceEntry{
			{Ledger: "icp", Symbol: "ICP", Raw: "123456789", Amount: "1.2345", Available: true},
			domain.UnavailableBalance("truth", "TRUTH", errors.New("canister trapped")),
		},
	})

	assert.Contains(t, out, "2vxsx-fae at 2026-01-02 03:04:05")
	assert.Contains(t, out, "1.2345")
	assert.Contains(t, out, domain.UnavailableAmount)
	assert.Contains(t, out, "canister trapped")
}
