package setup

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/truthboard/config"
)

func TestAnswers_BuildAndSave(t *testing.T) {
	a := DefaultAnswers()
	a.Accounts = "2vxsx-fae\n\n  rwlgt-iiaaa-aaaaa-aaaaa-cai  \n"
	a.RateLimit = "5"
	a.SecondaryName = "ckbtc"

	cfgTmp, err := a.Build()
	require.NoError(t, err)
	assert.Equal(t, []string{"2vxsx-fae", "rwlgt-iiaaa-aaaaa-aaaaa-cai"}, cfgTmp.Accounts)
	assert.Equal(t, time.Minute, cfgTmp.RefreshInterval)
	assert.Equal(t, 30*time.Second, cfgTmp.RequestTimeout)
	assert.Equal(t, "CKBTC", cfgTmp.Secondary.Symbol)

	path := filepath.Join(t.TempDir(), "truthboard.yaml")
	require.NoError(t, Save(path, cfgTmp))

	t.Setenv(config.GatewayEnv, "")
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:4943", cfg.Gateway)
	assert.Len(t, cfg.Accounts, 2)
	assert.Equal(t, "ckbtc", cfg.Secondary.Name)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "5", cfg.RateLimit.String())
}

func TestAnswers_BuildRejectsInvalid(t *testing.T) {
	a := DefaultAnswers()
	a.SecondaryName = "icp"
	_, err := a.Build()
	assert.Error(t, err)

	a = DefaultAnswers()
	a.RefreshInterval = "soon"
	_, err = a.Build()
	assert.Error(t, err)
}

func TestValidators(t *testing.T) {
	tests := []struct {
		name    string
		fn      func(string) error
		input   string
		wantErr bool
	}{
		{"gateway ok", validateGateway, "https://icp-api.io", false},
		{"gateway no scheme", validateGateway, "icp-api.io", true},
		{"principal ok", validatePrincipal, "ryjl3-tyaaa-aaaaa-aaaba-cai", false},
		{"principal bad checksum", validatePrincipal, "ryjl3-tyaaa-aaaaa-aaaba-caa", true},
		{"accounts ok", validateAccounts, "2vxsx-fae,rwlgt-iiaaa-aaaaa-aaaaa-cai", false},
		{"accounts bad subaccount", validateAccounts, "2vxsx-fae.zz", true},
		{"duration zero allowed", validateDuration, "0s", false},
		{"duration negative", validateDuration, "-1s", true},
		{"positive duration zero", validatePositiveDuration, "0s", true},
		{"rate empty", validateRate, "", false},
		{"rate decimal", validateRate, "2.5", false},
		{"rate negative", validateRate, "-1", true},
		{"decimals", validateNonNegativeInt, "8", false},
		{"decimals text", validateNonNegativeInt, "eight", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
