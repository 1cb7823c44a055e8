package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smith3v/aquamind/pkg/config"
	"github.com/smith3v/aquamind/pkg/quotes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestEngineOptionsFromConfig(t *testing.T) {
	cfg := config.Config{DailySummaryTime: "21:30", CycleResetTime: "05:15"}
	cfg.ApplyDefaults()

	opts := engineOptions(cfg)
	assert.Equal(t, 3, opts.NotificationLimit)
	assert.Equal(t, time.Minute, opts.NotificationInterval)
	assert.Equal(t, 21, opts.SummaryHour)
	assert.Equal(t, 30, opts.SummaryMinute)
	assert.Equal(t, 5, opts.ResetHour)
	assert.Equal(t, 15, opts.ResetMinute)
	assert.True(t, opts.ResetIntakeOnCycle)
	assert.Equal(t, 120*time.Second, opts.ReplyTimeout)
	assert.Equal(t, 100, opts.QuoteMaxLength)
}

func TestQuoteProviderWithoutKeyIsStatic(t *testing.T) {
	_, ok := newQuoteProvider(config.QuotesConfig{}).(*quotes.Static)
	assert.True(t, ok)
	_, ok = newQuoteProvider(config.QuotesConfig{APIKey: "k", BaseURL: "http://example.invalid"}).(*quotes.Client)
	assert.True(t, ok)
}

func TestRegisterCommandWritesJSONStore(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "user_data.json")
	cfgPath := writeConfig(t, "team_name: WaterProof\nstore:\n  driver: json\n  path: "+storePath+"\n")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"--config", cfgPath, "register",
		"--username", "alice", "--phone", "+49 170 1234567",
		"--gender", "female", "--age", "25", "--weight", "60",
	})
	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "Welcome, alice! Your daily water intake target is 2.00 liters.\n", out.String())

	data, err := os.ReadFile(storePath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"phone_number": "491701234567"`)
}
