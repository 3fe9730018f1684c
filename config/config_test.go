/*
Copyright 2025 Kagurabot Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wacul/ptr"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "exchange.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeTempConfig(t, `{
		"mall": {"base_url": "https://mall.example.com/mall/v1"},
		"redis": {"dns": "localhost:6379"}
	}`)

	require.NoError(t, InitConfig(path))
	cnf, err := Fetch()
	require.NoError(t, err)

	assert.Equal(t, DEFAULT_PORT, cnf.Server.Port)
	assert.Equal(t, DEFAULT_ATTEMPTS, cnf.Exchange.Attempts)
	assert.Equal(t, DEFAULT_WINDOW_SEC, cnf.Exchange.WindowSec)
	assert.Equal(t, DEFAULT_JITTER_MS, cnf.Exchange.JitterMs)
	assert.Equal(t, DEFAULT_TIMEOUT_SEC, cnf.Mall.TimeoutSec)
	assert.Equal(t, cnf.Mall.BaseUrl, cnf.Mall.ExchangeUrl)
	assert.Equal(t, cnf.Mall.BaseUrl+"/common/time", cnf.Mall.TimeUrl)
	assert.Equal(t, "exchange:attempts", cnf.Queue.ExchangeQueue)
	assert.Equal(t, cnf.Exchange.Attempts*2, cnf.Queue.Concurrency)
	assert.Equal(t, "exchange.db", cnf.DataSource.Dns)
}

func TestLoadConfigMissingMallURL(t *testing.T) {
	path := writeTempConfig(t, `{"redis": {"dns": "localhost:6379"}}`)
	assert.Error(t, InitConfig(path))
}

func TestLoadConfigMissingRedis(t *testing.T) {
	path := writeTempConfig(t, `{"mall": {"base_url": "https://mall.example.com"}}`)
	assert.Error(t, InitConfig(path))
}

func TestEnvOverride(t *testing.T) {
	path := writeTempConfig(t, `{
		"mall": {"base_url": "https://mall.example.com"},
		"redis": {"dns": "localhost:6379"}
	}`)

	t.Setenv("EXCHANGE_ATTEMPTS", "5")
	t.Setenv("EXCHANGE_SERVER_PORT", "9999")

	require.NoError(t, InitConfig(path))
	cnf, err := Fetch()
	require.NoError(t, err)
	assert.Equal(t, 5, cnf.Exchange.Attempts)
	assert.Equal(t, "9999", cnf.Server.Port)
}

func TestRateLimitDefaults(t *testing.T) {
	path := writeTempConfig(t, `{
		"mall": {"base_url": "https://mall.example.com"},
		"redis": {"dns": "localhost:6379"},
		"rate_limit": {"requests_per_second": 10}
	}`)

	require.NoError(t, InitConfig(path))
	cnf, err := Fetch()
	require.NoError(t, err)
	assert.Equal(t, ptr.Int(20), cnf.RateLimit.Burst)
	require.NotNil(t, cnf.RateLimit.CleanupIntervalSec)
	assert.Equal(t, 10800, *cnf.RateLimit.CleanupIntervalSec)
}

func TestMockConfigFillsDefaults(t *testing.T) {
	MockConfig(&Configuration{
		Mall:  MallConfig{BaseUrl: "https://mall.example.com"},
		Redis: RedisConfig{Dns: "localhost:6379"},
	})
	cnf, err := Fetch()
	require.NoError(t, err)
	assert.Equal(t, DEFAULT_ATTEMPTS, cnf.Exchange.Attempts)
	assert.Equal(t, "exchange:attempts", cnf.Queue.ExchangeQueue)
}
