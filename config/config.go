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
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
	"github.com/wacul/ptr"
)

const (
	DEFAULT_PORT = "5002"

	// Defaults for the redemption race. Three parallel attempts inside a
	// thirty-second post-open window mirrors a human mashing the redeem
	// button without hammering the mall.
	DEFAULT_ATTEMPTS    = 3
	DEFAULT_WINDOW_SEC  = 30
	DEFAULT_JITTER_MS   = 300
	DEFAULT_TIMEOUT_SEC = 10
)

var ConfigStore atomic.Value

type ServerConfig struct {
	Secure    bool   `json:"secure" envconfig:"EXCHANGE_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"EXCHANGE_SERVER_SECRET_KEY"`
	Port      string `json:"port" envconfig:"EXCHANGE_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"EXCHANGE_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"EXCHANGE_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"EXCHANGE_REDIS_SKIP_TLS_VERIFY"`
}

// MallConfig points the core at the community mall API. TimeUrl is the
// endpoint used to read the mall's server clock for drift correction.
type MallConfig struct {
	BaseUrl     string `json:"base_url" envconfig:"EXCHANGE_MALL_BASE_URL"`
	ExchangeUrl string `json:"exchange_url" envconfig:"EXCHANGE_MALL_EXCHANGE_URL"`
	TimeUrl     string `json:"time_url" envconfig:"EXCHANGE_MALL_TIME_URL"`
	AppID       int    `json:"app_id" envconfig:"EXCHANGE_MALL_APP_ID"`
	PointSn     string `json:"point_sn" envconfig:"EXCHANGE_MALL_POINT_SN"`
	TimeoutSec  int    `json:"timeout_sec" envconfig:"EXCHANGE_MALL_TIMEOUT_SEC"`
}

// ExchangeConfig tunes the per-plan redemption race.
type ExchangeConfig struct {
	Attempts  int `json:"attempts" envconfig:"EXCHANGE_ATTEMPTS"`
	WindowSec int `json:"window_sec" envconfig:"EXCHANGE_WINDOW_SEC"`
	JitterMs  int `json:"jitter_ms" envconfig:"EXCHANGE_JITTER_MS"`
	ResyncMin int `json:"resync_min" envconfig:"EXCHANGE_RESYNC_MIN"` // 0 disables periodic time resync
}

type QueueConfig struct {
	ExchangeQueue string `json:"exchange_queue" envconfig:"EXCHANGE_QUEUE_NAME"`
	Concurrency   int    `json:"concurrency" envconfig:"EXCHANGE_QUEUE_CONCURRENCY"`
}

type WebhookNotification struct {
	Url     string            `json:"url"`
	Headers map[string]string `json:"headers"`
}

type Notification struct {
	Webhook WebhookNotification `json:"webhook"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"EXCHANGE_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"EXCHANGE_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"EXCHANGE_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type Configuration struct {
	ProjectName  string           `json:"project_name" envconfig:"EXCHANGE_PROJECT_NAME"`
	Server       ServerConfig     `json:"server"`
	DataSource   DataSourceConfig `json:"data_source"`
	Redis        RedisConfig      `json:"redis"`
	Mall         MallConfig       `json:"mall"`
	Exchange     ExchangeConfig   `json:"exchange"`
	Queue        QueueConfig      `json:"queue"`
	Notification Notification     `json:"notification"`
	RateLimit    RateLimitConfig  `json:"rate_limit"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer func() {
			_ = f.Close()
		}()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}
	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("exchange", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called exchange.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Exchange Plugin"
	}

	if cnf.Mall.BaseUrl == "" {
		log.Println("Error: Mall base URL is empty. It's a required field.")
		return errors.New("mall base URL is required")
	}
	if cnf.Mall.ExchangeUrl == "" {
		cnf.Mall.ExchangeUrl = cnf.Mall.BaseUrl
	}
	if cnf.Mall.TimeUrl == "" {
		cnf.Mall.TimeUrl = cnf.Mall.BaseUrl + "/common/time"
	}
	if cnf.Mall.TimeoutSec <= 0 {
		cnf.Mall.TimeoutSec = DEFAULT_TIMEOUT_SEC
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}
	if cnf.DataSource.Dns == "" {
		cnf.DataSource.Dns = "exchange.db"
		log.Printf("Warning: Data source DNS not specified. Using local file: %s", cnf.DataSource.Dns)
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.Mall.BaseUrl = strings.TrimSpace(cnf.Mall.BaseUrl)

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Exchange.Attempts <= 0 {
		cnf.Exchange.Attempts = DEFAULT_ATTEMPTS
	}
	if cnf.Exchange.WindowSec <= 0 {
		cnf.Exchange.WindowSec = DEFAULT_WINDOW_SEC
	}
	if cnf.Exchange.JitterMs <= 0 {
		cnf.Exchange.JitterMs = DEFAULT_JITTER_MS
	}

	if cnf.Queue.ExchangeQueue == "" {
		cnf.Queue.ExchangeQueue = "exchange:attempts"
	}
	if cnf.Queue.Concurrency <= 0 {
		// Attempts of one plan must be able to run side by side.
		cnf.Queue.Concurrency = cnf.Exchange.Attempts * 2
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		cnf.RateLimit.Burst = ptr.Int(2 * int(*cnf.RateLimit.RequestsPerSecond))
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", *cnf.RateLimit.Burst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		cnf.RateLimit.RequestsPerSecond = ptr.Float64(float64(*cnf.RateLimit.Burst) / 2)
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", *cnf.RateLimit.RequestsPerSecond)
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		cnf.RateLimit.CleanupIntervalSec = ptr.Int(10800) // 3 hours in seconds
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	if mockConfig.Mall.TimeoutSec <= 0 {
		mockConfig.Mall.TimeoutSec = DEFAULT_TIMEOUT_SEC
	}
	if mockConfig.Exchange.Attempts <= 0 {
		mockConfig.Exchange.Attempts = DEFAULT_ATTEMPTS
	}
	if mockConfig.Exchange.WindowSec <= 0 {
		mockConfig.Exchange.WindowSec = DEFAULT_WINDOW_SEC
	}
	if mockConfig.Exchange.JitterMs <= 0 {
		mockConfig.Exchange.JitterMs = DEFAULT_JITTER_MS
	}
	if mockConfig.Queue.ExchangeQueue == "" {
		mockConfig.Queue.ExchangeQueue = "exchange:attempts"
	}
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
