/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// RateLimitTier holds the per-window request limits for one pricing tier.
// Values are requests per window; Burst is the short-spike allowance on top
// of the minute window.
type RateLimitTier struct {
	Name   string `json:"name" yaml:"name"`
	Minute int64  `json:"minute" yaml:"minute"`
	Hour   int64  `json:"hour" yaml:"hour"`
	Day    int64  `json:"day" yaml:"day"`
	Burst  int64  `json:"burst" yaml:"burst"`
}

// Provider describes one configured LLM provider endpoint.
type Provider struct {
	Name       string `json:"name" yaml:"name"`
	Kind       string `json:"kind" yaml:"kind"` // openai|anthropic|gemini|ollama
	Endpoint   string `json:"endpoint" yaml:"endpoint"`
	Model      string `json:"model" yaml:"model"`
	SecretPath string `json:"secret_path" yaml:"secret_path"`
	Enabled    bool   `json:"enabled" yaml:"enabled"`
}

// SetValue sets a configuration value for the specified key.
func SetValue(key, value string) {
	viper.Set(key, value)
}

// LoadConfig loads configuration from the specified file path.
func LoadConfig(path string) error {
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")
	return viper.ReadInConfig()
}

func getString(key, defaultValue string) string {
	if !viper.IsSet(key) {
		return defaultValue
	}
	return viper.GetString(key)
}

func getBool(key string, defaultValue bool) bool {
	if !viper.IsSet(key) {
		return defaultValue
	}
	return viper.GetBool(key)
}

func getInt(key string, defaultValue int) int {
	if !viper.IsSet(key) {
		return defaultValue
	}
	return viper.GetInt(key)
}

func getFloat(key string, defaultValue float64) float64 {
	if !viper.IsSet(key) {
		return defaultValue
	}
	return viper.GetFloat64(key)
}

func getFromFile(configPath, item string) string {
	path := getString(configPath, "")
	data, err := os.ReadFile(filepath.Join(path, item))
	if err != nil {
		return ""
	}
	key := string(data)
	return strings.TrimRight(key, "\r\n")
}

// GetServerPort returns the API server port.
func GetServerPort() int {
	return getInt(serverPort, 8080)
}

// GetMaxFileSize returns the maximum accepted upload size in bytes.
func GetMaxFileSize() int64 {
	return int64(getInt(serverMaxFileSize, 50*1024*1024))
}

// IsHealthCheckEnabled returns whether health checks are enabled.
func IsHealthCheckEnabled() bool {
	return getBool(healthCheckEnable, true)
}

// GetHealthCheckPort returns the port for health check endpoint.
func GetHealthCheckPort() int {
	return getInt(healthCheckPort, 0)
}

// IsCryptoEnable returns whether credential encryption is enabled.
func IsCryptoEnable() bool {
	return getBool(cryptoEnable, true)
}

// GetCryptoKey returns the vault key material, preferring the mounted secret
// file and falling back to the environment.
func GetCryptoKey() string {
	if key := getFromFile(cryptoSecretPath, "key"); len(key) > 0 {
		return key
	}
	return os.Getenv("BIN2NLP_VAULT_KEY")
}

// IsDBEnable returns whether the database is enabled.
func IsDBEnable() bool {
	return getBool(dbEnable, true)
}

// GetDBHost returns the database host address.
func GetDBHost() string {
	return getFromFile(dbSecretPath, "host")
}

// GetDBPort returns the database port number.
func GetDBPort() int {
	data := getFromFile(dbSecretPath, "port")
	n, err := strconv.Atoi(data)
	if err != nil {
		return 0
	}
	return n
}

// GetDBName returns the database name.
func GetDBName() string {
	return getFromFile(dbSecretPath, "dbname")
}

// GetDBUser returns the database username.
func GetDBUser() string {
	return getFromFile(dbSecretPath, "user")
}

// GetDBPassword returns the database password.
func GetDBPassword() string {
	return getFromFile(dbSecretPath, "password")
}

// GetDBSslMode returns the database SSL mode.
func GetDBSslMode() string {
	return getString(dbSslMode, "require")
}

// GetDBMaxOpenConns returns the maximum number of open database connections.
func GetDBMaxOpenConns() int {
	return getInt(dbMaxOpenConns, 100)
}

// GetDBMaxIdleConns returns the maximum number of idle database connections.
func GetDBMaxIdleConns() int {
	return getInt(dbMaxIdleConns, 10)
}

// GetDBMaxLifetimeSecond returns the maximum lifetime of database connections in seconds.
func GetDBMaxLifetimeSecond() int {
	return getInt(dbMaxLifetime, 600)
}

// GetDBMaxIdleTimeSecond returns the maximum idle time of database connections in seconds.
func GetDBMaxIdleTimeSecond() int {
	return getInt(dbMaxIdleTimeSecond, 60)
}

// GetDBConnectTimeoutSecond returns the database connection timeout in seconds.
func GetDBConnectTimeoutSecond() int {
	return getInt(dbConnectTimeoutSecond, 10)
}

// GetDBRequestTimeoutSecond returns the database request timeout in seconds.
func GetDBRequestTimeoutSecond() int {
	return getInt(dbRequestTimeoutSecond, 20)
}

// GetBlobBasePath returns the blob store root directory.
func GetBlobBasePath() string {
	return getString(blobBasePath, "/var/lib/bin2nlp/blobs")
}

// GetBlobTTLHour returns the default blob retention in hours.
func GetBlobTTLHour() int {
	return getInt(blobTTLHour, 24)
}

// GetBlobSweepIntervalSecond returns the interval between expiry sweeps.
func GetBlobSweepIntervalSecond() int {
	return getInt(blobSweepIntervalSecond, 3600)
}

// GetBlobMaxKeyLength returns the maximum accepted blob key length.
func GetBlobMaxKeyLength() int {
	return getInt(blobMaxKeyLength, 1024)
}

// IsRateLimitEnable returns whether ingress/egress rate limiting is enabled.
func IsRateLimitEnable() bool {
	return getBool(rateLimitEnable, true)
}

// GetRateLimitCleanupIntervalSecond returns the counter cleanup cadence.
func GetRateLimitCleanupIntervalSecond() int {
	return getInt(rateLimitCleanup, 300)
}

// GetRateLimitTiers returns the configured tier table. The shipped defaults
// are used for any tier absent from the config file.
func GetRateLimitTiers() map[string]RateLimitTier {
	tiers := map[string]RateLimitTier{
		"basic":      {Name: "basic", Minute: 10, Hour: 600, Day: 600, Burst: 5},
		"standard":   {Name: "standard", Minute: 60, Hour: 3600, Day: 3600, Burst: 20},
		"premium":    {Name: "premium", Minute: 300, Hour: 18000, Day: 18000, Burst: 50},
		"enterprise": {Name: "enterprise", Minute: 1000, Hour: 60000, Day: 60000, Burst: 100},
		"llm":        {Name: "llm", Minute: 120, Hour: 7200, Day: 86400, Burst: 40},
	}
	var configured []RateLimitTier
	if err := viper.UnmarshalKey(rateLimitTiers, &configured); err != nil {
		return tiers
	}
	for _, t := range configured {
		if t.Name != "" {
			tiers[t.Name] = t
		}
	}
	return tiers
}

// IsCacheEnable returns whether the result cache is enabled.
func IsCacheEnable() bool {
	return getBool(cacheEnable, true)
}

// GetCacheBaseTTLHour returns the base TTL of cached results in hours,
// before the per-depth multiplier is applied.
func GetCacheBaseTTLHour() int {
	return getInt(cacheBaseTTLHour, 24)
}

// GetCacheMaxKeyLength returns the length bound beyond which cache keys
// collapse to their hash form.
func GetCacheMaxKeyLength() int {
	return getInt(cacheMaxKeyLength, 250)
}

// GetCacheSchemaVersion returns the result document schema version; entries
// written under a different version are treated as misses.
func GetCacheSchemaVersion() string {
	return getString(cacheSchemaVersion, "v1")
}

// GetQueueMaxRetries returns the retry budget before dead-lettering.
func GetQueueMaxRetries() int {
	return getInt(queueMaxRetries, 3)
}

// GetQueueBackoffCapSecond returns the ceiling of the retry back-off delay.
func GetQueueBackoffCapSecond() int {
	return getInt(queueBackoffCapSecond, 30)
}

// GetQueuePollIntervalSecond returns the worker idle poll interval.
func GetQueuePollIntervalSecond() int {
	return getInt(queuePollIntervalSecond, 2)
}

// GetWorkerCount returns the number of concurrent pipeline workers.
func GetWorkerCount() int {
	return getInt(workerCount, 4)
}

// GetWorkerStaleTimeoutSecond returns the lease age beyond which a lease is
// reclaimable.
func GetWorkerStaleTimeoutSecond() int {
	return getInt(workerStaleTimeoutSecond, 3600)
}

// GetWorkerReapIntervalSecond returns the cadence of the lease reaper.
func GetWorkerReapIntervalSecond() int {
	return getInt(workerReapIntervalSecond, 60)
}

// GetPipelineDefaultTimeoutSecond returns the initial per-job operation budget.
func GetPipelineDefaultTimeoutSecond() int {
	return getInt(pipelineDefaultTimeoutSecond, 300)
}

// GetPipelineMaxTimeoutSecond returns the hard cap on the extended budget.
func GetPipelineMaxTimeoutSecond() int {
	return getInt(pipelineMaxTimeoutSecond, 1200)
}

// GetPipelineGracePeriodSecond returns how long a cancelled executor is given
// to release resources.
func GetPipelineGracePeriodSecond() int {
	return getInt(pipelineGracePeriodSecond, 5)
}

// GetDecompilerBinary returns the path of the analysis collaborator.
func GetDecompilerBinary() string {
	return getString(decompilerBinary, "bin2nlp-decompile")
}

// GetDecompilerTimeoutSecond returns the subprocess timeout for one run.
func GetDecompilerTimeoutSecond() int {
	return getInt(decompilerTimeoutSecond, 180)
}

// GetProviders returns the configured LLM providers.
func GetProviders() []Provider {
	var providers []Provider
	if err := viper.UnmarshalKey(providerList, &providers); err != nil {
		return []Provider{}
	}
	return providers
}

// GetDefaultProvider returns the provider used when a job does not pick one.
func GetDefaultProvider() string {
	return getString(providerDefault, "")
}

// GetProviderAPIKey reads a provider API key from its mounted secret path.
func GetProviderAPIKey(p Provider) string {
	if p.SecretPath == "" {
		return ""
	}
	data, err := os.ReadFile(filepath.Join(p.SecretPath, "api_key"))
	if err != nil {
		return ""
	}
	return strings.TrimRight(string(data), "\r\n")
}

// GetCallbackTimeoutSecond returns the completion callback request timeout.
func GetCallbackTimeoutSecond() int {
	return getInt(callbackTimeoutSecond, 10)
}

// IsS3Enable returns whether S3 result mirroring is enabled.
func IsS3Enable() bool {
	return getBool(s3Enable, false)
}

// GetS3AccessKey returns the S3 access key.
func GetS3AccessKey() string {
	return getFromFile(s3SecretPath, "access_key")
}

// GetS3SecretKey returns the S3 secret key.
func GetS3SecretKey() string {
	return getFromFile(s3SecretPath, "secret_key")
}

// GetS3Bucket returns the S3 bucket name.
func GetS3Bucket() string {
	return getFromFile(s3SecretPath, "bucket")
}

// GetS3Endpoint returns the S3 endpoint URL.
func GetS3Endpoint() string {
	return getFromFile(s3SecretPath, "endpoint")
}

// GetS3ExpireDay returns the number of days after which S3 objects expire.
func GetS3ExpireDay() int32 {
	resp := getInt(s3ExpireDay, 0)
	return int32(resp)
}

// IsUserTokenRequired returns whether a session token is required for API access.
func IsUserTokenRequired() bool {
	return getBool(userTokenRequired, true)
}

// GetUserTokenExpire returns the session token expiration time in seconds.
func GetUserTokenExpire() int {
	return getInt(userTokenExpireSecond, -1)
}

// IsTracingEnable returns whether OpenTelemetry tracing is enabled.
func IsTracingEnable() bool {
	return getBool(tracingEnable, false)
}

// GetTracingMode returns the tracing mode: "all" or "error_only".
func GetTracingMode() string {
	return getString(tracingMode, "error_only")
}

// GetTracingSamplingRatio returns the sampling ratio for trace export (0.0 to 1.0).
func GetTracingSamplingRatio() float64 {
	return getFloat(tracingSamplingRatio, 1.0)
}

// GetTracingOtlpEndpoint returns the OTLP exporter endpoint URL.
func GetTracingOtlpEndpoint() string {
	return getString(tracingOtlpEndpoint, "")
}
