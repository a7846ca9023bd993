/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package config

const (
	// server
	serverPrefix      = "server."
	serverPort        = serverPrefix + "port"
	serverMaxFileSize = serverPrefix + "max_file_size"

	// health_check
	healthCheckPrefix = "health_check."
	healthCheckEnable = healthCheckPrefix + "enable"
	healthCheckPort   = healthCheckPrefix + "port"

	// crypto
	cryptoPrefix     = "crypto."
	cryptoEnable     = cryptoPrefix + "enable"
	cryptoSecretPath = cryptoPrefix + "secret_path"

	// db
	dbPrefix               = "db."
	dbEnable               = dbPrefix + "enable"
	dbSecretPath           = dbPrefix + "secret_path"
	dbSslMode              = dbPrefix + "ssl_mode"
	dbMaxOpenConns         = dbPrefix + "max_open_conns"
	dbMaxIdleConns         = dbPrefix + "max_idle_conns"
	dbMaxLifetime          = dbPrefix + "max_life_time_second"
	dbMaxIdleTimeSecond    = dbPrefix + "max_idle_time_second"
	dbConnectTimeoutSecond = dbPrefix + "connect_timeout_second"
	dbRequestTimeoutSecond = dbPrefix + "request_timeout_second"

	// blob
	blobPrefix              = "blob."
	blobBasePath            = blobPrefix + "base_path"
	blobTTLHour             = blobPrefix + "ttl_hour"
	blobSweepIntervalSecond = blobPrefix + "sweep_interval_second"
	blobMaxKeyLength        = blobPrefix + "max_key_length"

	// ratelimit
	rateLimitPrefix  = "ratelimit."
	rateLimitEnable  = rateLimitPrefix + "enable"
	rateLimitTiers   = rateLimitPrefix + "tiers"
	rateLimitCleanup = rateLimitPrefix + "cleanup_interval_second"

	// cache
	cachePrefix        = "cache."
	cacheEnable        = cachePrefix + "enable"
	cacheBaseTTLHour   = cachePrefix + "base_ttl_hour"
	cacheMaxKeyLength  = cachePrefix + "max_key_length"
	cacheSchemaVersion = cachePrefix + "schema_version"

	// queue
	queuePrefix             = "queue."
	queueMaxRetries         = queuePrefix + "max_retries"
	queueBackoffCapSecond   = queuePrefix + "backoff_cap_second"
	queuePollIntervalSecond = queuePrefix + "poll_interval_second"

	// worker
	workerPrefix             = "worker."
	workerCount              = workerPrefix + "count"
	workerStaleTimeoutSecond = workerPrefix + "stale_timeout_second"
	workerReapIntervalSecond = workerPrefix + "reap_interval_second"

	// pipeline
	pipelinePrefix               = "pipeline."
	pipelineDefaultTimeoutSecond = pipelinePrefix + "default_timeout_second"
	pipelineMaxTimeoutSecond     = pipelinePrefix + "max_timeout_second"
	pipelineGracePeriodSecond    = pipelinePrefix + "grace_period_second"

	// decompiler
	decompilerPrefix        = "decompiler."
	decompilerBinary        = decompilerPrefix + "binary"
	decompilerTimeoutSecond = decompilerPrefix + "timeout_second"

	// providers
	providerPrefix  = "providers."
	providerList    = providerPrefix + "list"
	providerDefault = providerPrefix + "default"

	// callback
	callbackPrefix        = "callback."
	callbackTimeoutSecond = callbackPrefix + "timeout_second"

	// s3
	s3Prefix     = "s3."
	s3Enable     = s3Prefix + "enable"
	s3SecretPath = s3Prefix + "secret_path"
	s3ExpireDay  = s3Prefix + "expire_day"

	// user
	userPrefix            = "user."
	userTokenRequired     = userPrefix + "token_required"
	userTokenExpireSecond = userPrefix + "token_expire"

	// tracing
	tracingPrefix        = "tracing."
	tracingEnable        = tracingPrefix + "enable"
	tracingMode          = tracingPrefix + "mode"
	tracingSamplingRatio = tracingPrefix + "sampling_ratio"
	tracingOtlpEndpoint  = tracingPrefix + "otlp_endpoint"
)
