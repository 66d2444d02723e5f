// Package config handles configuration loading for showcase-backend.
//
// # Overview
//
// Configuration starts from Default(), is overlaid with an optional YAML
// file, and is then overridden by a fixed set of environment variables.
//
// # Configuration File
//
// Locations (in order):
//
//  1. Path from SHOWCASE_CONFIG environment variable
//  2. ./showcase.yaml (current directory)
//  3. none, defaults only
//
// A .env file in the working directory is loaded first, so its variables are
// visible both to ${VAR} expansion and to the overrides below.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	gateway:
//	  signature: "${CESS_SIGNATURE}"
//
// # Environment Overrides
//
//	CESS_GATEWAY_URL          gateway.base_url
//	CESS_ACCOUNT              gateway.account
//	CESS_MESSAGE              gateway.message
//	CESS_SIGNATURE            gateway.signature
//	CESS_TERRITORY            gateway.territory
//	HOST, PORT                server.host, server.port
//	DEBUG                     debug
//	SHOWCASE_DATA_DIR         storage.data_dir
//	SHOWCASE_STORAGE_BACKEND  storage.backend
//
// # Configuration Sections
//
//	server:
//	  host: "0.0.0.0"
//	  port: 8000
//	  max_upload_bytes: 33554432
//	  read_header_timeout: "10s"
//	  shutdown_timeout: "5s"
//
//	gateway:
//	  base_url: "https://deoss-sgp.cess.network"
//	  account: "${CESS_ACCOUNT}"
//	  message: "${CESS_MESSAGE}"
//	  signature: "${CESS_SIGNATURE}"
//	  territory: "${CESS_TERRITORY}"
//	  timeout: "30s"
//
//	storage:
//	  backend: "sqlite"        # sqlite, json
//	  data_dir: "data"
//	  path: ""                 # defaults to <data_dir>/showcase.db
//	  import_legacy: true
//
//	cors:
//	  allowed_origins: ["http://localhost:5173", "http://localhost:3000"]
//
//	rate_limit:
//	  enabled: true
//	  requests_per_second: 5
//	  burst: 10
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//
//	cache:
//	  metadata_ttl: "10m"
//	  metadata_max_entries: 1024
//
// Duration values use Go's time.ParseDuration syntax and must be positive.
package config
