// Package config loads the service configuration from environment variables.
//
// Every variable has a default except the ones a deployment must choose:
//
//	DATAREQ_AUTH_SECRET="..."              # required, at least 16 bytes
//	DATAREQ_UPSTREAM_URL="https://api.customer.io/v1"
//	DATAREQ_UPSTREAM_API_KEY="..."
//
// Server:
//
//	DATAREQ_HOST="0.0.0.0"
//	DATAREQ_PORT="8080"
//	DATAREQ_HEALTH_PORT="9090"
//
// Storage and cache:
//
//	DATAREQ_STORAGE_TYPE="postgres"      # memory or postgres
//	DATAREQ_POSTGRES_URL="postgres://localhost/datarequests?sslmode=disable"
//	DATAREQ_POSTGRES_MIGRATE="true"
//	DATAREQ_CACHE_ENABLED="true"
//	DATAREQ_REDIS_URL="redis://localhost:6379"
//
// Policy, rate limits and observability:
//
//	DATAREQ_POLICY_FILE="/etc/datarequests/policy.yaml"
//	DATAREQ_RATE_LIMIT_PER_MINUTE="600"
//	DATAREQ_LOG_LEVEL="info"
//	DATAREQ_OTEL_ENABLED="false"
//
// LoadConfig validates the result and fails fast on inconsistent settings.
package config
