package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
)

const readinessTimeout = 5 * time.Second

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthStatus is the readiness document served on /readyz
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus is the outcome of one probe
type DependencyStatus struct {
	Status    string        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"latency_ms,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// probe checks one dependency. A failed critical probe makes the service
// unready; any other failure only degrades it.
type probe struct {
	name     string
	critical bool
	check    func(context.Context) DependencyStatus
}

// HealthChecker reports liveness and the readiness of the data request store
// and the ownership cache
type HealthChecker struct {
	version string
	probes  []probe
}

// NewHealthChecker probes db (critical) and redis (degrading). Either may be nil.
func NewHealthChecker(db *sql.DB, redis *redis.Client, version string) *HealthChecker {
	h := &HealthChecker{version: version}
	if db != nil {
		h.probes = append(h.probes, probe{name: "database", critical: true, check: databaseCheck(db)})
	}
	if redis != nil {
		h.probes = append(h.probes, probe{name: "redis", check: redisCheck(redis)})
	}
	return h
}

// Liveness always answers 200 while the process is serving
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	writeHealthJSON(w, http.StatusOK, HealthStatus{Status: StatusHealthy, Timestamp: time.Now()})
}

// Readiness answers 503 when the store is unreachable
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	status := h.Check(ctx)

	code := http.StatusOK
	if status.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeHealthJSON(w, code, status)
}

// Check runs every probe and folds the results into one status
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now(),
		Version:      h.version,
		Dependencies: make(map[string]DependencyStatus, len(h.probes)),
	}

	for _, p := range h.probes {
		dep := p.check(ctx)
		status.Dependencies[p.name] = dep
		status.Status = worse(status.Status, fold(dep.Status, p.critical))
	}
	return status
}

// fold maps a probe result onto the overall status it can cause
func fold(s string, critical bool) string {
	if s == StatusUnhealthy && !critical {
		return StatusDegraded
	}
	return s
}

func worse(a, b string) string {
	rank := map[string]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

func timed(ctx context.Context, fn func(context.Context) (string, string)) DependencyStatus {
	start := time.Now()
	s, msg := fn(ctx)
	return DependencyStatus{Status: s, Message: msg, Latency: time.Since(start), Timestamp: start}
}

func databaseCheck(db *sql.DB) func(context.Context) DependencyStatus {
	return func(ctx context.Context) DependencyStatus {
		return timed(ctx, func(ctx context.Context) (string, string) {
			if err := db.PingContext(ctx); err != nil {
				return StatusUnhealthy, err.Error()
			}
			var one int
			if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
				return StatusUnhealthy, "query failed: " + err.Error()
			}
			stats := db.Stats()
			if stats.MaxOpenConnections > 0 && stats.OpenConnections >= stats.MaxOpenConnections {
				return StatusDegraded, "connection pool exhausted"
			}
			return StatusHealthy, ""
		})
	}
}

func redisCheck(client *redis.Client) func(context.Context) DependencyStatus {
	return func(ctx context.Context) DependencyStatus {
		return timed(ctx, func(ctx context.Context) (string, string) {
			if err := client.Ping(ctx).Err(); err != nil {
				return StatusUnhealthy, err.Error()
			}
			return StatusHealthy, ""
		})
	}
}

func writeHealthJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// RegisterHealthRoutes mounts /healthz and /readyz on mux
func RegisterHealthRoutes(mux *http.ServeMux, checker *HealthChecker) {
	mux.HandleFunc("/healthz", checker.Liveness)
	mux.HandleFunc("/readyz", checker.Readiness)
}
