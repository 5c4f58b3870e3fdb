package storage

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/datarequests/pkg/models"
)

// ErrNotFound is returned (possibly wrapped) when a referenced record does not exist
var ErrNotFound = errors.New("not found")

// OwnershipReader loads the records that make up the access chain
type OwnershipReader interface {
	GetProject(ctx context.Context, id int64) (*models.Project, error)
	GetChart(ctx context.Context, id int64) (*models.Chart, error)
	GetDataset(ctx context.Context, id int64) (*models.Dataset, error)
}

// MembershipReader loads a user's membership in a team
type MembershipReader interface {
	GetTeamMember(ctx context.Context, teamID, userID int64) (*models.TeamMember, error)
}

// DataRequestReader reads data requests
type DataRequestReader interface {
	GetDataRequest(ctx context.Context, id int64) (*models.DataRequest, error)
	ListDataRequestsByDataset(ctx context.Context, datasetID int64) ([]*models.DataRequest, error)
}

// DataRequestWriter mutates data requests. UpdateResponseData only touches the
// persisted execution result.
type DataRequestWriter interface {
	CreateDataRequest(ctx context.Context, dr *models.DataRequest) error
	UpdateDataRequest(ctx context.Context, id int64, update *models.UpdateDataRequest) (*models.DataRequest, error)
	UpdateResponseData(ctx context.Context, id int64, data *models.ResponseData) error
	DeleteDataRequest(ctx context.Context, id int64) error
}

// DatasetWriter removes datasets together with the data requests they own
type DatasetWriter interface {
	DeleteDataset(ctx context.Context, id int64) error
}

// HealthChecker reports backend health
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Store is the full entity store used by the service
type Store interface {
	OwnershipReader
	MembershipReader
	DataRequestReader
	DataRequestWriter
	DatasetWriter
	HealthChecker
}

// Config for the storage backend
type Config struct {
	Type string // "memory" or "postgres"

	// PostgreSQL config
	PostgresURL         string
	PostgresReplicaURLs string // comma separated
	PostgresMaxConns    int
	PostgresMinConns    int
	PostgresTimeout     time.Duration

	// Redis config
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int

	// Cache config
	CacheEnabled bool
	CacheTTL     map[string]time.Duration
	L1CacheSize  int // entries per record kind
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Type:             "memory",
		PostgresMaxConns: 20,
		PostgresMinConns: 2,
		PostgresTimeout:  10 * time.Second,
		RedisDB:          0,
		RedisMaxRetries:  3,
		RedisPoolSize:    10,
		CacheEnabled:     false,
		CacheTTL: map[string]time.Duration{
			"project": 10 * time.Minute,
			"chart":   10 * time.Minute,
			"dataset": 5 * time.Minute,
			"l1":      30 * time.Second,
		},
		L1CacheSize: 1024,
	}
}
