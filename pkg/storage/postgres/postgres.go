package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/platinummonkey/datarequests/pkg/models"
	"github.com/platinummonkey/datarequests/pkg/storage"
)

// pq error code for foreign_key_violation
const foreignKeyViolation = "23503"

// Store implements storage.Store on PostgreSQL. Ownership lookups may be
// served by a replica; data requests are always read from the primary so a
// save is visible to the execution that follows it.
type Store struct {
	conns *ConnectionManager
}

var _ storage.Store = (*Store)(nil)

// NewStore creates a store over an open connection manager
func NewStore(conns *ConnectionManager) *Store {
	return &Store{conns: conns}
}

// NewStoreWithDB creates a store over a single pool, used in tests
func NewStoreWithDB(db *sql.DB) *Store {
	return &Store{conns: NewConnectionManagerFromDB(db)}
}

// DB returns the primary pool
func (s *Store) DB() *sql.DB {
	return s.conns.Primary()
}

func notFound(kind string, id int64) error {
	return fmt.Errorf("%s %d: %w", kind, id, storage.ErrNotFound)
}

// GetTeamMember returns the membership of userID in teamID. It reads the
// primary so a revoked membership stops authorizing at once.
func (s *Store) GetTeamMember(ctx context.Context, teamID, userID int64) (*models.TeamMember, error) {
	query := `
		SELECT team_id, user_id, role, projects
		FROM team_members
		WHERE team_id = $1 AND user_id = $2
	`

	var m models.TeamMember
	err := s.conns.Primary().QueryRowContext(ctx, query, teamID, userID).Scan(
		&m.TeamID,
		&m.UserID,
		&m.Role,
		pq.Array(&m.Projects),
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("member %d of team %d: %w", userID, teamID, storage.ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get team member: %w", err)
	}

	return &m, nil
}

// GetProject returns a project by id
func (s *Store) GetProject(ctx context.Context, id int64) (*models.Project, error) {
	query := `SELECT id, team_id, name, created_at FROM projects WHERE id = $1`

	var p models.Project
	err := s.conns.Replica().QueryRowContext(ctx, query, id).Scan(&p.ID, &p.TeamID, &p.Name, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, notFound("project", id)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &p, nil
}

// GetChart returns a chart by id
func (s *Store) GetChart(ctx context.Context, id int64) (*models.Chart, error) {
	query := `SELECT id, project_id, name, created_at FROM charts WHERE id = $1`

	var c models.Chart
	err := s.conns.Replica().QueryRowContext(ctx, query, id).Scan(&c.ID, &c.ProjectID, &c.Name, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, notFound("chart", id)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get chart: %w", err)
	}
	return &c, nil
}

// GetDataset returns a dataset by id
func (s *Store) GetDataset(ctx context.Context, id int64) (*models.Dataset, error) {
	query := `SELECT id, chart_id, connection_id, legend, created_at FROM datasets WHERE id = $1`

	var (
		d            models.Dataset
		connectionID sql.NullInt64
	)
	err := s.conns.Replica().QueryRowContext(ctx, query, id).Scan(&d.ID, &d.ChartID, &connectionID, &d.Legend, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, notFound("dataset", id)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get dataset: %w", err)
	}
	if connectionID.Valid {
		d.ConnectionID = &connectionID.Int64
	}
	return &d, nil
}

const dataRequestColumns = `id, dataset_id, route, method, configuration, items_limit, response_data, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDataRequest(row rowScanner) (*models.DataRequest, error) {
	var (
		dr           models.DataRequest
		config       []byte
		responseData []byte
	)
	if err := row.Scan(
		&dr.ID,
		&dr.DatasetID,
		&dr.Route,
		&dr.Method,
		&config,
		&dr.ItemsLimit,
		&responseData,
		&dr.CreatedAt,
		&dr.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if len(config) > 0 {
		if err := json.Unmarshal(config, &dr.Configuration); err != nil {
			return nil, fmt.Errorf("failed to decode configuration: %w", err)
		}
	}
	if len(responseData) > 0 {
		var rd models.ResponseData
		if err := json.Unmarshal(responseData, &rd); err != nil {
			return nil, fmt.Errorf("failed to decode response data: %w", err)
		}
		dr.ResponseData = &rd
	}
	return &dr, nil
}

// jsonParam encodes v for a JSONB parameter. lib/pq sends []byte as bytea,
// so the document goes over the wire as a string.
func jsonParam(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// CreateDataRequest inserts dr and fills in its id and timestamps
func (s *Store) CreateDataRequest(ctx context.Context, dr *models.DataRequest) error {
	config := dr.Configuration
	if config == nil {
		config = map[string]any{}
	}
	configParam, err := jsonParam(config)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}

	var responseParam any
	if dr.ResponseData != nil {
		if responseParam, err = jsonParam(dr.ResponseData); err != nil {
			return fmt.Errorf("failed to encode response data: %w", err)
		}
	}

	query := `
		INSERT INTO data_requests (dataset_id, route, method, configuration, items_limit, response_data)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6::jsonb)
		RETURNING id, created_at, updated_at
	`

	err = s.conns.Primary().QueryRowContext(ctx, query,
		dr.DatasetID,
		dr.Route,
		dr.Method,
		configParam,
		dr.ItemsLimit,
		responseParam,
	).Scan(&dr.ID, &dr.CreatedAt, &dr.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
			return notFound("dataset", dr.DatasetID)
		}
		return fmt.Errorf("failed to create data request: %w", err)
	}

	return nil
}

// GetDataRequest returns a data request by id
func (s *Store) GetDataRequest(ctx context.Context, id int64) (*models.DataRequest, error) {
	query := `SELECT ` + dataRequestColumns + ` FROM data_requests WHERE id = $1`

	dr, err := scanDataRequest(s.conns.Primary().QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, notFound("data request", id)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get data request: %w", err)
	}
	return dr, nil
}

// ListDataRequestsByDataset returns the data requests of a dataset ordered by id
func (s *Store) ListDataRequestsByDataset(ctx context.Context, datasetID int64) ([]*models.DataRequest, error) {
	query := `SELECT ` + dataRequestColumns + ` FROM data_requests WHERE dataset_id = $1 ORDER BY id`

	rows, err := s.conns.Primary().QueryContext(ctx, query, datasetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list data requests: %w", err)
	}
	defer rows.Close()

	var out []*models.DataRequest
	for rows.Next() {
		dr, err := scanDataRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan data request: %w", err)
		}
		out = append(out, dr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list data requests: %w", err)
	}
	return out, nil
}

// UpdateDataRequest applies a configuration save. Nil fields keep their stored value.
func (s *Store) UpdateDataRequest(ctx context.Context, id int64, update *models.UpdateDataRequest) (*models.DataRequest, error) {
	var configParam any
	if update.Configuration != nil {
		var err error
		if configParam, err = jsonParam(update.Configuration); err != nil {
			return nil, fmt.Errorf("failed to encode configuration: %w", err)
		}
	}

	query := `
		UPDATE data_requests SET
			route = COALESCE($2, route),
			method = COALESCE($3, method),
			configuration = COALESCE($4::jsonb, configuration),
			items_limit = COALESCE($5, items_limit),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + dataRequestColumns

	dr, err := scanDataRequest(s.conns.Primary().QueryRowContext(ctx, query,
		id,
		update.Route,
		update.Method,
		configParam,
		update.ItemsLimit,
	))
	if err == sql.ErrNoRows {
		return nil, notFound("data request", id)
	} else if err != nil {
		return nil, fmt.Errorf("failed to update data request: %w", err)
	}
	return dr, nil
}

// UpdateResponseData replaces the persisted execution result
func (s *Store) UpdateResponseData(ctx context.Context, id int64, data *models.ResponseData) error {
	var param any
	if data != nil {
		var err error
		if param, err = jsonParam(data); err != nil {
			return fmt.Errorf("failed to encode response data: %w", err)
		}
	}

	result, err := s.conns.Primary().ExecContext(ctx,
		`UPDATE data_requests SET response_data = $2::jsonb, updated_at = NOW() WHERE id = $1`,
		id, param,
	)
	if err != nil {
		return fmt.Errorf("failed to update response data: %w", err)
	}
	return expectOneRow(result, "data request", id)
}

// DeleteDataRequest removes a data request
func (s *Store) DeleteDataRequest(ctx context.Context, id int64) error {
	result, err := s.conns.Primary().ExecContext(ctx, `DELETE FROM data_requests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete data request: %w", err)
	}
	return expectOneRow(result, "data request", id)
}

// DeleteDataset removes a dataset; its data requests go with it through ON DELETE CASCADE
func (s *Store) DeleteDataset(ctx context.Context, id int64) error {
	result, err := s.conns.Primary().ExecContext(ctx, `DELETE FROM datasets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete dataset: %w", err)
	}
	return expectOneRow(result, "dataset", id)
}

func expectOneRow(result sql.Result, kind string, id int64) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return notFound(kind, id)
	}
	return nil
}

// HealthCheck pings the primary and replicas
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.conns.HealthCheck(ctx)
}
