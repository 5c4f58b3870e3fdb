//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/platinummonkey/datarequests/pkg/models"
	"github.com/platinummonkey/datarequests/pkg/storage"
)

func setupPostgresContainer(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("Docker/Podman not available, skipping integration tests")
	}
	defer provider.Close()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("datarequests_test"),
		tcpostgres.WithUsername("datarequests"),
		tcpostgres.WithPassword("datarequests_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.PingContext(ctx))

	require.NoError(t, RunMigrations(ctx, db, nil))
	return db
}

func TestIntegration_DataRequestLifecycle(t *testing.T) {
	db := setupPostgresContainer(t)
	ctx := context.Background()
	store := NewStoreWithDB(db)

	var teamID, projectID, chartID, datasetID int64
	require.NoError(t, db.QueryRowContext(ctx, `INSERT INTO teams (name) VALUES ('acme') RETURNING id`).Scan(&teamID))
	require.NoError(t, db.QueryRowContext(ctx, `INSERT INTO projects (team_id, name) VALUES ($1, 'growth') RETURNING id`, teamID).Scan(&projectID))
	require.NoError(t, db.QueryRowContext(ctx, `INSERT INTO charts (project_id, name) VALUES ($1, 'signups') RETURNING id`, projectID).Scan(&chartID))
	require.NoError(t, db.QueryRowContext(ctx, `INSERT INTO datasets (chart_id) VALUES ($1) RETURNING id`, chartID).Scan(&datasetID))
	_, err := db.ExecContext(ctx, `INSERT INTO team_members (team_id, user_id, role, projects) VALUES ($1, 7, 'projectViewer', $2)`,
		teamID, pq.Array([]int64{projectID}))
	require.NoError(t, err)

	member, err := store.GetTeamMember(ctx, teamID, 7)
	require.NoError(t, err)
	assert.Equal(t, []int64{projectID}, member.Projects)

	dr := &models.DataRequest{
		DatasetID:     datasetID,
		Route:         "customers",
		Method:        "POST",
		Configuration: map[string]any{"cioFilters": map[string]any{"and": []any{}}},
	}
	require.NoError(t, store.CreateDataRequest(ctx, dr))
	assert.NotZero(t, dr.ID)

	require.NoError(t, store.UpdateResponseData(ctx, dr.ID, &models.ResponseData{Data: []any{1.0, 2.0}}))

	got, err := store.GetDataRequest(ctx, dr.ID)
	require.NoError(t, err)
	require.True(t, got.HasResponse())
	assert.Equal(t, []any{1.0, 2.0}, got.ResponseData.Data)

	limit := 5
	updated, err := store.UpdateDataRequest(ctx, dr.ID, &models.UpdateDataRequest{ItemsLimit: &limit})
	require.NoError(t, err)
	assert.Equal(t, 5, updated.ItemsLimit)
	assert.Equal(t, "customers", updated.Route)

	require.NoError(t, store.DeleteDataset(ctx, datasetID))
	_, err = store.GetDataRequest(ctx, dr.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = store.CreateDataRequest(ctx, &models.DataRequest{DatasetID: datasetID})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
