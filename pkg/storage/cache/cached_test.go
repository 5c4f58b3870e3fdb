package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/datarequests/pkg/models"
	"github.com/platinummonkey/datarequests/pkg/observability"
	"github.com/platinummonkey/datarequests/pkg/storage"
	"github.com/platinummonkey/datarequests/pkg/storage/memory"
)

// countingStore records how often ownership lookups reach the backing store
type countingStore struct {
	*memory.Store
	projectLoads int
	datasetLoads int
}

func (c *countingStore) GetProject(ctx context.Context, id int64) (*models.Project, error) {
	c.projectLoads++
	return c.Store.GetProject(ctx, id)
}

func (c *countingStore) GetDataset(ctx context.Context, id int64) (*models.Dataset, error) {
	c.datasetLoads++
	return c.Store.GetDataset(ctx, id)
}

type fixture struct {
	backing *countingStore
	mr      *miniredis.Miniredis
	redis   *RedisClient
	project *models.Project
	chart   *models.Chart
	dataset *models.Dataset
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := memory.NewStore()
	team := mem.CreateTeam(&models.Team{Name: "acme"})
	project := mem.CreateProject(&models.Project{TeamID: team.ID, Name: "growth"})
	chart := mem.CreateChart(&models.Chart{ProjectID: project.ID, Name: "signups"})
	dataset := mem.CreateDataset(&models.Dataset{ChartID: chart.ID})

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return &fixture{
		backing: &countingStore{Store: mem},
		mr:      mr,
		redis:   NewRedisClientFromClient(client, storage.DefaultConfig().CacheTTL),
		project: project,
		chart:   chart,
		dataset: dataset,
	}
}

func TestStore_L1ServesRepeatLookups(t *testing.T) {
	f := newFixture(t)
	metrics := observability.NewNopMetrics()
	s := New(f.backing, Options{Metrics: metrics})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		p, err := s.GetProject(ctx, f.project.ID)
		require.NoError(t, err)
		assert.Equal(t, f.project.TeamID, p.TeamID)
	}

	assert.Equal(t, 1, f.backing.projectLoads)
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.CacheHitsTotal.WithLabelValues("l1", kindProject)))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CacheMissesTotal.WithLabelValues(kindProject)))
}

func TestStore_RedisSharedBetweenInstances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := New(f.backing, Options{Redis: f.redis})
	_, err := first.GetProject(ctx, f.project.ID)
	require.NoError(t, err)
	assert.True(t, f.mr.Exists(redisKey(kindProject, f.project.ID)))

	metrics := observability.NewNopMetrics()
	second := New(f.backing, Options{Redis: f.redis, Metrics: metrics})
	p, err := second.GetProject(ctx, f.project.ID)
	require.NoError(t, err)
	assert.Equal(t, f.project.Name, p.Name)

	assert.Equal(t, 1, f.backing.projectLoads)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CacheHitsTotal.WithLabelValues("redis", kindProject)))
}

func TestStore_RedisTTLApplied(t *testing.T) {
	f := newFixture(t)
	s := New(f.backing, Options{Redis: f.redis})

	_, err := s.GetChart(context.Background(), f.chart.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.DefaultConfig().CacheTTL[kindChart], f.mr.TTL(redisKey(kindChart, f.chart.ID)))
}

func TestStore_RedisOutageFallsThrough(t *testing.T) {
	f := newFixture(t)
	s := New(f.backing, Options{Redis: f.redis})
	f.mr.Close()

	p, err := s.GetProject(context.Background(), f.project.ID)
	require.NoError(t, err)
	assert.Equal(t, f.project.ID, p.ID)
}

func TestStore_CorruptRedisEntryIsDropped(t *testing.T) {
	f := newFixture(t)
	key := redisKey(kindProject, f.project.ID)
	require.NoError(t, f.mr.Set(key, "{not json"))

	s := New(f.backing, Options{Redis: f.redis})
	p, err := s.GetProject(context.Background(), f.project.ID)
	require.NoError(t, err)
	assert.Equal(t, f.project.ID, p.ID)
	assert.Equal(t, 1, f.backing.projectLoads)
}

func TestStore_NotFoundIsNotCached(t *testing.T) {
	f := newFixture(t)
	s := New(f.backing, Options{Redis: f.redis})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := s.GetProject(ctx, 999)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	}
	assert.Equal(t, 2, f.backing.projectLoads)
	assert.False(t, f.mr.Exists(redisKey(kindProject, 999)))
}

func TestStore_ReturnedRecordsAreCopies(t *testing.T) {
	f := newFixture(t)
	s := New(f.backing, Options{})
	ctx := context.Background()

	p, err := s.GetProject(ctx, f.project.ID)
	require.NoError(t, err)
	p.TeamID = 12345

	again, err := s.GetProject(ctx, f.project.ID)
	require.NoError(t, err)
	assert.Equal(t, f.project.TeamID, again.TeamID)
}

func TestStore_DeleteDatasetInvalidates(t *testing.T) {
	f := newFixture(t)
	s := New(f.backing, Options{Redis: f.redis})
	ctx := context.Background()

	_, err := s.GetDataset(ctx, f.dataset.ID)
	require.NoError(t, err)
	require.True(t, f.mr.Exists(redisKey(kindDataset, f.dataset.ID)))

	require.NoError(t, s.DeleteDataset(ctx, f.dataset.ID))
	assert.False(t, f.mr.Exists(redisKey(kindDataset, f.dataset.ID)))

	_, err = s.GetDataset(ctx, f.dataset.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_L1Expires(t *testing.T) {
	f := newFixture(t)
	s := New(f.backing, Options{L1TTL: 10 * time.Millisecond})
	ctx := context.Background()

	_, err := s.GetDataset(ctx, f.dataset.ID)
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)
	_, err = s.GetDataset(ctx, f.dataset.ID)
	require.NoError(t, err)

	assert.Equal(t, 2, f.backing.datasetLoads)
}

func TestStore_DataRequestsBypassCache(t *testing.T) {
	f := newFixture(t)
	s := New(f.backing, Options{Redis: f.redis})
	ctx := context.Background()

	dr := &models.DataRequest{DatasetID: f.dataset.ID, Route: "customers"}
	require.NoError(t, s.CreateDataRequest(ctx, dr))
	require.NoError(t, s.UpdateResponseData(ctx, dr.ID, &models.ResponseData{Data: []any{1}}))

	got, err := s.GetDataRequest(ctx, dr.ID)
	require.NoError(t, err)
	assert.True(t, got.HasResponse())
	assert.Empty(t, f.mr.Keys())
}

func TestNewRedisClient_InvalidURL(t *testing.T) {
	cfg := storage.DefaultConfig()
	cfg.RedisURL = "://nope"
	_, err := NewRedisClient(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNewRedisClient_Connects(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := storage.DefaultConfig()
	cfg.RedisURL = "redis://" + mr.Addr()

	client, err := NewRedisClient(context.Background(), cfg)
	require.NoError(t, err)
	defer client.Close()
	assert.NoError(t, client.Client().Ping(context.Background()).Err())
}
