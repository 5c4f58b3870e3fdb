// Package memory provides an in-process implementation of storage.Store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/platinummonkey/datarequests/pkg/models"
	"github.com/platinummonkey/datarequests/pkg/storage"
)

type memberKey struct {
	teamID int64
	userID int64
}

// Store keeps every record in maps guarded by a single RWMutex.
// Records are copied on the way in and on the way out.
type Store struct {
	mu           sync.RWMutex
	nextID       int64
	teams        map[int64]*models.Team
	members      map[memberKey]*models.TeamMember
	projects     map[int64]*models.Project
	charts       map[int64]*models.Chart
	datasets     map[int64]*models.Dataset
	dataRequests map[int64]*models.DataRequest
	now          func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		teams:        make(map[int64]*models.Team),
		members:      make(map[memberKey]*models.TeamMember),
		projects:     make(map[int64]*models.Project),
		charts:       make(map[int64]*models.Chart),
		datasets:     make(map[int64]*models.Dataset),
		dataRequests: make(map[int64]*models.DataRequest),
		now:          time.Now,
	}
}

var _ storage.Store = (*Store)(nil)

func (s *Store) id(requested int64) int64 {
	if requested > 0 {
		if requested > s.nextID {
			s.nextID = requested
		}
		return requested
	}
	s.nextID++
	return s.nextID
}

func notFound(kind string, id int64) error {
	return fmt.Errorf("%s %d: %w", kind, id, storage.ErrNotFound)
}

// CreateTeam stores a team, assigning an id when none is set
func (s *Store) CreateTeam(team *models.Team) *models.Team {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := *team
	t.ID = s.id(t.ID)
	t.CreatedAt = s.now()
	s.teams[t.ID] = &t
	out := t
	return &out
}

// AddTeamMember stores or replaces a membership
func (s *Store) AddTeamMember(member *models.TeamMember) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := *member
	m.Projects = append([]int64(nil), member.Projects...)
	s.members[memberKey{m.TeamID, m.UserID}] = &m
}

// CreateProject stores a project
func (s *Store) CreateProject(project *models.Project) *models.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := *project
	p.ID = s.id(p.ID)
	p.CreatedAt = s.now()
	s.projects[p.ID] = &p
	out := p
	return &out
}

// CreateChart stores a chart
func (s *Store) CreateChart(chart *models.Chart) *models.Chart {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *chart
	c.ID = s.id(c.ID)
	c.CreatedAt = s.now()
	s.charts[c.ID] = &c
	out := c
	return &out
}

// CreateDataset stores a dataset
func (s *Store) CreateDataset(dataset *models.Dataset) *models.Dataset {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := *dataset
	d.ID = s.id(d.ID)
	d.CreatedAt = s.now()
	s.datasets[d.ID] = &d
	out := d
	return &out
}

// GetTeamMember returns the membership of userID in teamID
func (s *Store) GetTeamMember(ctx context.Context, teamID, userID int64) (*models.TeamMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[memberKey{teamID, userID}]
	if !ok {
		return nil, fmt.Errorf("member %d of team %d: %w", userID, teamID, storage.ErrNotFound)
	}
	out := *m
	out.Projects = append([]int64(nil), m.Projects...)
	return &out, nil
}

// GetProject returns a project by id
func (s *Store) GetProject(ctx context.Context, id int64) (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, notFound("project", id)
	}
	out := *p
	return &out, nil
}

// GetChart returns a chart by id
func (s *Store) GetChart(ctx context.Context, id int64) (*models.Chart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.charts[id]
	if !ok {
		return nil, notFound("chart", id)
	}
	out := *c
	return &out, nil
}

// GetDataset returns a dataset by id
func (s *Store) GetDataset(ctx context.Context, id int64) (*models.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.datasets[id]
	if !ok {
		return nil, notFound("dataset", id)
	}
	out := *d
	return &out, nil
}

// CreateDataRequest stores a new data request and fills in its id and timestamps
func (s *Store) CreateDataRequest(ctx context.Context, dr *models.DataRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.datasets[dr.DatasetID]; !ok {
		return notFound("dataset", dr.DatasetID)
	}
	now := s.now()
	dr.ID = s.id(0)
	dr.CreatedAt = now
	dr.UpdatedAt = now
	s.dataRequests[dr.ID] = dr.Clone()
	return nil
}

// GetDataRequest returns a data request by id
func (s *Store) GetDataRequest(ctx context.Context, id int64) (*models.DataRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dr, ok := s.dataRequests[id]
	if !ok {
		return nil, notFound("data request", id)
	}
	return dr.Clone(), nil
}

// ListDataRequestsByDataset returns the data requests of a dataset ordered by id
func (s *Store) ListDataRequestsByDataset(ctx context.Context, datasetID int64) ([]*models.DataRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.DataRequest
	for _, dr := range s.dataRequests {
		if dr.DatasetID == datasetID {
			out = append(out, dr.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateDataRequest applies a configuration save
func (s *Store) UpdateDataRequest(ctx context.Context, id int64, update *models.UpdateDataRequest) (*models.DataRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dr, ok := s.dataRequests[id]
	if !ok {
		return nil, notFound("data request", id)
	}
	update.Apply(dr)
	dr.UpdatedAt = s.now()
	return dr.Clone(), nil
}

// UpdateResponseData replaces the persisted execution result
func (s *Store) UpdateResponseData(ctx context.Context, id int64, data *models.ResponseData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dr, ok := s.dataRequests[id]
	if !ok {
		return notFound("data request", id)
	}
	if data == nil {
		dr.ResponseData = nil
	} else {
		rd := *data
		dr.ResponseData = &rd
	}
	dr.UpdatedAt = s.now()
	return nil
}

// DeleteDataRequest removes a data request
func (s *Store) DeleteDataRequest(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dataRequests[id]; !ok {
		return notFound("data request", id)
	}
	delete(s.dataRequests, id)
	return nil
}

// DeleteDataset removes a dataset and every data request it owns
func (s *Store) DeleteDataset(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.datasets[id]; !ok {
		return notFound("dataset", id)
	}
	for drID, dr := range s.dataRequests {
		if dr.DatasetID == id {
			delete(s.dataRequests, drID)
		}
	}
	delete(s.datasets, id)
	return nil
}

// HealthCheck always succeeds
func (s *Store) HealthCheck(ctx context.Context) error {
	return nil
}
