// Package access walks the ownership chain named by a request path and
// confirms every hop belongs to the one above it before resolving the
// caller's team role.
package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/platinummonkey/datarequests/pkg/models"
	"github.com/platinummonkey/datarequests/pkg/storage"
	"github.com/platinummonkey/datarequests/pkg/teams"
)

// ErrUnauthorized is returned when the path does not describe a consistent
// ownership chain, or the caller has no role in the owning team.
var ErrUnauthorized = errors.New("not authorized")

// Target is the chain named by a request. Zero optional ids skip their checks.
type Target struct {
	UserID        int64
	TeamID        int64 // optional
	ProjectID     int64
	ChartID       int64
	DatasetID     int64 // optional
	DataRequestID int64 // optional
}

// Store is what the validator reads
type Store interface {
	storage.OwnershipReader
	storage.DataRequestReader
}

// RoleResolver resolves the caller's role in the owning team
type RoleResolver interface {
	ResolveRole(ctx context.Context, teamID, userID int64) (*teams.TeamRole, error)
}

// chain accumulates what each step loads for the steps after it
type chain struct {
	target  Target
	project *models.Project
	chart   *models.Chart
	role    *teams.TeamRole
}

type step func(ctx context.Context, v *Validator, c *chain) error

// steps run in order and stop at the first failure
var steps = []step{
	loadProject,
	checkTeam,
	loadChart,
	checkDataset,
	checkDataRequest,
	resolveRole,
}

// Validator runs the access chain
type Validator struct {
	store    Store
	resolver RoleResolver
}

// NewValidator creates a validator
func NewValidator(store Store, resolver RoleResolver) *Validator {
	return &Validator{store: store, resolver: resolver}
}

// CheckAccess validates the chain and returns the caller's team role.
// Mismatches and missing membership return ErrUnauthorized; missing records
// return an error matching storage.ErrNotFound.
func (v *Validator) CheckAccess(ctx context.Context, target Target) (*teams.TeamRole, error) {
	c := &chain{target: target}
	for _, s := range steps {
		if err := s(ctx, v, c); err != nil {
			return nil, err
		}
	}
	return c.role, nil
}

func mismatch(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrUnauthorized)
}

func loadProject(ctx context.Context, v *Validator, c *chain) error {
	project, err := v.store.GetProject(ctx, c.target.ProjectID)
	if err != nil {
		return err
	}
	c.project = project
	return nil
}

func checkTeam(ctx context.Context, v *Validator, c *chain) error {
	if c.target.TeamID != 0 && c.project.TeamID != c.target.TeamID {
		return mismatch("project %d is not owned by team %d", c.project.ID, c.target.TeamID)
	}
	return nil
}

func loadChart(ctx context.Context, v *Validator, c *chain) error {
	chart, err := v.store.GetChart(ctx, c.target.ChartID)
	if err != nil {
		return err
	}
	if chart.ProjectID != c.project.ID {
		return mismatch("chart %d does not belong to project %d", chart.ID, c.project.ID)
	}
	c.chart = chart
	return nil
}

func checkDataset(ctx context.Context, v *Validator, c *chain) error {
	if c.target.DatasetID == 0 {
		return nil
	}
	dataset, err := v.store.GetDataset(ctx, c.target.DatasetID)
	if err != nil {
		return err
	}
	if dataset.ChartID != c.chart.ID {
		return mismatch("dataset %d does not belong to chart %d", dataset.ID, c.chart.ID)
	}
	return nil
}

func checkDataRequest(ctx context.Context, v *Validator, c *chain) error {
	if c.target.DataRequestID == 0 {
		return nil
	}
	dr, err := v.store.GetDataRequest(ctx, c.target.DataRequestID)
	if err != nil {
		return err
	}
	if c.target.DatasetID != 0 && dr.DatasetID != c.target.DatasetID {
		return mismatch("data request %d does not belong to dataset %d", dr.ID, c.target.DatasetID)
	}
	dataset, err := v.store.GetDataset(ctx, dr.DatasetID)
	if err != nil {
		return err
	}
	if dataset.ChartID != c.chart.ID {
		return mismatch("data request %d does not belong to chart %d", dr.ID, c.chart.ID)
	}
	return nil
}

func resolveRole(ctx context.Context, v *Validator, c *chain) error {
	role, err := v.resolver.ResolveRole(ctx, c.project.TeamID, c.target.UserID)
	if errors.Is(err, teams.ErrNoMembership) {
		return fmt.Errorf("%v: %w", err, ErrUnauthorized)
	} else if err != nil {
		return err
	}
	c.role = role
	return nil
}
