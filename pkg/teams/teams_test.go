package teams

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/datarequests/pkg/models"
	"github.com/platinummonkey/datarequests/pkg/storage"
	"github.com/platinummonkey/datarequests/pkg/storage/memory"
)

type failingMembers struct{ err error }

func (f failingMembers) GetTeamMember(ctx context.Context, teamID, userID int64) (*models.TeamMember, error) {
	return nil, f.err
}

func TestResolveRole(t *testing.T) {
	store := memory.NewStore()
	store.AddTeamMember(&models.TeamMember{TeamID: 1, UserID: 7, Role: RoleProjectViewer, Projects: []int64{10}})
	store.AddTeamMember(&models.TeamMember{TeamID: 1, UserID: 8, Role: "auditor"})

	resolver := NewResolver(store)
	ctx := context.Background()

	role, err := resolver.ResolveRole(ctx, 1, 7)
	require.NoError(t, err)
	assert.Equal(t, &TeamRole{TeamID: 1, UserID: 7, Role: RoleProjectViewer, Projects: []int64{10}}, role)

	role, err = resolver.ResolveRole(ctx, 1, 8)
	require.NoError(t, err)
	assert.Equal(t, "auditor", role.Role)
}

func TestResolveRole_NoMembership(t *testing.T) {
	resolver := NewResolver(memory.NewStore())

	_, err := resolver.ResolveRole(context.Background(), 1, 7)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoMembership)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestResolveRole_StoreFailure(t *testing.T) {
	resolver := NewResolver(failingMembers{err: errors.New("db down")})

	_, err := resolver.ResolveRole(context.Background(), 1, 7)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoMembership)
}

func TestTeamRole_Helpers(t *testing.T) {
	owner := &TeamRole{Role: RoleTeamOwner}
	assert.True(t, owner.IsTeamLevel())
	assert.True(t, (&TeamRole{Role: RoleTeamAdmin}).IsTeamLevel())

	viewer := &TeamRole{Role: RoleProjectViewer, Projects: []int64{3, 4}}
	assert.False(t, viewer.IsTeamLevel())
	assert.True(t, viewer.CanAccessProject(4))
	assert.False(t, viewer.CanAccessProject(5))
	assert.False(t, (&TeamRole{}).CanAccessProject(1))
}
