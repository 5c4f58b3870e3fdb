// Package teams resolves the role a user holds in the team that owns a project.
package teams

import (
	"context"
	"errors"
	"fmt"

	"github.com/platinummonkey/datarequests/pkg/storage"
)

// Role names stored on team memberships
const (
	RoleTeamOwner     = "teamOwner"
	RoleTeamAdmin     = "teamAdmin"
	RoleProjectAdmin  = "projectAdmin"
	RoleProjectViewer = "projectViewer"
)

// ErrNoMembership is returned when the user does not belong to the team.
// It also matches storage.ErrNotFound.
var ErrNoMembership = fmt.Errorf("no team membership: %w", storage.ErrNotFound)

// TeamRole is a user's role in one team, computed per request
type TeamRole struct {
	TeamID   int64   `json:"team_id"`
	UserID   int64   `json:"user_id"`
	Role     string  `json:"role"`
	Projects []int64 `json:"projects"`
}

// IsTeamLevel reports whether the role applies to every project of the team
func (r *TeamRole) IsTeamLevel() bool {
	return r.Role == RoleTeamOwner || r.Role == RoleTeamAdmin
}

// CanAccessProject reports whether projectID is in the role's accessible set
func (r *TeamRole) CanAccessProject(projectID int64) bool {
	for _, id := range r.Projects {
		if id == projectID {
			return true
		}
	}
	return false
}

// Resolver looks up team roles
type Resolver struct {
	members storage.MembershipReader
}

// NewResolver creates a resolver over the membership store
func NewResolver(members storage.MembershipReader) *Resolver {
	return &Resolver{members: members}
}

// ResolveRole returns the role of userID in teamID. Unknown role names are
// passed through unchanged.
func (r *Resolver) ResolveRole(ctx context.Context, teamID, userID int64) (*TeamRole, error) {
	member, err := r.members.GetTeamMember(ctx, teamID, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("user %d in team %d: %w", userID, teamID, ErrNoMembership)
	} else if err != nil {
		return nil, fmt.Errorf("failed to resolve team role: %w", err)
	}

	return &TeamRole{
		TeamID:   member.TeamID,
		UserID:   member.UserID,
		Role:     member.Role,
		Projects: append([]int64(nil), member.Projects...),
	}, nil
}
