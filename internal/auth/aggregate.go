package auth

import (
	"context"
	"sort"
	"time"
)

// Aggregate computes the union of active roles and permission grants for an
// identity at a single instant. The result is written onto the session row as
// a snapshot; it is never re-derived until the identity logs in again, so
// role changes after login deliberately do not affect live sessions.
func (s *Service) Aggregate(ctx context.Context, identityID string, at time.Time) ([]RoleSnapshot, PermissionSet, error) {
	roles, err := s.store.RBAC().ActiveRoles(ctx, identityID, at)
	if err != nil {
		return nil, nil, err
	}

	// The store already orders by level desc, name asc; sort again so the
	// primary-role contract holds for any Store implementation.
	sort.SliceStable(roles, func(i, j int) bool {
		if roles[i].PermissionLevel != roles[j].PermissionLevel {
			return roles[i].PermissionLevel > roles[j].PermissionLevel
		}
		return roles[i].Name < roles[j].Name
	})

	perms := make(PermissionSet)
	snapshots := make([]RoleSnapshot, 0, len(roles))
	for _, role := range roles {
		snapshots = append(snapshots, RoleSnapshot{
			ID:              role.ID,
			Name:            role.Name,
			DisplayName:     role.DisplayName,
			PermissionLevel: role.PermissionLevel,
			Category:        role.Category,
		})
		grants, err := s.store.RBAC().GrantsForRole(ctx, role.ID)
		if err != nil {
			return nil, nil, err
		}
		for _, g := range grants {
			// Keep every scope from every role: the check treats the list
			// as "any of these grants access".
			perms.Add(g.Resource, g.Action, g.EffectiveScope())
		}
	}

	if len(snapshots) == 0 {
		// Every identity is at minimum an unprivileged member.
		snapshots = append(snapshots, DefaultMemberRole)
	}
	return snapshots, perms, nil
}
