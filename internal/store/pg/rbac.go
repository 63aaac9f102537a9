package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"confreg.org/internal/auth"
)

type rbacStore struct {
	db *sql.DB
}

// ActiveRoles joins assignments to the role catalogue at one instant. The
// ORDER BY carries the primary-role contract: level descending, then name
// ascending as the explicit tie-break.
func (s *rbacStore) ActiveRoles(ctx context.Context, identityID string, at time.Time) ([]auth.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select r.id, r.name, r.display_name, r.permission_level, coalesce(r.category, ''), r.settings
		from role_assignments a
		join roles r on r.id = a.role_id
		where a.identity_id = $1
		  and a.is_active = true
		  and (a.active_from is null or a.active_from <= $2)
		  and (a.active_until is null or a.active_until >= $2)
		order by r.permission_level desc, r.name asc
	`, identityID, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []auth.Role
	for rows.Next() {
		var (
			role        auth.Role
			rawSettings []byte
		)
		if err := rows.Scan(&role.ID, &role.Name, &role.DisplayName,
			&role.PermissionLevel, &role.Category, &rawSettings); err != nil {
			return nil, err
		}
		if len(rawSettings) > 0 {
			if err := json.Unmarshal(rawSettings, &role.Settings); err != nil {
				return nil, fmt.Errorf("decode role settings: %w", err)
			}
		}
		result = append(result, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *rbacStore) GrantsForRole(ctx context.Context, roleID string) ([]auth.PermissionGrant, error) {
	rows, err := s.db.QueryContext(ctx, `
		select p.resource, p.action, p.scope, rp.scope_override
		from role_permissions rp
		join permissions p on p.id = rp.permission_id
		where rp.role_id = $1
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []auth.PermissionGrant
	for rows.Next() {
		var (
			g        auth.PermissionGrant
			override sql.NullString
		)
		if err := rows.Scan(&g.Resource, &g.Action, &g.Scope, &override); err != nil {
			return nil, err
		}
		if override.Valid {
			v := override.String
			g.ScopeOverride = &v
		}
		result = append(result, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
