package auth

import "strings"

// PermissionMap maps a resource name to the actions allowed on it,
// e.g. {"users": {"create": true, "read": true}}.
type PermissionMap map[string]map[string]bool

// Allows reports whether the map grants a "resource.action" key.
// Absent resources and actions deny.
func (m PermissionMap) Allows(key string) bool {
	resource, action, ok := strings.Cut(key, ".")
	if !ok {
		return false
	}
	return m[resource][action]
}

// ResolvePermissions merges the permission maps of all held roles using
// boolean OR per resource/action pair. OR is commutative, so the order of
// roles never changes the result. A false entry in one role cannot mask a
// true entry granted by another.
func ResolvePermissions(roles []Role) PermissionMap {
	merged := make(PermissionMap)
	for _, role := range roles {
		for resource, actions := range role.Permissions {
			dst, ok := merged[resource]
			if !ok {
				dst = make(map[string]bool, len(actions))
				merged[resource] = dst
			}
			for action, allowed := range actions {
				if allowed {
					dst[action] = true
				}
			}
		}
	}
	return merged
}

// AdminPermissions is the full-access map granted to the lazily created
// Admin role of every business.
func AdminPermissions() PermissionMap {
	crud := func(extra ...string) map[string]bool {
		actions := map[string]bool{
			"create": true,
			"read":   true,
			"update": true,
			"delete": true,
		}
		for _, a := range extra {
			actions[a] = true
		}
		return actions
	}
	return PermissionMap{
		"users":             crud(),
		"roles":             crud(),
		"templates":         crud(),
		"broadcasts":        crud(),
		"campaigns":         crud(),
		"agents":            crud("approve"),
		"contacts":          crud(),
		"business":          crud(),
		"settings":          crud(),
		"channels":          crud(),
		"business_channels": crud(),
		"integrations":      crud("manage"),
	}
}
