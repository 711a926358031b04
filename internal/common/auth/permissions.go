package auth

import (
	"context"

	"github.com/flotillaproject/flotilla/internal/common/auth/permission"
)

// PermissionChecker answers whether the calling principal holds a permission.
type PermissionChecker interface {
	UserHasPermission(ctx context.Context, perm permission.Permission) bool
}

// PrincipalPermissionChecker grants a permission when any group, scope or
// claim configured for that permission matches the principal.
type PrincipalPermissionChecker struct {
	groupsByPermission map[permission.Permission][]string
	scopesByPermission map[permission.Permission][]string
	claimsByPermission map[permission.Permission][]string
}

func NewPrincipalPermissionChecker(
	groupsByPermission map[permission.Permission][]string,
	scopesByPermission map[permission.Permission][]string,
	claimsByPermission map[permission.Permission][]string,
) *PrincipalPermissionChecker {
	return &PrincipalPermissionChecker{
		groupsByPermission: groupsByPermission,
		scopesByPermission: scopesByPermission,
		claimsByPermission: claimsByPermission,
	}
}

func (checker *PrincipalPermissionChecker) UserHasPermission(ctx context.Context, perm permission.Permission) bool {
	principal := GetPrincipal(ctx)
	return anyMatch(checker.groupsByPermission[perm], principal.IsInGroup) ||
		anyMatch(checker.scopesByPermission[perm], principal.HasScope) ||
		anyMatch(checker.claimsByPermission[perm], principal.HasClaim)
}

func anyMatch(values []string, has func(string) bool) bool {
	for _, value := range values {
		if has(value) {
			return true
		}
	}
	return false
}
