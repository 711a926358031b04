package configuration

import (
	"github.com/flotillaproject/flotilla/internal/common/auth/permission"
)

// AuthConfig selects which auth methods the broker accepts and maps
// permissions onto the groups, scopes and claims that grant them.
type AuthConfig struct {
	// AnonymousAuth lets unauthenticated requests through as the anonymous
	// principal. Permissions granted to the everyone group still apply.
	AnonymousAuth bool

	BasicAuth BasicAuthenticationConfig
	TokenAuth TokenAuthenticationConfig

	PermissionGroupMapping map[permission.Permission][]string
	PermissionScopeMapping map[permission.Permission][]string
	PermissionClaimMapping map[permission.Permission][]string
}

// BasicAuthenticationConfig lists the username/password accounts accepted
// over basic auth, each with its group memberships.
type BasicAuthenticationConfig struct {
	Users map[string]UserInfo
}

type UserInfo struct {
	Password string
	Groups   []string
}

// TokenAuthenticationConfig enables bearer-token auth backed by the broker's
// refresh-token store. Principals authenticated this way are placed in Groups.
type TokenAuthenticationConfig struct {
	Enabled bool
	Groups  []string
}
