package auth

import (
	"github.com/pkg/errors"

	"github.com/flotillaproject/flotilla/internal/common/auth/configuration"
)

// ConfigureAuth builds the auth service chain from config. Basic credentials
// are tried first, then bearer tokens; the anonymous service sits last so it
// only catches requests nothing else claimed.
func ConfigureAuth(config configuration.AuthConfig, tokens TokenValidator) ([]AuthService, error) {
	services := []AuthService{}
	if len(config.BasicAuth.Users) > 0 {
		services = append(services, NewBasicAuthService(config.BasicAuth.Users))
	}
	if config.TokenAuth.Enabled {
		if tokens == nil {
			return nil, errors.New("token auth enabled but no token store available")
		}
		services = append(services, NewTokenAuthService(tokens, config.TokenAuth.Groups))
	}
	if config.AnonymousAuth {
		services = append(services, &AnonymousAuthService{})
	}
	if len(services) == 0 {
		return nil, errors.New("no authentication method enabled in config")
	}
	return services, nil
}
