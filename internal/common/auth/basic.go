package auth

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/flotillaproject/flotilla/internal/common/auth/configuration"
	"github.com/flotillaproject/flotilla/internal/common/flotillaerrors"
)

const BasicAuthServiceName = "Basic"

// BasicAuthService authenticates username/password pairs against the users
// listed in configuration.
type BasicAuthService struct {
	accounts map[string]configuration.UserInfo
}

func NewBasicAuthService(accounts map[string]configuration.UserInfo) *BasicAuthService {
	return &BasicAuthService{accounts: accounts}
}

func (s *BasicAuthService) Name() string {
	return BasicAuthServiceName
}

func (s *BasicAuthService) Authenticate(_ context.Context, authHeader string) (Principal, error) {
	scheme, encoded, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "basic") {
		return nil, &flotillaerrors.ErrMissingCredentials{
			AuthService: BasicAuthServiceName,
			Message:     "basic auth header not found",
		}
	}

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, &flotillaerrors.ErrInvalidCredentials{
			AuthService: BasicAuthServiceName,
			Message:     err.Error(),
		}
	}
	username, password, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return nil, &flotillaerrors.ErrInvalidCredentials{
			AuthService: BasicAuthServiceName,
			Message:     "malformed basic auth payload",
		}
	}

	user, known := s.accounts[username]
	if !known || user.Password != password {
		return nil, &flotillaerrors.ErrInvalidCredentials{
			Username:    username,
			AuthService: BasicAuthServiceName,
		}
	}
	return NewStaticPrincipal(username, BasicAuthServiceName, user.Groups), nil
}
