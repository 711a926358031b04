package auth

import (
	"context"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	"github.com/flotillaproject/flotilla/internal/common/flotillaerrors"
)

const TokenAuthServiceName = "Token"

// TokenValidator resolves a refresh token to the owning client id, sliding the
// token's idle expiry as a side effect.
type TokenValidator interface {
	TouchToken(ctx context.Context, token string) (string, error)
}

// TokenAuthService authenticates bearer tokens issued by the broker's token
// store. Resolved principals are cached briefly so that busy agents do not hit
// the store on every request.
type TokenAuthService struct {
	validator TokenValidator
	groups    []string
	cache     *cache.Cache
}

func NewTokenAuthService(validator TokenValidator, groups []string) *TokenAuthService {
	return &TokenAuthService{
		validator: validator,
		groups:    groups,
		cache:     cache.New(5*time.Minute, 5*time.Minute),
	}
}

func (authService *TokenAuthService) Name() string {
	return TokenAuthServiceName
}

func (authService *TokenAuthService) Authenticate(ctx context.Context, authHeader string) (Principal, error) {
	authHeaderSplits := strings.SplitN(authHeader, " ", 2)
	if len(authHeaderSplits) < 2 || !strings.EqualFold(authHeaderSplits[0], "bearer") {
		return nil, &flotillaerrors.ErrMissingCredentials{
			AuthService: TokenAuthServiceName,
			Message:     "bearer token not found",
		}
	}
	token := authHeaderSplits[1]

	if cached, ok := authService.cache.Get(token); ok {
		return cached.(Principal), nil
	}

	clientId, err := authService.validator.TouchToken(ctx, token)
	if err != nil {
		var notFound *flotillaerrors.ErrNotFound
		if errors.As(err, &notFound) {
			return nil, &flotillaerrors.ErrInvalidCredentials{
				AuthService: TokenAuthServiceName,
				Message:     "unknown or expired token",
			}
		}
		return nil, errors.WithMessage(err, "validating bearer token")
	}

	principal := NewStaticPrincipal(clientId, TokenAuthServiceName, authService.groups)
	authService.cache.SetDefault(token, Principal(principal))
	return principal, nil
}
