package auth

import (
	"context"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"

	"github.com/flotillaproject/flotilla/internal/common/flotillaerrors"
)

// EveryoneGroup is held implicitly by every authenticated principal.
const EveryoneGroup = "everyone"

type principalContextKey struct{}

// Principal is an authenticated caller: a submitting client, a device agent
// or the broker itself. Group membership drives permission checks; scopes and
// claims are carried for auth methods that issue them.
type Principal interface {
	GetName() string
	GetAuthMethod() string
	GetGroupNames() []string
	IsInGroup(group string) bool
	HasScope(scope string) bool
	HasClaim(claim string) bool
}

// StaticPrincipal is a Principal fixed at authentication time.
type StaticPrincipal struct {
	name       string
	authMethod string
	memberOf   map[string]bool
	scopes     map[string]bool
	claims     map[string]bool
}

func NewStaticPrincipal(name string, authMethod string, groups []string) *StaticPrincipal {
	membership := make(map[string]bool, len(groups)+1)
	for _, group := range groups {
		membership[group] = true
	}
	membership[EveryoneGroup] = true
	return &StaticPrincipal{
		name:       name,
		authMethod: authMethod,
		memberOf:   membership,
		scopes:     map[string]bool{},
		claims:     map[string]bool{},
	}
}

func (s *StaticPrincipal) GetName() string {
	return s.name
}

func (s *StaticPrincipal) GetAuthMethod() string {
	return s.authMethod
}

func (s *StaticPrincipal) GetGroupNames() []string {
	return maps.Keys(s.memberOf)
}

func (s *StaticPrincipal) IsInGroup(group string) bool {
	return s.memberOf[group]
}

func (s *StaticPrincipal) HasScope(scope string) bool {
	return s.scopes[scope]
}

func (s *StaticPrincipal) HasClaim(claim string) bool {
	return s.claims[claim]
}

// GetPrincipal returns the principal stored in ctx, or the anonymous
// principal when authentication never ran.
func GetPrincipal(ctx context.Context) Principal {
	if p, ok := ctx.Value(principalContextKey{}).(Principal); ok {
		return p
	}
	return anonymousPrincipal
}

// WithPrincipal returns a child context carrying the principal.
func WithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, principal)
}

// AuthService is one way of authenticating a request, e.g. basic credentials
// or a bearer token. The broker runs a configured list of them per request.
type AuthService interface {
	Name() string
	Authenticate(ctx context.Context, authHeader string) (Principal, error)
}

// AuthenticateRequest runs the services in order and returns the principal
// from the first one that succeeds.
//
// A service reports that the request carries no credentials for its method by
// returning ErrMissingCredentials, which moves the chain on to the next
// service. Any other error stops the chain immediately so that bad
// credentials are never silently downgraded to anonymous. When every service
// reports missing credentials the combined error is returned.
func AuthenticateRequest(ctx context.Context, authHeader string, services []AuthService) (Principal, error) {
	var attempts *multierror.Error
	for _, service := range services {
		principal, err := service.Authenticate(ctx, authHeader)
		if err == nil {
			return principal, nil
		}
		var missing *flotillaerrors.ErrMissingCredentials
		if !errors.As(err, &missing) {
			return nil, err
		}
		attempts = multierror.Append(attempts, err)
	}
	return nil, errors.WithMessage(attempts.ErrorOrNil(), "request could not be authenticated by any configured service")
}
