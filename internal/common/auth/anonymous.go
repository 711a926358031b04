package auth

import "context"

const AnonymousAuthServiceName = "Anonymous"

// anonymousPrincipal is what GetPrincipal falls back to when a context holds
// no principal. It belongs to no group beyond EveryoneGroup.
var anonymousPrincipal = NewStaticPrincipal("anonymous", AnonymousAuthServiceName, nil)

// AnonymousAuthService accepts every request. Configured last, it turns the
// chain into "authenticate if you can, anonymous otherwise".
type AnonymousAuthService struct{}

func (AnonymousAuthService) Name() string {
	return AnonymousAuthServiceName
}

func (AnonymousAuthService) Authenticate(_ context.Context, _ string) (Principal, error) {
	return anonymousPrincipal, nil
}
