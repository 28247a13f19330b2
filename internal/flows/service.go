package flows

import "context"

// Service is the centralized flow runner built once by the root client.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// WithCommit returns a copy of the service whose flows persist through commit.
func (s Service) WithCommit(commit Commit) Service {
	deps := s.deps
	deps.Commit = commit
	return Service{deps: deps}
}

func (s Service) Login(ctx context.Context, username, password string) Result {
	return RunLogin(ctx, username, password, s.deps)
}

func (s Service) Register(ctx context.Context, in RegisterInput) Result {
	return RunRegister(ctx, in, s.deps)
}

func (s Service) Refresh(ctx context.Context) Result {
	return RunRefresh(ctx, s.deps)
}
