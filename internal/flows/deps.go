package flows

// Deps groups flow dependency sets. The root Manager builds this once and
// delegates each operation to the matching flow.
type Deps struct {
	Create     CreateDeps
	Validate   ValidateDeps
	Refresh    RefreshDeps
	DestroyAll DestroyAllDeps
}

// Service is the flow runner built once by the root Manager.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Create.Save != nil && s.deps.Validate.Get != nil
}
