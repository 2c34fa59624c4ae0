package transports

import (
	"context"
	"net/http"
)

// Transport is an inbound network boundary. Implementations own their
// listener lifecycle.
type Transport interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// RouteRegistrar lets other components mount handlers on a transport's mux
// before it starts.
type RouteRegistrar interface {
	Handle(pattern string, handler http.Handler)
}

// ReadyReporter allows transports to expose readiness metadata (e.g., webhook URLs).
// Implementations are optional and used for informational logging only.
type ReadyReporter interface {
	ReadyFields() map[string]any
}
