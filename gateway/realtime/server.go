package realtime

import (
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/c360/switchboard/gateway"
)

// Paths of the two websocket endpoints
const (
	PathSensors = "/socket/sensors"
	PathEvents  = "/socket/events"
)

// Server mounts both namespaces on the shared router.
type Server struct {
	Sensors *SensorsNamespace
	Events  *EventsNamespace
}

var _ gateway.RouteRegistrar = (*Server)(nil)

// RegisterRoutes mounts the websocket endpoints.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Get(PathSensors, s.Sensors.ServeHTTP)
	r.Get(PathEvents, s.Events.ServeHTTP)
}

// Clients returns the number of open connections per namespace.
func (s *Server) Clients() map[string]int {
	return map[string]int{
		NamespaceSensors: s.Sensors.Len(),
		NamespaceEvents:  s.Events.Len(),
	}
}

// Close disconnects every client of both namespaces.
func (s *Server) Close(timeout time.Duration) {
	s.Sensors.Close(timeout)
	s.Events.Close(timeout)
}
