package api

import (
	"context"
	"net/http"
)

// Server bundles the GraphQL view endpoint and the epoch-event WebSocket
// feed behind one bearer-token check (spec.md §4.7).
type Server struct {
	http *http.Server
	hub  *EpochHub
}

// NewServer builds the mux: POST /graphql for view queries, GET /ws for the
// epoch feed, both requiring the operator bearer token.
func NewServer(addr string, resolver *Resolver, jwtSecret []byte) (*Server, error) {
	graphqlHandler, err := NewHandler(resolver)
	if err != nil {
		return nil, err
	}
	hub := NewEpochHub()

	mux := http.NewServeMux()
	mux.Handle("/graphql", RequireOperator(jwtSecret, graphqlHandler))
	mux.Handle("/ws", RequireOperator(jwtSecret, hub))

	return &Server{
		http: &http.Server{Addr: addr, Handler: mux},
		hub:  hub,
	}, nil
}

// NotifyNewEpoch is the hook core.BlockDriver's caller invokes once a
// block's outputs are committed and ShouldRestartExecution was set
// (SPEC_FULL.md §4.7).
func (s *Server) NotifyNewEpoch(stoppedAt int) {
	s.hub.Broadcast(EpochEvent{StoppedAt: stoppedAt, Reason: "new_epoch"})
}

func (s *Server) ListenAndServe() error { return s.http.ListenAndServe() }

func (s *Server) Shutdown(ctx context.Context) error { return s.http.Shutdown(ctx) }
