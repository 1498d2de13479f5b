// Package apiServer exposes the review ledger over HTTP. Routes are thin
// wrappers over the ledger operations; all ordering and verification
// invariants live in the core, the server only translates the error
// taxonomy to status codes.
package apiServer

import (
	"net/http"

	"github.com/sirupsen/logrus"

	review "github.com/wileschulpusi/Review"
)

type Server struct {
	mux    *http.ServeMux
	ledger *review.Ledger
	log    *logrus.Logger
}

type Option func(*Server)

func WithLogger(log *logrus.Logger) Option {
	return func(s *Server) { s.log = log }
}

func New(ledger *review.Ledger, opts ...Option) *Server {
	s := &Server{
		mux:    http.NewServeMux(),
		ledger: ledger,
		log:    logrus.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /papers", s.handleSubmitPaper)
	s.mux.HandleFunc("GET /papers", s.handleListPapers)
	s.mux.HandleFunc("GET /papers/{id}", s.handleGetPaper)
	s.mux.HandleFunc("POST /papers/{id}/reviews", s.handleSubmitReview)
	s.mux.HandleFunc("GET /papers/{id}/reviews", s.handleGetReviews)
	s.mux.HandleFunc("POST /papers/{id}/aggregate", s.handleAggregate)
	s.mux.HandleFunc("POST /papers/{id}/publish", s.handlePublish)
	s.mux.HandleFunc("GET /handles/{id}", s.handleGetHandle)
	s.mux.HandleFunc("POST /handles/{id}/verify", s.handleVerify)
	s.mux.HandleFunc("POST /handles/{id}/disclose", s.handleDisclose)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
