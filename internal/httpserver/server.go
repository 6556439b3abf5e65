package httpserver

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

type Server struct {
	Mux *mux.Router
}

// New returns a router with /healthz and /readyz mounted.
func New(readyTimeout time.Duration, checks ...ReadyzCheck) *Server {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", Healthz()).Methods(http.MethodGet)
	r.HandleFunc("/readyz", Readyz(readyTimeout, checks...)).Methods(http.MethodGet)
	return &Server{Mux: r}
}
