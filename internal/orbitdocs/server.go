package orbitdocs

import (
	"context"
	"html/template"
	"net/http"
	"time"

	"github.com/roasbeef/subtrate/pkg/orbit"
)

const pageTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Orbit node status</title></head>
<body>
{{.}}
</body>
</html>
`

// Server is a minimal HTTP server that renders a Stage's topology as an
// HTML status page on every request.
type Server struct {
	stage *orbit.Stage
	addr  string
	tmpl  *template.Template

	mux *http.ServeMux
	srv *http.Server
}

// NewServer creates a Server bound to stg, serving the status page on
// addr.
func NewServer(stg *orbit.Stage, addr string) *Server {
	s := &Server{
		stage: stg,
		addr:  addr,
		tmpl:  template.Must(template.New("status").Parse(pageTemplate)),
		mux:   http.NewServeMux(),
	}

	s.mux.HandleFunc("/", s.handleStatus)

	return s
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	markdown := BuildTopologyMarkdown(s.stage)
	body := RenderHTML(markdown)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.Execute(w, body); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Start starts the HTTP server. It blocks until Shutdown is called or the
// listener fails.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:         s.addr,
		Handler:      s.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s.srv.ListenAndServe()
}

// Shutdown gracefully shuts the server down.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
