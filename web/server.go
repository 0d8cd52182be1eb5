// Package web is the HTTP front of the guestbook: the home page
// with the list of entries and a form to sign the guestbook.
package web

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kjk/guestbook/guestbook"
	"github.com/kjk/guestbook/log"
)

//go:embed templates/home.html
var templatesFS embed.FS

const (
	// DefaultAddr is where we listen if Options.Addr is empty
	DefaultAddr = "localhost:8080"

	shutdownTimeout = 5 * time.Second
)

type Options struct {
	// e.g. "localhost:8080" or ":80"
	Addr string
	// for tests, defaults to time.Now
	Now func() time.Time
}

type Server struct {
	store  guestbook.Storage
	addr   string
	now    func() time.Time
	tmpl   *template.Template
	static *staticHandler
}

// NewServer returns a server showing entries from store.
// opts can be nil.
func NewServer(store guestbook.Storage, opts *Options) *Server {
	if opts == nil {
		opts = &Options{}
	}
	s := &Server{
		store:  store,
		addr:   opts.Addr,
		now:    opts.Now,
		tmpl:   template.Must(template.ParseFS(templatesFS, "templates/home.html")),
		static: newStaticHandler(staticFS, "/static/"),
	}
	if s.addr == "" {
		s.addr = DefaultAddr
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Addr returns the address the server listens on
func (s *Server) Addr() string {
	return s.addr
}

// Handler returns http.Handler with all the routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	// other methods on those urls get 405 from the mux
	mux.HandleFunc("GET /{$}", s.handleHome)
	mux.HandleFunc("POST /{$}", s.handlePost)
	mux.Handle("GET /static/", s.static)
	mux.HandleFunc("GET /ping", handlePing)
	return withAccessLog(withRecover(mux))
}

func (s *Server) newHTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.addr,
		ReadTimeout:  120 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
		Handler:      s.Handler(),
	}
}

// Run serves http until ctx is cancelled or the process gets
// SIGINT / SIGTERM. In-flight requests get up to 5 seconds to finish.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt /* SIGINT */, syscall.SIGTERM)
	defer stop()

	httpSrv := s.newHTTPServer()
	chServerClosed := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		// mute error caused by Shutdown()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		chServerClosed <- err
	}()
	log.Logf("Started web server on http://%s\n", s.addr)

	select {
	case err := <-chServerClosed:
		// failed to start, e.g. port already in use
		return err
	case <-ctx.Done():
	}

	log.Logf("Shutting down web server\n")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := httpSrv.Shutdown(shutdownCtx)
	if errors.Is(err, context.DeadlineExceeded) {
		log.Logf("Shutdown didn't finish in %s\n", shutdownTimeout)
		return nil
	}
	return err
}
