// Package web_server serves the HTTP API of the server: game lifecycle and
// scorekeeping endpoints as well as the websocket endpoint for live updates.
package web_server

import (
	"context"
	nativeerrors "errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/ultiscore/ultiscore-server/errors"
	"go.uber.org/zap"
)

const (
	// DefaultServeAddr is the default address to serve on.
	DefaultServeAddr = ":8080"
	// DefaultWriteTimeout is the default timeout for writing.
	DefaultWriteTimeout = 15 * time.Second
	// DefaultReadTimeout is the default timeout for reading.
	DefaultReadTimeout = 15 * time.Second
)

// Config is the configuration that is used in order to create and run a web
// server.
type Config struct {
	// ServeAddr is the address for the web server to listen on.
	ServeAddr string
	// WriteTimeout is the duration to wait until write fails with a timeout.
	WriteTimeout time.Duration
	// ReadTimeout is the duration to wait until read fails with a timeout.
	ReadTimeout time.Duration
}

// WebServer serves the HTTP API. Create it with NewWebServer, call
// WebServer.PopulateRoutes and run it with WebServer.Run.
type WebServer struct {
	logger     *zap.Logger
	config     Config
	httpServer *http.Server
	router     *mux.Router
}

// NewWebServer creates a new WebServer. It expects the passed Config to be
// filled correctly. Defaults are exported as DefaultServeAddr,
// DefaultWriteTimeout and DefaultReadTimeout.
func NewWebServer(logger *zap.Logger, config Config) (*WebServer, error) {
	if config.ServeAddr == "" {
		return nil, nativeerrors.New("no addr provided in config")
	}
	server := &WebServer{
		logger: logger,
		config: config,
		router: mux.NewRouter(),
	}
	server.router.Use(server.loggingMiddleware)
	server.router.Use(noCacheMiddleware)
	server.router.NotFoundHandler = noCacheMiddleware(server.loggingMiddleware(http.NotFoundHandler()))
	server.httpServer = &http.Server{
		Handler: cors.New(cors.Options{
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		}).Handler(server.router),
		Addr:         config.ServeAddr,
		WriteTimeout: config.WriteTimeout,
		ReadTimeout:  config.ReadTimeout,
	}
	return server, nil
}

// Run starts the web server until the given context.Context is done.
func (server *WebServer) Run(ctx context.Context) error {
	serveErr := make(chan error, 1)
	go func() {
		server.logger.Info("web server running", zap.String("addr", server.config.ServeAddr))
		serveErr <- server.httpServer.ListenAndServe()
	}()
	select {
	case err := <-serveErr:
		return errors.Wrap(err, "listen and serve", nil)
	case <-ctx.Done():
	}
	shutdownTimeout, cancelShutdownTimeout := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdownTimeout()
	err := server.httpServer.Shutdown(shutdownTimeout)
	if err != nil {
		return errors.Wrap(err, "shutdown web server", nil)
	}
	return nil
}
