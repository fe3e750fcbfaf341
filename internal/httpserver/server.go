// Package httpserver hosts the TARP dispatcher behind a fiber v3 HTTP
// server. It is the only package that touches fiber.Ctx directly — every
// route handler here does nothing but translate fiber's request into a
// dispatch.Request, call the dispatcher, and write the resulting
// dispatch.Response back out, keeping connection handling separate from
// framing-only dispatch logic.
package httpserver

import (
	"crypto/tls"
	"fmt"
	"net/url"

	"github.com/gofiber/fiber/v3"
	"github.com/tarp-project/tarp/internal/dispatch"
	"github.com/tarp-project/tarp/internal/middleware"
	"go.uber.org/zap"
)

// Config controls how Serve binds and whether it terminates TLS itself.
type Config struct {
	Host     string
	Port     int
	Secure   bool
	CertFile string
	KeyFile  string
}

func (c Config) addr() string {
	host := c.Host
	if host == "" {
		host = "0.0.0.0"
	}
	port := c.Port
	if port == 0 {
		if c.Secure {
			port = 4430
		} else {
			port = 8080
		}
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// Server wraps a fiber.App pre-wired to forward GET "/" and GET/POST
// requests to single-segment paths ("/<name>") to a Dispatcher. Paths with
// more than one segment (such as "/a/b") match no route and never reach the
// Dispatcher, so endpoint names containing a slash are not reachable.
type Server struct {
	app     *fiber.App
	disp    *dispatch.Dispatcher
	logger  *zap.Logger
	handler middleware.HandlerFunc
}

// New builds a Server that routes all traffic through disp.
func New(disp *dispatch.Dispatcher, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := fiber.New(fiber.Config{
		AppName:      "tarp",
		ServerHeader: "tarp",
	})

	srv := &Server{app: app, disp: disp, logger: logger, handler: disp.Dispatch}
	app.Get("/", srv.handle)
	app.Get("/:name", srv.handle)
	app.Post("/:name", srv.handle)
	return srv
}

// Use installs middleware around the dispatcher, outermost first. It must
// be called before the first request is served; Server has no internal
// locking around handler swaps.
func (s *Server) Use(middlewares ...middleware.Middleware) {
	s.handler = middleware.Chain(middlewares...)(s.disp.Dispatch)
}

// Serve starts listening per cfg, blocking until the listener stops. When
// cfg.Secure is set it terminates TLS itself using cfg.CertFile/KeyFile;
// otherwise it serves plain HTTP.
func (s *Server) Serve(cfg Config) error {
	addr := cfg.addr()
	if !cfg.Secure {
		s.logger.Info("listening", zap.String("addr", addr), zap.Bool("secure", false))
		return s.app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return fmt.Errorf("httpserver: load TLS keypair: %w", err)
	}
	tlsConfig := &tls.Config{Certificates: []tls.Certificate{cert}}

	s.logger.Info("listening", zap.String("addr", addr), zap.Bool("secure", true))
	return s.app.Listen(addr, fiber.ListenConfig{
		DisableStartupMessage: true,
		TLSConfigFunc: func(c *tls.Config) {
			*c = *tlsConfig
		},
	})
}

// Shutdown gracefully stops the underlying fiber app.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) handle(c fiber.Ctx) error {
	path := c.Params("name")

	query, err := url.ParseQuery(string(c.Context().QueryArgs().QueryString()))
	if err != nil {
		query = url.Values{}
	}

	req := dispatch.Request{
		Method:      c.Method(),
		Path:        path,
		RawQuery:    query,
		ContentType: stripParams(c.Get(fiber.HeaderContentType)),
		Body:        c.Body(),
	}

	resp := s.handler(req)

	for k, v := range resp.Headers {
		c.Set(k, v)
	}
	if resp.ContentType != "" {
		c.Set(fiber.HeaderContentType, resp.ContentType)
	}
	return c.Status(resp.Status).Send(resp.Body)
}

// stripParams drops any ";charset=..." suffix fiber/fasthttp may leave on
// the Content-Type header before it reaches the dispatcher's switch.
func stripParams(contentType string) string {
	for i, r := range contentType {
		if r == ';' {
			return contentType[:i]
		}
	}
	return contentType
}
