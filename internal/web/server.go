// Package web serves the loan assistant dashboard and its JSON API.
package web

import (
	"context"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"loanquery/internal/domain"
	"loanquery/internal/service"
	"loanquery/internal/session"
)

//go:embed templates/*.html
var templatesFS embed.FS

// CookieName carries the session id.
const CookieName = "loanquery_session"

const sessionKey = "session"

// Backend is the part of the service the handlers use.
type Backend interface {
	Ready() bool
	Ask(ctx context.Context, sess *session.Session, question string) (domain.Turn, error)
	DatasetInfo() (service.Info, error)
	SampleQuestions() []string
	BuildIndex(ctx context.Context, opts service.BuildOptions) (service.BuildReport, error)
	HasDefaultAPIKey() bool
}

type Server struct {
	backend  Backend
	sessions *session.Store
	log      *slog.Logger
	engine   *gin.Engine
}

func NewServer(backend Backend, sessions *session.Store, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{backend: backend, sessions: sessions, log: log.With("component", "web")}

	tmpl := template.Must(template.New("").Funcs(template.FuncMap{
		"score": formatScore,
	}).ParseFS(templatesFS, "templates/*.html"))

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger(), s.withSession())
	r.SetHTMLTemplate(tmpl)

	r.GET("/", s.index)
	r.POST("/ask", s.askForm)
	r.POST("/settings", s.settingsForm)
	r.POST("/clear", s.clearForm)
	r.POST("/setup", s.setupForm)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/ask", s.askJSON)
		v1.GET("/history", s.historyJSON)
		v1.DELETE("/history", s.clearJSON)
		v1.DELETE("/session", s.endSessionJSON)
		v1.PUT("/settings", s.settingsJSON)
		v1.GET("/dataset", s.datasetJSON)
		v1.GET("/samples", s.samplesJSON)
		v1.GET("/health", s.healthJSON)
	}
	s.engine = r
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info("dashboard listening", "addr", "http://"+addr)
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request", "method", c.Request.Method, "path", c.FullPath(), "status", c.Writer.Status(), "elapsed", time.Since(start))
	}
}

// withSession attaches the caller's session, issuing a cookie for new ones.
func (s *Server) withSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := c.Cookie(CookieName)
		sess, created := s.sessions.GetOrCreate(id)
		if created {
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(CookieName, sess.ID, 0, "/", "", false, true)
		}
		c.Set(sessionKey, sess)
		c.Next()
	}
}

func sessionFrom(c *gin.Context) *session.Session {
	return c.MustGet(sessionKey).(*session.Session)
}
