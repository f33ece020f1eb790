// Package api exposes the rendering pipeline and job queue over HTTP.
package api

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"go.uber.org/zap"

	"htmlpdf-service/internal/apperr"
	"htmlpdf-service/internal/config"
	"htmlpdf-service/internal/logger"
	"htmlpdf-service/internal/models"
	"htmlpdf-service/internal/pdf"
	"htmlpdf-service/internal/queue"
	"htmlpdf-service/internal/ratelimit"
	renderer "htmlpdf-service/internal/render"
	"htmlpdf-service/internal/telemetry"
)

const maxBodyBytes = 10 << 20

// Server wires HTTP handlers for the rendering API.
type Server struct {
	cfg        config.Config
	renderer   *renderer.Renderer
	rasterizer *pdf.Rasterizer
	queue      *queue.RedisQueue
	limiter    *ratelimit.TokenBucket
	logger     *zap.Logger
}

// New constructs the API server. limiter may be nil.
func New(cfg config.Config, r *renderer.Renderer, rz *pdf.Rasterizer, q *queue.RedisQueue, limiter *ratelimit.TokenBucket, log *zap.Logger) *Server {
	return &Server{
		cfg:        cfg,
		renderer:   r,
		rasterizer: rz,
		queue:      q,
		limiter:    limiter,
		logger:     logger.OrNop(log).Named("api"),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Mount("/metrics", telemetry.Handler())

	prefix := "/" + strings.Trim(s.cfg.StaticURLPrefix, "/")
	if prefix == "/" {
		prefix = "/static"
	}
	r.Handle(prefix+"/*", http.StripPrefix(prefix, http.FileServer(http.Dir(s.cfg.StaticRoot))))

	r.Route("/htmlpdf", func(r chi.Router) {
		if s.cfg.JWTSecret != "" {
			r.Use(bearerAuth([]byte(s.cfg.JWTSecret)))
		}
		r.Post("/render", s.handleRender)
		r.Post("/generate", s.handleGenerate)
		r.Get("/pdfs", s.handleList)

		r.Group(func(r chi.Router) {
			r.Use(s.rateLimit)
			r.Post("/jobs", s.handleEnqueueRaw)
			r.Post("/jobs/template", s.handleEnqueueTemplate)
		})
		r.Get("/jobs/{id}", s.handleGetJob)
	})
	return r
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

type enqueueResponse struct {
	JobID string `json:"jobId"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.queue.Ping(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	var req models.RenderRequest
	if !s.decode(w, r, &req) {
		return
	}
	html, err := s.renderer.RenderHTML(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	render.HTML(w, r, html)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.rasterizer.GeneratePdf(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	entries, err := s.rasterizer.ListPdfs(r.Context(), r.URL.Query().Get("templateId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, entries)
}

func (s *Server) handleEnqueueRaw(w http.ResponseWriter, r *http.Request) {
	var req models.RawRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.HTML) == "" {
		s.writeError(w, r, apperr.Validation("html is required"))
		return
	}
	s.enqueue(w, r, models.ModeRaw, req)
}

func (s *Server) handleEnqueueTemplate(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.TemplateID) == "" {
		s.writeError(w, r, apperr.Validation("templateId is required"))
		return
	}
	s.enqueue(w, r, models.ModeTemplate, req)
}

func (s *Server) enqueue(w http.ResponseWriter, r *http.Request, mode string, payload any) {
	id, err := s.queue.Enqueue(r.Context(), mode, payload)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	telemetry.EnqueueCounter.WithLabelValues(mode).Inc()
	writeJSON(w, r, http.StatusAccepted, enqueueResponse{JobID: id})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.queue.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if job == nil {
		s.writeError(w, r, apperr.NotFound("job %q not found", id))
		return
	}
	writeJSON(w, r, http.StatusOK, job.StatusResponse())
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		decision, err := s.limiter.Allow(r.Context(), callerFromRequest(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if !decision.Allowed {
			telemetry.RateLimitRejects.Inc()
			render.Status(r, http.StatusTooManyRequests)
			render.JSON(w, r, errorResponse{Error: "rate limited", Kind: "rate_limited"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// callerFromRequest prefers the token subject, then X-Client-ID, then the client IP.
func callerFromRequest(r *http.Request) string {
	if c := claimsFrom(r.Context()); c != nil && c.Subject != "" {
		return "sub:" + c.Subject
	}
	if v := r.Header.Get("X-Client-ID"); v != "" {
		return "client:" + v
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(started)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := render.DecodeJSON(r.Body, v); err != nil {
		s.writeError(w, r, apperr.Validation("invalid json: %v", err))
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	code := statusFor(kind)
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.String("kind", string(kind)), zap.Error(err))
	}
	writeJSON(w, r, code, errorResponse{Error: err.Error(), Kind: string(kind)})
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindRender:
		return http.StatusUnprocessableEntity
	case apperr.KindRasterization:
		return http.StatusBadGateway
	case apperr.KindInfrastructure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload any) {
	render.Status(r, code)
	render.JSON(w, r, payload)
}
