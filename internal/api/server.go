package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/rules"
	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/segment"
	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/telemetry"
)

const maxBodyBytes = 1 << 20

// Options configures a Server.
type Options struct {
	AdminAPIKey    string
	RateLimitPerIP int           // requests per minute, 0 disables limiting
	RequestTimeout time.Duration // applies to every route except the stream
	Heartbeat      time.Duration // stream keep-alive interval
	Logger         zerolog.Logger
}

type Server struct {
	reg  *segment.Registry
	opts Options
	log  zerolog.Logger
}

func NewServer(reg *segment.Registry, opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 25 * time.Second
	}
	return &Server{reg: reg, opts: opts, log: opts.Logger}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(hlog.NewHandler(s.log))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Int("status", status).
			Int("size", size).
			Dur("duration", dur).
			Msg("request")
	}))
	r.Use(telemetry.Middleware)
	if s.opts.RateLimitPerIP > 0 {
		r.Use(httprate.Limit(s.opts.RateLimitPerIP, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				writeErrorResponse(w, r, http.StatusTooManyRequests,
					NewErrorResponse(http.StatusTooManyRequests, ErrCodeRateLimited, "rate limit exceeded"))
			}),
		))
	}

	// health
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// the stream is long-lived so it stays outside the timeout group
	r.Get("/v1/segments/stream", s.handleStream)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.opts.RequestTimeout))

		r.Get("/v1/fields", s.handleFields)
		r.Post("/v1/evaluate", s.handleEvaluate)

		r.Route("/v1/segments", func(r chi.Router) {
			r.Get("/", s.handleListSegments)
			r.With(s.authAdmin).Post("/", s.handleCreateSegment)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSegment)
				r.With(s.authAdmin).Get("/members", s.handleMembers)

				r.Group(func(r chi.Router) {
					r.Use(s.authAdmin)
					r.Patch("/", s.handleUpdateSegment)
					r.Delete("/", s.handleDeleteSegment)
					r.Post("/duplicate", s.handleDuplicateSegment)
					r.Put("/active", s.handleSetActive)
					r.Post("/recount", s.handleRecount)
				})
			})
		})
	})

	return r
}

// ---- middleware & helpers ----

func (s *Server) authAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer"))
		if got == "" {
			UnauthorizedError(w, r, "missing bearer token")
			return
		}
		// constant-time compare
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.AdminAPIKey)) != 1 {
			ForbiddenError(w, r, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONWithETag writes v with a weak ETag over its encoding and answers
// 304 when the client already holds it.
func writeJSONWithETag(w http.ResponseWriter, r *http.Request, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		InternalError(w, r, "failed to encode response")
		return
	}
	etag := `W/"` + strconv.FormatUint(xxhash.Sum64(body), 16) + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(append(body, '\n'))
}

// decodeJSON reads a size-limited JSON body into v and writes the error
// response itself when it returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			RequestTooLargeError(w, r, "request body too large")
			return false
		}
		if rules.IsValidation(err) {
			ValidationError(w, r, "invalid filter", map[string]string{"filter": err.Error()})
			return false
		}
		BadRequestError(w, r, ErrCodeInvalidJSON, "invalid JSON: "+err.Error())
		return false
	}
	return true
}
