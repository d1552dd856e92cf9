// Package httpserver exposes the account and social services over a JSON
// HTTP API routed with chi.
package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/microblog/internal/logging"
	"github.com/dmitrijs2005/microblog/internal/server/config"
	"github.com/dmitrijs2005/microblog/internal/server/metrics"
	"github.com/dmitrijs2005/microblog/internal/server/models"
	"github.com/dmitrijs2005/microblog/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
)

// UserService is the part of services.UserService the handlers use.
type UserService interface {
	Register(ctx context.Context, params services.RegisterParams) (*services.RegisterResult, error)
	Activate(ctx context.Context, email, token string) (*models.User, error)
	Login(ctx context.Context, email, password string, remember bool) (*services.Session, error)
	ResumeSession(ctx context.Context, userID, rememberToken string) (*services.Session, error)
	Logout(ctx context.Context, userID string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, params services.ResetParams) error
	ChangePassword(ctx context.Context, userID string, params services.ChangePasswordParams) error
	List(ctx context.Context, page models.Page) ([]models.User, error)
	UpdateProfile(ctx context.Context, actorID, targetID string, params services.ProfileParams) (*models.User, error)
	Delete(ctx context.Context, actorID, targetID string) error
}

// SocialService is the part of services.SocialService the handlers use.
type SocialService interface {
	Follow(ctx context.Context, followerID, followedID string) error
	Unfollow(ctx context.Context, followerID, followedID string) error
	IsFollowing(ctx context.Context, followerID, followedID string) (bool, error)
	Feed(ctx context.Context, userID string, page models.Page) ([]models.Micropost, error)
	Following(ctx context.Context, userID string, page models.Page) ([]models.User, error)
	Followers(ctx context.Context, userID string, page models.Page) ([]models.User, error)
	Profile(ctx context.Context, userID string) (*services.Profile, error)
	CreatePost(ctx context.Context, userID string, params services.PostParams) (*models.Micropost, error)
	DeletePost(ctx context.Context, actorID, postID string) error
	GetPost(ctx context.Context, postID string) (*models.Micropost, error)
	PostsByUser(ctx context.Context, userID string, page models.Page) ([]models.Micropost, error)
}

// PictureService presigns object storage URLs for micropost pictures.
type PictureService interface {
	PresignUpload(ctx context.Context, userID string) (string, string, error)
	PresignDownload(ctx context.Context, key string) (string, error)
}

const shutdownTimeout = 10 * time.Second

type Server struct {
	address  string
	users    UserService
	social   SocialService
	pictures PictureService
	logger   logging.Logger
	metrics  metrics.Recorder
	gatherer prometheus.Gatherer
	limiter  *clientLimiter

	jwtSecret     []byte
	rememberTTL   time.Duration
	secureCookies bool
	corsOrigins   []string
}

func NewServer(cfg *config.Config, l logging.Logger, us UserService, ss SocialService, ps PictureService,
	rec metrics.Recorder, gatherer prometheus.Gatherer) *Server {
	return &Server{
		address:       cfg.EndpointAddrHTTP,
		users:         us,
		social:        ss,
		pictures:      ps,
		logger:        l.With("module", "http_server"),
		metrics:       rec,
		gatherer:      gatherer,
		limiter:       newClientLimiter(cfg.AuthRateLimit, cfg.AuthRateBurst),
		jwtSecret:     []byte(cfg.SecretKey),
		rememberTTL:   cfg.RememberTokenValidityDuration,
		secureCookies: cfg.IsProduction(),
		corsOrigins:   cfg.CORSOrigins,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(s.requestID)
	r.Use(s.instrument)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(s.gatherer))
	}

	// credential endpoints, limited per client
	r.Group(func(r chi.Router) {
		r.Use(s.rateLimit)

		r.Post("/users", s.register)
		r.Post("/account/activate", s.activate)
		r.Post("/sessions", s.login)
		r.Post("/sessions/resume", s.resume)
		r.Post("/password_resets", s.requestPasswordReset)
		r.Put("/password_resets", s.resetPassword)
	})

	// public reads
	r.Get("/users/{id}", s.getUser)
	r.Get("/users/{id}/following", s.following)
	r.Get("/users/{id}/followers", s.followers)
	r.Get("/users/{id}/microposts", s.userPosts)
	r.Get("/microposts/{id}/picture", s.picture)

	r.Group(func(r chi.Router) {
		r.Use(s.requireUser)

		r.Get("/users", s.listUsers)
		r.Patch("/users/{id}", s.updateUser)
		r.Delete("/users/{id}", s.deleteUser)
		r.Delete("/sessions", s.logout)
		r.Put("/account/password", s.changePassword)

		r.Post("/users/{id}/follow", s.follow)
		r.Delete("/users/{id}/follow", s.unfollow)
		r.Get("/feed", s.feed)

		r.Post("/microposts", s.createPost)
		r.Delete("/microposts/{id}", s.deletePost)
		r.Post("/microposts/pictures", s.presignPicture)
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.limiter.sweepEvery(ctx, time.Minute)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "shutdown error", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
