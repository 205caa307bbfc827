package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"justping.io/internal/auth"
	"justping.io/internal/obs"
)

// AuthService is the slice of the auth core the HTTP layer consumes.
// *auth.Service satisfies it; tests substitute a stub.
type AuthService interface {
	Register(ctx context.Context, in auth.RegisterInput) (*auth.RegistrationResult, error)
	Login(ctx context.Context, email, password string) (*auth.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.LoginResult, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, rawToken, newPassword string) error
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error
	Logout(ctx context.Context, rawToken string) error
	CurrentUser(ctx context.Context, userID string) (*auth.Account, error)
	Authenticate(ctx context.Context, rawToken string) (auth.Principal, error)
}

// ReadyProbe checks downstream readiness, typically a DB ping.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options tunes the HTTP layer.
type Options struct {
	Logger             *zap.SugaredLogger
	Version            string
	MaxBodyBytes       int64
	RateLimitPerSecond int
	RateLimitBurst     int
	ReadyTimeout       time.Duration
}

// API is the HTTP surface of the auth service.
type API struct {
	svc          AuthService
	readyProbe   ReadyProbe
	log          *zap.SugaredLogger
	validate     *validator.Validate
	version      string
	readyTimeout time.Duration
	router       chi.Router
}

// New wires routes and middleware.
func New(svc AuthService, rp ReadyProbe, opts Options) *API {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	perSecond, burst := opts.RateLimitPerSecond, opts.RateLimitBurst
	if perSecond <= 0 {
		perSecond = 10
	}
	if burst <= 0 {
		burst = 20
	}

	readyTimeout := opts.ReadyTimeout
	if readyTimeout <= 0 {
		readyTimeout = 2 * time.Second
	}

	a := &API{
		svc:          svc,
		readyProbe:   rp,
		log:          log,
		validate:     validator.New(),
		version:      opts.Version,
		readyTimeout: readyTimeout,
	}

	r := chi.NewRouter()
	r.Use(obs.Instrument)
	r.Use(RequestLogger(log))
	r.Use(SecurityHeaders)
	r.Use(CORS)
	r.Use(MaxBodyBytes(maxBody))

	r.Get("/healthz", a.handleHealthz)
	r.Get("/readyz", a.handleReadyz)
	r.Method(http.MethodGet, "/metrics", obs.Handler())

	r.Route("/v1/auth", func(r chi.Router) {
		r.Use(RateLimit(burst, perSecond))

		r.Post("/register", a.handleRegister)
		r.Post("/login", a.handleLogin)
		r.Post("/refresh-token", a.handleRefreshToken)
		r.Post("/forgot-password", a.handleForgotPassword)
		r.Post("/reset-password", a.handleResetPassword)

		// Logout verifies the token itself, ignoring expiry, so an already
		// expired token can still be blacklisted.
		r.Post("/logout", a.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth)
			r.Get("/me", a.handleMe)
			r.Put("/change-password", a.handleChangePassword)
		})
	})

	a.router = r
	return a
}

// Handler returns the root handler for the server.
func (a *API) Handler() http.Handler {
	return a.router
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "justping-auth",
		"version": a.version,
	})
}

func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), a.readyTimeout)
	defer cancel()
	if err := a.readyProbe.Check(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
