package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/opsadmin/authcore/pkg/audit"
	"github.com/opsadmin/authcore/pkg/auth"
	"github.com/opsadmin/authcore/pkg/config"
	"github.com/opsadmin/authcore/pkg/login"
	"github.com/opsadmin/authcore/pkg/login/loginapi"
	"github.com/opsadmin/authcore/pkg/loginflow"
	"github.com/opsadmin/authcore/pkg/notification"
	"github.com/opsadmin/authcore/pkg/otp"
	"github.com/opsadmin/authcore/pkg/ratelimit"
	"github.com/opsadmin/authcore/pkg/rbac"
	tg "github.com/opsadmin/authcore/pkg/tokengenerator"
	"github.com/opsadmin/authcore/pkg/twofa"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.Database.ToDatabaseURL())
	if err != nil {
		slog.Error("Failed to create database pool",
			"db", cfg.Database.Database, "host", cfg.Database.Host, "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	notifier, err := notification.NewEmailNotifier(notification.SMTPConfig{
		Host:     cfg.Email.Host,
		Port:     int(cfg.Email.Port),
		TLS:      cfg.Email.TLS,
		Username: cfg.Email.Username,
		Password: cfg.Email.Password,
		From:     cfg.Email.From,
	})
	if err != nil {
		slog.Error("Failed to create email notifier", "err", err)
		os.Exit(1)
	}

	loginRepo := login.NewPostgresLoginRepository(pool)
	hasher := login.NewBcryptHasher(0)

	loginService := login.NewLoginService(loginRepo, hasher)
	passwordManager := login.NewPasswordManager(loginRepo, hasher,
		cfg.Password.HistoryDepth, cfg.Password.ResetTokenMaxAge)

	otpStore := otp.NewRedisStore(redisClient)
	twoFactorService := twofa.NewTotpService(cfg.JWT.Issuer)

	tokenGenerator := tg.NewJwtTokenGenerator(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Audience)

	permissionResolver := rbac.NewService(rbac.NewPostgresRepository(pool))
	auditRecorder := audit.NewRecorder(audit.NewPostgresRepository(pool))

	loginLimiter := ratelimit.NewRedisLimiter(redisClient, "login", ratelimit.Config{
		Limit:  cfg.RateLimit.LoginLimit,
		Window: cfg.RateLimit.LoginWindow,
	})
	apiLimiter := ratelimit.NewRedisLimiter(redisClient, "api", ratelimit.Config{
		Limit:  cfg.RateLimit.APILimit,
		Window: cfg.RateLimit.APIWindow,
	})

	flow := loginflow.NewService(loginflow.Deps{
		LoginService:       loginService,
		PasswordManager:    passwordManager,
		OTPStore:           otpStore,
		TwoFactorService:   twoFactorService,
		TokenGenerator:     tokenGenerator,
		PermissionResolver: permissionResolver,
		AuditRecorder:      auditRecorder,
		LoginLimiter:       loginLimiter,
		Notifier:           notifier,
	}, cfg.JWT.TokenExpiry, cfg.OTP.TTL, cfg.Password.ResetBaseURL)

	cookieSetter := tg.NewCookieSetter(cfg.JWT.CookieHttpOnly, cfg.JWT.CookieSecure)
	authHandle := loginapi.NewHandle(flow, permissionResolver, loginapi.WithCookieSetter(cookieSetter))
	authMiddleware := auth.NewMiddleware(tokenGenerator)

	apiRateLimit := ratelimit.NewMiddleware(apiLimiter,
		ratelimit.WithHeaders(cfg.RateLimit.IncludeHeaders))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(apiRateLimit.Handler)
	r.Use(authMiddleware.Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/auth", authHandle.Routes)

	addr := cfg.Server.Addr()
	slog.Info("Starting authcore", "addr", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		slog.Error("Server stopped", "err", err)
		os.Exit(1)
	}
}
