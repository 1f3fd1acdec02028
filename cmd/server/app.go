package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"

	"github.com/kuitang/notedesk/internal/ai"
	"github.com/kuitang/notedesk/internal/api"
	"github.com/kuitang/notedesk/internal/auth"
	"github.com/kuitang/notedesk/internal/config"
	"github.com/kuitang/notedesk/internal/db"
	"github.com/kuitang/notedesk/internal/email"
	"github.com/kuitang/notedesk/internal/images"
	"github.com/kuitang/notedesk/internal/notes"
	"github.com/kuitang/notedesk/internal/obs"
	"github.com/kuitang/notedesk/internal/ratelimit"
	"github.com/kuitang/notedesk/internal/s3client"
	"github.com/kuitang/notedesk/internal/tasks"
	"github.com/kuitang/notedesk/internal/urlutil"
)

const mockBucketName = "notedesk-images"

// app owns every long-lived dependency of the server.
type app struct {
	handler       http.Handler
	authenticator *auth.Authenticator
	limiter       *ratelimit.RateLimiter
	closers       []func()
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger := obs.Pkg("server")
	a := &app{}

	var key []byte
	if cfg.DatabaseKey != "" {
		decoded, err := hex.DecodeString(cfg.DatabaseKey)
		if err != nil {
			return nil, fmt.Errorf("invalid DATABASE_KEY: %w", err)
		}
		key = decoded
	}
	database, err := db.Open(ctx, db.Options{Path: cfg.DatabasePath, Key: key})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = database.Close() })

	var emailService email.EmailService
	if cfg.NoEmail {
		emailService = email.NewMockEmailService()
	} else {
		emailService = email.NewResendEmailService(cfg.ResendAPIKey, cfg.ResendFromEmail)
	}

	var objects *s3client.Client
	if cfg.NoS3 {
		client, stop, err := s3client.NewInMemory(ctx, mockBucketName)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, stop)
		objects = client
	} else {
		client, err := s3client.New(ctx, s3client.Config{
			Endpoint:        cfg.AWSEndpointS3,
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			BucketName:      cfg.AWSBucketName,
			PublicURL:       cfg.AWSPublicURL,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		objects = client
	}
	imageStore := images.NewS3Store(objects)

	var assistant ai.Assistant
	if cfg.NoAI {
		assistant = ai.LocalAssistant{}
	} else {
		assistant = ai.NewOpenAIAssistant(ai.Config{
			APIKey:  cfg.AIAPIKey,
			BaseURL: cfg.AIBaseURL,
			Model:   cfg.AIModel,
		})
	}

	a.authenticator = auth.NewAuthenticator(database, cfg.SessionDuration)
	userService := auth.NewUserService(database, a.authenticator, emailService, cfg.ClientURL)
	a.limiter = ratelimit.NewRateLimiter(cfg.RateLimitConfig)
	a.closers = append(a.closers, a.limiter.Stop)

	mux := http.NewServeMux()
	auth.NewHandler(userService, a.authenticator, cfg.RequireSecureCookies()).
		RegisterRoutes(mux, ratelimit.RateLimitMiddleware(a.limiter, ratelimit.ByClientIP))
	api.NewHandler(tasks.NewService(database, imageStore), notes.NewService(database, imageStore), assistant).
		RegisterRoutes(mux, api.Protect(a.authenticator, a.limiter))

	origins := urlutil.NewOriginMatcher(cfg.ClientOrigins)
	logger.Info("routes_registered", "origins", origins.Len())

	var handler http.Handler = mux
	handler = api.DebugBodyMiddleware(handler)
	handler = api.CORSMiddleware(origins)(handler)
	handler = ratelimit.ClientIPMiddleware(cfg.TrustProxy)(handler)
	handler = obs.AccessLogMiddleware("http", handler)
	handler = obs.RequestContextMiddleware(handler)
	a.handler = handler
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
