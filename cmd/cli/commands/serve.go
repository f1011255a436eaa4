package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/helpboard/pkg/api"
	"github.com/jakechorley/helpboard/pkg/clients/geocodeclient"
	"github.com/jakechorley/helpboard/pkg/clients/storageclient"
	"github.com/jakechorley/helpboard/pkg/core/services"
	"github.com/jakechorley/helpboard/pkg/core/session"
	"github.com/jakechorley/helpboard/pkg/identity"
)

// ServeCmd creates the serve command
func ServeCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			migrate, _ := cmd.Flags().GetBool("migrate")
			if migrate {
				if err := app.Database.RunMigrations(app.Ctx); err != nil {
					return fmt.Errorf("failed to run migrations: %w", err)
				}
			}
			return serve(app)
		},
	}

	cmd.Flags().Bool("migrate", false, "Apply pending migrations before serving")

	return cmd
}

func serve(app *AppContext) error {
	cfg := app.Cfg
	logger := app.Logger

	revoker, closeRevoker, err := newRevoker(app)
	if err != nil {
		return err
	}
	defer closeRevoker()

	auth, err := identity.NewService(app.Database, revoker, identity.Options{
		Secret:   []byte(cfg.Auth.JWTSecret),
		TTL:      cfg.Auth.TokenTTL,
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create identity service: %w", err)
	}

	storage, err := storageclient.NewClient(app.Ctx, storageclient.Options{
		Bucket:          cfg.Storage.Bucket,
		Region:          cfg.Storage.Region,
		Endpoint:        cfg.Storage.Endpoint,
		PublicBaseURL:   cfg.Storage.PublicBaseURL,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
	})
	if err != nil {
		return fmt.Errorf("failed to create storage client: %w", err)
	}

	var geocoder api.Geocoder
	if cfg.Map.MapboxToken != "" {
		geocoder = geocodeclient.NewClient(cfg.Map.MapboxToken, cfg.Map.GeocodeBaseURL)
	} else {
		logger.Warn("No Mapbox token configured; map token and geocoding are disabled")
	}

	sessions := session.NewManager(services.ProfileBootstrapper(app.Database, logger), logger)
	events, unsubscribe := sessions.Subscribe()
	defer unsubscribe()
	go logSessionEvents(logger, events)

	if cfg.Auth.DevBypass {
		logger.Warn("Dev auth bypass is enabled; X-User-Sub headers are trusted")
	}

	server := api.NewServer(api.Deps{
		Store:    app.Database,
		Auth:     auth,
		Sessions: sessions,
		Images:   services.NewImages(storage, cfg.Storage.MaxImageBytes),
		Geocoder: geocoder,
		Logger:   logger,
		Options: api.Options{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			DevBypass:      cfg.Auth.DevBypass,
			MapboxToken:    cfg.Map.MapboxToken,
			DefaultCenter:  cfg.Center(),
			MaxImageBytes:  cfg.Storage.MaxImageBytes,
		},
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Listening", zap.String("addr", cfg.Server.Addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-app.Ctx.Done():
	}

	logger.Info("Shutting down", zap.Duration("timeout", cfg.Server.ShutdownTimeout))
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down cleanly: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}

// newRevoker uses Redis when configured so revocations are shared between
// instances
func newRevoker(app *AppContext) (identity.Revoker, func(), error) {
	if app.Cfg.Redis.Addr == "" {
		app.Logger.Info("Using in-memory token revocation")
		return identity.NewMemoryRevoker(), func() {}, nil
	}

	client, err := identity.NewRedisClient(app.Ctx, app.Cfg.Redis.Addr, app.Cfg.Redis.Password, app.Cfg.Redis.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	app.Logger.Info("Using redis token revocation", zap.String("addr", app.Cfg.Redis.Addr))

	return identity.NewRedisRevoker(client), func() { _ = client.Close() }, nil
}

func logSessionEvents(logger *zap.Logger, events <-chan session.Event) {
	for ev := range events {
		fields := []zap.Field{
			zap.String("user_id", ev.Session.Identity.ID),
			zap.String("from", string(ev.From)),
			zap.String("to", string(ev.To)),
		}
		if ev.To == session.StateError {
			logger.Warn("Session failed to load profile", append(fields, zap.String("error", ev.Session.Error))...)
			continue
		}
		logger.Debug("Session transition", fields...)
	}
}
