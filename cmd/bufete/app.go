package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nkiryanov/bufete/internal/db"
	"github.com/nkiryanov/bufete/internal/handlers"
	"github.com/nkiryanov/bufete/internal/logger"
	"github.com/nkiryanov/bufete/internal/repository/postgres"
	"github.com/nkiryanov/bufete/internal/service/auth"
	"github.com/nkiryanov/bufete/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/bufete/internal/service/invoice"
	"github.com/nkiryanov/bufete/internal/service/session"
	"github.com/nkiryanov/bufete/internal/service/user"
)

const shutdownTimeout = 5 * time.Second

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	logger logger.Logger
	pool   *pgxpool.Pool
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	l, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Fail before touching the database
	if c.SecretKey == "" {
		return nil, errors.New("secret key must be set")
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	// Initialize repositories
	storage := postgres.NewStorage(pool)

	// Initialize services
	tokenManager, err := tokenmanager.New(tokenmanager.Config{
		SecretKey:  c.SecretKey,
		AccessTTL:  c.AccessTTL,
		RefreshTTL: c.RefreshTTL,
	}, storage.Refresh())
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}

	sessionService, err := session.NewService(storage, l)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("error while creating session service. Err: %w", err)
	}

	userService := user.NewService(auth.BcryptHasher{}, storage)

	authService, err := auth.NewService(auth.Config{SecureCookie: c.SecureCookie}, tokenManager, userService, sessionService, l)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	invoiceService, err := invoice.NewService(storage, l, invoice.WithIssuer(invoice.Issuer{
		Name:  c.IssuerName,
		TaxID: c.IssuerTaxID,
	}))
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("error while creating invoice service. Err: %w", err)
	}

	mux := handlers.NewRouter(authService, userService, invoiceService, sessionService, l)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
		logger:     l,
		pool:       pool,
	}, nil
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	defer s.pool.Close()

	httpServer := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	return err
}
