package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/bufete/internal/handlers/middleware"
	"github.com/nkiryanov/bufete/internal/logger"
	"github.com/nkiryanov/bufete/internal/models"
	"github.com/nkiryanov/bufete/internal/service/invoice"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	authService authService,
	userService userService,
	invoiceService invoiceService,
	sessionService sessionService,
	logger logger.Logger,
) http.Handler {
	withAuth := middleware.AuthMiddleware(authService)
	staffOnly := func(h http.Handler) http.Handler {
		return chain(h, withAuth, middleware.RequireRole(models.RoleAdmin, models.RoleLawyer))
	}
	adminOnly := func(h http.Handler) http.Handler {
		return chain(h, withAuth, middleware.RequireRole(models.RoleAdmin))
	}

	apiauth := http.NewServeMux()
	apiauth.Handle("POST /register", handleRegister(authService, logger))
	apiauth.Handle("POST /login", handleLogin(authService, logger))
	apiauth.Handle("POST /refresh", handleTokenRefresh(authService, logger))
	apiauth.Handle("POST /logout", withAuth(handleLogout(authService, logger)))
	apiauth.Handle("POST /logout-all", withAuth(handleLogoutAll(authService, logger)))
	apiauth.Handle("GET /me", withAuth(handleUserMe()))

	apiclients := http.NewServeMux()
	apiclients.Handle("POST /{$}", staffOnly(handleCreateClient(userService, logger)))
	apiclients.Handle("GET /{$}", staffOnly(handleListClients(userService, logger)))
	apiclients.Handle("GET /me", withAuth(handleMyClient(userService, logger)))
	apiclients.Handle("GET /{id}", withAuth(handleGetClient(userService, logger)))

	// Role checks of invoice operations live in the service: clients may read and reject
	apiinvoices := http.NewServeMux()
	apiinvoices.Handle("POST /{$}", withAuth(handleCreateInvoice(invoiceService, logger)))
	apiinvoices.Handle("GET /{$}", withAuth(handleListInvoices(invoiceService, logger)))
	apiinvoices.Handle("GET /{id}", withAuth(handleGetInvoice(invoiceService, logger)))
	apiinvoices.Handle("PUT /{id}", withAuth(handleUpdateInvoice(invoiceService, logger)))
	apiinvoices.Handle("POST /{id}/advance", withAuth(handleAdvanceInvoice(invoiceService, logger)))
	apiinvoices.Handle("POST /{id}/cancel", withAuth(handleCancelInvoice(invoiceService, logger)))
	apiinvoices.Handle("POST /{id}/reject", withAuth(handleRejectInvoice(invoiceService, logger)))
	apiinvoices.Handle("GET /{id}/history", withAuth(handleInvoiceHistory(invoiceService, logger)))
	apiinvoices.Handle("GET /{id}/pdf", withAuth(handleInvoicePDF(invoiceService, logger)))

	apiadmin := http.NewServeMux()
	apiadmin.Handle("POST /users", adminOnly(handleCreateUser(userService, logger)))
	apiadmin.Handle("GET /tokens/stats", adminOnly(handleTokenStats(sessionService, logger)))
	apiadmin.Handle("POST /tokens/maintenance", adminOnly(handleTokenMaintenance(sessionService, logger)))

	root := http.NewServeMux()
	root.Handle("/api/auth/", http.StripPrefix("/api/auth", apiauth))
	root.Handle("/api/clients/", http.StripPrefix("/api/clients", apiclients))
	root.Handle("/api/invoices/", http.StripPrefix("/api/invoices", apiinvoices))
	root.Handle("/api/admin/", http.StripPrefix("/api/admin", apiadmin))

	// Collections are served without trailing slash too
	root.Handle("/api/clients", http.StripPrefix("/api/clients", addSlash(apiclients)))
	root.Handle("/api/invoices", http.StripPrefix("/api/invoices", addSlash(apiinvoices)))

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
	)

	return handler
}

// Route '/api/x' as '/api/x/' without redirect, so POST body is not lost
func addSlash(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.URL.Path = "/"
		r.URL.RawPath = ""
		h.ServeHTTP(w, r)
	})
}

type authService interface {
	// Register client with username, password and profile
	// Has to return apperrors.ErrUserAlreadyExists if user already exists
	Register(ctx context.Context, username string, password string, profile models.ClientProfile) (models.TokenPair, error)

	// Login user with username and password
	// Has to return apperrors.ErrUserNotFound if user not found
	Login(ctx context.Context, username string, password string) (models.TokenPair, error)

	// Refresh tokens using refresh token
	// If token expired: has to return apperrors.ErrRefreshTokenExpired
	// If token not found: has to return apperrors.ErrRefreshTokenNotFound
	RefreshPair(ctx context.Context, refresh string) (models.TokenPair, error)

	// Get request and return session if it authenticated or error
	Authenticate(ctx context.Context, r *http.Request) (models.Session, error)

	Logout(ctx context.Context, sess models.Session, refresh string) error
	LogoutAll(ctx context.Context, userID uuid.UUID) (int, error)

	// Set auth tokens (access, refresh) to response
	SetTokens(w http.ResponseWriter, pair models.TokenPair)
	ClearTokens(w http.ResponseWriter)

	// Get refresh token from request
	GetRefresh(r *http.Request) (string, error)
}

type userService interface {
	CreateUser(ctx context.Context, nu models.NewUser) (models.User, error)
	CreateClient(ctx context.Context, actor models.User, p models.ClientProfile) (models.Client, error)
	GetClient(ctx context.Context, actor models.User, id uuid.UUID) (models.Client, error)
	ListClients(ctx context.Context, actor models.User, limit int, offset int) ([]models.Client, error)

	// Has to return apperrors.ErrClientNotFound if the user has no client profile
	ClientOf(ctx context.Context, user models.User) (models.Client, error)
}

type invoiceService interface {
	Create(ctx context.Context, actor models.User, p invoice.Params) (models.Invoice, error)
	Get(ctx context.Context, actor models.User, id uuid.UUID) (models.Invoice, error)
	List(ctx context.Context, actor models.User, p invoice.ListParams) ([]models.Invoice, error)
	Update(ctx context.Context, actor models.User, id uuid.UUID, p invoice.Params) (models.Invoice, error)
	Advance(ctx context.Context, actor models.User, id uuid.UUID) (models.Invoice, error)
	Cancel(ctx context.Context, actor models.User, id uuid.UUID, reason string) (models.Invoice, error)
	Reject(ctx context.Context, actor models.User, id uuid.UUID, reason string) (models.Invoice, error)
	History(ctx context.Context, actor models.User, id uuid.UUID) ([]models.InvoiceStatusChange, error)
	RenderPDF(ctx context.Context, actor models.User, id uuid.UUID, w io.Writer) error
}

type sessionService interface {
	Stats(ctx context.Context) (models.BlacklistStats, error)
	PerformMaintenance(ctx context.Context) (models.MaintenanceReport, error)
}
