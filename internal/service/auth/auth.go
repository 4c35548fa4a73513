package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/bufete/internal/apperrors"
	"github.com/nkiryanov/bufete/internal/logger"
	"github.com/nkiryanov/bufete/internal/models"
)

const (
	defaultAccessHeaderName  = "Authorization"
	defaultAccessAuthScheme  = "Bearer"
	defaultRefreshCookieName = "refreshtoken"
)

// Interface to create or compare user password hashes
type PasswordHasher interface {
	// Generate Hash from password
	Hash(password string) (string, error)

	// Compare known hashedPassword and user provided password
	// Must be protected against timing attacks
	Compare(hashedPassword string, password string) error
}

type tokenManager interface {
	GeneratePair(ctx context.Context, user models.User) (models.TokenPair, error)
	UseRefresh(ctx context.Context, refresh string) (models.RefreshToken, error)
	GetRefresh(ctx context.Context, refresh string) (models.RefreshToken, error)
	ParseAccess(ctx context.Context, access string) (models.AccessClaims, error)
}

type userService interface {
	CreateUser(ctx context.Context, nu models.NewUser) (models.User, error)
	VerifyPassword(ctx context.Context, username string, password string) (models.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (models.User, error)
}

type sessionService interface {
	Blacklist(ctx context.Context, token string, userID uuid.UUID, expiresAt time.Time) error
	IsBlacklisted(ctx context.Context, token string) (bool, error)
	BlacklistAllForUser(ctx context.Context, userID uuid.UUID) (int, error)
	RevokeRefresh(ctx context.Context, token string) error
}

type Config struct {
	// Header to read and write access token, 'Authorization' by default
	AccessHeaderName string

	// Scheme of the access header value, 'Bearer' by default
	AccessAuthScheme string

	// Cookie with refresh token, 'refreshtoken' by default
	RefreshCookieName string

	// Set Secure flag on refresh cookie, use when served over https
	SecureCookie bool
}

// Auth service
type AuthService struct {
	accessHeaderName  string
	accessAuthScheme  string
	refreshCookieName string
	secureCookie      bool

	tokens   tokenManager
	users    userService
	sessions sessionService
	logger   logger.Logger
}

func NewService(cfg Config, tokens tokenManager, users userService, sessions sessionService, l logger.Logger) (*AuthService, error) {
	setDefault := func(field *string, def string) {
		if *field == "" {
			*field = def
		}
	}
	setDefault(&cfg.AccessHeaderName, defaultAccessHeaderName)
	setDefault(&cfg.AccessAuthScheme, defaultAccessAuthScheme)
	setDefault(&cfg.RefreshCookieName, defaultRefreshCookieName)

	if tokens == nil || users == nil || sessions == nil {
		return nil, errors.New("token manager, user and session services must not be nil")
	}

	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &AuthService{
		accessHeaderName:  cfg.AccessHeaderName,
		accessAuthScheme:  cfg.AccessAuthScheme,
		refreshCookieName: cfg.RefreshCookieName,
		secureCookie:      cfg.SecureCookie,
		tokens:            tokens,
		users:             users,
		sessions:          sessions,
		logger:            l.WithGroup("auth"),
	}, nil
}

// Register client with its profile and issue token pair
// Staff accounts are created by admins, never registered
func (s *AuthService) Register(ctx context.Context, username string, password string, profile models.ClientProfile) (models.TokenPair, error) {
	user, err := s.users.CreateUser(ctx, models.NewUser{
		Username: username,
		Password: password,
		Role:     models.RoleClient,
		Profile:  &profile,
	})
	if err != nil {
		return models.TokenPair{}, err
	}

	pair, err := s.tokens.GeneratePair(ctx, user)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	return pair, nil
}

func (s *AuthService) Login(ctx context.Context, username string, password string) (models.TokenPair, error) {
	user, err := s.users.VerifyPassword(ctx, username, password)
	if err != nil {
		return models.TokenPair{}, err
	}

	pair, err := s.tokens.GeneratePair(ctx, user)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	return pair, nil
}

// Exchange refresh token for new pair; the used one can't be used again
func (s *AuthService) RefreshPair(ctx context.Context, refresh string) (models.TokenPair, error) {
	blacklisted, err := s.sessions.IsBlacklisted(ctx, refresh)
	if err != nil {
		return models.TokenPair{}, err
	}
	if blacklisted {
		return models.TokenPair{}, apperrors.ErrRefreshTokenRevoked
	}

	token, err := s.tokens.UseRefresh(ctx, refresh)
	if err != nil {
		return models.TokenPair{}, err
	}

	user, err := s.users.GetUser(ctx, token.UserID)
	if err != nil {
		return models.TokenPair{}, err
	}

	return s.tokens.GeneratePair(ctx, user)
}

// Authenticate request by access token
// Blacklist lookup failure rejects the request
func (s *AuthService) Authenticate(ctx context.Context, r *http.Request) (models.Session, error) {
	access, err := s.accessFromRequest(r)
	if err != nil {
		return models.Session{}, err
	}

	claims, err := s.tokens.ParseAccess(ctx, access)
	if err != nil {
		return models.Session{}, err
	}

	blacklisted, err := s.sessions.IsBlacklisted(ctx, access)
	if err != nil {
		s.logger.Error("blacklist lookup failed, rejecting request", "user_id", claims.UserID, "error", err)
		return models.Session{}, err
	}
	if blacklisted {
		return models.Session{}, apperrors.ErrAccessTokenRevoked
	}

	user, err := s.users.GetUser(ctx, claims.UserID)
	if err != nil {
		return models.Session{}, err
	}

	return models.Session{User: user, AccessToken: access, Claims: claims}, nil
}

// Terminate current session: blacklist access token and presented refresh token
// Refresh token of other user or unknown one is ignored
func (s *AuthService) Logout(ctx context.Context, sess models.Session, refresh string) error {
	err := s.sessions.Blacklist(ctx, sess.AccessToken, sess.User.ID, sess.Claims.ExpiresAt)
	if err != nil {
		return err
	}

	if refresh == "" {
		return nil
	}

	token, err := s.tokens.GetRefresh(ctx, refresh)
	switch {
	case errors.Is(err, apperrors.ErrRefreshTokenNotFound):
		return nil
	case err != nil:
		return err
	case token.UserID != sess.User.ID:
		s.logger.Warn("logout with refresh token of other user", "user_id", sess.User.ID)
		return nil
	}

	if err := s.sessions.Blacklist(ctx, refresh, token.UserID, token.ExpiresAt); err != nil {
		return err
	}

	return s.sessions.RevokeRefresh(ctx, refresh)
}

// Terminate every session of the user
func (s *AuthService) LogoutAll(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.sessions.BlacklistAllForUser(ctx, userID)
}

// Set auth tokens: access to header, refresh to http only cookie
func (s *AuthService) SetTokens(w http.ResponseWriter, pair models.TokenPair) {
	w.Header().Set(s.accessHeaderName, s.accessAuthScheme+" "+pair.Access.Value)

	http.SetCookie(w, &http.Cookie{
		Name:     s.refreshCookieName,
		Value:    pair.Refresh.Value,
		Path:     "/",
		MaxAge:   int(time.Until(pair.Refresh.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}

// Remove refresh cookie from client
func (s *AuthService) ClearTokens(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.refreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}

// Get refresh token from request cookie
func (s *AuthService) GetRefresh(r *http.Request) (string, error) {
	cookie, err := r.Cookie(s.refreshCookieName)
	if err != nil {
		return "", apperrors.ErrRefreshTokenNotFound
	}
	if cookie.Value == "" {
		return "", apperrors.ErrRefreshTokenNotFound
	}

	return cookie.Value, nil
}

func (s *AuthService) accessFromRequest(r *http.Request) (string, error) {
	header := r.Header.Get(s.accessHeaderName)
	scheme, token, found := strings.Cut(header, " ")

	if !found || !strings.EqualFold(scheme, s.accessAuthScheme) || strings.TrimSpace(token) == "" {
		return "", errors.New("access token not found in request")
	}

	return strings.TrimSpace(token), nil
}
