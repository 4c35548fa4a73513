package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/bufete/internal/apperrors"
	"github.com/nkiryanov/bufete/internal/logger"
	"github.com/nkiryanov/bufete/internal/models"
	"github.com/nkiryanov/bufete/internal/repository/postgres"
	"github.com/nkiryanov/bufete/internal/service/auth"
	"github.com/nkiryanov/bufete/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/bufete/internal/service/session"
	"github.com/nkiryanov/bufete/internal/service/user"
	"github.com/nkiryanov/bufete/internal/testutil"
)

var errBlacklistDown = errors.New("blacklist is down")

// Session service with broken blacklist lookup
type unavailableBlacklist struct {
	*session.Service
}

func (unavailableBlacklist) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	return false, errBlacklistDown
}

var profile = models.ClientProfile{
	FullName: "María García",
	TaxID:    "12345678Z",
	Email:    "maria@example.com",
	Phone:    "612 34 56 78",
}

func Test_Auth(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	// Begin new db transaction and create new AuthService
	// Rollback transaction when test stops
	withTx := func(dbpool *pgxpool.Pool, accessTTL time.Duration, refreshTTL time.Duration, t *testing.T, fn func(s *auth.AuthService)) {
		testutil.WithTx(dbpool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)

			tokenManager, err := tokenmanager.New(
				tokenmanager.Config{
					SecretKey:  "test-secret-key",
					AccessTTL:  accessTTL,
					RefreshTTL: refreshTTL,
				},
				storage.Refresh(),
			)
			require.NoError(t, err, "token manager should be created without errors")

			sessions, err := session.NewService(storage, logger.NewNoOpLogger())
			require.NoError(t, err)

			s, err := auth.NewService(auth.Config{}, tokenManager, user.NewService(nil, storage), sessions, logger.NewNoOpLogger())
			require.NoError(t, err, "auth service could't be started", err)

			fn(s)
		})
	}

	// Request authenticated with access token of the pair
	withAccess := func(pair models.TokenPair) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer "+pair.Access.Value)
		return r
	}

	t.Run("new fails without deps", func(t *testing.T) {
		_, err := auth.NewService(auth.Config{}, nil, nil, nil, nil)
		require.Error(t, err)
	})

	t.Run("Register", func(t *testing.T) {
		t.Run("new user ok", func(t *testing.T) {
			withTx(pg.Pool, 15*time.Minute, 24*time.Hour, t, func(s *auth.AuthService) {
				pair, err := s.Register(t.Context(), "maria", "pwd", profile)

				require.NoError(t, err, "registering new user should be ok")
				require.NotEmpty(t, pair.Access.Value, "access token should not be empty")
				require.NotEmpty(t, pair.Refresh.Value, "refresh token should not be empty")

				sess, err := s.Authenticate(t.Context(), withAccess(pair))
				require.NoError(t, err)
				require.Equal(t, models.RoleClient, sess.User.Role, "registration always creates clients")
			})
		})

		t.Run("fail if user exists", func(t *testing.T) {
			withTx(pg.Pool, 15*time.Minute, 24*time.Hour, t, func(s *auth.AuthService) {
				_, err := s.Register(t.Context(), "maria", "pwd", profile)
				require.NoError(t, err, "no error has should happen if user not exists")

				other := profile
				other.TaxID = "87654321X"
				_, err = s.Register(t.Context(), "maria", "other-pwd", other)

				require.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
			})
		})

		t.Run("fail if tax id invalid", func(t *testing.T) {
			withTx(pg.Pool, 15*time.Minute, 24*time.Hour, t, func(s *auth.AuthService) {
				invalid := profile
				invalid.TaxID = "12345678A"

				_, err := s.Register(t.Context(), "maria", "pwd", invalid)

				require.ErrorIs(t, err, apperrors.ErrTaxIDInvalid)
			})
		})
	})

	t.Run("Login", func(t *testing.T) {
		t.Run("existing user ok", func(t *testing.T) {
			withTx(pg.Pool, 15*time.Minute, 24*time.Hour, t, func(s *auth.AuthService) {
				_, err := s.Register(t.Context(), "maria", "pwd", profile)
				require.NoError(t, err)

				pair, err := s.Login(t.Context(), "maria", "pwd")

				require.NoError(t, err)
				require.NotEmpty(t, pair.Access.Value, "access token should not be empty")
				require.NotEmpty(t, pair.Refresh.Value, "refresh token should not be empty")
			})
		})

		tests := []struct {
			name        string
			login       string
			password    string
			expectedErr error
		}{
			{
				name:        "login fail if wrong password",
				login:       "maria",
				password:    "wrong",
				expectedErr: apperrors.ErrUserNotFound,
			},
			{
				name:        "login fail if user not exists",
				login:       "not-existed-user",
				password:    "password",
				expectedErr: apperrors.ErrUserNotFound,
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				withTx(pg.Pool, 15*time.Minute, 24*time.Hour, t, func(s *auth.AuthService) {
					_, err := s.Register(t.Context(), "maria", "pwd", profile)
					require.NoError(t, err)

					_, err = s.Login(t.Context(), tt.login, tt.password)

					require.ErrorIs(t, err, tt.expectedErr)
				})
			})
		}
	})

	t.Run("RefreshPair", func(t *testing.T) {
		t.Run("refresh once ok", func(t *testing.T) {
			withTx(pg.Pool, 15*time.Minute, 24*time.Hour, t, func(s *auth.AuthService) {
				initialPair, err := s.Register(t.Context(), "maria", "pwd", profile)
				require.NoError(t, err)

				newPair, err := s.RefreshPair(t.Context(), initialPair.Refresh.Value)

				require.NoError(t, err)
				require.NotEqual(t, initialPair.Access.Value, newPair.Access.Value, "new access token should be different")
				require.NotEqual(t, initialPair.Refresh.Value, newPair.Refresh.Value, "new refresh token should be different")
			})
		})

		t.Run("fail if used once", func(t *testing.T) {
			withTx(pg.Pool, 15*time.Minute, 24*time.Hour, t, func(s *auth.AuthService) {
				initialPair, err := s.Register(t.Context(), "maria", "pwd", profile)
				require.NoError(t, err)

				_, err = s.RefreshPair(t.Context(), initialPair.Refresh.Value)
				require.NoError(t, err)

				_, err = s.RefreshPair(t.Context(), initialPair.Refresh.Value)
				require.ErrorIs(t, err, apperrors.ErrRefreshTokenIsUsed, "should return error if token already used")
			})
		})

		t.Run("fail if expired", func(t *testing.T) {
			withTx(pg.Pool, 1*time.Second, 1*time.Second, t, func(s *auth.AuthService) {
				initialPair, err := s.Register(t.Context(), "maria", "pwd", profile)
				require.NoError(t, err)

				// Move time forward to make sure refresh token is expired
				time.Sleep(time.Second)

				_, err = s.RefreshPair(t.Context(), initialPair.Refresh.Value)
				require.ErrorIs(t, err, apperrors.ErrRefreshTokenExpired, "should return error if token expired")
			})
		})
	})

	t.Run("Authenticate", func(t *testing.T) {
		t.Run("no header", func(t *testing.T) {
			withTx(pg.Pool, 15*time.Minute, 24*time.Hour, t, func(s *auth.AuthService) {
				_, err := s.Authenticate(t.Context(), httptest.NewRequest(http.MethodGet, "/", nil))
				require.Error(t, err)
			})
		})

		t.Run("wrong scheme", func(t *testing.T) {
			withTx(pg.Pool, 15*time.Minute, 24*time.Hour, t, func(s *auth.AuthService) {
				pair, err := s.Register(t.Context(), "maria", "pwd", profile)
				require.NoError(t, err)
				r := httptest.NewRequest(http.MethodGet, "/", nil)
				r.Header.Set("Authorization", "Basic "+pair.Access.Value)

				_, err = s.Authenticate(t.Context(), r)
				require.Error(t, err)
			})
		})

		t.Run("blacklist lookup fails closed", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				storage := postgres.NewStorage(tx)
				tokenManager, err := tokenmanager.New(tokenmanager.Config{
					SecretKey:  "test-secret-key",
					AccessTTL:  15 * time.Minute,
					RefreshTTL: 24 * time.Hour,
				}, storage.Refresh())
				require.NoError(t, err)
				sessions, err := session.NewService(storage, logger.NewNoOpLogger())
				require.NoError(t, err)

				s, err := auth.NewService(auth.Config{}, tokenManager, user.NewService(nil, storage), unavailableBlacklist{sessions}, logger.NewNoOpLogger())
				require.NoError(t, err)
				pair, err := s.Register(t.Context(), "maria", "pwd", profile)
				require.NoError(t, err)

				sess, err := s.Authenticate(t.Context(), withAccess(pair))

				require.ErrorIs(t, err, errBlacklistDown, "request must be rejected when blacklist can't be checked")
				require.Equal(t, models.Session{}, sess)
			})
		})
	})

	t.Run("Logout", func(t *testing.T) {
		t.Run("blacklists access and refresh", func(t *testing.T) {
			withTx(pg.Pool, 15*time.Minute, 24*time.Hour, t, func(s *auth.AuthService) {
				pair, err := s.Register(t.Context(), "maria", "pwd", profile)
				require.NoError(t, err)
				sess, err := s.Authenticate(t.Context(), withAccess(pair))
				require.NoError(t, err)

				err = s.Logout(t.Context(), sess, pair.Refresh.Value)
				require.NoError(t, err)

				_, err = s.Authenticate(t.Context(), withAccess(pair))
				require.ErrorIs(t, err, apperrors.ErrAccessTokenRevoked, "access token must be rejected after logout")

				_, err = s.RefreshPair(t.Context(), pair.Refresh.Value)
				require.ErrorIs(t, err, apperrors.ErrRefreshTokenRevoked, "refresh token must be rejected after logout")
			})
		})

		t.Run("other sessions stay alive", func(t *testing.T) {
			withTx(pg.Pool, 15*time.Minute, 24*time.Hour, t, func(s *auth.AuthService) {
				laptop, err := s.Register(t.Context(), "maria", "pwd", profile)
				require.NoError(t, err)
				phone, err := s.Login(t.Context(), "maria", "pwd")
				require.NoError(t, err)
				sess, err := s.Authenticate(t.Context(), withAccess(laptop))
				require.NoError(t, err)

				require.NoError(t, s.Logout(t.Context(), sess, laptop.Refresh.Value))

				_, err = s.Authenticate(t.Context(), withAccess(phone))
				require.NoError(t, err)
				_, err = s.RefreshPair(t.Context(), phone.Refresh.Value)
				require.NoError(t, err)
			})
		})

		t.Run("unknown refresh ignored", func(t *testing.T) {
			withTx(pg.Pool, 15*time.Minute, 24*time.Hour, t, func(s *auth.AuthService) {
				pair, err := s.Register(t.Context(), "maria", "pwd", profile)
				require.NoError(t, err)
				sess, err := s.Authenticate(t.Context(), withAccess(pair))
				require.NoError(t, err)

				err = s.Logout(t.Context(), sess, "not-existed")
				require.NoError(t, err)
			})
		})
	})

	t.Run("LogoutAll", func(t *testing.T) {
		withTx(pg.Pool, 15*time.Minute, 24*time.Hour, t, func(s *auth.AuthService) {
			laptop, err := s.Register(t.Context(), "maria", "pwd", profile)
			require.NoError(t, err)
			phone, err := s.Login(t.Context(), "maria", "pwd")
			require.NoError(t, err)
			rotated, err := s.RefreshPair(t.Context(), phone.Refresh.Value)
			require.NoError(t, err)

			other := profile
			other.TaxID = "87654321X"
			stranger, err := s.Register(t.Context(), "pedro", "pwd", other)
			require.NoError(t, err)

			sess, err := s.Authenticate(t.Context(), withAccess(laptop))
			require.NoError(t, err)

			terminated, err := s.LogoutAll(t.Context(), sess.User.ID)
			require.NoError(t, err)
			require.Equal(t, 3, terminated, "rotated session still has live access token")

			for _, pair := range []models.TokenPair{laptop, phone, rotated} {
				_, err = s.Authenticate(t.Context(), withAccess(pair))
				require.ErrorIs(t, err, apperrors.ErrAccessTokenRevoked)

				_, err = s.RefreshPair(t.Context(), pair.Refresh.Value)
				require.ErrorIs(t, err, apperrors.ErrRefreshTokenRevoked)
			}

			_, err = s.Authenticate(t.Context(), withAccess(stranger))
			require.NoError(t, err, "sessions of other users must stay alive")
		})
	})

	t.Run("SetTokens and GetRefresh", func(t *testing.T) {
		withTx(pg.Pool, 15*time.Minute, 24*time.Hour, t, func(s *auth.AuthService) {
			pair, err := s.Register(t.Context(), "maria", "pwd", profile)
			require.NoError(t, err)

			w := httptest.NewRecorder()
			s.SetTokens(w, pair)
			resp := w.Result()
			defer resp.Body.Close() // nolint:errcheck

			require.Equal(t, "Bearer "+pair.Access.Value, resp.Header.Get("Authorization"))
			require.Len(t, resp.Cookies(), 1)
			cookie := resp.Cookies()[0]
			require.Equal(t, "refreshtoken", cookie.Name)
			require.True(t, cookie.HttpOnly)
			require.Equal(t, http.SameSiteStrictMode, cookie.SameSite)

			r := httptest.NewRequest(http.MethodPost, "/", nil)
			r.AddCookie(cookie)
			refresh, err := s.GetRefresh(r)
			require.NoError(t, err)
			require.Equal(t, pair.Refresh.Value, refresh)

			_, err = s.GetRefresh(httptest.NewRequest(http.MethodPost, "/", nil))
			require.ErrorIs(t, err, apperrors.ErrRefreshTokenNotFound)
		})
	})
}
