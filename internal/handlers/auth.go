package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/bufete/internal/apperrors"
	"github.com/nkiryanov/bufete/internal/handlers/render"
	"github.com/nkiryanov/bufete/internal/handlers/userctx"
	"github.com/nkiryanov/bufete/internal/logger"
	"github.com/nkiryanov/bufete/internal/models"
)

type messageResponse struct {
	Message string `json:"message"`
}

type profileRequest struct {
	FullName string `json:"full_name" validate:"required,max=200"`
	TaxID    string `json:"tax_id" validate:"required,nif"`
	Email    string `json:"email" validate:"omitempty,email"`
	Phone    string `json:"phone" validate:"omitempty,max=32"`
	Address  string `json:"address" validate:"max=500"`
}

func (p profileRequest) toModel() models.ClientProfile {
	return models.ClientProfile{
		FullName: p.FullName,
		TaxID:    p.TaxID,
		Email:    p.Email,
		Phone:    p.Phone,
		Address:  p.Address,
	}
}

func handleRegister(authService authService, l logger.Logger) http.Handler {
	type request struct {
		Login    string `json:"login" validate:"required,min=2,max=50"`
		Password string `json:"password" validate:"required,min=8"`
		profileRequest
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		pair, err := authService.Register(r.Context(), data.Login, data.Password, data.toModel())
		if err != nil {
			render.AppError(w, err, l)
			return
		}

		authService.SetTokens(w, pair)
		render.JSON(w, messageResponse{Message: "User registered successfully"})
	})
}

func handleLogin(authService authService, l logger.Logger) http.Handler {
	type request struct {
		Login    string `json:"login" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		pair, err := authService.Login(r.Context(), data.Login, data.Password)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrUserNotFound):
				render.ServiceError(w, "User not found", http.StatusUnauthorized)
			default:
				l.Error("login failed", "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		authService.SetTokens(w, pair)
		render.JSON(w, messageResponse{Message: "User logged in successfully"})
	})
}

func handleTokenRefresh(authService authService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refresh, err := authService.GetRefresh(r)
		if err != nil {
			render.ServiceError(w, "Refresh token not found", http.StatusUnauthorized)
			return
		}

		pair, err := authService.RefreshPair(r.Context(), refresh)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrRefreshTokenExpired):
				render.ServiceError(w, "Refresh token expired", http.StatusUnauthorized)
			case errors.Is(err, apperrors.ErrRefreshTokenIsUsed):
				render.ServiceError(w, "Refresh token already used", http.StatusUnauthorized)
			case errors.Is(err, apperrors.ErrRefreshTokenRevoked):
				render.ServiceError(w, "Refresh token revoked", http.StatusUnauthorized)
			case errors.Is(err, apperrors.ErrRefreshTokenNotFound), errors.Is(err, apperrors.ErrUserNotFound):
				render.ServiceError(w, "Refresh token not found", http.StatusUnauthorized)
			default:
				l.Error("refresh failed", "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		authService.SetTokens(w, pair)
		render.JSON(w, messageResponse{Message: "Tokens refreshed successfully"})
	})
}

// Terminate current session, refresh cookie is optional
func handleLogout(authService authService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		refresh, _ := authService.GetRefresh(r)
		if err := authService.Logout(r.Context(), sess, refresh); err != nil {
			render.AppError(w, err, l)
			return
		}

		authService.ClearTokens(w)
		render.JSON(w, messageResponse{Message: "Logged out successfully"})
	})
}

func handleLogoutAll(authService authService, l logger.Logger) http.Handler {
	type response struct {
		Message    string `json:"message"`
		Terminated int    `json:"terminated"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		terminated, err := authService.LogoutAll(r.Context(), sess.User.ID)
		if err != nil {
			render.AppError(w, err, l)
			return
		}

		authService.ClearTokens(w)
		render.JSON(w, response{Message: "All sessions terminated", Terminated: terminated})
	})
}

func handleUserMe() http.Handler {
	type response struct {
		ID       uuid.UUID   `json:"id"`
		Username string      `json:"username"`
		Role     models.Role `json:"role"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _ := userctx.UserFromContext(r.Context())
		render.JSON(w, response{ID: user.ID, Username: user.Username, Role: user.Role})
	})
}
