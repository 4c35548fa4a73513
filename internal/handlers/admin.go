package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/bufete/internal/handlers/render"
	"github.com/nkiryanov/bufete/internal/logger"
	"github.com/nkiryanov/bufete/internal/models"
)

// Create user of any role; profile is required for clients
func handleCreateUser(userService userService, l logger.Logger) http.Handler {
	type request struct {
		Login    string          `json:"login" validate:"required,min=2,max=50"`
		Password string          `json:"password" validate:"required,min=8"`
		Role     models.Role     `json:"role" validate:"required,oneof=admin lawyer client"`
		Profile  *profileRequest `json:"profile" validate:"required_if=Role client"`
	}
	type response struct {
		ID       uuid.UUID   `json:"id"`
		Username string      `json:"username"`
		Role     models.Role `json:"role"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		nu := models.NewUser{Username: data.Login, Password: data.Password, Role: data.Role}
		if data.Profile != nil {
			profile := data.Profile.toModel()
			nu.Profile = &profile
		}

		user, err := userService.CreateUser(r.Context(), nu)
		if err != nil {
			render.AppError(w, err, l)
			return
		}

		l.Info("user created by admin", "user_id", user.ID, "role", user.Role)
		render.JSONWithStatus(w, response{ID: user.ID, Username: user.Username, Role: user.Role}, http.StatusCreated)
	})
}

func handleTokenStats(sessionService sessionService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stats, err := sessionService.Stats(r.Context())
		if err != nil {
			render.AppError(w, err, l)
			return
		}

		render.JSON(w, stats)
	})
}

func handleTokenMaintenance(sessionService sessionService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		report, err := sessionService.PerformMaintenance(r.Context())
		if err != nil {
			render.AppError(w, err, l)
			return
		}

		render.JSON(w, report)
	})
}
