package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/bufete/internal/handlers/render"
	"github.com/nkiryanov/bufete/internal/handlers/userctx"
	"github.com/nkiryanov/bufete/internal/logger"
	"github.com/nkiryanov/bufete/internal/models"
)

type clientResponse struct {
	ID        uuid.UUID  `json:"id"`
	UserID    *uuid.UUID `json:"user_id,omitempty"`
	FullName  string     `json:"full_name"`
	TaxID     string     `json:"tax_id"`
	Email     string     `json:"email,omitempty"`
	Phone     string     `json:"phone,omitempty"`
	Address   string     `json:"address,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func toClientResponse(c models.Client) clientResponse {
	return clientResponse{
		ID:        c.ID,
		UserID:    c.UserID,
		FullName:  c.FullName,
		TaxID:     c.TaxID,
		Email:     c.Email,
		Phone:     c.Phone,
		Address:   c.Address,
		CreatedAt: c.CreatedAt,
	}
}

func handleCreateClient(userService userService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, _ := userctx.UserFromContext(r.Context())

		data, err := render.BindAndValidate[profileRequest](w, r)
		if err != nil {
			return
		}

		client, err := userService.CreateClient(r.Context(), actor, data.toModel())
		if err != nil {
			render.AppError(w, err, l)
			return
		}

		render.JSONWithStatus(w, toClientResponse(client), http.StatusCreated)
	})
}

// Client profile of the current user
func handleMyClient(userService userService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _ := userctx.UserFromContext(r.Context())

		client, err := userService.ClientOf(r.Context(), user)
		if err != nil {
			render.AppError(w, err, l)
			return
		}

		render.JSON(w, toClientResponse(client))
	})
}

func handleListClients(userService userService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, _ := userctx.UserFromContext(r.Context())

		limit, offset, ok := pageFromQuery(w, r)
		if !ok {
			return
		}

		clients, err := userService.ListClients(r.Context(), actor, limit, offset)
		if err != nil {
			render.AppError(w, err, l)
			return
		}

		res := make([]clientResponse, 0, len(clients))
		for _, c := range clients {
			res = append(res, toClientResponse(c))
		}
		render.JSON(w, res)
	})
}

func handleGetClient(userService userService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, _ := userctx.UserFromContext(r.Context())

		id, ok := idFromPath(w, r)
		if !ok {
			return
		}

		client, err := userService.GetClient(r.Context(), actor, id)
		if err != nil {
			render.AppError(w, err, l)
			return
		}

		render.JSON(w, toClientResponse(client))
	})
}

// Parse {id} path value, write error response if it is not uuid
func idFromPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		render.ServiceError(w, "Invalid id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// Parse optional 'limit' and 'offset' query params
func pageFromQuery(w http.ResponseWriter, r *http.Request) (limit int, offset int, ok bool) {
	parse := func(name string) (int, bool) {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			return 0, true
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			render.ServiceError(w, "Invalid '"+name+"' query parameter", http.StatusBadRequest)
			return 0, false
		}
		return n, true
	}

	if limit, ok = parse("limit"); !ok {
		return 0, 0, false
	}
	if offset, ok = parse("offset"); !ok {
		return 0, 0, false
	}
	if limit == 0 {
		limit = 50
	}

	return limit, offset, true
}
