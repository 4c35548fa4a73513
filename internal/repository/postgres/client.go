package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/bufete/internal/apperrors"
	"github.com/nkiryanov/bufete/internal/models"
)

type ClientRepo struct {
	DB DBTX
}

const clientColumns = `id, user_id, created_at, full_name, tax_id, email, phone, address`

const createClient = `-- name: CreateClient
INSERT INTO clients (id, user_id, full_name, tax_id, email, phone, address)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + clientColumns

func (r *ClientRepo) CreateClient(ctx context.Context, c models.Client) (models.Client, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}

	rows, _ := r.DB.Query(ctx, createClient, c.ID, c.UserID, c.FullName, c.TaxID, c.Email, c.Phone, c.Address)
	client, err := pgx.CollectOneRow(rows, rowToClient)

	if err != nil {
		if isUniqueViolation(err) {
			return client, apperrors.ErrClientAlreadyExists
		}
		return client, fmt.Errorf("db error: %w", err)
	}

	return client, nil
}

const getClient = `-- name: GetClient
SELECT ` + clientColumns + ` FROM clients
WHERE id = $1
`

func (r *ClientRepo) GetClient(ctx context.Context, id uuid.UUID) (models.Client, error) {
	rows, _ := r.DB.Query(ctx, getClient, id)
	return collectClient(rows)
}

const getClientByUserID = `-- name: GetClientByUserID
SELECT ` + clientColumns + ` FROM clients
WHERE user_id = $1
`

func (r *ClientRepo) GetClientByUserID(ctx context.Context, userID uuid.UUID) (models.Client, error) {
	rows, _ := r.DB.Query(ctx, getClientByUserID, userID)
	return collectClient(rows)
}

const listClients = `-- name: ListClients
SELECT ` + clientColumns + ` FROM clients
ORDER BY full_name, id
LIMIT $1 OFFSET $2
`

func (r *ClientRepo) ListClients(ctx context.Context, limit int, offset int) ([]models.Client, error) {
	rows, _ := r.DB.Query(ctx, listClients, limit, offset)
	clients, err := pgx.CollectRows(rows, rowToClient)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return clients, nil
}

func collectClient(rows pgx.Rows) (models.Client, error) {
	client, err := pgx.CollectOneRow(rows, rowToClient)

	switch {
	case err == nil:
		return client, nil
	case errors.Is(err, pgx.ErrNoRows):
		return client, apperrors.ErrClientNotFound
	default:
		return client, fmt.Errorf("db error: %w", err)
	}
}

func rowToClient(row pgx.CollectableRow) (models.Client, error) {
	var c models.Client
	err := row.Scan(&c.ID, &c.UserID, &c.CreatedAt, &c.FullName, &c.TaxID, &c.Email, &c.Phone, &c.Address)
	return c, err
}
