package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"

	"github.com/nkiryanov/bufete/internal/apperrors"
	"github.com/nkiryanov/bufete/internal/models"
	"github.com/nkiryanov/bufete/internal/repository"
	"github.com/nkiryanov/bufete/internal/service/auth"
	"github.com/nkiryanov/bufete/internal/service/validate"
)

// Phone numbers without country code are treated as Spanish
const defaultPhoneRegion = "ES"

type UserService struct {
	hasher  auth.PasswordHasher
	storage repository.Storage

	// Compared against when user not found, so missing users take as long as wrong passwords
	dummyHash func() string
}

func NewService(hasher auth.PasswordHasher, storage repository.Storage) *UserService {
	if hasher == nil {
		hasher = auth.BcryptHasher{}
	}

	return &UserService{
		hasher:  hasher,
		storage: storage,
		dummyHash: sync.OnceValue(func() string {
			hash, _ := hasher.Hash(uuid.NewString())
			return hash
		}),
	}
}

// Create user; users with role client get their profile in the same transaction
func (s *UserService) CreateUser(ctx context.Context, nu models.NewUser) (models.User, error) {
	var user models.User

	if !nu.Role.Valid() {
		return user, fmt.Errorf("%w: unknown role %q", apperrors.ErrUserInvalid, nu.Role)
	}
	if nu.Password == "" {
		return user, fmt.Errorf("%w: password must not be empty", apperrors.ErrUserInvalid)
	}

	var profile models.ClientProfile
	if nu.Role == models.RoleClient {
		if nu.Profile == nil {
			return user, apperrors.ErrClientProfileNeeded
		}

		var err error
		profile, err = NormalizeProfile(*nu.Profile)
		if err != nil {
			return user, err
		}
	}

	hash, err := s.hasher.Hash(nu.Password)
	if err != nil {
		return user, fmt.Errorf("can't use this as password, Err: %w", err)
	}

	err = s.storage.InTx(ctx, func(storage repository.Storage) error {
		user, err = storage.User().CreateUser(ctx, nu.Username, hash, nu.Role)
		if err != nil {
			return err
		}

		if nu.Role != models.RoleClient {
			return nil
		}

		_, err = storage.Client().CreateClient(ctx, profileToClient(profile, &user.ID))
		return err
	})
	if err != nil {
		return models.User{}, fmt.Errorf("can't create user. Err: %w", err)
	}

	return user, nil
}

// Return user if password matches
// Has to return apperrors.ErrUserNotFound both for unknown user and wrong password
func (s *UserService) VerifyPassword(ctx context.Context, username string, password string) (models.User, error) {
	user, err := s.storage.User().GetUserByUsername(ctx, username)

	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrUserNotFound):
		_ = s.hasher.Compare(s.dummyHash(), password)
		return models.User{}, apperrors.ErrUserNotFound
	default:
		return models.User{}, err
	}

	if err := s.hasher.Compare(user.HashedPassword, password); err != nil {
		return models.User{}, apperrors.ErrUserNotFound
	}

	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, id uuid.UUID) (models.User, error) {
	return s.storage.User().GetUserByID(ctx, id)
}

// Create client without login, staff only
func (s *UserService) CreateClient(ctx context.Context, actor models.User, p models.ClientProfile) (models.Client, error) {
	if !actor.Role.IsStaff() {
		return models.Client{}, apperrors.ErrForbidden
	}

	profile, err := NormalizeProfile(p)
	if err != nil {
		return models.Client{}, err
	}

	return s.storage.Client().CreateClient(ctx, profileToClient(profile, nil))
}

// Staff see any client, client sees only own profile
func (s *UserService) GetClient(ctx context.Context, actor models.User, id uuid.UUID) (models.Client, error) {
	client, err := s.storage.Client().GetClient(ctx, id)
	if err != nil {
		return client, err
	}

	if !actor.Role.IsStaff() && (client.UserID == nil || *client.UserID != actor.ID) {
		return models.Client{}, apperrors.ErrClientNotFound
	}

	return client, nil
}

// Client profile of the user with role client
func (s *UserService) ClientOf(ctx context.Context, user models.User) (models.Client, error) {
	return s.storage.Client().GetClientByUserID(ctx, user.ID)
}

func (s *UserService) ListClients(ctx context.Context, actor models.User, limit int, offset int) ([]models.Client, error) {
	if !actor.Role.IsStaff() {
		return nil, apperrors.ErrForbidden
	}

	return s.storage.Client().ListClients(ctx, limit, offset)
}

// Validate tax id and bring phone to E.164
func NormalizeProfile(p models.ClientProfile) (models.ClientProfile, error) {
	p.FullName = strings.TrimSpace(p.FullName)
	p.Email = strings.TrimSpace(p.Email)
	p.Address = strings.TrimSpace(p.Address)

	if p.FullName == "" {
		return p, fmt.Errorf("%w: full name must not be empty", apperrors.ErrClientInvalid)
	}

	p.TaxID = validate.NormalizeTaxID(p.TaxID)
	if err := validate.NIF(p.TaxID); err != nil {
		return p, fmt.Errorf("%w: %w", apperrors.ErrTaxIDInvalid, err)
	}

	if strings.TrimSpace(p.Phone) != "" {
		phone, err := NormalizePhone(p.Phone)
		if err != nil {
			return p, err
		}
		p.Phone = phone
	}

	return p, nil
}

func NormalizePhone(raw string) (string, error) {
	num, err := phonenumbers.Parse(raw, defaultPhoneRegion)
	if err != nil {
		return "", fmt.Errorf("%w: %w", apperrors.ErrPhoneInvalid, err)
	}

	if !phonenumbers.IsValidNumber(num) {
		return "", apperrors.ErrPhoneInvalid
	}

	return phonenumbers.Format(num, phonenumbers.E164), nil
}

func profileToClient(p models.ClientProfile, userID *uuid.UUID) models.Client {
	return models.Client{
		UserID:   userID,
		FullName: p.FullName,
		TaxID:    p.TaxID,
		Email:    p.Email,
		Phone:    p.Phone,
		Address:  p.Address,
	}
}
