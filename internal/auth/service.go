package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"github.com/fetchquest/backend/internal/models"
	"github.com/fetchquest/backend/internal/rewards"
)

var (
	// ErrDuplicateEmail is returned when registering with an email that already exists.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrInvalidCredentials is returned by Login for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken is returned when a bearer token fails validation.
	ErrInvalidToken = errors.New("invalid token")
)

const tokenTTL = 24 * time.Hour

// Store persists accounts for the auth service.
type Store interface {
	Create(ctx context.Context, p *models.Profile, passwordHash string) error
	GetCredentials(ctx context.Context, email string) (userID, passwordHash string, err error)
}

type Service interface {
	Register(ctx context.Context, email, password, displayName string) (*models.Profile, error)
	Login(ctx context.Context, email, password string) (string, error)
	ValidateToken(ctx context.Context, token string) (string, error)
}

type service struct {
	repo   Store
	secret []byte
	now    func() time.Time
}

func NewService(repo Store, secret string) *service {
	return &service{repo: repo, secret: []byte(secret), now: time.Now}
}

// Ensure service implements Service at compile time.
var _ Service = (*service)(nil)

// Register creates the account together with a zeroed reward profile.
func (s *service) Register(ctx context.Context, email, password, displayName string) (*models.Profile, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	now := s.now()
	p := &models.Profile{
		ID:             uuid.NewString(),
		Email:          strings.ToLower(strings.TrimSpace(email)),
		DisplayName:    displayName,
		Level:          rewards.LevelFromPoints(0),
		PaymentMethods: []models.PaymentMethod{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, p, string(hash)); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}
	return p, nil
}

func (s *service) Login(ctx context.Context, email, password string) (string, error) {
	userID, hash, err := s.repo.GetCredentials(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return "", err
	}
	if userID == "" {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return s.issueToken(userID)
}

func (s *service) issueToken(userID string) (string, error) {
	c := jwt.RegisteredClaims{
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(s.now().Add(tokenTTL)),
		IssuedAt:  jwt.NewNumericDate(s.now()),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(s.secret)
}

func (s *service) ValidateToken(ctx context.Context, token string) (string, error) {
	tok, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", ErrInvalidToken
	}
	c, ok := tok.Claims.(*jwt.RegisteredClaims)
	if !ok || !tok.Valid || c.Subject == "" {
		return "", ErrInvalidToken
	}
	return c.Subject, nil
}
