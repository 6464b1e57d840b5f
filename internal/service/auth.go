package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coder/quartz"
	"github.com/golang-jwt/jwt/v5"

	"github.com/tallyhq/tally/internal/config"
	"github.com/tallyhq/tally/internal/credential"
	"github.com/tallyhq/tally/internal/model"
)

// DefaultSessionTTL is the lifetime of an owner session token.
const DefaultSessionTTL = 24 * time.Hour

const jwtIssuer = "tally"

// OwnerStore is the persistence surface used by AuthService.
type OwnerStore interface {
	CreateOwner(ctx context.Context, owner *model.Owner) error
	GetOwner(ctx context.Context, id string) (*model.Owner, error)
	GetOwnerByEmail(ctx context.Context, email string) (*model.Owner, error)
	ListOwners(ctx context.Context) ([]model.Owner, error)
	UpdateOwnerLastLogin(ctx context.Context, id string, at time.Time) error
}

// JWTPrincipal is the owner identity carried by a session token.
type JWTPrincipal struct {
	OwnerID string
	Email   string
}

// Session is returned by a successful login.
type Session struct {
	SessionToken string `json:"session_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	OwnerID      string `json:"owner_id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
}

// AuthService manages owner accounts and their session tokens. The JWT
// secret is service-wide and unrelated to per-key secrets.
type AuthService struct {
	store     OwnerStore
	hasher    *credential.Hasher
	jwtSecret []byte
	ttl       time.Duration
	clock     quartz.Clock
}

func NewAuthService(store OwnerStore, jwtSecret string, ttl time.Duration, clock quartz.Clock) *AuthService {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &AuthService{
		store:     store,
		hasher:    credential.NewHasher(credential.DefaultCost),
		jwtSecret: []byte(jwtSecret),
		ttl:       ttl,
		clock:     clock,
	}
}

// CreateOwner registers an owner with a bcrypt-hashed password.
func (s *AuthService) CreateOwner(ctx context.Context, email, name, password string) (*model.Owner, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrBadRequest)
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	owner := &model.Owner{Email: email, Name: name, PasswordHash: hash}
	if err := s.store.CreateOwner(ctx, owner); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return owner, nil
}

// ListOwners returns every owner account.
func (s *AuthService) ListOwners(ctx context.Context) ([]model.Owner, error) {
	owners, err := s.store.ListOwners(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return owners, nil
}

// Login verifies an owner's password and issues a session token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	owner, err := s.store.GetOwnerByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if !errors.Is(err, config.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrInternal, err)
		}
		return nil, ErrUnauthorized
	}
	if !s.hasher.Verify(password, owner.PasswordHash) {
		return nil, ErrUnauthorized
	}

	tok, err := s.IssueJWT(ctx, owner.ID, owner.Email)
	if err != nil {
		return nil, fmt.Errorf("%w: issue session: %v", ErrInternal, err)
	}

	// Best effort; a failed timestamp update must not block login.
	_ = s.store.UpdateOwnerLastLogin(ctx, owner.ID, s.clock.Now())

	return &Session{
		SessionToken: tok,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.ttl.Seconds()),
		OwnerID:      owner.ID,
		Email:        owner.Email,
		Name:         owner.Name,
	}, nil
}

// ValidateJWT verifies a session token and returns the owner identity.
func (s *AuthService) ValidateJWT(ctx context.Context, tokenStr string) (*JWTPrincipal, error) {
	claims := &jwtClaims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	},
		jwt.WithIssuer(jwtIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return s.clock.Now() }),
	)
	if err != nil || !token.Valid || claims.OwnerID == "" {
		return nil, ErrUnauthorized
	}

	return &JWTPrincipal{
		OwnerID: claims.OwnerID,
		Email:   claims.Email,
	}, nil
}

// IssueJWT creates a new signed session token for the given owner.
func (s *AuthService) IssueJWT(ctx context.Context, ownerID, email string) (string, error) {
	now := s.clock.Now()
	claims := jwtClaims{
		OwnerID: ownerID,
		Email:   email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			Issuer:    jwtIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

type jwtClaims struct {
	OwnerID string `json:"owner_id"`
	Email   string `json:"email"`
	jwt.RegisteredClaims
}
