// Package identity handles sign-up, sign-in and bearer token verification.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/jakechorley/helpboard/pkg/core/session"
	"github.com/jakechorley/helpboard/pkg/db"
)

const MinPasswordLength = 8

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrInvalidEmail       = errors.New("invalid email address")
)

// Claims are the JWT claims issued on sign-in
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Options configures token issuing
type Options struct {
	Secret   []byte
	TTL      time.Duration
	Issuer   string
	Audience string
	// BcryptCost defaults to bcrypt.DefaultCost
	BcryptCost int
}

// Token is an issued bearer token
type Token struct {
	AccessToken string           `json:"access_token"`
	ExpiresAt   time.Time        `json:"expires_at"`
	Identity    session.Identity `json:"identity"`
}

// Service issues and verifies tokens for identities in store
type Service struct {
	store   db.IdentityStore
	revoker Revoker
	opts    Options
	logger  *zap.Logger
	now     func() time.Time

	validate  *validator.Validate
	dummyHash []byte
}

func NewService(store db.IdentityStore, revoker Revoker, opts Options, logger *zap.Logger) (*Service, error) {
	if len(opts.Secret) == 0 {
		return nil, errors.New("jwt secret is required")
	}
	if opts.TTL <= 0 {
		return nil, errors.New("token ttl must be positive")
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}

	// compared against on unknown emails so both paths cost a bcrypt check
	dummyHash, err := bcrypt.GenerateFromPassword([]byte("helpboard-dummy-password"), opts.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare password hashing: %w", err)
	}

	return &Service{
		store:     store,
		revoker:   revoker,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
		validate:  validator.New(),
		dummyHash: dummyHash,
	}, nil
}

// NormalizeEmail lower-cases and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignUp registers a new identity
func (s *Service) SignUp(ctx context.Context, email, password string) (*db.Identity, error) {
	email = NormalizeEmail(email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		return nil, ErrInvalidEmail
	}
	if len(password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.opts.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	ident := &db.Identity{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}

	if err := s.store.InsertIdentity(ctx, ident); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}

	s.logger.Info("Identity registered", zap.String("identity_id", ident.ID))
	return ident, nil
}

// SignIn checks credentials and issues a signed token
func (s *Service) SignIn(ctx context.Context, email, password string) (*Token, error) {
	ident, err := s.store.GetIdentityByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load identity: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(ident.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.issue(ident)
}

func (s *Service) issue(ident *db.Identity) (*Token, error) {
	now := s.now()
	expiresAt := now.Add(s.opts.TTL)

	claims := Claims{
		Email: ident.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ident.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    s.opts.Issuer,
		},
	}
	if s.opts.Audience != "" {
		claims.Audience = jwt.ClaimStrings{s.opts.Audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.opts.Secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &Token{
		AccessToken: signed,
		ExpiresAt:   expiresAt,
		Identity:    session.Identity{ID: ident.ID, Email: ident.Email},
	}, nil
}

// Authenticate verifies a bearer token and returns its identity
func (s *Service) Authenticate(ctx context.Context, token string) (session.Identity, error) {
	claims, err := s.parse(token)
	if err != nil {
		return session.Identity{}, err
	}

	revoked, err := s.revoker.IsRevoked(ctx, claims.ID)
	if err != nil {
		return session.Identity{}, err
	}
	if revoked {
		return session.Identity{}, ErrInvalidToken
	}

	return session.Identity{ID: claims.Subject, Email: claims.Email}, nil
}

// SignOut revokes the token until its expiry and returns its identity
func (s *Service) SignOut(ctx context.Context, token string) (session.Identity, error) {
	claims, err := s.parse(token)
	if err != nil {
		return session.Identity{}, err
	}

	if ttl := claims.ExpiresAt.Time.Sub(s.now()); ttl > 0 {
		if err := s.revoker.Revoke(ctx, claims.ID, ttl); err != nil {
			return session.Identity{}, err
		}
	}

	return session.Identity{ID: claims.Subject, Email: claims.Email}, nil
}

func (s *Service) parse(token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.opts.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.opts.Issuer))
	}
	if s.opts.Audience != "" {
		opts = append(opts, jwt.WithAudience(s.opts.Audience))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.opts.Secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		s.logger.Debug("Token rejected", zap.Error(err))
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
