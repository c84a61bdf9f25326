package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"flowin/internal/domain"
	"flowin/internal/repo"
)

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = repo.ErrEmailTaken
	ErrInvalidToken       = errors.New("invalid token")
)

const (
	minPasswordLength = 6
	defaultTokenTTL   = 24 * time.Hour
	// disabledPassword can never match a bcrypt comparison.
	disabledPassword = "!"
)

// Service handles accounts and credentials.
type Service struct {
	Repo     repo.Repo
	Secret   string
	TokenTTL time.Duration
	// Cost is the bcrypt cost; zero means bcrypt.DefaultCost.
	Cost int
	Now  func() time.Time
}

// Session is what a successful sign-up or sign-in hands back.
type Session struct {
	User      domain.User `json:"user"`
	Token     string      `json:"token"`
	ExpiresAt string      `json:"expires_at" format:"date-time"`
}

type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s Service) stamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

func (s Service) hash(password string) (string, error) {
	cost := s.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func checkPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func validatePassword(field, password string) error {
	if len(password) < minPasswordLength {
		return domain.ValidationError{Field: field, Message: fmt.Sprintf("must be at least %d characters", minPasswordLength)}
	}
	return nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "", domain.ValidationError{Field: "email", Message: "invalid email"}
	}
	return email, nil
}

// SignUp creates an account and signs it in.
func (s Service) SignUp(ctx context.Context, email, password, displayName string) (Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Session{}, err
	}
	if err := validatePassword("password", password); err != nil {
		return Session{}, err
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = email[:strings.Index(email, "@")]
	}
	hash, err := s.hash(password)
	if err != nil {
		return Session{}, err
	}
	now := s.stamp()
	u := domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Repo.InsertUser(ctx, nil, u); err != nil {
		return Session{}, err
	}
	return s.session(u)
}

// SignIn checks credentials and issues a token.
func (s Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	u, err := s.Repo.GetUserByEmail(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if !checkPassword(password, u.PasswordHash) {
		return Session{}, ErrInvalidCredentials
	}
	return s.session(u)
}

// EnsureLocalUser returns the account for email, creating a password-less one when missing.
// Local CLI use goes through here; such accounts cannot sign in over HTTP until a password is set.
func (s Service) EnsureLocalUser(ctx context.Context, email, displayName string) (domain.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return domain.User{}, err
	}
	u, err := s.Repo.GetUserByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, err
	}
	if strings.TrimSpace(displayName) == "" {
		displayName = email[:strings.Index(email, "@")]
	}
	now := s.stamp()
	u = domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: disabledPassword,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Repo.InsertUser(ctx, nil, u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (s Service) session(u domain.User) (Session, error) {
	token, exp, err := s.IssueToken(u)
	if err != nil {
		return Session{}, err
	}
	return Session{User: u, Token: token, ExpiresAt: exp.UTC().Format(time.RFC3339)}, nil
}

// IssueToken signs an HS256 JWT whose subject is the user id.
func (s Service) IssueToken(u domain.User) (string, time.Time, error) {
	if strings.TrimSpace(s.Secret) == "" {
		return "", time.Time{}, errors.New("jwt secret not configured")
	}
	ttl := s.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	now := s.now()
	exp := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email: u.Email,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.Secret))
	return token, exp, err
}

// ParseToken verifies signature and expiry and returns the claims.
func (s Service) ParseToken(token string) (Claims, error) {
	if strings.TrimSpace(s.Secret) == "" {
		return Claims{}, errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	claims := Claims{}
	parsed, err := parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return []byte(s.Secret), nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

func (s Service) GetUser(ctx context.Context, userID string) (domain.User, error) {
	return s.Repo.GetUser(ctx, userID)
}

// UpdateProfile changes display name and photo URL; nil leaves a field as is.
func (s Service) UpdateProfile(ctx context.Context, userID string, displayName, photoURL *string) (domain.User, error) {
	if displayName != nil {
		if err := domain.Required("display_name", *displayName); err != nil {
			return domain.User{}, err
		}
		trimmed := strings.TrimSpace(*displayName)
		displayName = &trimmed
	}
	if err := s.Repo.UpdateUserProfile(ctx, userID, displayName, photoURL, s.stamp()); err != nil {
		return domain.User{}, err
	}
	return s.Repo.GetUser(ctx, userID)
}

// ChangePassword re-authenticates with the current password before switching.
// Local accounts that never had a password skip the check.
func (s Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	u, err := s.Repo.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if u.PasswordHash != disabledPassword && !checkPassword(current, u.PasswordHash) {
		return ErrInvalidCredentials
	}
	if err := validatePassword("new_password", next); err != nil {
		return err
	}
	hash, err := s.hash(next)
	if err != nil {
		return err
	}
	return s.Repo.UpdatePasswordHash(ctx, userID, hash, s.stamp())
}

// DeleteAccount removes the user record and API keys only. Projects, tasks
// and notifications that reference the user are kept.
func (s Service) DeleteAccount(ctx context.Context, userID string) error {
	return s.Repo.DeleteUser(ctx, nil, userID)
}

// CreateAPIKey returns the stored key and its plaintext, which is not recoverable later.
func (s Service) CreateAPIKey(ctx context.Context, userID, name string) (domain.APIKey, string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return domain.APIKey{}, "", err
	}
	plain := "flw_" + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      strings.TrimSpace(name),
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: s.stamp(),
	}
	if err := s.Repo.InsertAPIKey(ctx, nil, key); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, plain, nil
}

// AuthenticateAPIKey resolves the owner of a plaintext key.
func (s Service) AuthenticateAPIKey(ctx context.Context, plain string) (domain.User, error) {
	if strings.TrimSpace(plain) == "" {
		return domain.User{}, ErrInvalidCredentials
	}
	key, err := s.Repo.GetAPIKeyByHash(ctx, repo.HashAPIKey(plain))
	if errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, err
	}
	u, err := s.Repo.GetUser(ctx, key.UserID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, ErrInvalidCredentials
	}
	return u, err
}
