package services

import (
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type TokenSigner func(subject string, ttl time.Duration) (string, error)

// AuthService checks the single operator credential and issues session
// tokens. There is no user table; the deployment carries one admin password
// hash in its environment.
type AuthService struct {
	passHash  []byte
	signToken TokenSigner
	tokenTTL  time.Duration
}

type AuthResult struct {
	Token     string
	ExpiresIn time.Duration
}

func NewAuthService(passHash []byte, signer TokenSigner) *AuthService {
	return &AuthService{
		passHash:  passHash,
		signToken: signer,
		tokenTTL:  12 * time.Hour,
	}
}

// HashPassword produces a bcrypt hash suitable for the admin password env var.
func HashPassword(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

func (s *AuthService) Login(password string) (*AuthResult, error) {
	if strings.TrimSpace(password) == "" {
		return nil, NewInvalidError("password required")
	}
	if len(s.passHash) == 0 {
		return nil, NewUnauthorizedError("admin login is not configured")
	}
	if err := bcrypt.CompareHashAndPassword(s.passHash, []byte(password)); err != nil {
		return nil, NewUnauthorizedError("invalid credentials")
	}
	if s.signToken == nil {
		return nil, NewInvalidError("token signer not configured")
	}
	token, err := s.signToken("admin", s.tokenTTL)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, ExpiresIn: s.tokenTTL}, nil
}

func (s *AuthService) TokenTTL() time.Duration { return s.tokenTTL }
