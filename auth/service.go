package auth

import (
	"log/slog"
	"time"

	"relay-lab/domain"
	"relay-lab/errors"

	"github.com/samber/lo"
)

// MinSecretLength is the shortest client secret Register accepts.
const MinSecretLength = 12

// Client is a registered caller allowed to request tokens. Only the Argon2id
// hash of its secret is ever stored.
type Client struct {
	UserID       string    `json:"user_id"`
	SecretHash   string    `json:"secret_hash"`
	Capabilities []string  `json:"capabilities"`
	CreatedAt    time.Time `json:"created_at"`
}

// ClientRepository persists registered clients.
type ClientRepository interface {
	Create(client Client) error
	Get(userID string) (Client, error)
}

// Service issues tokens against stored client credentials.
type Service struct {
	log           *slog.Logger
	clients       ClientRepository
	jwtSecret     []byte
	tokenDuration time.Duration
	systemSenders []string
}

func NewService(log *slog.Logger, clients ClientRepository, jwtSecret []byte,
	tokenDuration time.Duration, systemSenders []string) *Service {
	return &Service{
		log:           log,
		clients:       clients,
		jwtSecret:     jwtSecret,
		tokenDuration: tokenDuration,
		systemSenders: systemSenders,
	}
}

// Register stores a new client and returns its first token.
func (s *Service) Register(userID, secret string) (string, error) {
	if len(secret) < MinSecretLength {
		return "", errors.ErrWeakSecret
	}

	hash, err := HashSecret(secret)
	if err != nil {
		return "", err
	}

	client := Client{
		UserID:       userID,
		SecretHash:   hash,
		Capabilities: s.capabilitiesFor(userID),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.clients.Create(client); err != nil {
		return "", err
	}
	s.log.Info("Client registered", "user", userID, "capabilities", client.Capabilities)

	return s.mint(client)
}

// Login verifies the secret against the stored hash and returns a fresh
// token. Every rejection is the same generic error to prevent user
// enumeration attacks.
func (s *Service) Login(userID, secret string) (string, error) {
	client, err := s.clients.Get(userID)
	if err != nil {
		return "", errors.ErrInvalidCredentials
	}

	match, err := CompareSecret(secret, client.SecretHash)
	if err != nil || !match {
		return "", errors.ErrInvalidCredentials
	}

	return s.mint(client)
}

func (s *Service) mint(client Client) (string, error) {
	token, err := GenerateToken(s.jwtSecret, client.UserID, client.Capabilities, s.tokenDuration)
	if err != nil {
		s.log.Error("Signing token failed", "user", client.UserID, "error", err)
		return "", errors.ErrTokenGeneration
	}
	return token, nil
}

func (s *Service) capabilitiesFor(userID string) []string {
	capabilities := []string{domain.CapabilityConnect}
	if lo.Contains(s.systemSenders, userID) {
		capabilities = append(capabilities, domain.CapabilitySendSystem)
	}
	return capabilities
}
