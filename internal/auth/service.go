package auth

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
)

// ErrDuplicateAccount is returned when registering with an email or wallet
// address that already has an account.
var ErrDuplicateAccount = errors.New("email or address already registered")

// Account binds marketplace credentials to the wallet address every engine
// call is attributed to.
type Account struct {
	ID          uuid.UUID
	Email       string
	DisplayName string
	Address     common.Address
	CreatedAt   time.Time
}

type Service interface {
	Register(ctx context.Context, email, password, displayName string, address common.Address) (*Account, error)
	Login(ctx context.Context, email, password string) (string, error)
	ValidateToken(ctx context.Context, token string) (common.Address, error)
}

type service struct {
	repo   *Repository
	secret []byte
}

func NewService(repo *Repository) *service {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "supersecretdev"
	}
	return &service{repo: repo, secret: []byte(secret)}
}

// Ensure service implements Service at compile time.
var _ Service = (*service)(nil)

type claims struct {
	jwt.RegisteredClaims
	Address string `json:"addr"`
}

func (s *service) Register(ctx context.Context, email, password, displayName string, address common.Address) (*Account, error) {
	if address == (common.Address{}) {
		return nil, errors.New("zero wallet address")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	acc, err := s.repo.Create(ctx, email, string(hash), displayName, address)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateAccount
		}
		return nil, err
	}
	return acc, nil
}

func (s *service) Login(ctx context.Context, email, password string) (string, error) {
	acc, hash, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if acc == nil {
		return "", errors.New("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return "", errors.New("invalid credentials")
	}
	return s.issueToken(acc)
}

func (s *service) issueToken(acc *Account) (string, error) {
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acc.ID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Address: acc.Address.Hex(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(s.secret)
}

func (s *service) ValidateToken(ctx context.Context, token string) (common.Address, error) {
	tok, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return common.Address{}, err
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid {
		return common.Address{}, errors.New("invalid token")
	}
	if !common.IsHexAddress(c.Address) {
		return common.Address{}, errors.New("invalid address claim")
	}
	return common.HexToAddress(c.Address), nil
}
