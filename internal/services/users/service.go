package users

import (
	"context"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/BearBump/ParcelBox/internal/apperr"
	"github.com/BearBump/ParcelBox/internal/cache"
	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/BearBump/ParcelBox/internal/storage"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLen = 8
	// bcrypt ignores input past 72 bytes
	maxPasswordLen = 72

	loginWindow = time.Minute
)

type Repository interface {
	InsertUser(ctx context.Context, u *models.SupportUser) error
	GetUserByPhone(ctx context.Context, phone string) (*models.SupportUser, error)
	GetUserByID(ctx context.Context, supportID string) (*models.SupportUser, error)
}

type TokenIssuer interface {
	Issue(id models.Identity) (string, error)
}

type RegisterInput struct {
	Name     string
	Phone    string
	Email    string
	Password string
}

type Session struct {
	Token string              `json:"token"`
	User  *models.SupportUser `json:"user"`
}

type Service struct {
	repo       Repository
	tokens     TokenIssuer
	limiter    cache.Limiter
	loginLimit int64
	cost       int
}

// New builds the service. limiter may be nil, in which case logins are not
// throttled.
func New(repo Repository, tokens TokenIssuer, limiter cache.Limiter, loginLimitPerMinute int) *Service {
	return &Service{
		repo:       repo,
		tokens:     tokens,
		limiter:    limiter,
		loginLimit: int64(loginLimitPerMinute),
		cost:       bcrypt.DefaultCost,
	}
}

func (s *Service) WithHashCost(cost int) *Service {
	s.cost = cost
	return s
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.SupportUser, error) {
	name := strings.TrimSpace(in.Name)
	phone := strings.TrimSpace(in.Phone)
	email := strings.TrimSpace(in.Email)

	switch {
	case name == "":
		return nil, apperr.Validation("name is required")
	case !validPhone(phone):
		return nil, apperr.Validation("phone must be 7 to 15 digits")
	case !validEmail(email):
		return nil, apperr.Validation("email is not valid")
	case len(in.Password) < minPasswordLen:
		return nil, apperr.Validation("password must be at least %d characters", minPasswordLen)
	case len(in.Password) > maxPasswordLen:
		return nil, apperr.Validation("password must be at most %d bytes", maxPasswordLen)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}

	u := &models.SupportUser{
		SupportID:    uuid.NewString(),
		Name:         name,
		Phone:        phone,
		Email:        email,
		PasswordHash: string(hash),
	}
	err = s.repo.InsertUser(ctx, u)
	if errors.Is(err, storage.ErrDuplicate) {
		return nil, apperr.Conflict(apperr.CodePhoneTaken, "phone %s is already registered", phone)
	}
	if err != nil {
		return nil, err
	}
	slog.Info("support user registered", "support_id", u.SupportID)
	return u, nil
}

func (s *Service) Login(ctx context.Context, phone, password string) (*Session, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" || password == "" {
		return nil, apperr.Validation("phone and password are required")
	}

	if s.limiter != nil && s.loginLimit > 0 {
		ok, _, err := s.limiter.Allow(ctx, "login:"+phone, s.loginLimit, loginWindow)
		switch {
		case err != nil:
			// a broken limiter must not lock everyone out
			slog.Warn("login rate limiter unavailable", "error", err.Error())
		case !ok:
			return nil, apperr.New(apperr.KindRateLimited, apperr.CodeRateLimited, "too many login attempts, try again later")
		}
	}

	u, err := s.repo.GetUserByPhone(ctx, phone)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, invalidCredentials()
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, invalidCredentials()
	}

	token, err := s.tokens.Issue(models.Identity{SupportID: u.SupportID, Name: u.Name})
	if err != nil {
		return nil, errors.Wrap(err, "issue token")
	}
	return &Session{Token: token, User: u}, nil
}

func (s *Service) Profile(ctx context.Context, supportID string) (*models.SupportUser, error) {
	if supportID == "" {
		return nil, apperr.New(apperr.KindUnauthenticated, apperr.CodeUnauthenticated, "acting support user is required")
	}
	u, err := s.repo.GetUserByID(ctx, supportID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound(apperr.CodeUserNotFound, "user %s not found", supportID)
	}
	return u, err
}

func invalidCredentials() error {
	return apperr.New(apperr.KindUnauthenticated, apperr.CodeInvalidCredentials, "invalid phone or password")
}

func validPhone(p string) bool {
	if len(p) < 7 || len(p) > 15 {
		return false
	}
	for _, r := range p {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func validEmail(e string) bool {
	if e == "" {
		return false
	}
	a, err := mail.ParseAddress(e)
	return err == nil && a.Address == e && strings.Contains(e[strings.LastIndexByte(e, '@')+1:], ".")
}
