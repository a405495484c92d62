package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

const (
	defaultTokenTTL   = 24 * time.Hour
	minPasswordLength = 6
	tokenIssuer       = "bakery"
)

var errInvalidToken = fmt.Errorf("%w: invalid or expired token", domain.ErrUnauthorized)

// Options задаёт параметры сервиса аутентификации.
type Options struct {
	Logger     *log.Entry
	TokenTTL   time.Duration
	BcryptCost int
	Now        func() time.Time
}

// Option настраивает Service.
type Option func(*Options)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithTokenTTL задаёт срок жизни выдаваемых токенов.
func WithTokenTTL(ttl time.Duration) Option {
	return func(opts *Options) {
		opts.TokenTTL = ttl
	}
}

// WithBcryptCost задаёт стоимость bcrypt; в тестах удобно bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(opts *Options) {
		opts.BcryptCost = cost
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(opts *Options) {
		opts.Now = now
	}
}

// RegisterInput — данные регистрации.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// Session — выданный токен и профиль пользователя.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      domain.User
}

// Claims — содержимое bearer-токена.
type Claims struct {
	Role  domain.Role `json:"role"`
	Email string      `json:"email"`
	jwt.RegisteredClaims
}

// Service регистрирует пользователей, проверяет пароли и выдаёт HS256-токены.
type Service struct {
	users  domain.UserRepository
	secret []byte
	ttl    time.Duration
	cost   int
	logger *log.Entry
	now    func() time.Time
}

// NewService создаёт сервис аутентификации.
func NewService(users domain.UserRepository, secret string, options ...Option) (*Service, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt secret is required")
	}

	opts := Options{
		TokenTTL:   defaultTokenTTL,
		BcryptCost: bcrypt.DefaultCost,
	}
	for _, option := range options {
		option(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "auth")
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = defaultTokenTTL
	}
	if opts.BcryptCost < bcrypt.MinCost || opts.BcryptCost > bcrypt.MaxCost {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	return &Service{
		users:  users,
		secret: []byte(secret),
		ttl:    opts.TokenTTL,
		cost:   opts.BcryptCost,
		logger: opts.Logger,
		now:    opts.Now,
	}, nil
}

// Register создаёт пользователя с ролью USER и сразу выдаёт токен.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Session, error) {
	name := strings.TrimSpace(in.Name)
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return Session{}, err
	}
	if name == "" {
		return Session{}, domain.InvalidRequestf("name is required")
	}
	if len(in.Password) < minPasswordLength {
		return Session{}, domain.InvalidRequestf("password must be at least %d characters", minPasswordLength)
	}

	user, err := s.createUser(ctx, name, email, in.Password, domain.RoleUser)
	if err != nil {
		return Session{}, err
	}
	s.logger.WithField("user_id", user.ID).Info("user registered")
	return s.issue(user)
}

// Login проверяет email и пароль. Неизвестный email и неверный пароль неразличимы.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return Session{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Session{}, domain.ErrInvalidCredentials
	}
	return s.issue(user)
}

// Authenticate проверяет токен и возвращает личность вызывающего.
func (s *Service) Authenticate(token string) (domain.Identity, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return domain.Identity{}, errInvalidToken
	}
	if claims.Subject == "" || !claims.Role.Valid() {
		return domain.Identity{}, errInvalidToken
	}
	return domain.Identity{UserID: claims.Subject, Role: claims.Role}, nil
}

// Me возвращает профиль вызывающего.
func (s *Service) Me(ctx context.Context, identity domain.Identity) (domain.User, error) {
	return s.users.Get(ctx, identity.UserID)
}

// EnsureAdmin создаёт администратора, если пользователя с таким email ещё нет.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	user, err := s.createUser(ctx, "Administrator", email, password, domain.RoleAdmin)
	if errors.Is(err, domain.ErrEmailTaken) {
		return nil
	}
	if err != nil {
		return err
	}
	s.logger.WithField("user_id", user.ID).Info("admin account created")
	return nil
}

func (s *Service) createUser(ctx context.Context, name, email, password string, role domain.Role) (domain.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	user := domain.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    s.now(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (s *Service) issue(user domain.User) (Session, error) {
	now := s.now()
	expires := now.Add(s.ttl)
	claims := Claims{
		Role:  user.Role,
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign token: %w", err)
	}
	return Session{Token: token, ExpiresAt: expires, User: user}, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", domain.InvalidRequestf("email is invalid")
	}
	return email, nil
}
