// Package auth вход администратора: пара login/пароль из конфига (пароль как bcrypt-хэш),
// сессии в памяти процесса для чата и JWT для HTTP-эндпоинтов.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrTooManyAttempts    = errors.New("auth: too many login attempts")
	ErrInvalidToken       = errors.New("auth: invalid token")
)

type Config struct {
	Login        string
	PasswordHash string
	SessionTTL   time.Duration
	JWTSecret    string
	TokenTTL     time.Duration
	// AttemptsPerMinute попыток входа на одного пользователя, остальные отбиваются.
	AttemptsPerMinute int
}

type Service struct {
	cfg Config
	now func() time.Time

	mu        sync.Mutex
	sessions  map[int64]time.Time // userID -> истекает
	limiters  map[int64]*attempts
	lastSweep time.Time
}

// attempts лимитер попыток входа одного пользователя.
type attempts struct {
	lim  *rate.Limiter
	seen time.Time
}

// limiterIdle за это время корзина лимитера заполняется целиком,
// так что простаивающий лимитер можно выбросить без ослабления ограничения.
const limiterIdle = time.Minute

func New(cfg Config) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 12 * time.Hour
	}
	if cfg.AttemptsPerMinute <= 0 {
		cfg.AttemptsPerMinute = 5
	}
	return &Service{
		cfg:      cfg,
		now:      time.Now,
		sessions: map[int64]time.Time{},
		limiters: map[int64]*attempts{},
	}
}

func (s *Service) checkCredentials(login, password string) bool {
	loginOK := subtle.ConstantTimeCompare([]byte(login), []byte(s.cfg.Login)) == 1
	passOK := bcrypt.CompareHashAndPassword([]byte(s.cfg.PasswordHash), []byte(password)) == nil
	return loginOK && passOK
}

func (s *Service) limiter(userID int64, now time.Time) *rate.Limiter {
	s.sweep(now)
	a, ok := s.limiters[userID]
	if !ok {
		every := rate.Every(time.Minute / time.Duration(s.cfg.AttemptsPerMinute))
		a = &attempts{lim: rate.NewLimiter(every, s.cfg.AttemptsPerMinute)}
		s.limiters[userID] = a
	}
	a.seen = now
	return a.lim
}

// sweep не чаще раза в limiterIdle выбрасывает простаивающие лимитеры и истёкшие сессии.
func (s *Service) sweep(now time.Time) {
	if now.Sub(s.lastSweep) < limiterIdle {
		return
	}
	s.lastSweep = now
	for id, a := range s.limiters {
		if now.Sub(a.seen) >= limiterIdle {
			delete(s.limiters, id)
		}
	}
	for id, exp := range s.sessions {
		if !now.Before(exp) {
			delete(s.sessions, id)
		}
	}
}

// Login проверяет пару и открывает сессию на SessionTTL. Неудача закрывает прежнюю сессию.
func (s *Service) Login(userID int64, login, password string) error {
	now := s.now()
	s.mu.Lock()
	allowed := s.limiter(userID, now).AllowN(now, 1)
	s.mu.Unlock()
	if !allowed {
		return ErrTooManyAttempts
	}

	ok := s.checkCredentials(login, password)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !ok {
		delete(s.sessions, userID)
		return ErrInvalidCredentials
	}
	s.sessions[userID] = s.now().Add(s.cfg.SessionTTL)
	return nil
}

func (s *Service) IsAdmin(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.sessions[userID]
	if !ok {
		return false
	}
	if !s.now().Before(exp) {
		delete(s.sessions, userID)
		return false
	}
	return true
}

func (s *Service) Logout(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}

// AdminIDs активные сессии (для рассылки служебных уведомлений).
func (s *Service) AdminIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var out []int64
	for id, exp := range s.sessions {
		if now.Before(exp) {
			out = append(out, id)
		}
	}
	return out
}

// IssueToken выдаёт HS256-токен для /admin/* по той же паре login/пароль.
func (s *Service) IssueToken(login, password string) (string, error) {
	if !s.checkCredentials(login, password) {
		return "", ErrInvalidCredentials
	}
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   login,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
}

func (s *Service) VerifyToken(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(s.cfg.JWTSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject != s.cfg.Login {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
