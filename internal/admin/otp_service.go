package admin

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"go.uber.org/fx"

	"github.com/destekhq/support-platform/pkg/variables"
)

var (
	ErrOTPNotRequested = errors.New("no pending otp")
	ErrOTPExpired      = errors.New("otp expired")
	ErrOTPMismatch     = errors.New("invalid otp")
)

const (
	_OTP_TTL         = 5 * time.Minute
	_SESSION_EXPIRES = time.Hour
	_ISSUER          = "support-platform"
)

// OTPSender delivers the one-time code out of band.
type OTPSender interface {
	SendText(text string) error
}

// OTPService implements the single-admin login: one pending code at a time,
// delivered over Telegram, traded for a signed session token on success.
type OTPService struct {
	mu       sync.Mutex
	code     string
	issuedAt time.Time

	sender OTPSender
	secret []byte
	logger *slog.Logger
}

type NewOTPService_Params struct {
	fx.In

	Sender OTPSender
	Logger *slog.Logger
}

func NewOTPService(params NewOTPService_Params) *OTPService {
	return &OTPService{
		sender: params.Sender,
		secret: []byte(variables.Env(variables.SECRET_KEY_NAME, variables.SECRET_KEY_DEFAULT)),
		logger: params.Logger,
	}
}

func generateCode() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("unable generate otp: %w", err)
	}
	code := make([]byte, 6)
	for i, b := range buf {
		code[i] = '0' + b%10
	}
	return string(code), nil
}

// Request issues a fresh code, replacing any pending one, and sends it to
// the admin. A delivery failure surfaces to the caller since the login
// cannot proceed without it.
func (s *OTPService) Request() error {
	code, err := generateCode()
	if err != nil {
		return err
	}

	if err := s.sender.SendText(fmt.Sprintf("Admin OTP:\n\n%s\n\nValid for 5 minutes", code)); err != nil {
		return fmt.Errorf("unable deliver otp: %w", err)
	}

	s.mu.Lock()
	s.code = code
	s.issuedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("otp issued")
	return nil
}

// Verify consumes the pending code and returns a signed session token. The
// code is single use: success and expiry both clear it.
func (s *OTPService) Verify(code string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.code == "" {
		return "", ErrOTPNotRequested
	}
	if time.Since(s.issuedAt) > _OTP_TTL {
		s.code = ""
		return "", ErrOTPExpired
	}
	if code != s.code {
		s.logger.Warn("invalid otp attempt")
		return "", ErrOTPMismatch
	}
	s.code = ""

	token, err := jwt.NewBuilder().
		Issuer(_ISSUER).
		Subject("admin").
		Expiration(time.Now().Add(_SESSION_EXPIRES)).
		Build()
	if err != nil {
		return "", fmt.Errorf("unable build session token: %w", err)
	}
	if err = token.Set("token:use", "admin_session"); err != nil {
		return "", fmt.Errorf("unable set `token:use` claim: %w", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, s.secret))
	if err != nil {
		return "", fmt.Errorf("unable sign session token: %w", err)
	}

	s.logger.Info("otp verified, admin session issued")
	return string(signed), nil
}

// ValidateToken checks an admin session token's signature, expiry and use
// claim.
func (s *OTPService) ValidateToken(raw string) error {
	token, err := jwt.Parse([]byte(raw),
		jwt.WithKey(jwa.HS256, s.secret),
		jwt.WithIssuer(_ISSUER),
		jwt.WithValidate(true),
	)
	if err != nil {
		return err
	}

	use, ok := token.Get("token:use")
	if !ok || use != "admin_session" {
		return errors.New("wrong token use")
	}
	return nil
}
