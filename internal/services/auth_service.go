package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"docutalk-backend/internal/auth"
	"docutalk-backend/internal/config"
	"docutalk-backend/internal/mailing"
	"docutalk-backend/internal/models"
	"docutalk-backend/internal/store"
	"docutalk-backend/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Custom errors for auth service
var (
	ErrUserAlreadyExists  = errors.New("user with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrHashingPassword    = errors.New("failed to hash password")
	ErrCreatingToken      = errors.New("failed to create access token")
	ErrValidation         = errors.New("input validation failed")
	ErrGuestModeDisabled  = errors.New("guest mode is disabled")
)

const (
	generatedPasswordLength = 12
	guestEmailDomain        = "ai-apps.cloud"
)

type AuthService struct {
	store     store.Store
	cfg       *config.Config
	mailer    mailing.Dispatcher
	composer  mailing.Composer
	providers map[string]*auth.OAuthProvider
}

func NewAuthService(s store.Store, cfg *config.Config, mailer mailing.Dispatcher, composer mailing.Composer, providers map[string]*auth.OAuthProvider) *AuthService {
	return &AuthService{
		store:     s,
		cfg:       cfg,
		mailer:    mailer,
		composer:  composer,
		providers: providers,
	}
}

// FriendlyName is "First L.".
func FriendlyName(firstName, lastName string) string {
	for _, r := range strings.TrimSpace(lastName) {
		return strings.TrimSpace(firstName) + " " + string(unicode.ToUpper(r)) + "."
	}
	return strings.TrimSpace(firstName)
}

func (s *AuthService) createUser(ctx context.Context, email, firstName, lastName, password string, isGuest bool, provider models.AuthProvider) (*models.User, error) {
	hashed, err := auth.HashPassword(password)
	if err != nil {
		logger.Error("[AuthService] hashing password failed", zap.Error(err))
		return nil, ErrHashingPassword
	}
	amount := s.cfg.Credits.UserWeeklyAmount
	if isGuest {
		amount = s.cfg.Credits.GuestWeeklyAmount
	}
	user, err := s.store.CreateUser(ctx, store.CreateUserParams{
		ID:                 uuid.New(),
		Email:              email,
		FirstName:          firstName,
		LastName:           lastName,
		FriendlyName:       FriendlyName(firstName, lastName),
		HashedPassword:     hashed,
		PeriodDollarAmount: amount,
		IsGuest:            isGuest,
		AuthProvider:       provider,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

func (s *AuthService) send(ctx context.Context, email mailing.Email, err error) {
	if err == nil {
		err = s.mailer.Dispatch(ctx, email)
	}
	if err != nil {
		logger.Error("[AuthService] welcome email failed", zap.String("template", email.Template), zap.Error(err))
	}
}

// Signup creates an account with a generated password and mails the
// credentials to the user.
func (s *AuthService) Signup(ctx context.Context, req models.SignupRequest) (*models.User, error) {
	email := strings.TrimSpace(strings.ToLower(req.Email))
	firstName := strings.TrimSpace(req.FirstName)
	lastName := strings.TrimSpace(req.LastName)
	if !auth.IsValidEmail(email) {
		return nil, fmt.Errorf("%w: invalid email", ErrValidation)
	}
	if firstName == "" || lastName == "" {
		return nil, fmt.Errorf("%w: first and last name are required", ErrValidation)
	}

	_, err := s.store.GetUserByEmail(ctx, email)
	if err == nil {
		return nil, ErrUserAlreadyExists
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to check user existence: %w", err)
	}

	password, err := auth.GeneratePassword(generatedPasswordLength)
	if err != nil {
		return nil, err
	}
	user, err := s.createUser(ctx, email, firstName, lastName, password, false, models.ProviderPassword)
	if err != nil {
		return nil, err
	}

	msg, err := s.composer.Welcome(user.Email, user.FirstName, password)
	s.send(ctx, msg, err)

	logger.Info("[AuthService] user signed up", zap.String("user_id", user.ID.String()))
	return user, nil
}

// Login verifies user credentials and returns an access token and user info.
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.AuthResponse, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to retrieve user: %w", err)
	}
	if user.IsGuest || !auth.CheckPasswordHash(password, user.HashedPassword) {
		return nil, ErrInvalidCredentials
	}
	return s.issue(user)
}

// Guest creates a throwaway account with the guest allotment.
func (s *AuthService) Guest(ctx context.Context) (*models.AuthResponse, error) {
	if !s.cfg.Auth.GuestModeEnabled {
		return nil, ErrGuestModeDisabled
	}
	password, err := auth.GeneratePassword(generatedPasswordLength)
	if err != nil {
		return nil, err
	}
	email := fmt.Sprintf("guest-%s@%s", uuid.NewString(), guestEmailDomain)
	user, err := s.createUser(ctx, email, "Guest", "GUEST", password, true, models.ProviderGuest)
	if err != nil {
		return nil, err
	}
	logger.Info("[AuthService] guest created", zap.String("user_id", user.ID.String()))
	return s.issue(user)
}

func (s *AuthService) provider(name string) (*auth.OAuthProvider, error) {
	p, ok := s.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", auth.ErrUnknownProvider, name)
	}
	return p, nil
}

// OAuthURL is the provider login page carrying state.
func (s *AuthService) OAuthURL(providerName, state string) (string, error) {
	p, err := s.provider(providerName)
	if err != nil {
		return "", err
	}
	return p.AuthCodeURL(state), nil
}

// OAuthCallback exchanges code for the provider profile and signs the user
// in, creating the account on first login.
func (s *AuthService) OAuthCallback(ctx context.Context, providerName, code string) (*models.AuthResponse, error) {
	p, err := s.provider(providerName)
	if err != nil {
		return nil, err
	}
	profile, err := p.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	user, err := s.store.GetUserByEmail(ctx, profile.Email)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		// OAuth users never type this password.
		password, perr := auth.GeneratePassword(32)
		if perr != nil {
			return nil, perr
		}
		firstName := profile.FirstName
		if firstName == "" {
			firstName = strings.Split(profile.Email, "@")[0]
		}
		user, err = s.createUser(ctx, profile.Email, firstName, profile.LastName, password, false, models.AuthProvider(p.Name))
		if err != nil {
			return nil, err
		}
		msg, merr := s.composer.WelcomeNoIDs(user.Email, user.FirstName)
		s.send(ctx, msg, merr)
		logger.Info("[AuthService] user signed up with oauth",
			zap.String("user_id", user.ID.String()),
			zap.String("provider", p.Name),
		)
	default:
		return nil, fmt.Errorf("failed to retrieve user: %w", err)
	}
	return s.issue(user)
}

func (s *AuthService) issue(user *models.User) (*models.AuthResponse, error) {
	token, expiresAt, err := auth.NewAccessToken(user.ID, user.Email, user.IsGuest, s.cfg.Auth.JWTSecret, s.cfg.Auth.TokenExpiration())
	if err != nil {
		logger.Error("[AuthService] generating JWT failed", zap.String("user_id", user.ID.String()), zap.Error(err))
		return nil, ErrCreatingToken
	}
	return &models.AuthResponse{
		AccessToken: token,
		ExpiresAt:   expiresAt,
		User:        models.NewUserResponse(user),
	}, nil
}
