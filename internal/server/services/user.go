// Package services contains server-side business logic. This file implements
// UserService, which owns the credential lifecycle: registration, login and
// remember-me, activation, password reset and password change.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/microblog/internal/common"
	"github.com/dmitrijs2005/microblog/internal/dbx"
	"github.com/dmitrijs2005/microblog/internal/server/auth"
	"github.com/dmitrijs2005/microblog/internal/server/config"
	"github.com/dmitrijs2005/microblog/internal/server/credentials"
	"github.com/dmitrijs2005/microblog/internal/server/mailer"
	"github.com/dmitrijs2005/microblog/internal/server/metrics"
	"github.com/dmitrijs2005/microblog/internal/server/models"
	"github.com/dmitrijs2005/microblog/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/microblog/internal/server/repositories/users"
	"github.com/dmitrijs2005/microblog/internal/server/validation"
	"github.com/google/uuid"
)

// RegisterParams is the input of Register and CreateAdmin.
type RegisterParams struct {
	Name                 string
	Email                string
	Password             string
	PasswordConfirmation *string
	Gender               models.Gender
}

// RegisterResult carries the new user and the activation token. The token
// is not stored anywhere and cannot be recovered later.
type RegisterResult struct {
	User            *models.User
	ActivationToken string
}

// Session is the outcome of a successful login or resume.
type Session struct {
	UserID        string
	AccessToken   string
	ExpiresAt     time.Time
	RememberToken string
}

// ResetParams is the input of ResetPassword.
type ResetParams struct {
	Email                string
	Token                string
	Password             string
	PasswordConfirmation *string
}

// ChangePasswordParams is the input of ChangePassword.
type ChangePasswordParams struct {
	CurrentPassword      string
	Password             string
	PasswordConfirmation *string
}

// ProfileParams holds the fields UpdateProfile may change. Nil leaves the
// field as it is.
type ProfileParams struct {
	Name   *string
	Email  *string
	Gender *models.Gender
}

// UserService implements the credential manager on top of the users
// repository.
type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	hasher      *credentials.Hasher
	deps

	jwtSecret                   []byte
	accessTokenValidityDuration time.Duration
	passwordResetExpiry         time.Duration
	nameMaxLength               int
	emailMaxLength              int
	passwordMaxLength           int
	baseURL                     string
}

// NewUserService constructs a UserService using repositories and server config.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, hasher *credentials.Hasher, opts ...Option) *UserService {
	d := buildDeps(opts)
	return &UserService{
		db:                          db,
		repomanager:                 m,
		hasher:                      hasher,
		deps:                        d,
		jwtSecret:                   []byte(cfg.SecretKey),
		accessTokenValidityDuration: cfg.AccessTokenValidityDuration,
		passwordResetExpiry:         cfg.PasswordResetExpiry,
		nameMaxLength:               cfg.NameMaxLength,
		emailMaxLength:              cfg.EmailMaxLength,
		passwordMaxLength:           cfg.PasswordMaxLength,
		baseURL:                     strings.TrimRight(cfg.BaseURL, "/"),
	}
}

// --- validation rules ---

func (s *UserService) nameRule(errs *validation.Errors, name string) {
	if validation.Presence(errs, "name", name) {
		validation.MaxLength(errs, "name", name, s.nameMaxLength)
	}
}

func (s *UserService) emailRule(errs *validation.Errors, email string) {
	if validation.Presence(errs, "email", email) &&
		validation.MaxLength(errs, "email", email, s.emailMaxLength) {
		validation.Email(errs, "email", email)
	}
}

func (s *UserService) passwordRule(errs *validation.Errors, password string, confirmation *string) {
	if !validation.Presence(errs, "password", password) {
		return
	}
	if !validation.MaxBytes(errs, "password", password, s.passwordMaxLength) {
		return
	}
	if confirmation != nil && *confirmation != password {
		errs.Add("password_confirmation", validation.MsgConfirmation)
	}
}

func genderRule(errs *validation.Errors, g models.Gender) {
	validation.Inclusion(errs, "gender", g.Valid())
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// --- registration ---

// Register validates params, stores the user with an activation digest and
// sends the activation mail. Email uniqueness is decided by the database.
func (s *UserService) Register(ctx context.Context, params RegisterParams) (*RegisterResult, error) {
	params.Email = normalizeEmail(params.Email)
	params.Name = strings.TrimSpace(params.Name)

	if err := validation.Run(params,
		func(p RegisterParams, errs *validation.Errors) { s.nameRule(errs, p.Name) },
		func(p RegisterParams, errs *validation.Errors) { s.emailRule(errs, p.Email) },
		func(p RegisterParams, errs *validation.Errors) { s.passwordRule(errs, p.Password, p.PasswordConfirmation) },
		func(p RegisterParams, errs *validation.Errors) { genderRule(errs, p.Gender) },
	); err != nil {
		return nil, err
	}

	passwordDigest, err := s.hasher.Digest(params.Password)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}
	token, activationDigest, err := s.hasher.Issue()
	if err != nil {
		return nil, fmt.Errorf("error creating activation token: %w", err)
	}

	user := &models.User{
		ID:               uuid.NewString(),
		Name:             params.Name,
		Email:            params.Email,
		PasswordDigest:   passwordDigest,
		Role:             models.RoleUser,
		Gender:           params.Gender,
		ActivationDigest: sql.NullString{String: activationDigest, Valid: true},
		CreatedAt:        s.clock.Now(),
	}

	u, err := s.create(ctx, user)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordRegistration()
	s.log.Info(ctx, "user registered", "user_id", u.ID)
	s.notifier.Notify(mailer.Message{
		Kind:   mailer.KindAccountActivation,
		UserID: u.ID,
		To:     u.Email,
		Name:   u.Name,
		Token:  token,
		Link:   s.link("/account/activate", u.Email, token),
	})

	return &RegisterResult{User: u, ActivationToken: token}, nil
}

// CreateAdmin registers an already activated administrator. No mail is sent.
func (s *UserService) CreateAdmin(ctx context.Context, params RegisterParams) (*models.User, error) {
	params.Email = normalizeEmail(params.Email)
	params.Name = strings.TrimSpace(params.Name)

	if err := validation.Run(params,
		func(p RegisterParams, errs *validation.Errors) { s.nameRule(errs, p.Name) },
		func(p RegisterParams, errs *validation.Errors) { s.emailRule(errs, p.Email) },
		func(p RegisterParams, errs *validation.Errors) { s.passwordRule(errs, p.Password, p.PasswordConfirmation) },
	); err != nil {
		return nil, err
	}

	passwordDigest, err := s.hasher.Digest(params.Password)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	now := s.clock.Now()
	user := &models.User{
		ID:             uuid.NewString(),
		Name:           params.Name,
		Email:          params.Email,
		PasswordDigest: passwordDigest,
		Role:           models.RoleAdmin,
		Activated:      true,
		ActivatedAt:    sql.NullTime{Time: now, Valid: true},
		CreatedAt:      now,
	}

	u, err := s.create(ctx, user)
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "admin created", "user_id", u.ID)
	return u, nil
}

func (s *UserService) create(ctx context.Context, user *models.User) (*models.User, error) {
	u, err := s.repomanager.Users(s.db).Create(ctx, user)
	if err != nil {
		if errors.Is(err, users.ErrEmailTaken) {
			return nil, validation.Single("email", validation.MsgTaken)
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}
	return u, nil
}

func (s *UserService) link(path, email, token string) string {
	q := url.Values{}
	q.Set("email", email)
	q.Set("token", token)
	return s.baseURL + path + "?" + q.Encode()
}

// --- tokens ---

// Authenticated reports whether token matches the user's digest of kind.
func (s *UserService) Authenticated(u *models.User, kind models.TokenKind, token string) bool {
	return s.hasher.Authenticated(u, kind, token)
}

// Remember issues a new remember token, replacing any previous one.
func (s *UserService) Remember(ctx context.Context, userID string) (string, error) {
	token, digest, err := s.hasher.Issue()
	if err != nil {
		return "", fmt.Errorf("error creating remember token: %w", err)
	}
	err = s.repomanager.Users(s.db).SetRememberDigest(ctx, userID, sql.NullString{String: digest, Valid: true})
	if err != nil {
		return "", fmt.Errorf("error storing remember digest: %w", err)
	}
	return token, nil
}

// Forget clears the remember digest, invalidating every remember token.
func (s *UserService) Forget(ctx context.Context, userID string) error {
	if err := s.repomanager.Users(s.db).SetRememberDigest(ctx, userID, sql.NullString{}); err != nil {
		return fmt.Errorf("error clearing remember digest: %w", err)
	}
	return nil
}

// Activate checks the activation token and flips the account to activated.
// The flip is conditional in the database, so of several concurrent callers
// with a valid token exactly one succeeds. Every failure, including a replay
// of a used token, is common.ErrInvalidToken.
func (s *UserService) Activate(ctx context.Context, email, token string) (*models.User, error) {
	repo := s.repomanager.Users(s.db)

	user, err := repo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, fmt.Errorf("error loading user: %w", err)
	}

	if user.Activated || !s.hasher.Authenticated(user, models.TokenActivation, token) {
		return nil, common.ErrInvalidToken
	}

	now := s.clock.Now()
	won, err := repo.Activate(ctx, user.ID, now)
	if err != nil {
		return nil, fmt.Errorf("error activating user: %w", err)
	}
	if !won {
		return nil, common.ErrInvalidToken
	}

	user.Activated = true
	user.ActivationDigest = sql.NullString{}
	user.ActivatedAt = sql.NullTime{Time: now, Valid: true}
	s.log.Info(ctx, "user activated", "user_id", user.ID)
	return user, nil
}

// CreateResetDigest issues a reset token for the user and records when it
// was sent. Any earlier reset token stops working.
func (s *UserService) CreateResetDigest(ctx context.Context, userID string) (string, error) {
	token, digest, err := s.hasher.Issue()
	if err != nil {
		return "", fmt.Errorf("error creating reset token: %w", err)
	}
	if err := s.repomanager.Users(s.db).SetResetDigest(ctx, userID, digest, s.clock.Now()); err != nil {
		return "", fmt.Errorf("error storing reset digest: %w", err)
	}
	return token, nil
}

// PasswordResetExpired reports whether the user's reset window has passed.
func (s *UserService) PasswordResetExpired(u *models.User) bool {
	return credentials.PasswordResetExpired(u, s.clock.Now(), s.passwordResetExpiry)
}

// RequestPasswordReset mails a reset link. Unknown and unactivated addresses
// are silently ignored so the response does not reveal which accounts exist.
func (s *UserService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.log.Debug(ctx, "password reset for unknown email")
			return nil
		}
		return fmt.Errorf("error loading user: %w", err)
	}
	if !user.Activated {
		s.log.Debug(ctx, "password reset for unactivated user", "user_id", user.ID)
		return nil
	}

	token, err := s.CreateResetDigest(ctx, user.ID)
	if err != nil {
		return err
	}

	s.notifier.Notify(mailer.Message{
		Kind:   mailer.KindPasswordReset,
		UserID: user.ID,
		To:     user.Email,
		Name:   user.Name,
		Token:  token,
		Link:   s.link("/password_resets/edit", user.Email, token),
	})
	return nil
}

// ResetPassword sets a new password using a reset token. The token is
// checked first (common.ErrInvalidToken), then its age
// (common.ErrResetExpired), then the new password.
func (s *UserService) ResetPassword(ctx context.Context, params ResetParams) error {
	repo := s.repomanager.Users(s.db)

	user, err := repo.GetByEmail(ctx, normalizeEmail(params.Email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrInvalidToken
		}
		return fmt.Errorf("error loading user: %w", err)
	}
	if !user.Activated || !s.hasher.Authenticated(user, models.TokenReset, params.Token) {
		return common.ErrInvalidToken
	}
	if s.PasswordResetExpired(user) {
		return common.ErrResetExpired
	}

	if err := validation.Run(params, func(p ResetParams, errs *validation.Errors) {
		s.passwordRule(errs, p.Password, p.PasswordConfirmation)
	}); err != nil {
		return err
	}

	return s.setPassword(ctx, user, params.Password)
}

// ChangePassword replaces the password of a signed-in user after checking
// the current one. A missing current password is reported on the password
// field; a wrong one on current_password.
func (s *UserService) ChangePassword(ctx context.Context, userID string, params ChangePasswordParams) error {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}

	if err := validation.Run(params,
		func(p ChangePasswordParams, errs *validation.Errors) {
			if strings.TrimSpace(p.CurrentPassword) == "" {
				errs.Add("password", validation.MsgBlank)
			}
		},
		func(p ChangePasswordParams, errs *validation.Errors) {
			s.passwordRule(errs, p.Password, p.PasswordConfirmation)
		},
	); err != nil {
		return err
	}

	if !s.hasher.Matches(user.PasswordDigest, params.CurrentPassword) {
		return validation.Single("current_password", validation.MsgInvalid)
	}

	return s.setPassword(ctx, user, params.Password)
}

func (s *UserService) setPassword(ctx context.Context, user *models.User, password string) error {
	digest, err := s.hasher.Digest(password)
	if err != nil {
		return fmt.Errorf("error hashing password: %w", err)
	}
	if err := s.repomanager.Users(s.db).UpdatePassword(ctx, user.ID, digest); err != nil {
		return fmt.Errorf("error updating password: %w", err)
	}

	s.log.Info(ctx, "password changed", "user_id", user.ID)
	s.notifier.Notify(mailer.Message{
		Kind:   mailer.KindPasswordChanged,
		UserID: user.ID,
		To:     user.Email,
		Name:   user.Name,
	})
	return nil
}

// --- sessions ---

// Login checks email and password and opens a session. An unknown email and
// a wrong password both yield common.ErrorUnauthorized.
func (s *UserService) Login(ctx context.Context, email, password string, remember bool) (*Session, error) {
	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.hasher.CompareDummy(password)
			s.metrics.RecordLogin(metrics.LoginFailure)
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("error loading user: %w", err)
	}

	if !s.hasher.Matches(user.PasswordDigest, password) {
		s.metrics.RecordLogin(metrics.LoginFailure)
		return nil, common.ErrorUnauthorized
	}
	if !user.Activated {
		s.metrics.RecordLogin(metrics.LoginNotActivated)
		return nil, common.ErrNotActivated
	}

	session, err := s.newSession(user)
	if err != nil {
		return nil, err
	}
	if remember {
		if session.RememberToken, err = s.Remember(ctx, user.ID); err != nil {
			return nil, err
		}
	}

	s.metrics.RecordLogin(metrics.LoginSuccess)
	return session, nil
}

// ResumeSession exchanges a remember token for a fresh access token.
func (s *UserService) ResumeSession(ctx context.Context, userID, rememberToken string) (*Session, error) {
	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("error loading user: %w", err)
	}
	if !s.hasher.Authenticated(user, models.TokenRemember, rememberToken) {
		return nil, common.ErrorUnauthorized
	}
	if !user.Activated {
		return nil, common.ErrNotActivated
	}
	return s.newSession(user)
}

// Logout forgets the user's remember token.
func (s *UserService) Logout(ctx context.Context, userID string) error {
	return s.Forget(ctx, userID)
}

func (s *UserService) newSession(user *models.User) (*Session, error) {
	generate := auth.GenerateToken
	if user.IsAdmin() {
		generate = auth.GenerateAdminToken
	}
	token, err := generate(user.ID, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, common.ErrorInternal
	}
	return &Session{
		UserID:      user.ID,
		AccessToken: token,
		ExpiresAt:   s.clock.Now().Add(s.accessTokenValidityDuration),
	}, nil
}

// --- accounts ---

// Get loads a user by id.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	u, err := s.repomanager.Users(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("error loading user: %w", err)
	}
	return u, nil
}

// List returns activated users in creation order.
func (s *UserService) List(ctx context.Context, page models.Page) ([]models.User, error) {
	list, err := s.repomanager.Users(s.db).List(ctx, page.Normalize())
	if err != nil {
		return nil, fmt.Errorf("error listing users: %w", err)
	}
	return list, nil
}

// UpdateProfile changes name, email or gender. Only the user themselves or
// an admin may do so.
func (s *UserService) UpdateProfile(ctx context.Context, actorID, targetID string, params ProfileParams) (*models.User, error) {
	var updated *models.User

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		if err := s.authorize(ctx, repo, actorID, targetID); err != nil {
			return err
		}

		user, err := repo.GetByID(ctx, targetID)
		if err != nil {
			return fmt.Errorf("error loading user: %w", err)
		}

		if params.Name != nil {
			user.Name = strings.TrimSpace(*params.Name)
		}
		if params.Email != nil {
			user.Email = normalizeEmail(*params.Email)
		}
		if params.Gender != nil {
			user.Gender = *params.Gender
		}

		if err := validation.Run(user,
			func(u *models.User, errs *validation.Errors) { s.nameRule(errs, u.Name) },
			func(u *models.User, errs *validation.Errors) { s.emailRule(errs, u.Email) },
			func(u *models.User, errs *validation.Errors) { genderRule(errs, u.Gender) },
		); err != nil {
			return err
		}

		if err := repo.UpdateProfile(ctx, user); err != nil {
			if errors.Is(err, users.ErrEmailTaken) {
				return validation.Single("email", validation.MsgTaken)
			}
			return fmt.Errorf("error updating user: %w", err)
		}
		updated = user
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a user together with their posts and follow edges.
// Only the user themselves or an admin may do so.
func (s *UserService) Delete(ctx context.Context, actorID, targetID string) error {
	repo := s.repomanager.Users(s.db)

	if err := s.authorize(ctx, repo, actorID, targetID); err != nil {
		return err
	}
	if err := repo.Delete(ctx, targetID); err != nil {
		return fmt.Errorf("error deleting user: %w", err)
	}
	s.log.Info(ctx, "user deleted", "user_id", targetID, "by", actorID)
	return nil
}

func (s *UserService) authorize(ctx context.Context, repo users.Repository, actorID, targetID string) error {
	if actorID == targetID {
		return nil
	}
	actor, err := repo.GetByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorUnauthorized
		}
		return fmt.Errorf("error loading user: %w", err)
	}
	if !actor.IsAdmin() {
		return common.ErrorForbidden
	}
	return nil
}
