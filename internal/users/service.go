package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bloggy/backend/internal/auth"
	"github.com/bloggy/backend/internal/errs"
	"github.com/bloggy/backend/internal/ids"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errEmailTaken        = errors.New("email already exists")
	errUsernameTaken     = errors.New("username already exists")
	errUserNotFound      = errors.New("user not found")
	errInvalidPassword   = errors.New("current password is incorrect")
	errInvalidLogin      = errors.New("invalid credentials")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew      = "users.service.new"
	opCreate          = "users.create"
	opList            = "users.list"
	opFind            = "users.find"
	opIsTaken         = "users.is_taken"
	opUpdate          = "users.update"
	opDelete          = "users.delete"
	opChangePassword  = "users.change_password"
	opAuthenticate    = "users.authenticate"
	opSummaries       = "users.summaries"
	userSelectColumns = "id, email, username, password, name, last_name, bio, role, created_at, updated_at"
)

// ServiceConfig describes the dependencies required by the user service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider ids.Provider
	Logger     *zap.Logger
}

// Service manages user accounts.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider ids.Provider
	logger     *zap.Logger
}

// CreateInput holds the fields accepted when registering a user.
type CreateInput struct {
	Email    string
	Username string
	Password string
	Name     string
	LastName string
	Bio      string
	Role     Role
}

// UpdateInput holds optional profile changes; nil fields are left untouched.
type UpdateInput struct {
	Email    *string
	Username *string
	Name     *string
	LastName *string
	Bio      *string
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errs.Internal(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, errs.Internal(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// Create registers a new account, rejecting duplicate emails and usernames.
func (s *Service) Create(ctx context.Context, input CreateInput) (User, error) {
	email := normalizeEmail(input.Email)
	username := strings.TrimSpace(input.Username)

	if err := s.ensureAvailable(ctx, opCreate, email, username, ""); err != nil {
		return User{}, err
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err)
		return User{}, errs.Internal(opCreate, "id_generation_failed", err)
	}

	role := input.Role
	if role == "" {
		role = RoleUser
	}
	now := s.clock().UTC()
	user := User{
		ID:        id,
		Email:     email,
		Username:  username,
		Password:  input.Password,
		Name:      strings.TrimSpace(input.Name),
		LastName:  strings.TrimSpace(input.LastName),
		Bio:       input.Bio,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return User{}, errs.Conflict(opCreate, "duplicate", err)
		}
		s.logError(opCreate, "insert_failed", err, zap.String("username", username))
		return User{}, errs.Internal(opCreate, "insert_failed", err)
	}
	return user, nil
}

// List returns every user, newest first.
func (s *Service) List(ctx context.Context) ([]User, error) {
	var users []User
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&users).Error; err != nil {
		s.logError(opList, "query_failed", err)
		return nil, errs.Internal(opList, "query_failed", err)
	}
	return users, nil
}

func (s *Service) FindByID(ctx context.Context, id string) (User, error) {
	return s.findOne(ctx, "id = ?", strings.TrimSpace(id))
}

func (s *Service) FindByEmail(ctx context.Context, email string) (User, error) {
	return s.findOne(ctx, "email = ?", normalizeEmail(email))
}

func (s *Service) FindByUsername(ctx context.Context, username string) (User, error) {
	return s.findOne(ctx, "username = ?", strings.TrimSpace(username))
}

// IsTaken reports whether identifier is already used as an email or a username.
func (s *Service) IsTaken(ctx context.Context, identifier string) (bool, error) {
	trimmed := strings.TrimSpace(identifier)
	var count int64
	err := s.db.WithContext(ctx).Model(&User{}).
		Where("email = ? OR username = ?", normalizeEmail(trimmed), trimmed).
		Count(&count).Error
	if err != nil {
		s.logError(opIsTaken, "query_failed", err)
		return false, errs.Internal(opIsTaken, "query_failed", err)
	}
	return count > 0, nil
}

// Update applies profile changes to the user.
func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (User, error) {
	user, err := s.FindByID(ctx, id)
	if err != nil {
		return User{}, err
	}

	email := ""
	if input.Email != nil && normalizeEmail(*input.Email) != user.Email {
		email = normalizeEmail(*input.Email)
	}
	username := ""
	if input.Username != nil && strings.TrimSpace(*input.Username) != user.Username {
		username = strings.TrimSpace(*input.Username)
	}
	if err := s.ensureAvailable(ctx, opUpdate, email, username, user.ID); err != nil {
		return User{}, err
	}

	if email != "" {
		user.Email = email
	}
	if username != "" {
		user.Username = username
	}
	if input.Name != nil {
		user.Name = strings.TrimSpace(*input.Name)
	}
	if input.LastName != nil {
		user.LastName = strings.TrimSpace(*input.LastName)
	}
	if input.Bio != nil {
		user.Bio = *input.Bio
	}
	user.UpdatedAt = s.clock().UTC()

	if err := s.db.WithContext(ctx).Save(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return User{}, errs.Conflict(opUpdate, "duplicate", err)
		}
		s.logError(opUpdate, "save_failed", err, zap.String("user_id", user.ID))
		return User{}, errs.Internal(opUpdate, "save_failed", err)
	}
	return user, nil
}

// Delete removes the user; owned content cascades in the store.
func (s *Service) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&User{})
	if result.Error != nil {
		s.logError(opDelete, "delete_failed", result.Error, zap.String("user_id", id))
		return errs.Internal(opDelete, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return errs.NotFound(opDelete, "user_not_found", errUserNotFound)
	}
	return nil
}

// ChangePassword replaces the password after verifying the current one.
func (s *Service) ChangePassword(ctx context.Context, id, currentPassword, newPassword string) error {
	user, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := auth.ComparePassword(user.Password, currentPassword); err != nil {
		return errs.Unauthorized(opChangePassword, "password_mismatch", errInvalidPassword)
	}
	user.Password = newPassword
	user.UpdatedAt = s.clock().UTC()
	if err := s.db.WithContext(ctx).Save(&user).Error; err != nil {
		s.logError(opChangePassword, "save_failed", err, zap.String("user_id", user.ID))
		return errs.Internal(opChangePassword, "save_failed", err)
	}
	return nil
}

// Authenticate resolves the user owning email and verifies password.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	user, err := s.FindByEmail(ctx, email)
	if errs.Is(err, errs.KindNotFound) {
		return User{}, errs.Unauthorized(opAuthenticate, "invalid_credentials", errInvalidLogin)
	}
	if err != nil {
		return User{}, err
	}
	if err := auth.ComparePassword(user.Password, password); err != nil {
		return User{}, errs.Unauthorized(opAuthenticate, "invalid_credentials", errInvalidLogin)
	}
	return user, nil
}

// Summaries loads public summaries for the given ids. Unknown ids are absent
// from the result.
func (s *Service) Summaries(ctx context.Context, userIDs []string) (map[string]Summary, error) {
	summaries := make(map[string]Summary, len(userIDs))
	wanted := uniqueStrings(userIDs)
	if len(wanted) == 0 {
		return summaries, nil
	}
	var users []User
	if err := s.db.WithContext(ctx).
		Select("id", "email", "username").
		Where("id IN ?", wanted).
		Find(&users).Error; err != nil {
		s.logError(opSummaries, "query_failed", err)
		return nil, errs.Internal(opSummaries, "query_failed", err)
	}
	for _, user := range users {
		summaries[user.ID] = user.Summary()
	}
	return summaries, nil
}

func (s *Service) findOne(ctx context.Context, query string, value string) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Select(userSelectColumns).Where(query, value).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, errs.NotFound(opFind, "user_not_found", errUserNotFound)
	}
	if err != nil {
		s.logError(opFind, "query_failed", err)
		return User{}, errs.Internal(opFind, "query_failed", err)
	}
	return user, nil
}

func (s *Service) ensureAvailable(ctx context.Context, operation, email, username, exceptID string) error {
	if email != "" {
		taken, err := s.exists(ctx, operation, "email = ?", email, exceptID)
		if err != nil {
			return err
		}
		if taken {
			return errs.Conflict(operation, "email_taken", errEmailTaken)
		}
	}
	if username != "" {
		taken, err := s.exists(ctx, operation, "username = ?", username, exceptID)
		if err != nil {
			return err
		}
		if taken {
			return errs.Conflict(operation, "username_taken", errUsernameTaken)
		}
	}
	return nil
}

func (s *Service) exists(ctx context.Context, operation, query, value, exceptID string) (bool, error) {
	var count int64
	tx := s.db.WithContext(ctx).Model(&User{}).Where(query, value)
	if exceptID != "" {
		tx = tx.Where("id <> ?", exceptID)
	}
	if err := tx.Count(&count).Error; err != nil {
		s.logError(operation, "uniqueness_check_failed", err)
		return false, errs.Internal(operation, "uniqueness_check_failed", err)
	}
	return count > 0, nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("users service error", attrs...)
}

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
