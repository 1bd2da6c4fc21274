package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"procurement/internal/model"
	"procurement/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DefaultTokenTTL is the lifetime of an access token.
const DefaultTokenTTL = 24 * time.Hour

// DTOs for Request validation
type RegisterCompanyRequest struct {
	CompanyName string `json:"company_name" binding:"required"`
	Username    string `json:"username" binding:"required"`
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=6"`
}

type CreateUserRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Role     string `json:"role" binding:"required"`
}

type LoginUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type TokenResponse struct {
	Token     string       `json:"token"`
	ExpiresAt string       `json:"expires_at"`
	User      UserResponse `json:"user"`
}

// DTO for returning User without exposing sensitive data (e.g. password)
type UserResponse struct {
	ID          uuid.UUID `json:"id"`
	CompanyID   uuid.UUID `json:"company_id"`
	CompanyName string    `json:"company_name,omitempty"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	Role        string    `json:"role"`
	CreatedAt   string    `json:"created_at"`
	UpdatedAt   string    `json:"updated_at"`
}

// UserService manages accounts and issues access tokens
type UserService interface {
	RegisterCompany(ctx context.Context, req RegisterCompanyRequest) (*UserResponse, error)
	CreateUser(ctx context.Context, actor model.Principal, req CreateUserRequest) (*UserResponse, error)
	Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error)
	GetMe(ctx context.Context, actor model.Principal) (*UserResponse, error)
	ListUsers(ctx context.Context, actor model.Principal, page, limit int) ([]UserResponse, int64, error)
}

type userService struct {
	repo        repository.UserRepository
	companyRepo repository.CompanyRepository
	txManager   repository.TransactionManager
	secret      []byte
	tokenTTL    time.Duration
	now         Clock
}

// NewUserService returns a new instance of UserService
func NewUserService(
	repo repository.UserRepository,
	companyRepo repository.CompanyRepository,
	txManager repository.TransactionManager,
	secret []byte,
	tokenTTL time.Duration,
	now Clock,
) UserService {
	if tokenTTL <= 0 {
		tokenTTL = DefaultTokenTTL
	}
	if now == nil {
		now = SystemClock
	}
	return &userService{
		repo:        repo,
		companyRepo: companyRepo,
		txManager:   txManager,
		secret:      secret,
		tokenTTL:    tokenTTL,
		now:         now,
	}
}

// Helper: parse model to standard json API response
func mapToResponse(user *model.User) *UserResponse {
	res := &UserResponse{
		ID:        user.ID,
		CompanyID: user.CompanyID,
		Username:  user.Username,
		Email:     user.Email,
		Role:      user.Role,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
		UpdatedAt: user.UpdatedAt.Format(time.RFC3339),
	}
	if user.Company != nil {
		res.CompanyName = user.Company.Name
	}
	return res
}

// RegisterCompany creates a company together with its first admin.
func (s *userService) RegisterCompany(ctx context.Context, req RegisterCompanyRequest) (*UserResponse, error) {
	name := strings.TrimSpace(req.CompanyName)
	if name == "" {
		return nil, fmt.Errorf("%w: company name is required", model.ErrInvalidInput)
	}

	var user *model.User
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.companyRepo.FindByName(txCtx, name); err == nil {
			return fmt.Errorf("company %q: %w", name, ErrConflict)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to check company: %w", err)
		}

		company := &model.Company{Name: name}
		if err := s.companyRepo.Create(txCtx, company); err != nil {
			return fmt.Errorf("failed to create company: %w", err)
		}

		var err error
		user, err = s.newUser(txCtx, company.ID, req.Username, req.Email, req.Password, model.RoleAdmin)
		if err != nil {
			return err
		}
		user.Company = company
		return nil
	})
	if err != nil {
		return nil, err
	}
	return mapToResponse(user), nil
}

// CreateUser adds an account to the admin's own company.
func (s *userService) CreateUser(ctx context.Context, actor model.Principal, req CreateUserRequest) (*UserResponse, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins can create users", model.ErrForbidden)
	}
	role := strings.ToLower(strings.TrimSpace(req.Role))
	if !model.ValidRole(role) {
		return nil, fmt.Errorf("%w: role must be admin, manager or user", model.ErrInvalidInput)
	}

	var user *model.User
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		user, err = s.newUser(txCtx, actor.CompanyID, req.Username, req.Email, req.Password, role)
		return err
	})
	if err != nil {
		return nil, err
	}
	return mapToResponse(user), nil
}

func (s *userService) Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error) {
	user, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	expiresAt := s.now().Add(s.tokenTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":        user.ID.String(),
		"company_id": user.CompanyID.String(),
		"role":       user.Role,
		"iat":        s.now().Unix(),
		"exp":        expiresAt.Unix(),
	})

	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &TokenResponse{
		Token:     tokenString,
		ExpiresAt: expiresAt.Format(time.RFC3339),
		User:      *mapToResponse(user),
	}, nil
}

func (s *userService) GetMe(ctx context.Context, actor model.Principal) (*UserResponse, error) {
	user, err := s.repo.GetByID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %s: %w", actor.UserID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return mapToResponse(user), nil
}

func (s *userService) ListUsers(ctx context.Context, actor model.Principal, page, limit int) ([]UserResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}

	users, total, err := s.repo.ListByCompany(ctx, actor.CompanyID, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}

	responses := make([]UserResponse, 0, len(users))
	for _, u := range users {
		responses = append(responses, *mapToResponse(&u))
	}
	return responses, total, nil
}

// newUser validates and stores an account. Username and email are unique
// across companies.
func (s *userService) newUser(ctx context.Context, companyID uuid.UUID, username, email, password, role string) (*model.User, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", model.ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email format", model.ErrInvalidInput)
	}
	if len(password) < 6 {
		return nil, fmt.Errorf("%w: password must be at least 6 characters", model.ErrInvalidInput)
	}

	// Double check username/email uniqueness via repo directly
	if _, err := s.repo.GetByUsername(ctx, username); err == nil {
		return nil, fmt.Errorf("username %q: %w", username, ErrConflict)
	}
	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("email %q: %w", email, ErrConflict)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		CompanyID: companyID,
		Username:  username,
		Email:     email,
		Password:  string(hashedPassword),
		Role:      role,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}
