package services

import (
	"context"
	"fmt"
	"strings"

	"wattson/internal/models"
	"wattson/internal/repositories"
)

// UserService resolves the local user owning all sessions on this machine.
type UserService interface {
	Startup(ctx context.Context)
	CurrentUser() (*models.User, error)
	Rename(name string) (*models.User, error)
}

type userService struct {
	ctx      context.Context
	userRepo repositories.UserRepository
}

func NewUserService(userRepo repositories.UserRepository) UserService {
	return &userService{ctx: context.Background(), userRepo: userRepo}
}

func (s *userService) Startup(ctx context.Context) {
	s.ctx = ctx
}

// CurrentUser returns the local user, creating one on first launch.
func (s *userService) CurrentUser() (*models.User, error) {
	user, err := s.userRepo.First(s.ctx)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}
	user = models.NewUser("Local User")
	if err := s.userRepo.Create(s.ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *userService) Rename(name string) (*models.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("ERR_USER_NAME_EMPTY: name must not be empty")
	}
	user, err := s.CurrentUser()
	if err != nil {
		return nil, err
	}
	user.Name = name
	if err := s.userRepo.Update(s.ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
