package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/config"
	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/model"
	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/pkg/logger"
)

// SeedUsers creates the configured accounts that do not exist yet and returns
// how many were added. Existing usernames are left untouched.
func SeedUsers(ctx context.Context, store Store, users []config.User) (int, error) {
	created := 0
	for _, u := range users {
		username := strings.TrimSpace(u.Username)
		if username == "" || u.Password == "" {
			return created, fmt.Errorf("%w: seed user needs a username and password", ErrInvalidInput)
		}

		_, err := store.GetUserByUsername(ctx, username)
		if err == nil {
			logger.Debug(ctx, "seed user exists", "username", username)
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return created, fmt.Errorf("lookup user %s: %w", username, err)
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
		if err != nil {
			return created, fmt.Errorf("hash password for %s: %w", username, err)
		}
		role := u.Role
		if role == "" {
			role = model.RoleUser
		}

		user := model.User{
			Username:     username,
			Email:        u.Email,
			FullName:     u.FullName,
			PasswordHash: string(hash),
			Role:         role,
			Active:       true,
		}
		if err := store.CreateUser(ctx, &user); err != nil {
			return created, fmt.Errorf("create user %s: %w", username, err)
		}
		logger.Info(ctx, "seed user created", "username", username, "role", role)
		created++
	}
	return created, nil
}
