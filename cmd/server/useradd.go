package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ayush/peces-catalog/internal/auth"
	"github.com/ayush/peces-catalog/internal/models"
	"github.com/ayush/peces-catalog/internal/store"
)

var (
	newUsername  string
	newPassword  string
	newRole      string
	plaintextPwd bool
)

var useraddCmd = &cobra.Command{
	Use:   "useradd",
	Short: "Create a user in the configured user backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := buildUser(newUsername, newPassword, newRole, plaintextPwd, auth.NewMultiHasher(0))
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return fmt.Errorf("mongo connect: %w", err)
		}
		defer mongoClient.Disconnect(context.Background())

		users, closeUsers, err := openUserStore(ctx, cfg, mongoClient.Database(cfg.MongoDB))
		if err != nil {
			return err
		}
		defer closeUsers()

		if err := users.CreateUser(ctx, user); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return fmt.Errorf("user %q already exists", user.Username)
			}
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created user %s (%s)\n", user.Username, user.Role)
		return nil
	},
}

func init() {
	useraddCmd.Flags().StringVarP(&newUsername, "username", "u", "", "username (required)")
	useraddCmd.Flags().StringVarP(&newPassword, "password", "p", "", "password (required)")
	useraddCmd.Flags().StringVarP(&newRole, "role", "r", string(models.DefaultRole), "role: admin or analista")
	useraddCmd.Flags().BoolVar(&plaintextPwd, "plaintext", false, "store the password unhashed")
	useraddCmd.MarkFlagRequired("username")
	useraddCmd.MarkFlagRequired("password")
}

// buildUser validates the flags and prepares the stored secret.
func buildUser(username, password, role string, plaintext bool, hasher auth.PasswordHasher) (*models.User, error) {
	if username == "" || password == "" {
		return nil, errors.New("username and password are required")
	}
	r, ok := models.ParseRole(role)
	if !ok {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	secret := password
	if !plaintext {
		h, err := hasher.Hash(password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		secret = h
	}
	return &models.User{Username: username, Password: secret, Role: r}, nil
}
