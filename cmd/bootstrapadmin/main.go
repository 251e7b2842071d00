// Command bootstrapadmin creates or repairs the super admin account from the
// command line, for deployments where the HTTP setup endpoint is disabled.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"server/internal/adapter/repo"
	"server/internal/domain"
	"server/internal/infra"
)

func main() {
	var (
		nameFlag     string
		emailFlag    string
		passwordFlag string
		forceFlag    bool
	)

	flag.StringVar(&nameFlag, "name", "Super Admin", "display name for the account")
	flag.StringVar(&emailFlag, "email", "", "email for the super admin account")
	flag.StringVar(&passwordFlag, "password", "", "password for the super admin account (min 8 characters)")
	flag.BoolVar(&forceFlag, "force", false, "create even if a super admin already exists")
	flag.Parse()

	_ = godotenv.Load()

	email := strings.ToLower(strings.TrimSpace(emailFlag))
	if email == "" {
		exitWithError(errors.New("-email is required"))
	}
	if len(passwordFlag) < 8 {
		exitWithError(errors.New("-password must be at least 8 characters"))
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "bootstrapadmin").Logger()

	if err := repo.RunMigrations(ctx, pool); err != nil {
		exitWithError(fmt.Errorf("failed to apply migrations: %w", err))
	}

	users := repo.NewUserRepository(pool)

	if !forceFlag {
		exists, err := users.HasSuperAdmin(ctx)
		if err != nil {
			exitWithError(fmt.Errorf("failed to check existing accounts: %w", err))
		}
		if exists {
			exitWithError(errors.New("a super admin already exists; pass -force to create another"))
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(passwordFlag), bcrypt.DefaultCost)
	if err != nil {
		exitWithError(fmt.Errorf("failed to hash password: %w", err))
	}

	id, err := users.Create(ctx, &domain.User{
		Name:         strings.TrimSpace(nameFlag),
		Email:        email,
		PasswordHash: string(hash),
		Role:         domain.RoleSuperAdmin,
		IsActive:     true,
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateEmail) {
			exitWithError(fmt.Errorf("email %s is already registered", email))
		}
		exitWithError(fmt.Errorf("failed to create account: %w", err))
	}

	logger.Info().Str("user_id", id).Str("email", email).Msg("super admin created")
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
