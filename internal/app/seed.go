package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/taskdeck/internal/config"
	"github.com/hitoshi/taskdeck/internal/database"
	"github.com/hitoshi/taskdeck/internal/model"
	"github.com/hitoshi/taskdeck/internal/repository"
)

// seedPassword は開発用デモユーザーの共通パスワード。
const seedPassword = "password123"

// seedUser はデモユーザーの定義と、そのユーザーが持つTodo。
type seedUser struct {
	name          string
	email         string
	emailVerified bool
	image         string
	todos         []seedTodo
}

type seedTodo struct {
	text        string
	description string
	active      bool
	status      model.TodoStatus
}

// seedData は開発用デモデータ。メールアドレスをキーに冪等投入する。
var seedData = []seedUser{
	{
		name:          "John Doe",
		email:         "john.doe@example.com",
		emailVerified: true,
		image:         "https://avatar.vercel.sh/john",
		todos: []seedTodo{
			{
				text:        "Complete project documentation",
				description: "Write comprehensive documentation for the new API endpoints",
				active:      true,
				status:      model.TodoStatusNotStarted,
			},
			{
				text:        "Review pull requests",
				description: "Review and approve pending PRs from team members",
				active:      true,
				status:      model.TodoStatusInProgress,
			},
			{
				text:        "Update dependencies",
				description: "Update all packages to latest versions and test",
				active:      true,
				status:      model.TodoStatusCompleted,
			},
			{
				text:        "Setup monitoring",
				description: "Configure application monitoring and alerting",
				active:      true,
				status:      model.TodoStatusNotStarted,
			},
		},
	},
	{
		name:          "Jane Smith",
		email:         "jane.smith@example.com",
		emailVerified: true,
		image:         "https://avatar.vercel.sh/jane",
		todos: []seedTodo{
			{
				text:        "Setup CI/CD pipeline",
				description: "Configure GitHub Actions for automated testing and deployment",
				active:      true,
				status:      model.TodoStatusNotStarted,
			},
			{
				text:        "Design new landing page",
				description: "Create mockups and wireframes for the new landing page",
				active:      true,
				status:      model.TodoStatusInProgress,
			},
			{
				text:        "Fix authentication bug",
				description: "Resolve issue with token expiration handling",
				active:      true,
				status:      model.TodoStatusCompleted,
			},
		},
	},
	{
		name:          "Mike Johnson",
		email:         "mike.johnson@example.com",
		emailVerified: false,
		todos: []seedTodo{
			{
				text:   "Optimize database queries",
				active: true,
				status: model.TodoStatusNotStarted,
			},
			{
				text:        "Write unit tests",
				description: "Add test coverage for authentication service",
				active:      false,
				status:      model.TodoStatusNotStarted,
			},
			{
				text:        "Refactor user service",
				description: "Break down user service into smaller modules",
				active:      true,
				status:      model.TodoStatusInProgress,
			},
		},
	},
}

// runSeed は開発用のデモデータを投入する。
// 既に登録済みのユーザー（メールアドレス一致）はスキップされるため、
// 繰り返し実行しても安全。
func runSeed(cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	userRepo := repository.NewPostgresUserRepo(db)
	todoRepo := repository.NewPostgresTodoRepo(db)

	ctx := context.Background()

	hash, err := bcrypt.GenerateFromPassword([]byte(seedPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash seed password: %w", err)
	}

	var created int
	for _, su := range seedData {
		existing, err := userRepo.FindByEmail(ctx, su.email)
		if err != nil {
			return fmt.Errorf("failed to check seed user: %w", err)
		}
		if existing != nil {
			slog.Info("seed user already exists, skipping",
				slog.String("email", su.email),
			)
			continue
		}

		now := time.Now()
		user := &model.User{
			ID:            uuid.New().String(),
			Email:         su.email,
			Name:          su.name,
			EmailVerified: su.emailVerified,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if su.image != "" {
			image := su.image
			user.Image = &image
		}
		account := &model.Account{
			ID:           uuid.New().String(),
			UserID:       user.ID,
			Provider:     model.ProviderCredential,
			PasswordHash: string(hash),
			CreatedAt:    now,
		}

		if err := userRepo.CreateWithAccount(ctx, user, account); err != nil {
			return fmt.Errorf("failed to create seed user %s: %w", su.email, err)
		}

		for _, st := range su.todos {
			todoRow := &model.Todo{
				ID:     uuid.New().String(),
				Text:   st.text,
				Active: st.active,
				Status: st.status,
				UserID: user.ID,
			}
			if st.description != "" {
				description := st.description
				todoRow.Description = &description
			}
			if _, err := todoRepo.Create(ctx, todoRow); err != nil {
				return fmt.Errorf("failed to create seed todo for %s: %w", su.email, err)
			}
		}

		created++
		slog.Info("seed user created",
			slog.String("email", su.email),
			slog.Int("todos", len(su.todos)),
		)
	}

	slog.Info("database seeding completed",
		slog.Int("users_created", created),
	)
	return nil
}
