package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"remindify/internal/config"
	"remindify/internal/models"
	"remindify/internal/services"
	"remindify/internal/storage"
)

const timeLayout = "2006-01-02 15:04:05"

func usage() {
	fmt.Println("Usage:")
	fmt.Println("  ./admin list-circle <username>   - list accepted and pending connections of a user")
	fmt.Println("  ./admin history <username>       - show recent connection events of a user")
	fmt.Println("  ./admin show-reminder <id>       - show a reminder")
	fmt.Println("  ./admin prune-events <days>      - delete connection events older than <days>")
}

func main() {
	if len(os.Args) < 3 {
		usage()
		os.Exit(1)
	}

	_ = godotenv.Load()
	cfg, err := config.LoadConfig(os.Getenv("REMINDIFY_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, closeDB, err := openDB(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer closeDB()

	ctx := context.Background()
	userRepo := storage.NewGormUserRepository(db)
	connRepo := storage.NewGormConnectionRepository(db)
	audit := services.NewAuditService(storage.NewGormConnectionEventRepository(db))

	switch os.Args[1] {
	case "list-circle":
		listCircle(ctx, userRepo, connRepo, mustUser(ctx, userRepo, os.Args[2]))
	case "history":
		showHistory(ctx, audit, mustUser(ctx, userRepo, os.Args[2]))
	case "show-reminder":
		id, err := storage.ParseID(os.Args[2])
		if err != nil {
			log.Fatalf("Invalid reminder ID: %v", err)
		}
		showReminder(ctx, storage.NewGormReminderRepository(db), userRepo, id)
	case "prune-events":
		days, err := strconv.Atoi(os.Args[2])
		if err != nil || days <= 0 {
			log.Fatalf("Invalid number of days: %q", os.Args[2])
		}
		n, err := audit.Prune(ctx, time.Duration(days)*24*time.Hour)
		if err != nil {
			log.Fatalf("Failed to prune events: %v", err)
		}
		fmt.Printf("Deleted %d connection events older than %d days\n", n, days)
	default:
		usage()
		log.Fatalf("Unknown command: %s", os.Args[1])
	}
}

// openDB connects to postgres through lib/pq and to any other type through storage.InitDB.
func openDB(cfg config.DatabaseConfig) (*gorm.DB, func(), error) {
	if cfg.Type != "postgres" {
		db, err := storage.InitDB(cfg, "warn")
		if err != nil {
			return nil, nil, err
		}
		return db, func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}, nil
	}

	sqlDB, err := sql.Open("postgres", storage.PostgresDSN(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn: sqlDB,
	}), &gorm.Config{
		Logger:         newLogger,
		TranslateError: true,
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("failed to create GORM instance: %w", err)
	}
	return db, func() { _ = sqlDB.Close() }, nil
}

func mustUser(ctx context.Context, repo storage.UserRepository, username string) *models.User {
	user, err := repo.GetByUsername(ctx, services.CanonicalUsername(username))
	if err != nil {
		log.Fatalf("Failed to find user %q: %v", username, err)
	}
	return user
}

func listCircle(ctx context.Context, users storage.UserRepository, conns storage.ConnectionRepository, user *models.User) {
	accepted, err := conns.ListAccepted(ctx, user.ID)
	if err != nil {
		log.Fatalf("Failed to list connections: %v", err)
	}
	incoming, err := conns.ListPendingIncoming(ctx, user.ID)
	if err != nil {
		log.Fatalf("Failed to list incoming requests: %v", err)
	}
	outgoing, err := conns.ListPendingOutgoing(ctx, user.ID)
	if err != nil {
		log.Fatalf("Failed to list outgoing requests: %v", err)
	}

	all := append(append(append([]models.Connection{}, accepted...), incoming...), outgoing...)
	ids := make([]uint, 0, len(all))
	for _, c := range all {
		ids = append(ids, c.Counterpart(user.ID))
	}
	names, err := users.GetMultipleBasicInfoByIDs(ctx, ids)
	if err != nil {
		log.Fatalf("Failed to load users: %v", err)
	}

	fmt.Printf("Circle of %s (id %d): %d members, %d incoming, %d outgoing\n",
		user.Username, user.ID, len(accepted), len(incoming), len(outgoing))
	fmt.Println("--------------------------------------")
	for _, c := range all {
		other := c.Counterpart(user.ID)
		name := fmt.Sprintf("#%d", other)
		if info, ok := names[other]; ok {
			name = info.Username
		}
		direction := ""
		if c.IsPending() {
			direction = "outgoing"
			if c.RecipientID == user.ID {
				direction = "incoming"
			}
		}
		fmt.Printf("conn %d  %-9s %-9s %-20s label=%q since %s\n",
			c.ID, c.Status, direction, name, c.Label, c.CreatedAt.Format(timeLayout))
	}
}

func showHistory(ctx context.Context, audit services.AuditService, user *models.User) {
	events, err := audit.ListHistory(ctx, user.ID, 0)
	if err != nil {
		log.Fatalf("Failed to load history: %v", err)
	}
	fmt.Printf("Connection history of %s (%d events):\n", user.Username, len(events))
	fmt.Println("--------------------------------------")
	for _, e := range events {
		fmt.Printf("%s  %-18s conn=%d actor=%d requester=%d recipient=%d\n",
			e.OccurredAt.Format(timeLayout), e.Type, e.ConnectionID, e.ActorID, e.RequesterID, e.RecipientID)
	}
}

func showReminder(ctx context.Context, reminders storage.ReminderRepository, users storage.UserRepository, id uint) {
	r, err := reminders.GetByID(ctx, id)
	if err != nil {
		log.Fatalf("Failed to get reminder: %v", err)
	}
	names, err := users.GetMultipleBasicInfoByIDs(ctx, []uint{r.SenderID, r.RecipientID})
	if err != nil {
		log.Fatalf("Failed to load users: %v", err)
	}

	fmt.Printf("Reminder %s:\n", r.IDString())
	fmt.Println("--------------------------------------")
	fmt.Printf("Subject:   %s\n", r.Subject)
	fmt.Printf("From:      %s\n", usernameOr(names, r.SenderID))
	fmt.Printf("To:        %s\n", usernameOr(names, r.RecipientID))
	fmt.Printf("Scheduled: %s\n", r.ScheduledAt.Format(timeLayout))
	fmt.Printf("Status:    %s (read: %v)\n", r.Status, r.Read)
	fmt.Printf("Body:\n%s\n", r.Body)
}

func usernameOr(names map[uint]*models.UserBasicInfo, id uint) string {
	if info, ok := names[id]; ok {
		return info.Username
	}
	return "#" + strconv.FormatUint(uint64(id), 10)
}
