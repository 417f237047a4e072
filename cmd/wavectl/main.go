// Command wavectl provides administrative utilities for a Wavely deployment.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"wavely/internal/config"
	"wavely/internal/database"
	"wavely/internal/repository"
	"wavely/internal/seed"
	"wavely/internal/service"

	"github.com/docopt/docopt-go"
	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/term"
	"gorm.io/gorm"
)

const version = "1.0"

const usage = `Wavely administration.

Usage:
    wavectl migrate
    wavectl seed [--users=<n>] [--waves=<n>] [--comments=<n>] [--days=<n>]
        [--password=<password>] [--rand-seed=<n>] [--clean] [--dry-run]
    wavectl seed --fixtures [<file>] [--password=<password>] [--dry-run]
    wavectl repair-counters [--dry-run] [--json]
    wavectl create-user <username> <email> [--admin]
    wavectl -h | --help
    wavectl --version

Options:
    -h --help               Show this screen.
    --version               Show version.
    --users=<n>             Accounts to generate [default: 10].
    --waves=<n>             Waves to generate [default: 50].
    --comments=<n>          Maximum comments per wave [default: 5].
    --days=<n>              Spread created_at over this many days [default: 90].
    --password=<password>   Password for seeded accounts.
    --rand-seed=<n>         Deterministic content [default: 0].
    --clean                 Truncate all tables before seeding.
    --dry-run               Build in memory and write nothing.
    --fixtures              Apply a YAML fixtures file, or the built-in set.
    --json                  Print the report as JSON.
    --admin                 Grant admin rights.`

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], version)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		log.Fatalf("❌ %v", err)
	}
}

// env holds the connections every command needs.
type env struct {
	cfg   *config.Config
	db    *gorm.DB
	waves repository.WaveRepository
	mongo *mongo.Client
}

func connect(ctx context.Context) (*env, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("⚠️  Failed to read .env: %v", err)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	waves, client, err := repository.OpenWaveStore(ctx, cfg, db)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, db: db, waves: waves, mongo: client}, nil
}

func (e *env) close(ctx context.Context) {
	if e.mongo != nil {
		_ = e.mongo.Disconnect(ctx)
	}
	if sqlDB, err := e.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func run(ctx context.Context, opts docopt.Opts) error {
	e, err := connect(ctx)
	if err != nil {
		return err
	}
	defer e.close(ctx)

	switch {
	case flag(opts, "migrate"):
		return migrate(e)
	case flag(opts, "seed"):
		return seedData(ctx, e, opts)
	case flag(opts, "repair-counters"):
		return repairCounters(ctx, e, opts)
	case flag(opts, "create-user"):
		return createUser(ctx, e, opts)
	}
	return errors.New("unknown command")
}

func flag(opts docopt.Opts, key string) bool {
	v, _ := opts.Bool(key)
	return v
}

func str(opts docopt.Opts, key string) string {
	v, _ := opts.String(key)
	return v
}

func num(opts docopt.Opts, key string) (int, error) {
	v, err := opts.Int(key)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number", key)
	}
	return v, nil
}

func migrate(e *env) error {
	log.Println("🔄 Running migrations...")
	if err := database.Migrate(e.db); err != nil {
		return err
	}
	log.Println("✅ Migrations complete")
	return nil
}

func seedData(ctx context.Context, e *env, opts docopt.Opts) error {
	so := seed.Options{
		Password: str(opts, "--password"),
		DryRun:   flag(opts, "--dry-run"),
	}
	seeder := func() *seed.Seeder {
		return seed.NewSeeder(
			repository.NewUserRepository(e.db), e.waves, repository.NewFollowRepository(e.db), so)
	}

	if flag(opts, "--fixtures") {
		fx, err := seed.LoadFixtures(str(opts, "<file>"))
		if err != nil {
			return err
		}
		sum, err := seeder().ApplyFixtures(ctx, fx)
		if err != nil {
			return err
		}
		log.Printf("🎉 Fixtures applied: %s", sum)
		return nil
	}

	var err error
	if so.Users, err = num(opts, "--users"); err != nil {
		return err
	}
	if so.Waves, err = num(opts, "--waves"); err != nil {
		return err
	}
	if so.CommentsPerWave, err = num(opts, "--comments"); err != nil {
		return err
	}
	if so.MaxDays, err = num(opts, "--days"); err != nil {
		return err
	}
	randSeed, err := num(opts, "--rand-seed")
	if err != nil {
		return err
	}
	so.RandSeed = int64(randSeed)

	if flag(opts, "--clean") && !so.DryRun {
		if e.cfg.IsProduction() {
			return errors.New("refusing to clean a production database")
		}
		log.Println("🗑️  Clearing existing data...")
		if err := seed.ClearAll(e.db); err != nil {
			return fmt.Errorf("failed to clear data: %w", err)
		}
		if e.mongo != nil {
			if err := repository.DropMongoWaves(ctx, e.mongo, e.cfg.MongoDB); err != nil {
				return fmt.Errorf("failed to clear waves: %w", err)
			}
		}
	}

	log.Printf("🌱 Seeding %d users and %d waves...", so.Users, so.Waves)
	sum, err := seeder().Run(ctx)
	if err != nil {
		return err
	}
	log.Printf("🎉 Seeding completed: %s", sum)
	return nil
}

func repairCounters(ctx context.Context, e *env, opts docopt.Opts) error {
	report, err := service.RepairCounters(ctx, e.waves, flag(opts, "--dry-run"))
	if err != nil {
		return err
	}
	if flag(opts, "--json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	log.Printf("✓ scanned %d waves, repaired %d", report.Scanned, report.Repaired)
	if len(report.Failed) > 0 {
		return fmt.Errorf("%d waves could not be repaired: %v", len(report.Failed), report.Failed)
	}
	return nil
}

func createUser(ctx context.Context, e *env, opts docopt.Opts) error {
	password, err := readPassword()
	if err != nil {
		return err
	}

	users := repository.NewUserRepository(e.db)
	svc := service.NewUserService(users, repository.NewFollowRepository(e.db), nil)
	user, err := svc.Signup(ctx, service.SignupInput{
		Username: str(opts, "<username>"),
		Email:    str(opts, "<email>"),
		Password: password,
	})
	if err != nil {
		return err
	}

	if flag(opts, "--admin") {
		user.IsAdmin = true
		if err := users.Update(ctx, user); err != nil {
			return fmt.Errorf("failed to grant admin: %w", err)
		}
	}
	fmt.Printf("✅ Created user %s (ID: %d, admin: %t)\n", user.Username, user.ID, user.IsAdmin)
	return nil
}

// readPassword prompts twice on a terminal, or reads one line from a pipe.
func readPassword() (string, error) {
	fd := int(syscall.Stdin)
	if !term.IsTerminal(fd) {
		var line string
		if _, err := fmt.Fscanln(os.Stdin, &line); err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return strings.TrimSpace(line), nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	fmt.Fprint(os.Stderr, "Confirm password: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	return string(first), nil
}
