// custody-admin is an operator tool for bootstrap tasks that do not belong
// in the API: generating a sample config file and creating the platform
// commission account.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"custody-platform/config"
	"custody-platform/internal/database"
	"custody-platform/internal/logging"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	generateConfig := flag.String("generate-config", "", "write a sample config file to the given path and exit")
	createPlatform := flag.Bool("create-platform-account", false, "create the platform commission account")
	platformEmail := flag.String("platform-email", "platform@localhost", "email for the platform account")
	flag.Parse()

	if *generateConfig != "" {
		if err := config.GenerateSampleConfig(*generateConfig); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write sample config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("sample config written to %s\n", *generateConfig)
		return
	}

	if !*createPlatform {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LoggingConfig)

	db, err := database.NewDB(database.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		Database: cfg.DatabaseConfig.Database,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
	}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.RunMigrations(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		os.Exit(1)
	}

	repo := database.NewRepository(db)

	// The platform account never logs in; a random password locks it out.
	hash, err := bcrypt.GenerateFromPassword([]byte(uuid.New().String()), bcrypt.DefaultCost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}

	account := &database.Account{
		ID:                uuid.New().String(),
		Email:             *platformEmail,
		PasswordHash:      string(hash),
		Balance:           decimal.Zero,
		AvailableBalance:  decimal.Zero,
		UsedMargin:        decimal.Zero,
		GiftBalance:       decimal.Zero,
		CustodyFeeBalance: decimal.Zero,
		CustodyFeePending: decimal.Zero,
		SettlementCadence: database.CadenceWeekly,
		ReferrerChain:     []string{},
		ServiceStartTime:  time.Now().UTC(),
		Status:            database.AccountActive,
	}

	if err := repo.CreateAccount(ctx, account); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create platform account: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("platform account created: %s\n", account.ID)
	fmt.Println("set FEE_PLATFORM_ACCOUNT_ID to this id in the service environment")
}
