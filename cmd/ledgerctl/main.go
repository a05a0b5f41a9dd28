package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/ArowuTest/uptime-rewards-backend/internal/config"
	"github.com/ArowuTest/uptime-rewards-backend/internal/services"
	"github.com/ArowuTest/uptime-rewards-backend/internal/storage"
	"github.com/ArowuTest/uptime-rewards-backend/internal/utils"
	"github.com/ArowuTest/uptime-rewards-backend/pkg/jwt"
	"github.com/joho/godotenv"
	"golang.org/x/exp/slog"
)

const usage = `usage:
  ledgerctl import [-batch name] <file.csv>   post reward rows to the ledger
  ledgerctl verify <userId>                   replay a user's ledger
  ledgerctl hash-key <key>                    print the bcrypt hash for Internal.KeyHash
  ledgerctl issue-token <walletAddress>       sign a node bearer token`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	// Load .env file
	if err := godotenv.Load(); err != nil {
		slog.Debug(".env file not found, using environment variables")
	}

	args := os.Args[2:]
	switch os.Args[1] {
	case "import":
		runImport(args)
	case "verify":
		runVerify(args)
	case "hash-key":
		if len(args) != 1 {
			fmt.Fprintln(os.Stderr, usage)
			os.Exit(2)
		}
		hash, err := utils.HashInternalKey(args[0])
		if err != nil {
			fatal("Failed to hash key", err)
		}
		fmt.Println(hash)
	case "issue-token":
		if len(args) != 1 {
			fmt.Fprintln(os.Stderr, usage)
			os.Exit(2)
		}
		token, err := jwt.NewNodeTokenService(loadConfig()).Issue(args[0])
		if err != nil {
			fatal("Failed to issue token", err)
		}
		fmt.Println(token)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
}

func runImport(args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	batch := fs.String("batch", "", "batch name used in generated idempotency keys (default: file name)")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := loadConfig()
	ctx := context.Background()
	stores, err := storage.Open(ctx, cfg)
	if err != nil {
		fatal("Failed to open storage", err)
	}

	ledger := services.NewLedgerService(stores.Ledger, cfg.Storage.Timeout, cfg.Retry.MaxConflictRetries)
	users := services.NewUserService(stores.Users, cfg.Users.AutoRegister, cfg.Storage.Timeout)
	importer := utils.NewCSVImporter(ledger, users)

	var result *utils.ImportResult
	if *batch == "" {
		result, err = importer.ImportFile(ctx, fs.Arg(0))
	} else {
		var file *os.File
		if file, err = os.Open(fs.Arg(0)); err == nil {
			result, err = importer.Import(ctx, file, *batch)
			file.Close()
		}
	}
	_ = stores.Close(ctx)
	if err != nil {
		fatal("Failed to import data", err)
	}

	printJSON(result)
	if result.Failed > 0 {
		os.Exit(1)
	}
}

func runVerify(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := loadConfig()
	ctx := context.Background()
	stores, err := storage.Open(ctx, cfg)
	if err != nil {
		fatal("Failed to open storage", err)
	}

	ledger := services.NewLedgerService(stores.Ledger, cfg.Storage.Timeout, cfg.Retry.MaxConflictRetries)
	report, err := ledger.VerifyBalance(ctx, args[0])
	_ = stores.Close(ctx)
	if err != nil {
		fatal("Failed to verify ledger", err)
	}

	printJSON(report)
	if !report.Consistent {
		os.Exit(1)
	}
}

func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fatal("Failed to load configuration", err)
	}
	return cfg
}

func printJSON(v any) {
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
