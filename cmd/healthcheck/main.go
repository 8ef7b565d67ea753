package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/sirupsen/logrus"

	"github.com/daccred/library-ledger/config"
	"github.com/daccred/library-ledger/db"
	"github.com/daccred/library-ledger/handlers"
	"github.com/daccred/library-ledger/models"
)

// loadSettings reads the same configuration the server runs with. The
// archive must be reachable even when the server keeps it disabled.
func loadSettings(dir, env string) (config.Settings, error) {
	v, err := config.Load(dir, env)
	if err != nil {
		return config.Settings{}, fmt.Errorf("failed to load configuration: %w", err)
	}
	settings, err := config.Decode(v)
	if err != nil {
		return config.Settings{}, fmt.Errorf("invalid configuration: %w", err)
	}
	if settings.Archive.DatabaseURL == "" {
		return config.Settings{}, fmt.Errorf("archive.database_url (or DATABASE_URL) must be set")
	}
	return settings, nil
}

func main() {
	environment := flag.String("e", "development", "")
	configDir := flag.String("config", "config/", "")
	flag.Parse()

	settings, err := loadSettings(*configDir, *environment)
	if err != nil {
		pterm.Fatal.Println(err)
	}
	databaseURL := settings.Archive.DatabaseURL
	difficulty := settings.Ledger.Difficulty
	secret := settings.Ledger.SigningSecret
	pterm.Info.Printfln("Checking archive with difficulty %d (%s configuration)", difficulty, *environment)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pterm.Info.Println("Testing database connection...")
	dbConn, err := db.Connect(databaseURL)
	if err != nil {
		pterm.Fatal.Printfln("failed to connect to database: %v", err)
	}
	defer dbConn.Close()
	pterm.Success.Println("Database connection successful!")

	logger := logrus.WithField("service", "healthcheck")
	archive := db.NewArchive(dbConn, logger)
	blocks, err := archive.LoadBlocks(ctx)
	if err != nil {
		pterm.Fatal.Printfln("failed to load archived blocks: %v", err)
	}
	if len(blocks) == 0 {
		pterm.Warning.Println("Archive is empty, nothing to verify")
		return
	}
	pterm.Success.Printfln("Loaded %d archived blocks", len(blocks))

	_, restoreErr := handlers.RestoreLedger(handlers.LedgerConfig{
		Difficulty:    difficulty,
		SigningSecret: secret,
	}, blocks, logger)

	counts := map[models.Kind]int{}
	unsigned := 0
	for _, block := range blocks {
		for _, tx := range block.Transactions {
			counts[tx.Kind]++
			if !tx.Verify(secret) {
				unsigned++
			}
		}
	}

	rows := pterm.TableData{{"Kind", "Count"}}
	for _, kind := range models.Kinds() {
		rows = append(rows, []string{string(kind), strconv.Itoa(counts[kind])})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(rows).Render(); err != nil {
		pterm.Error.Printfln("failed to render table: %v", err)
	}

	tail := blocks[len(blocks)-1]
	pterm.DefaultBox.WithTitle(pterm.LightCyan("|TAIL|")).WithTitleTopCenter().Println(
		pterm.Sprintfln("index %d\nhash  %s\nmined %s", tail.Index, tail.Hash, time.UnixMilli(tail.Timestamp).UTC().Format(time.RFC3339)))

	failed := false
	if restoreErr != nil {
		pterm.Error.Printfln("Chain invalid: %v", restoreErr)
		failed = true
	} else {
		pterm.Success.Println("Chain linkage and proof of work verified")
	}
	if unsigned > 0 {
		pterm.Error.Printfln("%d transactions carry a signature that does not verify", unsigned)
		failed = true
	} else {
		pterm.Success.Println("All transaction signatures verified")
	}
	if failed {
		os.Exit(1)
	}
}
