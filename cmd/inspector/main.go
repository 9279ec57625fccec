package main

import (
	"fmt"
	"log"
	"os"

	"relay-lab/domain"
	"relay-lab/infrastructure/storage"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
)

// Config for the read-only inspector. Kept separate from the hub's config
// because it only ever needs the archive path.
type Config struct {
	BadgerFilepath string `envconfig:"BADGER_FILEPATH" default:"./data/history"`
	Limit          int    `envconfig:"INSPECTOR_LIMIT" default:"20"`
	LogLevel       string `envconfig:"LOG_LEVEL" default:"WARN"`
}

// The inspector opens the delivery history read-only and prints the most
// recent sent and failed messages. BypassLockGuard allows opening while the
// hub holds the lock.
func main() {
	_ = godotenv.Load()
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Config error: %v", err)
	}
	logger := logs.GetLoggerFromString(cfg.LogLevel)

	opts := badger.DefaultOptions(cfg.BadgerFilepath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open history database: %v", err)
	}
	defer db.Close()

	history := storage.NewHistory(db, logger)
	for _, status := range []domain.DeliveryStatus{domain.StatusSent, domain.StatusFailed} {
		records, err := history.ListByStatus(status, cfg.Limit)
		if err != nil {
			log.Fatalf("History scan failed for %s: %v", status, err)
		}
		render(status, records)
	}
}

func render(status domain.DeliveryStatus, records []storage.HistoryRecord) {
	header := color.Bold.Sprintf("%s messages (%d most recent)", status, len(records))
	if status == domain.StatusFailed {
		header = color.Red.Sprint(header)
	} else {
		header = color.Green.Sprint(header)
	}
	fmt.Println(header)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Kind", "Type", "Retries", "Created", "Archived"})
	for _, r := range records {
		table.Append([]string{
			r.ID.String(),
			string(r.Kind),
			string(r.Type),
			fmt.Sprintf("%d", r.RetryCount),
			r.CreatedAt.Format("2006-01-02 15:04:05"),
			r.ArchivedAt.Format("2006-01-02 15:04:05"),
		})
	}
	table.Render()
	fmt.Println()
}
