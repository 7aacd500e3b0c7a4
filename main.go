package main

import (
	"context"
	"flag"

	"github.com/korjavin/leadbot/bot"
	"github.com/korjavin/leadbot/config"
	"github.com/korjavin/leadbot/database"
	"github.com/korjavin/leadbot/logx"
	"github.com/korjavin/leadbot/report"
	"github.com/korjavin/leadbot/sheets"
	"github.com/korjavin/leadbot/survey"
)

func main() {
	setupHeaders := flag.Bool("setup-headers", false, "write the header row to the sheet and exit")
	flag.Parse()

	// Load config
	cfg, err := config.Load()
	if err != nil {
		logx.Fatalf("Failed to load configuration: %v", err)
	}
	logx.SetDebug(cfg.Debug)
	logx.Infof("Starting leadbot...")

	// Load the survey catalog; a malformed catalog is fatal
	catalog, err := survey.Load(cfg.SurveyPath)
	if err != nil {
		logx.Fatalf("Failed to load survey catalog: %v", err)
	}
	logx.Infof("Loaded %d survey questions", catalog.Len())

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		logx.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	var sink report.Appender
	var stats bot.StatsReader
	if cfg.SheetsDisabled {
		logx.Warnf("Sheet integration disabled, leads go to the local backup only")
	} else {
		client, err := sheets.New(context.Background(), cfg.SheetID, cfg.CredentialsJSON, cfg.CredentialsFile)
		if err != nil {
			logx.Fatalf("Failed to initialize Google Sheets client: %v", err)
		}
		sink = client
		stats = client

		if *setupHeaders {
			reporter := report.New(catalog, client, nil, nil)
			if err := client.SetupHeaders(context.Background(), reporter.Headers()); err != nil {
				logx.Fatalf("Failed to set up sheet headers: %v", err)
			}
			logx.Infof("Sheet headers written, exiting")
			return
		}
	}

	engine := survey.NewEngine(catalog)

	b, err := bot.New(cfg, engine, db, sink, stats)
	if err != nil {
		logx.Fatalf("Failed to initialize bot: %v", err)
	}

	logx.Infof("Bot initialized successfully")
	b.Start()
}
