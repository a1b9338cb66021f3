// cmd/migrator/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"

	"unilib/internal/config"
	"unilib/internal/database"
	"unilib/internal/logging"
	"unilib/migrations"
)

func main() {
	configPath := flag.String("config", os.Getenv("UNILIB_CONFIG"), "path to a YAML config file")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	log := logging.New(cfg.Log, cfg.Server.Env)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(log)
	if err := goose.SetDialect("postgres"); err != nil {
		log.WithError(err).Fatal("Failed to set migration dialect")
	}

	switch args[0] {
	case "up":
		err = goose.Up(db.DB, ".")
	case "down":
		err = goose.Down(db.DB, ".")
	case "status":
		err = goose.Status(db.DB, ".")
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.WithError(err).Fatalf("Migration %s failed", args[0])
	}
	log.Infof("Migration %s done", args[0])
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: migrator [-config file] <up|down|status>\n")
	flag.PrintDefaults()
}
