package main

import (
	"errors"
	"flag"
	"log"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func main() {
	path := flag.String("path", "./migrations", "directory holding migration files")
	database := flag.String("database", "sqlite://./data/alerting.db", "database URL to migrate")
	flag.Parse()

	command := flag.Arg(0)
	if command == "" {
		log.Fatal("usage: migrate [-path dir] [-database url] up|down|version")
	}

	m, err := migrate.New("file://"+*path, *database)
	if err != nil {
		log.Fatalf("open migrations: %v", err)
	}

	switch command {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("migrate up: %v", err)
		}
		log.Println("migrations applied")
	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("migrate down: %v", err)
		}
		log.Println("migrations rolled back")
	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			log.Fatalf("read version: %v", err)
		}
		log.Printf("version %d (dirty=%v)", version, dirty)
	default:
		log.Fatalf("unknown command %q: use up, down or version", command)
	}
}
