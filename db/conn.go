// Package db opens the metadata database and keeps its schema up to date
package db

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strings"
	"time"

	"bitwise74/notes-api/internal/model"
	"bitwise74/notes-api/pkg/util"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	Driver string // sqlite or postgres
	DSN    string
}

func New(c Config) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch c.Driver {
	case "", "sqlite":
		// If running in a docker container don't allow the sqlite file to be created.
		// The host should instead mount it using volumes
		if util.IsRunningInDocker() && !strings.Contains(c.DSN, "memory") {
			if _, err := os.Stat(sqlitePath(c.DSN)); errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("SQLite database file not mounted, please use docker volumes to mount it to %s", sqlitePath(c.DSN))
			}
		}

		dialector = sqlite.Open(c.DSN)
	case "postgres":
		dialector = postgres.Open(c.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", c.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		// Users and notes are removed in separate steps, one after the other
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   newLogger(log.New(os.Stdout, "\r\n", log.LstdFlags)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s database, %w", c.Driver, err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Lookups of missing users and notes are normal traffic and stay quiet
func newLogger(w logger.Writer) logger.Interface {
	return logger.New(w, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  true,
	})
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(model.User{}, model.Note{}); err != nil {
		return fmt.Errorf("failed to automigrate tables, %w", err)
	}

	return nil
}

func sqlitePath(dsn string) string {
	p := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}

	return p
}
