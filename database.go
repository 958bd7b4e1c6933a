package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// InitDB connects to Postgres when DB_HOST is configured, otherwise falls
// back to a local SQLite file (SQLITE_PATH, default data/database.db), and
// migrates the three tables.
func InitDB() {
	db, err := openDB()
	if err != nil {
		logrus.WithError(err).Fatal("failed to connect to database")
	}

	DB = db

	if err := DB.AutoMigrate(&User{}, &Event{}, &Registration{}); err != nil {
		logrus.WithError(err).Fatal("database migration failed")
	}

	logrus.Info("database connected and migrated")
}

func openDB() (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	host := os.Getenv("DB_HOST")
	if host == "" {
		path := os.Getenv("SQLITE_PATH")
		if path == "" {
			path = "data/database.db"
		}
		logrus.WithField("path", path).Info("DB_HOST not set, using sqlite")
		return gorm.Open(sqlite.Open(path), cfg)
	}

	user := os.Getenv("DB_USER")
	pass := os.Getenv("DB_PASS")
	name := os.Getenv("DB_NAME")
	port := os.Getenv("DB_PORT")
	if user == "" || pass == "" || name == "" || port == "" {
		return nil, fmt.Errorf("DB_HOST is set but DB_USER/DB_PASS/DB_NAME/DB_PORT are incomplete")
	}

	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		host, user, pass, name, port,
	)
	return gorm.Open(postgres.Open(dsn), cfg)
}
