// Package conn opens the PostgreSQL database backing the audit store.
package conn

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Postgres describes the audit database target. ConnString, when set,
// is passed through untouched; otherwise a keyword DSN is built from
// the discrete fields.
type Postgres struct {
	ConnString string `yaml:"conn_string"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	Database   string `yaml:"database"`
	SSLMode    string `yaml:"ssl_mode"`
}

// Open connects and returns the gorm handle the audit store writes
// through.
func (p Postgres) Open() (*gorm.DB, error) {
	return gorm.Open(postgres.Open(p.dsn()), &gorm.Config{})
}

// Close releases the connection pool behind a gorm handle.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (p Postgres) dsn() string {
	if p.ConnString != "" {
		return p.ConnString
	}

	pairs := make([]string, 0, 6)
	add := func(key, value string) {
		if value != "" {
			pairs = append(pairs, key+"="+value)
		}
	}
	add("host", valueOr(p.Host, "localhost"))
	if p.Port > 0 {
		pairs = append(pairs, fmt.Sprintf("port=%d", p.Port))
	} else {
		pairs = append(pairs, "port=5432")
	}
	add("user", p.User)
	add("password", p.Password)
	add("dbname", p.Database)
	add("sslmode", valueOr(p.SSLMode, "disable"))
	return strings.Join(pairs, " ")
}

func valueOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
