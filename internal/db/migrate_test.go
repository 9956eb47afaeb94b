package db

import (
	"strings"
	"testing"

	"github.com/winson8942-oss/line-drive-bot/internal/config"
)

var testPostgres = config.PostgresConfig{
	Host:     "localhost",
	Port:     5432,
	User:     "linedrive",
	Password: "secret",
	Database: "linedrive",
	SSLMode:  "disable",
}

func TestRunMigrateUnknownCommand(t *testing.T) {
	err := RunMigrate(nil, testPostgres, nil, "invalid", nil)
	if err == nil {
		t.Fatal("expected error for unknown command")
	}
}

func TestRunMigrateForceArguments(t *testing.T) {
	if err := RunMigrate(nil, testPostgres, nil, "force", nil); err == nil {
		t.Fatal("expected error for missing version")
	}
	err := RunMigrate(nil, testPostgres, nil, "force", []string{"one"})
	if err == nil || !strings.Contains(err.Error(), "invalid version") {
		t.Fatalf("expected invalid version error, got %v", err)
	}
}
