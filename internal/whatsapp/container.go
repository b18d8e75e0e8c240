package whatsapp

import (
	"context"
	"database/sql"
	"fmt"

	"go.mau.fi/whatsmeow/store/sqlstore"

	// sqlite driver for the device store
	_ "github.com/mattn/go-sqlite3"

	"github.com/ahmadsysdev/wabot/internal/paths"
)

// openContainer opens (or creates) a whatsmeow device database and runs
// its schema migrations.
func openContainer(path string) (*sqlstore.Container, error) {
	if err := paths.EnsureParentDir(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open device db %s: %w", path, err)
	}
	container := sqlstore.NewWithDB(db, "sqlite3", &wabotLogger{module: "store"})
	if err := container.Upgrade(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to upgrade device store: %w", err)
	}
	return container, nil
}
