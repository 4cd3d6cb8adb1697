package database

import (
	"fmt"
	"log/slog"
)

// NewDatabase opens the run history store of the given type. The schema is
// created if missing, which matters for in-memory SQLite.
func NewDatabase(databaseType, connectionString string) (DatabaseService, error) {
	switch databaseType {
	case "sqlite":
		slog.Debug("opening database", "type", databaseType)
		database, err := NewSQLiteDatabase(connectionString)
		if err != nil {
			return nil, err
		}
		return database, nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", databaseType)
	}
}
