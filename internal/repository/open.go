package repository

import (
	"fmt"

	"kasabot/internal/infra"

	"gorm.io/gorm"
)

// OpenKasaStore returns the store for driver. For "file" the path is the
// JSON snapshot, for "sqlite" the database file; "postgres" uses dsn. db is
// nil for the file store.
func OpenKasaStore(driver, path, dsn string) (KasaStore, *gorm.DB, error) {
	switch driver {
	case "file", "":
		return NewFileKasaStore(path), nil, nil
	case "sqlite":
		dsn = path
	case "postgres":
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", driver)
	}
	db, err := infra.NewDatabase(driver, dsn, &KasaRow{})
	if err != nil {
		return nil, nil, err
	}
	return NewGormKasaStore(db), db, nil
}
