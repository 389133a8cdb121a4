package store

import "fmt"

// Supported DATABASE_DRIVER values.
const (
	DriverSQLite     = "sqlite3"
	DriverGormSQLite = "gorm-sqlite"
	DriverMySQL      = "mysql"
)

// Open returns the Store for driver. An empty driver means sqlite3.
func Open(driver, dsn string) (Store, error) {
	switch driver {
	case "", DriverSQLite:
		s, err := NewSQLiteStore(dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverGormSQLite:
		s, err := NewGormSQLiteStore(dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverMySQL:
		s, err := NewMySQLStore(dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("store: unknown driver %q", driver)
	}
}
