// ABOUTME: Backend selection by driver name
// ABOUTME: Maps the storage.driver config value onto a concrete Backend

package kv

import "fmt"

// Driver names accepted by Open.
const (
	DriverSQLite = "sqlite"
	DriverBolt   = "bolt"
	DriverMemory = "memory"
)

// Open creates the Backend named by driver. path is ignored for memory.
func Open(driver, path string) (Backend, error) {
	switch driver {
	case DriverSQLite, "":
		return NewSQLiteBackend(path)
	case DriverBolt:
		return NewBoltBackend(path)
	case DriverMemory:
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
