//go:build !prod

package database

// In development the database sits next to the repo so it is easy to inspect
// and throw away.
func dbPath() (string, error) {
	return "wattson.db", nil
}
