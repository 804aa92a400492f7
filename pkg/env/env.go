package env

import "os"

// Get reads an environment variable, returning the fallback when it is
// unset or empty. Used for knobs that predate the envconfig layer, such
// as LOG_FORMAT.
func Get(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
