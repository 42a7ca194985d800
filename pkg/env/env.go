package env

import "os"

// Get reads an environment variable, falling back to def when the
// variable is unset or empty.
func Get(name, def string) string {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return def
	}
	return v
}
