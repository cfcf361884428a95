package config

import "fmt"

// LoadFromEnv reads the process environment. Dev builds first merge the
// dotenv files named by ENV_FILE (comma separated, default ".env"); values
// already exported win.
func LoadFromEnv() (Config, error) {
	files := parseList(FromEnviron(), "ENV_FILE")
	if len(files) == 0 {
		files = []string{".env"}
	}
	if err := loadDotEnv(files); err != nil {
		return Config{}, fmt.Errorf("load dotenv: %w", err)
	}
	return Load(FromEnviron())
}
