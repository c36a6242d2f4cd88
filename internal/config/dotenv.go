package config

import "github.com/joho/godotenv"

// LoadDotEnv reads a .env file into the process environment.
// It does NOT override existing env vars (env takes precedence).
func LoadDotEnv(path string) error {
	return godotenv.Load(path)
}
