// Package secrets resolves credentials from files (Docker or Kubernetes
// secrets) and environment variable references. Secret values are never
// logged.
package secrets

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/sigscope/sigscope/internal/errors"
	"github.com/sigscope/sigscope/internal/logger"
)

// maxSecretFileSize bounds secret file reads; secrets are tokens, not documents.
const maxSecretFileSize = 64 * 1024

// ExpandString expands ${VAR} and ${VAR:-default} references in s. A
// variable without a default that is unset or empty is an error.
func ExpandString(s string) (string, error) {
	if s == "" {
		return "", nil
	}

	var missing []string
	expanded := os.Expand(s, func(key string) string {
		name, def, hasDefault := strings.Cut(key, ":-")
		if v := os.Getenv(name); v != "" {
			return v
		}
		if hasDefault {
			return def
		}
		missing = append(missing, name)
		return ""
	})

	if len(missing) > 0 {
		return "", errors.Newf("missing required environment variable(s): %s", strings.Join(missing, ", ")).
			Component("secrets").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return expanded, nil
}

// ReadFile reads a secret file, trimming trailing newlines. Files readable
// by group or others are accepted with a warning.
func ReadFile(path string) (string, error) {
	if path == "" {
		return "", fileError(errors.NewStd("secret file path is empty"), path)
	}
	clean := filepath.Clean(path)

	info, err := os.Stat(clean)
	if err != nil {
		return "", fileError(err, clean)
	}
	if !info.Mode().IsRegular() {
		return "", fileError(errors.NewStd("secret path is not a regular file"), clean)
	}
	if info.Size() > maxSecretFileSize {
		return "", fileError(errors.NewStd("secret file too large"), clean)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		GetLogger().Warn("secret file is readable by group or others",
			logger.String("path", clean),
			logger.String("mode", perm.String()))
	}

	data, err := os.ReadFile(clean)
	if err != nil {
		return "", fileError(err, clean)
	}
	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", fileError(errors.NewStd("secret file is empty"), clean)
	}
	return secret, nil
}

func fileError(err error, path string) error {
	return errors.New(err).
		Component("secrets").
		Category(errors.CategoryConfiguration).
		Context("file", path).
		Build()
}

// Resolve returns the secret from filePath when set, otherwise value with
// environment references expanded.
func Resolve(filePath, value string) (string, error) {
	if filePath != "" {
		return ReadFile(filePath)
	}
	return ExpandString(value)
}

// GetLogger returns the secrets module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("secrets")
}
