package telemetry

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sigscope/sigscope/internal/errors"
)

const systemIDFile = ".system_id"

// GenerateSystemID creates a random installation id formatted XXXX-XXXX-XXXX.
func GenerateSystemID() (string, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", errors.New(err).
			Component("telemetry").
			Category(errors.CategorySystem).
			Build()
	}
	id := hex.EncodeToString(b)
	return strings.ToUpper(fmt.Sprintf("%s-%s-%s", id[0:4], id[4:8], id[8:12])), nil
}

// LoadOrCreateSystemID returns the id stored in dir, creating it on first use.
func LoadOrCreateSystemID(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.New(err).
			Component("telemetry").
			Category(errors.CategoryFileIO).
			Context("directory", dir).
			Build()
	}

	path := filepath.Join(dir, systemIDFile)
	if data, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(data)); IsValidSystemID(id) {
			return id, nil
		}
	}

	id, err := GenerateSystemID()
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(id), 0o644); err != nil {
		return "", errors.New(err).
			Component("telemetry").
			Category(errors.CategoryFileIO).
			Context("file", path).
			Build()
	}
	return id, nil
}

// IsValidSystemID checks the XXXX-XXXX-XXXX hex format.
func IsValidSystemID(id string) bool {
	if len(id) != 14 || id[4] != '-' || id[9] != '-' {
		return false
	}
	for i, r := range id {
		if i == 4 || i == 9 {
			continue
		}
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}
