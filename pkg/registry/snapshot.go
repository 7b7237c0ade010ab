package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"openrouter-gateway/pkg/upstream"
)

// readSnapshot loads the persisted catalog. Callers treat any failure the
// same way: start cold and wait for the first refresh.
func readSnapshot(path string) ([]upstream.Model, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var models []upstream.Model
	if err := json.Unmarshal(b, &models); err != nil {
		return nil, fmt.Errorf("decode catalog snapshot: %w", err)
	}
	return models, nil
}

// writeSnapshot persists the catalog via tmp file + rename, so a crash
// mid-write never leaves a torn snapshot for the next start to choke on.
func writeSnapshot(path string, models []upstream.Model) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("mkdir snapshot dir: %w", err)
	}
	b, err := json.MarshalIndent(models, "", "  ")
	if err != nil {
		return fmt.Errorf("encode catalog snapshot: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("write snapshot temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}
