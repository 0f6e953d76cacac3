package store

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
)

// readJSON decodes name into v. The caller decides how to treat a missing file.
func readJSON(fs afero.Fs, name string, v any) error {
	bs, err := afero.ReadFile(fs, name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(bs, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

// writeJSON replaces name with the encoding of v. The data goes to a temp file
// in the same directory which is synced and renamed over name, so a reader
// sees either the old or the new content.
func writeJSON(fs afero.Fs, name string, v any) (err error) {
	bs, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	dir := filepath.Dir(name)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(fs, dir, "."+filepath.Base(name)+"-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()

	defer func() {
		if err != nil {
			_ = fs.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(bs); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}

	if err := fs.Rename(tmpName, name); err != nil {
		return fmt.Errorf("move %s to %s: %w", tmpName, name, err)
	}
	return nil
}
