package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const indent = "    "

// Marshal renders s as the artifact bytes: a 4-space indented JSON object
// followed by a newline.
func Marshal(s Schema) ([]byte, error) {
	raw, err := s.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var b bytes.Buffer
	if err := json.Indent(&b, raw, "", indent); err != nil {
		return nil, fmt.Errorf("schema: indent: %w", err)
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

// Unmarshal parses artifact bytes produced by Marshal (or written by hand).
func Unmarshal(data []byte) (Schema, error) {
	var s Schema
	if err := s.UnmarshalJSON(data); err != nil {
		return Schema{}, err
	}
	return s, nil
}

// Save writes s to path atomically: the bytes go to a temp file in the same
// directory which is then renamed over path.
//
// Errors:
//   - directory creation, write, sync or rename failures (wrapped).
func Save(path string, s Schema) error {
	data, err := Marshal(s)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("schema: mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("schema: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("schema: write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("schema: sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("schema: close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("schema: chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("schema: rename to %s: %w", path, err)
	}
	return nil
}

// Load reads the artifact at path.
//
// A missing file yields an error wrapping ErrNotFound; no default schema is
// ever synthesized.
func Load(path string) (Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Schema{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return Schema{}, fmt.Errorf("schema: read %s: %w", path, err)
	}
	s, err := Unmarshal(data)
	if err != nil {
		return Schema{}, fmt.Errorf("schema: parse %s: %w", path, err)
	}
	return s, nil
}
