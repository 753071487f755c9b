package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Example is a commented starter config file.
//
//go:embed procctl.example.yaml
var Example []byte

// ExampleFileName is where WriteExample puts the starter file.
const ExampleFileName = "procctl.yaml"

// WriteExample writes the starter config into dir. It refuses to overwrite
// an existing file unless force is set.
func WriteExample(dir string, force bool) (string, error) {
	path := filepath.Join(dir, ExampleFileName)
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := f.Write(Example); err != nil {
		f.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, f.Close()
}
