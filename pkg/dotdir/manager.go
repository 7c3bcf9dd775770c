// Package dotdir manages the .tokenstream/ and ~/.tokenstream directories.
//
// The directory holds config.toml and, when the proxy runs with capture
// enabled, the raw SSE streams it relayed under captures/.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

const (
	// dirName is the name of the tokenstream directory.
	dirName = ".tokenstream"

	// captureDir holds raw upstream streams, one file per response.
	captureDir = "captures"

	// CaptureExt is the extension of capture files.
	CaptureExt = ".sse"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the target absolute path to a .tokenstream/ directory.
// Order of precedence is as follows:
//  1. Provided override
//  2. Local ./.tokenstream/ dir
//  3. Home ~/.tokenstream/ dir, created when missing
func (m *Manager) Target(overrideDir string) (string, error) {
	var dir string

	switch {
	case overrideDir != "":
		dir = overrideDir

	case m.localDirExists():
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting current directory: %w", err)
		}
		dir = filepath.Join(cwd, dirName)

	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		dir = filepath.Join(home, dirName)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating tokenstream directory %s: %w", dir, err)
	}

	return filepath.Abs(dir)
}

// CaptureDir returns the captures/ directory below Target(overrideDir),
// creating it if needed.
func (m *Manager) CaptureDir(overrideDir string) (string, error) {
	root, err := m.Target(overrideDir)
	if err != nil {
		return "", err
	}

	dir := filepath.Join(root, captureDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating capture directory %s: %w", dir, err)
	}
	return dir, nil
}

// CreateCapture opens a new capture file named after id in dir.
// Characters outside [A-Za-z0-9._-] are replaced so a stream ID taken from
// upstream can never escape dir.
func (m *Manager) CreateCapture(dir, id string) (*os.File, error) {
	name := unsafeName.ReplaceAllString(id, "_")
	if name == "" || name == "." || name == ".." {
		return nil, fmt.Errorf("invalid capture name %q", id)
	}

	f, err := os.OpenFile(filepath.Join(dir, name+CaptureExt), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("creating capture file: %w", err)
	}
	return f, nil
}

// localDirExists checks whether a .tokenstream/ directory exists in the
// current working directory.
func (m *Manager) localDirExists() bool {
	cwd, err := os.Getwd()
	if err != nil {
		return false
	}

	info, err := os.Stat(filepath.Join(cwd, dirName))
	return err == nil && info.IsDir()
}
