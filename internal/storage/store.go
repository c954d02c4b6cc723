// Package storage persists drafts as app-loadable folders under a
// configured root: <root>/<draft_id>/draft_info.json plus an assets tree,
// with optional zip archiving and remote publishing of the result.
package storage

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Store manages the on-disk draft folders.
type Store struct {
	root string
}

// NewStore creates the storage root if needed.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create draft root %s: %w", root, err)
	}
	return &Store{root: root}, nil
}

// Root returns the storage root directory.
func (s *Store) Root() string { return s.root }

// DraftDir returns the folder for a draft id.
func (s *Store) DraftDir(id string) string {
	return filepath.Join(s.root, id)
}

// AssetsDir returns the asset area for a draft id.
func (s *Store) AssetsDir(id string) string {
	return filepath.Join(s.root, id, "assets")
}

// DraftExists reports whether a draft folder is present on disk.
func (s *Store) DraftExists(id string) bool {
	info, err := os.Stat(s.DraftDir(id))
	return err == nil && info.IsDir()
}

// RemoveDraft deletes a draft folder, tolerating absence.
func (s *Store) RemoveDraft(id string) error {
	if err := os.RemoveAll(s.DraftDir(id)); err != nil {
		return fmt.Errorf("failed to remove draft folder: %w", err)
	}
	return nil
}

// CopyTree recursively copies a directory. Used for clone/copy lifecycle
// operations where the source folder must be preserved.
func CopyTree(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("failed to read source directory %s: %w", src, err)
	}
	if err := os.MkdirAll(dst, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dst, err)
	}
	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())
		if entry.IsDir() {
			if err := CopyTree(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}
		if err := copyFile(srcPath, dstPath); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}

// Zip archives a draft folder into <root>/tmp/zip/<id>.zip and returns the
// archive path.
func (s *Store) Zip(id string) (string, error) {
	draftDir := s.DraftDir(id)
	if _, err := os.Stat(draftDir); err != nil {
		return "", fmt.Errorf("draft folder not found: %w", err)
	}

	zipDir := filepath.Join(s.root, "tmp", "zip")
	if err := os.MkdirAll(zipDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create zip directory: %w", err)
	}
	zipPath := filepath.Join(zipDir, id+".zip")

	f, err := os.Create(zipPath)
	if err != nil {
		return "", fmt.Errorf("failed to create archive: %w", err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	err = filepath.Walk(draftDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(draftDir, path)
		if err != nil {
			return err
		}
		entry, err := w.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(entry, src)
		return err
	})
	if err != nil {
		w.Close()
		return "", fmt.Errorf("failed to archive draft %s: %w", id, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize archive: %w", err)
	}
	return zipPath, nil
}

// MoveIntoEditor copies a saved draft folder into the consuming editor's
// drafts root so it shows up in the editor's project list. The local copy
// is preserved.
func (s *Store) MoveIntoEditor(id, editorRoot string, overwrite bool) (string, error) {
	src := s.DraftDir(id)
	if _, err := os.Stat(src); err != nil {
		return "", fmt.Errorf("saved draft folder not found, save the draft first: %w", err)
	}

	editorRoot = expandHome(editorRoot)
	if err := os.MkdirAll(editorRoot, 0755); err != nil {
		return "", fmt.Errorf("failed to create editor drafts root: %w", err)
	}

	dst := filepath.Join(editorRoot, id)
	if _, err := os.Stat(dst); err == nil {
		if !overwrite {
			return "", fmt.Errorf("destination already exists: %s", dst)
		}
		if err := os.RemoveAll(dst); err != nil {
			return "", fmt.Errorf("failed to remove existing destination: %w", err)
		}
	}

	if err := CopyTree(src, dst); err != nil {
		return "", err
	}
	return dst, nil
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
