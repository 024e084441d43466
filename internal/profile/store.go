// Package profile persists browser user-data directories between sessions
// so cookies and history collected by decoy traffic accumulate.
package profile

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var validName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Store keeps one archive per named profile.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore creates a profile store rooted at dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create profile directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) archivePath(name string) string {
	return filepath.Join(s.dir, name+".tar.gz")
}

// Checkout extracts profile name into a fresh temporary directory and
// returns it. A profile with no archive yet yields an empty directory.
func (s *Store) Checkout(name string) (string, error) {
	if !validName.MatchString(name) {
		return "", fmt.Errorf("invalid profile name %q", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(os.TempDir(), fmt.Sprintf("decoy-profile-%s-%s", name, uuid.NewString()[:8]))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create user data directory: %w", err)
	}

	archive := s.archivePath(name)
	if _, err := os.Stat(archive); os.IsNotExist(err) {
		return dir, nil
	}
	if err := extractDirectory(archive, dir); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("failed to extract profile %s: %w", name, err)
	}
	return dir, nil
}

// Commit archives userDataDir as profile name, replacing the previous
// archive atomically.
func (s *Store) Commit(name, userDataDir string) error {
	if !validName.MatchString(name) {
		return fmt.Errorf("invalid profile name %q", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := s.archivePath(name) + ".tmp"
	if err := compressDirectory(userDataDir, tmp); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to compress profile %s: %w", name, err)
	}
	if err := os.Rename(tmp, s.archivePath(name)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace profile %s: %w", name, err)
	}
	return nil
}

// compressDirectory creates a tar.gz archive of a directory
func compressDirectory(source, target string) error {
	file, err := os.Create(target)
	if err != nil {
		return err
	}
	if err := writeArchive(file, source); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// writeArchive streams source as tar.gz into w. The tar and gzip trailers
// are written on Close, so both close errors are returned.
func writeArchive(w io.Writer, source string) error {
	gzWriter := gzip.NewWriter(w)
	tarWriter := tar.NewWriter(gzWriter)

	err := filepath.Walk(source, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		// Chromium leaves lock symlinks and sockets behind
		if !info.IsDir() && !info.Mode().IsRegular() {
			return nil
		}

		header, err := tar.FileInfoHeader(info, info.Name())
		if err != nil {
			return err
		}
		relPath, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(relPath)

		if err := tarWriter.WriteHeader(header); err != nil {
			return err
		}

		if info.IsDir() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = io.Copy(tarWriter, f)
		return err
	})
	if err != nil {
		tarWriter.Close()
		gzWriter.Close()
		return err
	}

	if err := tarWriter.Close(); err != nil {
		gzWriter.Close()
		return fmt.Errorf("finish tar: %w", err)
	}
	if err := gzWriter.Close(); err != nil {
		return fmt.Errorf("finish gzip: %w", err)
	}
	return nil
}

// extractDirectory extracts a tar.gz archive to a directory
func extractDirectory(source, target string) error {
	file, err := os.Open(source)
	if err != nil {
		return err
	}
	defer file.Close()

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return err
	}
	defer gzReader.Close()

	tarReader := tar.NewReader(gzReader)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		targetPath := filepath.Join(target, filepath.FromSlash(header.Name))
		if !strings.HasPrefix(targetPath, filepath.Clean(target)+string(os.PathSeparator)) && targetPath != filepath.Clean(target) {
			return fmt.Errorf("archive entry %q escapes target", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(targetPath, 0o700); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(targetPath), 0o700); err != nil {
				return err
			}
			outFile, err := os.Create(targetPath)
			if err != nil {
				return err
			}
			if _, err := io.Copy(outFile, tarReader); err != nil {
				outFile.Close()
				return err
			}
			outFile.Close()
		}
	}
}
