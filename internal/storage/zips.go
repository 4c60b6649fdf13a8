package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"mime/multipart"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/NeptuneCipher42/rcc-dashboard/internal/model"
)

// CountZips counts regular files ending in .zip in any letter case. A missing
// directory counts as zero.
func (s *Store) CountZips() (int, error) {
	names, err := s.zipNames()
	if err != nil {
		return 0, err
	}
	return len(names), nil
}

// ListZips returns archive metadata sorted by name. A missing directory is an
// empty list.
func (s *Store) ListZips() ([]model.HololibZip, error) {
	names, err := s.zipNames()
	if err != nil {
		return nil, fmt.Errorf("list hololib zips: %w", err)
	}
	zips := make([]model.HololibZip, 0, len(names))
	for _, name := range names {
		info, err := os.Stat(filepath.Join(s.zipPath, name))
		if err != nil {
			continue
		}
		zips = append(zips, model.HololibZip{
			Name:     name,
			Size:     info.Size(),
			SizeMB:   math.Round(float64(info.Size())/(1024*1024)*100) / 100,
			Modified: info.ModTime().UTC().Format(time.RFC3339),
		})
	}
	return zips, nil
}

func (s *Store) SaveZip(fh *multipart.FileHeader) (string, error) {
	if fh == nil {
		return "", invalid("No file provided")
	}
	if fh.Filename == "" {
		return "", invalid("No file selected")
	}
	if !strings.HasSuffix(strings.ToLower(fh.Filename), ZipSuffix) {
		return "", invalid("Only ZIP files are allowed")
	}
	filename := Sanitize(fh.Filename)
	if filename == "" {
		return "", invalid("No file selected")
	}
	if err := os.MkdirAll(s.zipPath, 0o755); err != nil {
		return "", fmt.Errorf("create hololib zip dir: %w", err)
	}
	if err := saveUpload(fh, filepath.Join(s.zipPath, filename)); err != nil {
		return "", fmt.Errorf("save %s: %w", filename, err)
	}
	s.logger.Info("hololib zip saved", zap.String("file", filename), zap.Int64("size", fh.Size))
	return filename, nil
}

func (s *Store) DeleteZip(filename string) (string, error) {
	safe, err := s.ZipFile(filename)
	if err != nil {
		return "", err
	}
	if err := os.Remove(filepath.Join(s.zipPath, safe)); err != nil {
		return "", fmt.Errorf("delete %s: %w", safe, err)
	}
	s.logger.Info("hololib zip deleted", zap.String("file", safe))
	return safe, nil
}

// ZipFile resolves filename to an existing archive and returns the sanitized
// name.
func (s *Store) ZipFile(filename string) (string, error) {
	safe := Sanitize(filename)
	if safe == "" || !isFile(filepath.Join(s.zipPath, safe)) {
		return "", notFound("File not found")
	}
	return safe, nil
}

func (s *Store) zipNames() ([]string, error) {
	entries, err := os.ReadDir(s.zipPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, err
	}
	names := []string{}
	for _, e := range entries {
		if !strings.HasSuffix(strings.ToLower(e.Name()), ZipSuffix) {
			continue
		}
		if isFile(filepath.Join(s.zipPath, e.Name())) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
