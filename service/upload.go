package service

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// AllowedFile reports whether filename carries one of the allowed extensions.
// Only the text after the last dot counts and the comparison ignores case.
func AllowedFile(filename string, allowed []string) bool {
	i := strings.LastIndexByte(filename, '.')
	if i < 0 {
		return false
	}
	ext := strings.ToLower(filename[i+1:])
	for _, a := range allowed {
		if ext == a {
			return true
		}
	}
	return false
}

// SecureFilename reduces a client supplied name to a safe ASCII base name.
// It can return an empty string.
func SecureFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = name[strings.LastIndexByte(name, '/')+1:]

	var b strings.Builder
	for _, r := range norm.NFKD.String(name) {
		switch {
		case r > unicode.MaxASCII:
		case unicode.IsSpace(r):
			b.WriteByte('_')
		case r == '.', r == '-', r == '_',
			'a' <= r && r <= 'z', 'A' <= r && r <= 'Z', '0' <= r && r <= '9':
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "._")
}

// TempUpload is an uploaded file parked on disk for the lifetime of one request.
type TempUpload struct {
	Path     string
	Filename string
	Size     int64
}

// SaveUpload copies r into dir under a unique name derived from filename.
func SaveUpload(dir, filename string, r io.Reader) (*TempUpload, error) {
	safe := SecureFilename(filename)
	name := uuid.NewString()
	if safe != "" {
		name += "_" + safe
	}
	path := filepath.Join(dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload file: %w", err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to write upload file: %w", err)
	}
	return &TempUpload{Path: path, Filename: safe, Size: n}, nil
}

// Remove deletes the file. Calling it more than once is fine.
func (u *TempUpload) Remove() error {
	err := os.Remove(u.Path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
