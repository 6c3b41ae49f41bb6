package clipboard

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ImageCache stores captured images as files under one directory
type ImageCache struct {
	dir string
}

func NewImageCache(dir string) (*ImageCache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create image cache directory: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve image cache directory: %w", err)
	}
	return &ImageCache{dir: abs}, nil
}

// Dir returns the absolute cache directory
func (c *ImageCache) Dir() string {
	return c.dir
}

// Store writes png to a file named after its content hash and capture
// time, returning the file name and its absolute path.
func (c *ImageCache) Store(png []byte, at time.Time) (name, path string, err error) {
	name = fmt.Sprintf("%s-%d.png", Key(png), at.Unix())
	path = filepath.Join(c.dir, name)
	if err := os.WriteFile(path, png, 0644); err != nil {
		return "", "", fmt.Errorf("failed to write image: %w", err)
	}
	return name, path, nil
}

// Key returns the content prefix of the file names Store produces for png
func Key(png []byte) string {
	return calculateHash(png)[:20]
}

// SameImage reports whether name is a cache file holding png
func SameImage(name string, png []byte) bool {
	return strings.HasPrefix(filepath.Base(name), Key(png)+"-")
}

// calculateHash generates SHA-256 hash of content
func calculateHash(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}
