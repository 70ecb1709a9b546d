package encodings

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"image"
	"os"
	"sync"
	"time"

	"github.com/kozaktomas/face-finder/internal/facerec"
)

// Entry holds the faces extracted from one image together with the file
// modification time observed at extraction.
type Entry struct {
	Faces     []facerec.Face
	FaceCount int
	ModTime   time.Time
}

// Stats describes the current cache contents.
type Stats struct {
	CachedImages   int  `json:"cached_images"`
	TotalEncodings int  `json:"total_encodings"`
	BlobPresent    bool `json:"cache_file_exists"`
}

// NormalizeFunc loads an image from disk and prepares it for detection.
type NormalizeFunc func(path string) (image.Image, error)

// Cache maps image paths to extracted face descriptors and persists the
// whole mapping as a single gob blob. An entry is valid only while its
// stored timestamp is not older than the file's on-disk modification time;
// a stale entry is recomputed and overwritten.
//
// Correctness depends on filesystem mtime monotonicity: replacing a file's
// content without a timestamp bump yields a stale hit. Persistence is
// amortized - mutations live in memory until Flush is called.
type Cache struct {
	mu        sync.RWMutex
	entries   map[string]Entry
	path      string
	normalize NormalizeFunc
	encoder   facerec.Encoder
}

// New creates an empty cache persisting to blobPath. Extraction on cache
// misses runs normalize followed by encoder.
func New(blobPath string, normalize NormalizeFunc, encoder facerec.Encoder) *Cache {
	return &Cache{
		entries:   make(map[string]Entry),
		path:      blobPath,
		normalize: normalize,
		encoder:   encoder,
	}
}

// GetFaces returns the faces for the image at path, serving from the cache
// when the entry is still valid. Fresh extractions are stored back into the
// cache (in memory only, see Flush).
func (c *Cache) GetFaces(path string, useCache bool) ([]facerec.Face, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	if useCache {
		c.mu.RLock()
		entry, ok := c.entries[path]
		c.mu.RUnlock()
		if ok && !entry.ModTime.Before(info.ModTime()) {
			return entry.Faces, nil
		}
	}

	img, err := c.normalize(path)
	if err != nil {
		return nil, err
	}
	faces, err := c.encoder.Encodings(img)
	if err != nil {
		return nil, fmt.Errorf("extracting faces from %s: %w", path, err)
	}

	if useCache {
		c.mu.Lock()
		c.entries[path] = Entry{Faces: faces, FaceCount: len(faces), ModTime: info.ModTime()}
		c.mu.Unlock()
	}

	return faces, nil
}

// GetEncodings returns just the identity descriptors for the image at path.
func (c *Cache) GetEncodings(path string, useCache bool) ([][]float32, error) {
	faces, err := c.GetFaces(path, useCache)
	if err != nil {
		return nil, err
	}

	descriptors := make([][]float32, len(faces))
	for i, f := range faces {
		descriptors[i] = f.Descriptor
	}
	return descriptors, nil
}

// Load replaces the in-memory mapping with the persisted blob. A missing
// or corrupt blob leaves the cache empty; it is never a startup failure.
func (c *Cache) Load() {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Printf("Encoding cache: cannot read %s: %v\n", c.path, err)
		}
		return
	}

	var entries map[string]Entry
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&entries); err != nil {
		fmt.Printf("Encoding cache: discarding unreadable blob %s: %v\n", c.path, err)
		return
	}

	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()
}

// Flush persists the entire mapping, replacing any prior blob. The write
// goes through a temp file and rename so a crash mid-flush cannot leave a
// truncated blob behind.
func (c *Cache) Flush() error {
	c.mu.RLock()
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(c.entries)
	c.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encoding cache blob: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("writing cache blob: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("replacing cache blob: %w", err)
	}
	return nil
}

// Clear discards all in-memory entries and deletes the persisted blob.
func (c *Cache) Clear() error {
	c.mu.Lock()
	c.entries = make(map[string]Entry)
	c.mu.Unlock()

	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing cache blob: %w", err)
	}
	return nil
}

// Stats reports the cache size and whether a persisted blob exists.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	stats := Stats{CachedImages: len(c.entries)}
	for _, entry := range c.entries {
		stats.TotalEncodings += entry.FaceCount
	}
	c.mu.RUnlock()

	if _, err := os.Stat(c.path); err == nil {
		stats.BlobPresent = true
	}
	return stats
}
