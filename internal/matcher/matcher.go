package matcher

import (
	"fmt"
	"math"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kozaktomas/face-finder/internal/encodings"
	"github.com/kozaktomas/face-finder/internal/facerec"
)

// Match is one corpus photo that contains the queried person. Confidence
// and distance describe the single best-matching face in that photo.
type Match struct {
	Filename   string  `json:"filename"`
	Path       string  `json:"path"`
	Confidence float64 `json:"confidence"`
	Distance   float64 `json:"face_distance"`
}

// Stats aggregates one matching run. RejectedLowConfidence counts faces
// that passed the distance tolerance but failed the confidence gate, which
// is the signal to look at when tuning the two thresholds together.
type Stats struct {
	PhotosProcessed       int     `json:"total_photos_processed"`
	FacesFound            int     `json:"total_faces_found"`
	RejectedLowConfidence int     `json:"rejected_low_confidence"`
	Errors                int     `json:"errors"`
	AverageConfidence     float64 `json:"average_confidence"`
	Tolerance             float64 `json:"tolerance_used"`
	MinConfidence         float64 `json:"min_confidence_used"`
}

// Outcome is the full result of a matching run.
type Outcome struct {
	Success      bool    `json:"success"`
	Error        string  `json:"error,omitempty"`
	Matches      []Match `json:"matches"`
	TotalMatches int     `json:"total_matches"`
	Stats        Stats   `json:"stats"`
}

// WarmResult summarizes a cache pre-processing run.
type WarmResult struct {
	TotalFiles      int `json:"total_files"`
	Processed       int `json:"processed"`
	Errors          int `json:"errors"`
	TotalFacesFound int `json:"total_faces_found"`
	CacheSize       int `json:"cache_size"`
}

// FaceInfo describes one detected face for inspection output.
type FaceInfo struct {
	FaceID   int         `json:"face_id"`
	Location facerec.Box `json:"location"`
	Width    int         `json:"width"`
	Height   int         `json:"height"`
}

// Matcher compares a query face against a photo corpus. A face is accepted
// only under the dual threshold: distance <= tolerance AND confidence >=
// minConfidence. Distance alone lets through matches whose normalized
// confidence is still weak, so the two gates are applied together.
type Matcher struct {
	cache         *encodings.Cache
	tolerance     float64
	minConfidence float64
	displayPrefix string

	// Progress, when set, is called after each corpus file.
	Progress func(done, total int)
}

// New creates a Matcher over the given cache.
func New(cache *encodings.Cache, tolerance, minConfidence float64, displayPrefix string) *Matcher {
	return &Matcher{
		cache:         cache,
		tolerance:     tolerance,
		minConfidence: minConfidence,
		displayPrefix: displayPrefix,
	}
}

// Distance computes the Euclidean distance between two identity
// descriptors. Zero means identical; mismatched or empty descriptors
// compare as infinitely far apart.
func Distance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}

	var sum float64
	for i := range a {
		diff := float64(a[i]) - float64(b[i])
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

// FindMatches extracts the query identity and scans the corpus directory
// for photos containing the same person. Per-file failures are counted and
// skipped; only a query photo without a detectable face fails the run.
func (m *Matcher) FindMatches(queryPath, corpusDir string, exts []string) Outcome {
	queryEncodings, err := m.cache.GetEncodings(queryPath, true)
	if err != nil || len(queryEncodings) == 0 {
		return Outcome{
			Error:   "no face detected in the query photo",
			Matches: []Match{},
		}
	}
	// First detected face is the query identity.
	query := queryEncodings[0]

	files, err := listImages(corpusDir, exts)
	if err != nil {
		return Outcome{
			Error:   fmt.Sprintf("cannot read corpus directory: %v", err),
			Matches: []Match{},
		}
	}

	matches := []Match{}
	stats := Stats{Tolerance: m.tolerance, MinConfidence: m.minConfidence}

	for i, filename := range files {
		faceEncodings, err := m.cache.GetEncodings(filepath.Join(corpusDir, filename), true)
		if err != nil {
			stats.Errors++
			m.reportProgress(i+1, len(files))
			continue
		}

		stats.PhotosProcessed++
		stats.FacesFound += len(faceEncodings)

		bestConfidence := 0.0
		bestDistance := math.Inf(1)
		for _, enc := range faceEncodings {
			distance := Distance(query, enc)
			confidence := 1 - distance

			if distance <= m.tolerance && confidence >= m.minConfidence && confidence > bestConfidence {
				bestConfidence = confidence
				bestDistance = distance
			}
		}

		if bestConfidence > 0 {
			// One result per photo, even when several faces pass.
			matches = append(matches, Match{
				Filename:   filename,
				Path:       m.displayPath(filename),
				Confidence: bestConfidence,
				Distance:   bestDistance,
			})
		} else {
			for _, enc := range faceEncodings {
				if Distance(query, enc) <= m.tolerance {
					stats.RejectedLowConfidence++
					break
				}
			}
		}

		m.reportProgress(i+1, len(files))
	}

	if err := m.cache.Flush(); err != nil {
		fmt.Printf("Encoding cache: flush failed: %v\n", err)
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Confidence > matches[j].Confidence
	})

	if len(matches) > 0 {
		var total float64
		for _, match := range matches {
			total += match.Confidence
		}
		stats.AverageConfidence = total / float64(len(matches))
	}

	return Outcome{
		Success:      true,
		Matches:      matches,
		TotalMatches: len(matches),
		Stats:        stats,
	}
}

// WarmCache pre-extracts encodings for every corpus photo so interactive
// queries only pay for cache hits. The cache is flushed once at the end.
func (m *Matcher) WarmCache(corpusDir string, exts []string) (WarmResult, error) {
	files, err := listImages(corpusDir, exts)
	if err != nil {
		return WarmResult{}, fmt.Errorf("cannot read corpus directory: %w", err)
	}

	result := WarmResult{TotalFiles: len(files)}
	for i, filename := range files {
		faces, err := m.cache.GetEncodings(filepath.Join(corpusDir, filename), true)
		if err != nil {
			result.Errors++
		} else {
			result.Processed++
			result.TotalFacesFound += len(faces)
		}
		m.reportProgress(i+1, len(files))
	}

	if err := m.cache.Flush(); err != nil {
		fmt.Printf("Encoding cache: flush failed: %v\n", err)
	}

	result.CacheSize = m.cache.Stats().CachedImages
	return result, nil
}

// InspectFaces returns the detected faces and their dimensions for one
// photo, for threshold debugging.
func (m *Matcher) InspectFaces(photoPath string) ([]FaceInfo, error) {
	faces, err := m.cache.GetFaces(photoPath, true)
	if err != nil {
		return nil, err
	}

	infos := make([]FaceInfo, len(faces))
	for i, f := range faces {
		infos[i] = FaceInfo{
			FaceID:   i,
			Location: f.Box,
			Width:    f.Box.Width(),
			Height:   f.Box.Height(),
		}
	}
	return infos, nil
}

func (m *Matcher) displayPath(filename string) string {
	if m.displayPrefix == "" {
		return filename
	}
	return path.Join(m.displayPrefix, filename)
}

func (m *Matcher) reportProgress(done, total int) {
	if m.Progress != nil {
		m.Progress(done, total)
	}
}

// listImages enumerates the corpus files whose extension is in the
// allow-list, matched case-insensitively on the final dot-segment.
func listImages(dir string, exts []string) ([]string, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, len(dirEntries))
	for _, entry := range dirEntries {
		if entry.IsDir() {
			continue
		}
		if allowedExt(entry.Name(), exts) {
			files = append(files, entry.Name())
		}
	}
	return files, nil
}

func allowedExt(name string, exts []string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if ext == "" {
		return false
	}
	for _, allowed := range exts {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}
