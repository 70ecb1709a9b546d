package matcher

import (
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kozaktomas/face-finder/internal/encodings"
	"github.com/kozaktomas/face-finder/internal/facerec"
	"github.com/kozaktomas/face-finder/internal/imgproc"
)

// dimensionEncoder maps image width to a fixed set of faces, so tests can
// control what "person" each fixture photo contains.
type dimensionEncoder struct {
	faces map[int][]facerec.Face
	calls int
}

func (e *dimensionEncoder) Encodings(img image.Image) ([]facerec.Face, error) {
	e.calls++
	return e.faces[img.Bounds().Dx()], nil
}

func (e *dimensionEncoder) Close() {}

// faceAt builds a face whose distance to the zero query descriptor is d.
func faceAt(d float64) facerec.Face {
	return facerec.Face{
		Box:        facerec.Box{Top: 10, Right: 50, Bottom: 50, Left: 10},
		Descriptor: []float32{float32(d), 0, 0},
	}
}

const queryWidth = 10

func queryFace() []facerec.Face {
	return []facerec.Face{{Descriptor: []float32{0, 0, 0}}}
}

type fixture struct {
	matcher   *Matcher
	encoder   *dimensionEncoder
	queryPath string
	corpusDir string
	blobPath  string
}

func newFixture(t *testing.T, faces map[int][]facerec.Face, tolerance, minConfidence float64) *fixture {
	t.Helper()

	enc := &dimensionEncoder{faces: faces}
	dir := t.TempDir()
	corpusDir := filepath.Join(dir, "photos")
	if err := os.Mkdir(corpusDir, 0750); err != nil {
		t.Fatal(err)
	}
	blob := filepath.Join(dir, "encodings.gob")

	cache := encodings.New(blob, imgproc.New(256).Normalize, enc)
	return &fixture{
		matcher:   New(cache, tolerance, minConfidence, "/photos"),
		encoder:   enc,
		queryPath: writeFixtureJPEG(t, dir, "query.jpg", queryWidth),
		corpusDir: corpusDir,
		blobPath:  blob,
	}
}

func writeFixtureJPEG(t *testing.T, dir, name string, width int) string {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, width, 10))
	for x := 0; x < width; x++ {
		for y := 0; y < 10; y++ {
			img.Set(x, y, color.NRGBA{200, 200, 200, 255})
		}
	}

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, nil); err != nil {
		t.Fatal(err)
	}
	return path
}

var defaultExts = []string{"png", "jpg", "jpeg", "gif"}

func TestFindMatchesNoFaceInQuery(t *testing.T) {
	fx := newFixture(t, map[int][]facerec.Face{}, 0.45, 0.55)

	outcome := fx.matcher.FindMatches(fx.queryPath, fx.corpusDir, defaultExts)

	if outcome.Success {
		t.Error("run should fail when the query photo has no face")
	}
	if !strings.Contains(outcome.Error, "no face detected") {
		t.Errorf("unexpected error message: %q", outcome.Error)
	}
	if len(outcome.Matches) != 0 {
		t.Errorf("expected no matches, got %d", len(outcome.Matches))
	}
}

func TestFindMatchesMissingQueryFile(t *testing.T) {
	fx := newFixture(t, map[int][]facerec.Face{queryWidth: queryFace()}, 0.45, 0.55)

	outcome := fx.matcher.FindMatches(filepath.Join(fx.corpusDir, "nope.jpg"), fx.corpusDir, defaultExts)

	if outcome.Success {
		t.Error("run should fail when the query photo cannot be read")
	}
}

func TestFindMatchesDualThreshold(t *testing.T) {
	tests := []struct {
		name          string
		distance      float64
		tolerance     float64
		minConfidence float64
		accepted      bool
		rejectedCount int
	}{
		{"inside both gates", 0.44, 0.45, 0.55, true, 0},
		{"exactly on both boundaries", 0.45, 0.45, 0.55, true, 0},
		{"fails tolerance", 0.46, 0.45, 0.55, false, 0},
		{"passes tolerance, fails confidence", 0.40, 0.45, 0.65, false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			faces := map[int][]facerec.Face{
				queryWidth: queryFace(),
				20:         {faceAt(tt.distance)},
			}
			fx := newFixture(t, faces, tt.tolerance, tt.minConfidence)
			writeFixtureJPEG(t, fx.corpusDir, "corpus.jpg", 20)

			outcome := fx.matcher.FindMatches(fx.queryPath, fx.corpusDir, defaultExts)

			if !outcome.Success {
				t.Fatalf("run failed: %s", outcome.Error)
			}
			if tt.accepted && len(outcome.Matches) != 1 {
				t.Fatalf("expected 1 match, got %d", len(outcome.Matches))
			}
			if !tt.accepted && len(outcome.Matches) != 0 {
				t.Fatalf("expected no matches, got %d", len(outcome.Matches))
			}
			if outcome.Stats.RejectedLowConfidence != tt.rejectedCount {
				t.Errorf("RejectedLowConfidence = %d, want %d",
					outcome.Stats.RejectedLowConfidence, tt.rejectedCount)
			}

			if tt.accepted {
				match := outcome.Matches[0]
				if math.Abs(match.Distance-tt.distance) > 1e-6 {
					t.Errorf("match distance = %f, want %f", match.Distance, tt.distance)
				}
				if math.Abs(match.Confidence-(1-tt.distance)) > 1e-6 {
					t.Errorf("match confidence = %f, want %f", match.Confidence, 1-tt.distance)
				}
			}
		})
	}
}

func TestFindMatchesRanking(t *testing.T) {
	faces := map[int][]facerec.Face{
		queryWidth: queryFace(),
		20:         {faceAt(0.1)}, // confidence 0.9
		21:         {faceAt(0.4)}, // confidence 0.6
		22:         {faceAt(0.2)}, // confidence 0.8
	}
	fx := newFixture(t, faces, 0.45, 0.55)
	writeFixtureJPEG(t, fx.corpusDir, "a.jpg", 20)
	writeFixtureJPEG(t, fx.corpusDir, "b.jpg", 21)
	writeFixtureJPEG(t, fx.corpusDir, "c.jpg", 22)

	outcome := fx.matcher.FindMatches(fx.queryPath, fx.corpusDir, defaultExts)

	if !outcome.Success {
		t.Fatalf("run failed: %s", outcome.Error)
	}
	if len(outcome.Matches) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(outcome.Matches))
	}

	wantOrder := []string{"a.jpg", "c.jpg", "b.jpg"}
	wantConfidence := []float64{0.9, 0.8, 0.6}
	for i, match := range outcome.Matches {
		if match.Filename != wantOrder[i] {
			t.Errorf("matches[%d] = %s, want %s", i, match.Filename, wantOrder[i])
		}
		if math.Abs(match.Confidence-wantConfidence[i]) > 1e-6 {
			t.Errorf("matches[%d] confidence = %f, want %f", i, match.Confidence, wantConfidence[i])
		}
	}

	wantAvg := (0.9 + 0.8 + 0.6) / 3
	if math.Abs(outcome.Stats.AverageConfidence-wantAvg) > 1e-6 {
		t.Errorf("AverageConfidence = %f, want %f", outcome.Stats.AverageConfidence, wantAvg)
	}
}

func TestFindMatchesMultiFaceDedup(t *testing.T) {
	faces := map[int][]facerec.Face{
		queryWidth: queryFace(),
		20:         {faceAt(0.3), faceAt(0.15)}, // confidences 0.7 and 0.85
	}
	fx := newFixture(t, faces, 0.45, 0.55)
	writeFixtureJPEG(t, fx.corpusDir, "group.jpg", 20)

	outcome := fx.matcher.FindMatches(fx.queryPath, fx.corpusDir, defaultExts)

	if !outcome.Success {
		t.Fatalf("run failed: %s", outcome.Error)
	}
	if len(outcome.Matches) != 1 {
		t.Fatalf("expected exactly 1 match for a multi-face photo, got %d", len(outcome.Matches))
	}
	if math.Abs(outcome.Matches[0].Confidence-0.85) > 1e-6 {
		t.Errorf("confidence = %f, want 0.85 (the best face)", outcome.Matches[0].Confidence)
	}
	if outcome.Stats.FacesFound != 2 {
		t.Errorf("FacesFound = %d, want 2", outcome.Stats.FacesFound)
	}
}

func TestFindMatchesResilience(t *testing.T) {
	faces := map[int][]facerec.Face{
		queryWidth: queryFace(),
		20:         {faceAt(0.1)},
		21:         {faceAt(0.2)},
	}
	fx := newFixture(t, faces, 0.45, 0.55)
	writeFixtureJPEG(t, fx.corpusDir, "good1.jpg", 20)
	writeFixtureJPEG(t, fx.corpusDir, "good2.jpg", 21)
	if err := os.WriteFile(filepath.Join(fx.corpusDir, "broken.jpg"), []byte("garbage"), 0600); err != nil {
		t.Fatal(err)
	}

	outcome := fx.matcher.FindMatches(fx.queryPath, fx.corpusDir, defaultExts)

	if !outcome.Success {
		t.Fatalf("one bad file must not abort the batch: %s", outcome.Error)
	}
	if outcome.Stats.Errors != 1 {
		t.Errorf("Errors = %d, want 1", outcome.Stats.Errors)
	}
	if outcome.Stats.PhotosProcessed != 2 {
		t.Errorf("PhotosProcessed = %d, want 2", outcome.Stats.PhotosProcessed)
	}
	if len(outcome.Matches) != 2 {
		t.Errorf("expected 2 matches from the valid files, got %d", len(outcome.Matches))
	}
}

func TestFindMatchesFlushesCache(t *testing.T) {
	faces := map[int][]facerec.Face{
		queryWidth: queryFace(),
		20:         {faceAt(0.1)},
	}
	fx := newFixture(t, faces, 0.45, 0.55)
	writeFixtureJPEG(t, fx.corpusDir, "a.jpg", 20)

	fx.matcher.FindMatches(fx.queryPath, fx.corpusDir, defaultExts)

	if _, err := os.Stat(fx.blobPath); err != nil {
		t.Errorf("cache blob should be persisted after a run: %v", err)
	}
}

func TestFindMatchesUsesCache(t *testing.T) {
	faces := map[int][]facerec.Face{
		queryWidth: queryFace(),
		20:         {faceAt(0.1)},
	}
	fx := newFixture(t, faces, 0.45, 0.55)
	writeFixtureJPEG(t, fx.corpusDir, "a.jpg", 20)

	fx.matcher.FindMatches(fx.queryPath, fx.corpusDir, defaultExts)
	callsAfterFirst := fx.encoder.calls
	fx.matcher.FindMatches(fx.queryPath, fx.corpusDir, defaultExts)

	if fx.encoder.calls != callsAfterFirst {
		t.Errorf("second run invoked the encoder %d more times, want 0 (cache hits)",
			fx.encoder.calls-callsAfterFirst)
	}
}

func TestFindMatchesProgress(t *testing.T) {
	faces := map[int][]facerec.Face{
		queryWidth: queryFace(),
		20:         {faceAt(0.1)},
	}
	fx := newFixture(t, faces, 0.45, 0.55)
	writeFixtureJPEG(t, fx.corpusDir, "a.jpg", 20)
	writeFixtureJPEG(t, fx.corpusDir, "b.jpg", 20)

	var reports int
	var lastTotal int
	fx.matcher.Progress = func(done, total int) {
		reports++
		lastTotal = total
	}

	fx.matcher.FindMatches(fx.queryPath, fx.corpusDir, defaultExts)

	if reports != 2 {
		t.Errorf("progress reported %d times, want 2", reports)
	}
	if lastTotal != 2 {
		t.Errorf("progress total = %d, want 2", lastTotal)
	}
}

func TestWarmCache(t *testing.T) {
	faces := map[int][]facerec.Face{
		queryWidth: queryFace(),
		20:         {faceAt(0.1)},
		21:         {faceAt(0.2), faceAt(0.3)},
	}
	fx := newFixture(t, faces, 0.45, 0.55)
	writeFixtureJPEG(t, fx.corpusDir, "a.jpg", 20)
	writeFixtureJPEG(t, fx.corpusDir, "b.jpg", 21)
	if err := os.WriteFile(filepath.Join(fx.corpusDir, "broken.jpg"), []byte("garbage"), 0600); err != nil {
		t.Fatal(err)
	}

	result, err := fx.matcher.WarmCache(fx.corpusDir, defaultExts)
	if err != nil {
		t.Fatalf("WarmCache failed: %v", err)
	}

	if result.TotalFiles != 3 {
		t.Errorf("TotalFiles = %d, want 3", result.TotalFiles)
	}
	if result.Processed != 2 {
		t.Errorf("Processed = %d, want 2", result.Processed)
	}
	if result.Errors != 1 {
		t.Errorf("Errors = %d, want 1", result.Errors)
	}
	if result.TotalFacesFound != 3 {
		t.Errorf("TotalFacesFound = %d, want 3", result.TotalFacesFound)
	}
	if result.CacheSize != 2 {
		t.Errorf("CacheSize = %d, want 2", result.CacheSize)
	}
	if _, err := os.Stat(fx.blobPath); err != nil {
		t.Errorf("cache blob should be persisted after warming: %v", err)
	}

	// A matching run over the warmed corpus only needs one extra
	// extraction, for the query photo itself.
	callsAfterWarm := fx.encoder.calls
	fx.matcher.FindMatches(fx.queryPath, fx.corpusDir, defaultExts)
	if got := fx.encoder.calls - callsAfterWarm; got != 1 {
		t.Errorf("matching after warm ran %d extractions, want 1 (query only)", got)
	}
}

func TestWarmCacheMissingDir(t *testing.T) {
	fx := newFixture(t, map[int][]facerec.Face{}, 0.45, 0.55)

	if _, err := fx.matcher.WarmCache(filepath.Join(fx.corpusDir, "missing"), defaultExts); err == nil {
		t.Error("WarmCache should fail for an unreadable corpus directory")
	}
}

func TestInspectFaces(t *testing.T) {
	faces := map[int][]facerec.Face{
		20: {
			{Box: facerec.Box{Top: 10, Right: 50, Bottom: 40, Left: 12}, Descriptor: []float32{1}},
			{Box: facerec.Box{Top: 5, Right: 20, Bottom: 25, Left: 4}, Descriptor: []float32{2}},
		},
	}
	fx := newFixture(t, faces, 0.45, 0.55)
	path := writeFixtureJPEG(t, fx.corpusDir, "two.jpg", 20)

	infos, err := fx.matcher.InspectFaces(path)
	if err != nil {
		t.Fatalf("InspectFaces failed: %v", err)
	}

	if len(infos) != 2 {
		t.Fatalf("expected 2 faces, got %d", len(infos))
	}
	if infos[0].FaceID != 0 || infos[1].FaceID != 1 {
		t.Errorf("face ids = %d, %d, want 0, 1", infos[0].FaceID, infos[1].FaceID)
	}
	if infos[0].Width != 38 || infos[0].Height != 30 {
		t.Errorf("first face %dx%d, want 38x30", infos[0].Width, infos[0].Height)
	}
}

func TestDistance(t *testing.T) {
	tests := []struct {
		name     string
		a        []float32
		b        []float32
		expected float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 0},
		{"pythagorean", []float32{0, 0}, []float32{3, 4}, 5},
		{"single dimension", []float32{0.5}, []float32{0.1}, 0.4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Distance(tt.a, tt.b); math.Abs(got-tt.expected) > 1e-6 {
				t.Errorf("Distance(%v, %v) = %f, want %f", tt.a, tt.b, got, tt.expected)
			}
		})
	}

	t.Run("mismatched lengths", func(t *testing.T) {
		if got := Distance([]float32{1}, []float32{1, 2}); !math.IsInf(got, 1) {
			t.Errorf("Distance with mismatched lengths = %f, want +Inf", got)
		}
	})
	t.Run("empty", func(t *testing.T) {
		if got := Distance(nil, nil); !math.IsInf(got, 1) {
			t.Errorf("Distance(nil, nil) = %f, want +Inf", got)
		}
	})
}

func TestAllowedExt(t *testing.T) {
	exts := []string{"png", "jpg", "jpeg", "gif"}

	tests := []struct {
		name    string
		allowed bool
	}{
		{"photo.jpg", true},
		{"PHOTO.JPG", true},
		{"photo.Jpeg", true},
		{"archive.tar.gif", true},
		{"notes.txt", false},
		{"noextension", false},
		{".jpg", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := allowedExt(tt.name, exts); got != tt.allowed {
				t.Errorf("allowedExt(%q) = %v, want %v", tt.name, got, tt.allowed)
			}
		})
	}
}

func TestListImagesSkipsDirsAndOthers(t *testing.T) {
	dir := t.TempDir()
	writeFixtureJPEG(t, dir, "a.jpg", 20)
	writeFixtureJPEG(t, dir, "b.PNG", 20)
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.jpg"), 0750); err != nil {
		t.Fatal(err)
	}

	files, err := listImages(dir, defaultExts)
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"a.jpg", "b.PNG"}
	if len(files) != len(want) {
		t.Fatalf("listImages = %v, want %v", files, want)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("files[%d] = %s, want %s", i, files[i], want[i])
		}
	}
}
