package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the full configuration surface of the matcher core.
// Values are resolved in order: defaults, then the optional YAML file,
// then FACE_FINDER_* environment variables.
type Config struct {
	ModelsDir      string   `yaml:"models_dir"`      // dlib model files for go-face
	DetectionModel string   `yaml:"detection_model"` // "hog" (fast) or "cnn" (accurate)
	Tolerance      float64  `yaml:"tolerance"`       // maximum face distance for a match
	MinConfidence  float64  `yaml:"min_confidence"`  // minimum 1-distance to accept a match
	MaxImageSize   int      `yaml:"max_image_size"`  // longest edge bound before detection
	CachePath      string   `yaml:"cache_path"`      // persisted encoding cache blob
	PhotosDir      string   `yaml:"photos_dir"`      // default corpus directory
	DisplayPrefix  string   `yaml:"display_prefix"`  // prefix for match display paths
	Extensions     []string `yaml:"extensions"`      // allowed corpus file extensions
}

// Defaults returns the built-in configuration. The thresholds are the
// strict pairing: tolerance and confidence are expressed in the same
// units and have to be tuned together.
func Defaults() *Config {
	return &Config{
		ModelsDir:      "models",
		DetectionModel: "cnn",
		Tolerance:      0.45,
		MinConfidence:  0.55,
		MaxImageSize:   1024,
		CachePath:      "face_encodings_cache.gob",
		PhotosDir:      "photos",
		DisplayPrefix:  "/photos",
		Extensions:     []string{"png", "jpg", "jpeg", "gif"},
	}
}

// Load resolves the configuration. The YAML file is optional; its path
// comes from FACE_FINDER_CONFIG and falls back to ./face-finder.yaml.
func Load() *Config {
	cfg := Defaults()

	file := os.Getenv("FACE_FINDER_CONFIG")
	if file == "" {
		file = "face-finder.yaml"
	}
	if data, err := os.ReadFile(file); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			fmt.Printf("Config: ignoring unreadable %s: %v\n", file, err)
			cfg = Defaults()
		}
	}

	cfg.ModelsDir = envString("FACE_FINDER_MODELS_DIR", cfg.ModelsDir)
	cfg.DetectionModel = envString("FACE_FINDER_DETECTION_MODEL", cfg.DetectionModel)
	cfg.Tolerance = envFloat("FACE_FINDER_TOLERANCE", cfg.Tolerance)
	cfg.MinConfidence = envFloat("FACE_FINDER_MIN_CONFIDENCE", cfg.MinConfidence)
	cfg.MaxImageSize = envInt("FACE_FINDER_MAX_IMAGE_SIZE", cfg.MaxImageSize)
	cfg.CachePath = envString("FACE_FINDER_CACHE_PATH", cfg.CachePath)
	cfg.PhotosDir = envString("FACE_FINDER_PHOTOS_DIR", cfg.PhotosDir)
	cfg.DisplayPrefix = envString("FACE_FINDER_DISPLAY_PREFIX", cfg.DisplayPrefix)
	cfg.Extensions = envList("FACE_FINDER_EXTENSIONS", cfg.Extensions)

	return cfg
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

// envList parses a comma-separated environment variable.
func envList(key string, defaultVal []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}

	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
