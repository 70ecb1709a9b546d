package cmd

import (
	"fmt"

	"github.com/kozaktomas/face-finder/internal/config"
	"github.com/kozaktomas/face-finder/internal/encodings"
	"github.com/kozaktomas/face-finder/internal/facerec"
	"github.com/kozaktomas/face-finder/internal/imgproc"
	"github.com/kozaktomas/face-finder/internal/matcher"
)

// matcherDeps bundles the wired matcher core for one command invocation.
type matcherDeps struct {
	cache   *encodings.Cache
	matcher *matcher.Matcher
	close   func()
}

// newMatcherDeps wires normalizer, dlib encoder, encoding cache and match
// engine from the resolved configuration and loads the persisted cache.
func newMatcherDeps(cfg *config.Config) (*matcherDeps, error) {
	encoder, err := facerec.NewDlibEncoder(cfg.ModelsDir, facerec.Model(cfg.DetectionModel))
	if err != nil {
		return nil, fmt.Errorf("initializing face encoder: %w", err)
	}

	normalizer := imgproc.New(cfg.MaxImageSize)
	cache := encodings.New(cfg.CachePath, normalizer.Normalize, encoder)
	cache.Load()

	return &matcherDeps{
		cache:   cache,
		matcher: matcher.New(cache, cfg.Tolerance, cfg.MinConfidence, cfg.DisplayPrefix),
		close:   encoder.Close,
	}, nil
}

// newCacheOnly builds a cache handle for management commands that never
// extract, so the dlib models don't have to be present.
func newCacheOnly(cfg *config.Config) *encodings.Cache {
	cache := encodings.New(cfg.CachePath, imgproc.New(cfg.MaxImageSize).Normalize, nil)
	cache.Load()
	return cache
}
