// Package app builds the detector registry and its optional backing
// services from configuration. Both binaries start from here.
package app

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/raaihank/llm-anonymizer/internal/audit"
	"github.com/raaihank/llm-anonymizer/internal/cache"
	"github.com/raaihank/llm-anonymizer/internal/config"
	"github.com/raaihank/llm-anonymizer/internal/logger"
	"github.com/raaihank/llm-anonymizer/internal/nlp"
	"github.com/raaihank/llm-anonymizer/internal/privacy"
	"github.com/raaihank/llm-anonymizer/internal/privacy/filters"
)

// Services holds all initialized services. Tagger, Cache and Audit are nil
// when disabled or unavailable.
type Services struct {
	Registry *privacy.Registry
	Tagger   nlp.Tagger
	Cache    *cache.DetectorCache
	Audit    *audit.Store
}

// Close releases every service that was started
func (s *Services) Close() {
	if s.Tagger != nil {
		s.Tagger.Close()
	}
	if s.Cache != nil {
		s.Cache.Close()
	}
	if s.Audit != nil {
		s.Audit.Close()
	}
}

// Initialize builds the registry. A NER model that cannot be loaded falls
// back to lexicon name detection, and an unreachable cache is skipped
// unless it is required. An enabled audit store must be reachable.
func Initialize(cfg *config.Config, log *logger.Logger) (*Services, error) {
	s := &Services{}

	if cfg.NER.Enabled {
		log.Info("Initializing NER tagger...", zap.String("model", cfg.NER.ModelPath))
		tagger, err := nlp.NewOnnxTagger(nlp.TaggerConfig{
			ModelPath:   cfg.NER.ModelPath,
			VocabPath:   cfg.NER.VocabPath,
			Labels:      cfg.NER.Labels,
			MaxLength:   cfg.NER.MaxLength,
			Lowercase:   cfg.NER.Lowercase,
			SharedLib:   cfg.NER.SharedLib,
			PersonLabel: cfg.NER.PersonLabel,
		}, log.Logger)
		if err != nil {
			log.Warn("NER tagger unavailable, using lexicon name detection", zap.Error(err))
		} else {
			s.Tagger = tagger
		}
	}

	registry, err := filters.NewRegistry(filters.Options{Tagger: s.Tagger})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to build detectors: %w", err)
	}
	s.Registry = registry

	if cfg.Cache.Enabled {
		log.Info("Initializing detection cache...")
		detectorCache, err := cache.New(&cache.Config{
			RedisURL:       cfg.Cache.RedisURL,
			MaxConnections: cfg.Cache.MaxConnections,
			MinIdleConns:   cfg.Cache.MinIdleConns,
			DefaultTTL:     cfg.Cache.DefaultTTL,
			KeyPrefix:      cfg.Cache.KeyPrefix,
			Timeout:        cfg.Cache.Timeout,
		}, log.Logger)
		switch {
		case err != nil && cfg.Cache.Required:
			s.Close()
			return nil, fmt.Errorf("failed to initialize detection cache: %w", err)
		case err != nil:
			log.Warn("Detection cache unavailable, detecting without cache", zap.Error(err))
		default:
			if err := detectorCache.WrapRegistry(registry); err != nil {
				detectorCache.Close()
				s.Close()
				return nil, err
			}
			s.Cache = detectorCache
		}
	}

	if cfg.Audit.Enabled {
		log.Info("Initializing audit store...")
		store, err := audit.NewStore(&audit.Config{
			DatabaseURL:     cfg.Audit.DatabaseURL,
			MaxOpenConns:    cfg.Audit.MaxOpenConns,
			MaxIdleConns:    cfg.Audit.MaxIdleConns,
			ConnMaxLifetime: cfg.Audit.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Audit.ConnMaxIdleTime,
		}, log.Logger)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to initialize audit store: %w", err)
		}
		s.Audit = store
	}

	return s, nil
}

// EngineOptions maps the privacy configuration onto engine options
func EngineOptions(cfg *config.Config) privacy.Options {
	return privacy.Options{
		Categories:      cfg.Privacy.Categories,
		PreserveGrammar: cfg.Privacy.PreserveGrammar,
		Parallel:        cfg.Privacy.ParallelDetectors,
	}
}
