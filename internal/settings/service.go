package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/smartq/launchpad/internal/rbac"
	"golang.org/x/sync/singleflight"
)

// Service reads and updates platform configuration. Reads go through the
// Redis cache; concurrent cache misses for the same key collapse into a
// single database load.
type Service struct {
	repo       RepositoryPort
	cache      *Cache
	logger     *slog.Logger
	group      singleflight.Group
	defaultSLA time.Duration
}

// NewService constructs the settings service. cache may be nil.
func NewService(repo RepositoryPort, cache *Cache, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, logger: logger, defaultSLA: DefaultApprovalResponseTime}
}

// SetDefaultResponseTime overrides the built-in fallback SLA, typically
// from environment configuration at startup.
func (s *Service) SetDefaultResponseTime(d time.Duration) {
	if d > 0 {
		s.defaultSLA = d
	}
}

// Get returns one setting by key, consulting the cache first.
func (s *Service) Get(ctx context.Context, key string) (Setting, error) {
	result, err, _ := s.group.Do(key, func() (interface{}, error) {
		cached, ok, err := s.cache.Lookup(ctx, key)
		if err != nil {
			s.logger.Warn("settings cache lookup failed", slog.Any("error", err))
		}
		if ok {
			return cached, nil
		}
		setting, err := s.repo.Get(ctx, key)
		if err != nil {
			return Setting{}, err
		}
		if err := s.cache.Store(ctx, setting); err != nil {
			s.logger.Warn("settings cache store failed", slog.Any("error", err))
		}
		return setting, nil
	})
	if err != nil {
		return Setting{}, err
	}
	return result.(Setting), nil
}

// List returns every stored setting, uncached. The admin configuration
// page is the only caller.
func (s *Service) List(ctx context.Context) ([]Setting, error) {
	return s.repo.List(ctx)
}

// Update validates and persists a setting, then invalidates the cache.
// Only admins may update platform configuration.
func (s *Service) Update(ctx context.Context, actor rbac.Actor, key, value string) (Setting, error) {
	if rbac.GroupLevel(actor.Role, "/platform-configuration") != rbac.AccessFull {
		return Setting{}, ErrForbidden
	}
	if err := validateValue(key, value); err != nil {
		return Setting{}, err
	}
	setting := Setting{
		Key:       key,
		Value:     value,
		UpdatedBy: &actor.UserID,
		UpdatedAt: time.Now(),
	}
	if err := s.repo.Upsert(ctx, setting); err != nil {
		return Setting{}, err
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("settings cache bump failed", slog.Any("error", err))
	}
	return setting, nil
}

// ApprovalResponseTime returns the configured review SLA, falling back to
// the default when no override is stored.
func (s *Service) ApprovalResponseTime(ctx context.Context) (time.Duration, error) {
	setting, err := s.Get(ctx, KeyApprovalResponseTime)
	if errors.Is(err, ErrNotFound) {
		return s.defaultSLA, nil
	}
	if err != nil {
		return 0, err
	}
	d, err := time.ParseDuration(setting.Value)
	if err != nil || d <= 0 {
		s.logger.Warn("stored approval response time is invalid, using default",
			slog.String("value", setting.Value))
		return s.defaultSLA, nil
	}
	return d, nil
}

func validateValue(key, value string) error {
	switch key {
	case KeyApprovalResponseTime:
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%w: %q is not a duration", ErrInvalidValue, value)
		}
		if d <= 0 {
			return fmt.Errorf("%w: response time must be positive", ErrInvalidValue)
		}
	}
	return nil
}
