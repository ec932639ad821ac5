package profile

import (
	"fmt"
	"sync"
	"time"
	_ "time/tzdata" // tenant zones must resolve on minimal hosts

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

// Resolver turns tenant ids into validated configurations. Results are
// memoized; profiles are read once per process.
type Resolver struct {
	source Source
	logger *zap.Logger

	mu       sync.RWMutex
	resolved map[string]*Config
}

func NewResolver(source Source, logger *zap.Logger) *Resolver {
	return &Resolver{
		source:   source,
		logger:   logger.Named("profile"),
		resolved: make(map[string]*Config),
	}
}

// Resolve returns the merged configuration for tenantID. It fails with
// *NotFoundError or *ValidationError; both must stop call setup.
func (r *Resolver) Resolve(tenantID string) (*Config, error) {
	r.mu.RLock()
	cfg, ok := r.resolved[tenantID]
	r.mu.RUnlock()
	if ok {
		return cfg, nil
	}

	doc, err := r.source.Load(tenantID)
	if err != nil {
		return nil, err
	}

	cfg, err = Build(tenantID, doc)
	if err != nil {
		r.logger.Warn("❌ client config rejected", zap.String("tenant", tenantID), zap.Error(err))
		return nil, err
	}

	r.mu.Lock()
	r.resolved[tenantID] = cfg
	r.mu.Unlock()

	r.logger.Info("✅ client config loaded",
		zap.String("tenant", tenantID),
		zap.String("business", cfg.Business.Name),
		zap.String("calendar_mode", cfg.Calendar.Mode),
	)
	return cfg, nil
}

// List returns the ids the underlying source knows about.
func (r *Resolver) List() ([]string, error) {
	return r.source.List()
}

// Build merges doc over the defaults, validates it and decodes the result.
func Build(tenantID string, doc map[string]any) (*Config, error) {
	merged := Merge(Defaults(), doc)

	missing, problems, err := validateDocument(merged)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 || len(problems) > 0 {
		return nil, &ValidationError{TenantID: tenantID, Missing: missing, Problems: problems}
	}

	raw, err := sonic.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encode merged config: %w", err)
	}
	cfg := &Config{}
	if err := sonic.Unmarshal(raw, cfg); err != nil {
		return nil, &ValidationError{TenantID: tenantID, Problems: []string{err.Error()}}
	}
	cfg.ID = tenantID

	if tz := cfg.Business.Timezone; tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, &ValidationError{
				TenantID: tenantID,
				Problems: []string{fmt.Sprintf("business.timezone: unknown zone %q", tz)},
			}
		}
		cfg.location = loc
	}
	return cfg, nil
}
