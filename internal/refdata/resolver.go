// Package refdata resolves Campus, Program and AcademicYear dimension values
// by name, creating missing ones lazily. Each import run owns one Resolver;
// the cache is warmed once at the top of the run and appended to in place as
// new values are created, never invalidated mid-run.
package refdata

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scolaris/billing/internal/domain"
	"github.com/scolaris/billing/internal/repository"
	"github.com/scolaris/billing/internal/textnorm"
)

type Resolver struct {
	repo   *repository.RefDimensionRepo
	logger *zap.Logger

	// mu makes find-or-insert atomic per resolver: concurrent get-or-create
	// calls for the same normalized name can never race a create against a
	// create.
	mu    sync.Mutex
	cache map[domain.DimensionKind]map[string]string // normalized name -> id
}

func NewResolver(repo *repository.RefDimensionRepo, logger *zap.Logger) *Resolver {
	return &Resolver{
		repo:   repo,
		logger: logger,
		cache:  make(map[domain.DimensionKind]map[string]string),
	}
}

// Warm loads every existing dimension row of all three kinds into the cache.
// Called once before any get-or-create.
func (r *Resolver) Warm(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, kind := range []domain.DimensionKind{
		domain.DimensionCampus, domain.DimensionProgram, domain.DimensionAcademicYear,
	} {
		dims, err := r.repo.ListByKind(ctx, kind)
		if err != nil {
			return fmt.Errorf("warm %s cache: %w", kind, err)
		}
		byKey := make(map[string]string, len(dims))
		for _, d := range dims {
			byKey[textnorm.Key(d.Name)] = d.ID
		}
		r.cache[kind] = byKey
	}
	return nil
}

// GetOrCreate returns the id of the dimension row matching name under
// case/diacritic-insensitive comparison, creating it when absent. An empty
// name, or a creation the store refuses, resolves to "" (no dimension),
// never an aborted run.
func (r *Resolver) GetOrCreate(ctx context.Context, kind domain.DimensionKind, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	key := textnorm.Key(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	byKey, ok := r.cache[kind]
	if !ok {
		byKey = make(map[string]string)
		r.cache[kind] = byKey
	}
	if id, found := byKey[key]; found {
		return id
	}

	dim := domain.ReferenceDimension{
		ID:   uuid.NewString(),
		Kind: kind,
		Name: name,
	}
	if kind == domain.DimensionAcademicYear {
		dim.OrderingHint = YearOrderingHint(name)
	}

	if err := r.repo.Insert(ctx, &dim); err != nil {
		r.logger.Warn("dimension creation failed, resolving as no dimension",
			zap.String("kind", string(kind)),
			zap.String("name", name),
			zap.Error(err))
		return ""
	}

	byKey[key] = dim.ID
	return dim.ID
}

// YearOrderingHint derives the display ordering of an academic-year label:
// second-year labels sort after first-year ones, preparatory cycles first.
func YearOrderingHint(label string) int {
	key := textnorm.Key(label)
	switch {
	case strings.Contains(key, "2"):
		return 2
	case strings.Contains(key, "prepa"):
		return 0
	default:
		return 1
	}
}
