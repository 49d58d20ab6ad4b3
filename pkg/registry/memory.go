// Package registry provides service-registry implementations behind the
// domain.ServiceRegistry interface: an in-memory store for tests and
// single-node deployments, and a YAML file store with hot reload.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/highstation/gateway/pkg/domain"
)

// MemoryStore is an in-memory implementation of domain.ServiceRegistry.
type MemoryStore struct {
	mu       sync.RWMutex
	bySlug   map[string]*domain.Service
	byDomain map[string]*domain.Service
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bySlug:   make(map[string]*domain.Service),
		byDomain: make(map[string]*domain.Service),
	}
}

// Put inserts or replaces a service record.
func (s *MemoryStore) Put(svc *domain.Service) error {
	if err := svc.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.bySlug[svc.Slug]; ok && prev.CustomDomain != "" {
		delete(s.byDomain, prev.CustomDomain)
	}
	clone := *svc
	s.bySlug[svc.Slug] = &clone
	if svc.CustomDomain != "" {
		s.byDomain[svc.CustomDomain] = &clone
	}
	return nil
}

// GetByCustomDomain implements domain.ServiceRegistry. Only verified
// services are reachable through their custom domain.
func (s *MemoryStore) GetByCustomDomain(_ context.Context, host string) (*domain.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	svc, ok := s.byDomain[host]
	if !ok || !svc.Verified() {
		return nil, fmt.Errorf("custom domain %q: %w", host, domain.ErrServiceNotFound)
	}
	clone := *svc
	return &clone, nil
}

// GetBySlug implements domain.ServiceRegistry.
func (s *MemoryStore) GetBySlug(_ context.Context, slug string, verifiedOnly bool) (*domain.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	svc, ok := s.bySlug[slug]
	if !ok || (verifiedOnly && !svc.Verified()) {
		return nil, fmt.Errorf("slug %q: %w", slug, domain.ErrServiceNotFound)
	}
	clone := *svc
	return &clone, nil
}

// MarkVerified implements domain.ServiceVerifier.
func (s *MemoryStore) MarkVerified(_ context.Context, slug string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	svc, ok := s.bySlug[slug]
	if !ok {
		return fmt.Errorf("slug %q: %w", slug, domain.ErrServiceNotFound)
	}
	svc.Status = domain.StatusVerified
	return nil
}
