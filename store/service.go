package store

import "context"

// CatalogReader abstracts repository operations for the service.
type CatalogReader interface {
	GetByCode(ctx context.Context, code string) (Store, error)
	List(ctx context.Context, limit int) ([]Store, error)
}

// Service exposes read-only store catalog operations.
type Service struct {
	repo CatalogReader
}

func NewService(repo CatalogReader) *Service {
	return &Service{repo: repo}
}

// GetByCode returns the store for the given short code.
func (s *Service) GetByCode(ctx context.Context, code string) (Store, error) {
	return s.repo.GetByCode(ctx, code)
}

// List returns up to limit active stores.
func (s *Service) List(ctx context.Context, limit int) ([]Store, error) {
	return s.repo.List(ctx, limit)
}
