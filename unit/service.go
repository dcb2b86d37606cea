package unit

import "context"

// Reader abstracts repository read operations for the service.
type Reader interface {
	GetByRef(ctx context.Context, unitRef string) (Unit, error)
	ListByStatus(ctx context.Context, status Status, limit int) ([]Unit, error)
}

// Service exposes read access to the unit registry. All mutation happens
// through inspection transactions.
type Service struct {
	repo Reader
}

func NewService(repo Reader) *Service {
	return &Service{repo: repo}
}

func (s *Service) GetByRef(ctx context.Context, unitRef string) (Unit, error) {
	return s.repo.GetByRef(ctx, unitRef)
}

func (s *Service) ListByStatus(ctx context.Context, status Status, limit int) ([]Unit, error) {
	return s.repo.ListByStatus(ctx, status, limit)
}
