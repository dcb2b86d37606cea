package rework

import "context"

// TicketStore abstracts repository operations for the service.
type TicketStore interface {
	List(ctx context.Context, unitRef string, status Status) ([]Ticket, error)
	GetByID(ctx context.Context, ticketID string) (Ticket, error)
	Advance(ctx context.Context, ticketID string, next Status) (Ticket, error)
}

// Service exposes the remediation workflow over rework tickets.
type Service struct {
	repo TicketStore
}

func NewService(repo TicketStore) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, unitRef string, status Status) ([]Ticket, error) {
	return s.repo.List(ctx, unitRef, status)
}

func (s *Service) GetByID(ctx context.Context, ticketID string) (Ticket, error) {
	return s.repo.GetByID(ctx, ticketID)
}

func (s *Service) Advance(ctx context.Context, ticketID string, next Status) (Ticket, error) {
	return s.repo.Advance(ctx, ticketID, next)
}
