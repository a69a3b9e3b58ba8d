package service

import (
	"context"

	"leadpulse_backend/internal/sla/repository"

	"github.com/google/uuid"
)

// GetState returns the lead's clock state.
func (s *Service) GetState(ctx context.Context, leadID uuid.UUID) (repository.SLAState, error) {
	return s.repo.GetByLead(ctx, leadID)
}
