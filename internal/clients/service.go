package clients

import (
	"context"
	"fmt"

	"github.com/meetledger/meetledger/internal/shared"
)

// RepositoryPort defines data access methods for clients.
type RepositoryPort interface {
	CreateClient(ctx context.Context, input CreateClientInput) (*Client, error)
	GetClient(ctx context.Context, id int64) (*Client, error)
	UpdateClient(ctx context.Context, id int64, input UpdateClientInput) (*Client, error)
	SetBlocked(ctx context.Context, id int64, blocked bool) error
	ListClients(ctx context.Context, req ListClientsRequest) ([]Client, error)
	SubClientIDs(ctx context.Context, cohostID int64) ([]int64, error)
}

// Service handles client master data logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// RegisterClient creates a client after validating the co-host hierarchy.
// The hierarchy is capped at one level: a sub-client's parent must be a
// co-host that itself has no parent.
func (s *Service) RegisterClient(ctx context.Context, input CreateClientInput) (*Client, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("clients: name required")
	}
	if input.ParentID != nil {
		if input.IsCoHost {
			return nil, fmt.Errorf("clients: a sub-client cannot itself be a co-host")
		}
		parent, err := s.repo.GetClient(ctx, *input.ParentID)
		if err != nil {
			return nil, fmt.Errorf("clients: resolve parent %d: %w", *input.ParentID, err)
		}
		if !parent.IsCoHost {
			return nil, fmt.Errorf("clients: parent %d is not a co-host", parent.ID)
		}
		if parent.ParentID != nil {
			return nil, fmt.Errorf("clients: parent %d is itself a sub-client", parent.ID)
		}
	}
	return s.repo.CreateClient(ctx, input)
}

// GetClient fetches one client.
func (s *Service) GetClient(ctx context.Context, id int64) (*Client, error) {
	return s.repo.GetClient(ctx, id)
}

// UpdateClient mutates name and rate card.
func (s *Service) UpdateClient(ctx context.Context, id int64, input UpdateClientInput) (*Client, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("clients: name required")
	}
	return s.repo.UpdateClient(ctx, id, input)
}

// BlockClient prevents a client from creating new meetings. Historical
// balances are untouched.
func (s *Service) BlockClient(ctx context.Context, id int64) error {
	return s.repo.SetBlocked(ctx, id, true)
}

// UnblockClient lifts the block.
func (s *Service) UnblockClient(ctx context.Context, id int64) error {
	return s.repo.SetBlocked(ctx, id, false)
}

// ListClients returns clients matching the filter.
func (s *Service) ListClients(ctx context.Context, req ListClientsRequest) ([]Client, error) {
	return s.repo.ListClients(ctx, req)
}

// ListSubClients returns the sub-clients of a co-host.
func (s *Service) ListSubClients(ctx context.Context, cohostID int64) ([]Client, error) {
	cohost, err := s.repo.GetClient(ctx, cohostID)
	if err != nil {
		return nil, err
	}
	if !cohost.IsCoHost {
		return nil, fmt.Errorf("clients: client %d is not a co-host: %w", cohostID, shared.ErrNotFound)
	}
	return s.repo.ListClients(ctx, ListClientsRequest{ParentID: &cohostID})
}
