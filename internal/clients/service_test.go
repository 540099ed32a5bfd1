package clients

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meetledger/meetledger/internal/shared"
)

type memoryClientRepo struct {
	clients map[int64]*Client
	nextID  int64
}

func newMemoryClientRepo() *memoryClientRepo {
	return &memoryClientRepo{clients: make(map[int64]*Client)}
}

func (r *memoryClientRepo) CreateClient(ctx context.Context, input CreateClientInput) (*Client, error) {
	r.nextID++
	c := &Client{
		ID:           r.nextID,
		Name:         input.Name,
		ParentID:     input.ParentID,
		IsCoHost:     input.IsCoHost,
		RateDomestic: input.RateDomestic,
		RateForeign:  input.RateForeign,
		RateReseller: input.RateReseller,
		ResaleRate:   input.ResaleRate,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	r.clients[c.ID] = c
	return c, nil
}

func (r *memoryClientRepo) GetClient(ctx context.Context, id int64) (*Client, error) {
	c, ok := r.clients[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return c, nil
}

func (r *memoryClientRepo) UpdateClient(ctx context.Context, id int64, input UpdateClientInput) (*Client, error) {
	c, ok := r.clients[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	c.Name = input.Name
	c.RateDomestic = input.RateDomestic
	c.RateForeign = input.RateForeign
	c.RateReseller = input.RateReseller
	c.ResaleRate = input.ResaleRate
	c.UpdatedAt = time.Now()
	return c, nil
}

func (r *memoryClientRepo) SetBlocked(ctx context.Context, id int64, blocked bool) error {
	c, ok := r.clients[id]
	if !ok {
		return shared.ErrNotFound
	}
	c.Blocked = blocked
	return nil
}

func (r *memoryClientRepo) ListClients(ctx context.Context, req ListClientsRequest) ([]Client, error) {
	var out []Client
	for _, c := range r.clients {
		if req.ParentID != nil && (c.ParentID == nil || *c.ParentID != *req.ParentID) {
			continue
		}
		if req.CoHosts && !c.IsCoHost {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryClientRepo) SubClientIDs(ctx context.Context, cohostID int64) ([]int64, error) {
	var out []int64
	for _, c := range r.clients {
		if c.ParentID != nil && *c.ParentID == cohostID {
			out = append(out, c.ID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func TestRegisterClient(t *testing.T) {
	svc := NewService(newMemoryClientRepo())

	c, err := svc.RegisterClient(context.Background(), CreateClientInput{Name: "Acme"})
	require.NoError(t, err)
	require.Equal(t, "Acme", c.Name)
	require.False(t, c.IsCoHost)
	require.Nil(t, c.ParentID)
}

func TestRegisterClientRequiresName(t *testing.T) {
	svc := NewService(newMemoryClientRepo())

	_, err := svc.RegisterClient(context.Background(), CreateClientInput{})
	require.Error(t, err)
}

func TestRegisterSubClientUnderCoHost(t *testing.T) {
	repo := newMemoryClientRepo()
	svc := NewService(repo)
	ctx := context.Background()

	cohost, err := svc.RegisterClient(ctx, CreateClientInput{Name: "Cascade", IsCoHost: true})
	require.NoError(t, err)

	sub, err := svc.RegisterClient(ctx, CreateClientInput{Name: "Sub A", ParentID: &cohost.ID})
	require.NoError(t, err)
	require.True(t, sub.IsSubClient())
}

func TestRegisterSubClientParentMustBeCoHost(t *testing.T) {
	repo := newMemoryClientRepo()
	svc := NewService(repo)
	ctx := context.Background()

	plain, err := svc.RegisterClient(ctx, CreateClientInput{Name: "Acme"})
	require.NoError(t, err)

	_, err = svc.RegisterClient(ctx, CreateClientInput{Name: "Sub A", ParentID: &plain.ID})
	require.Error(t, err)
}

func TestRegisterSubClientCannotBeCoHost(t *testing.T) {
	repo := newMemoryClientRepo()
	svc := NewService(repo)
	ctx := context.Background()

	cohost, err := svc.RegisterClient(ctx, CreateClientInput{Name: "Cascade", IsCoHost: true})
	require.NoError(t, err)

	_, err = svc.RegisterClient(ctx, CreateClientInput{Name: "Nested", ParentID: &cohost.ID, IsCoHost: true})
	require.Error(t, err)
}

func TestHierarchyDepthCappedAtOne(t *testing.T) {
	repo := newMemoryClientRepo()
	svc := NewService(repo)
	ctx := context.Background()

	cohost, err := svc.RegisterClient(ctx, CreateClientInput{Name: "Cascade", IsCoHost: true})
	require.NoError(t, err)
	sub, err := svc.RegisterClient(ctx, CreateClientInput{Name: "Sub A", ParentID: &cohost.ID})
	require.NoError(t, err)

	// Force the repo into an invalid shape a registration must still reject.
	repo.clients[sub.ID].IsCoHost = true
	_, err = svc.RegisterClient(ctx, CreateClientInput{Name: "Grandchild", ParentID: &sub.ID})
	require.Error(t, err)
}

func TestRegisterSubClientUnknownParent(t *testing.T) {
	svc := NewService(newMemoryClientRepo())
	parentID := int64(99)

	_, err := svc.RegisterClient(context.Background(), CreateClientInput{Name: "Sub A", ParentID: &parentID})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestBlockAndUnblockClient(t *testing.T) {
	repo := newMemoryClientRepo()
	svc := NewService(repo)
	ctx := context.Background()

	c, err := svc.RegisterClient(ctx, CreateClientInput{Name: "Acme"})
	require.NoError(t, err)

	require.NoError(t, svc.BlockClient(ctx, c.ID))
	got, err := svc.GetClient(ctx, c.ID)
	require.NoError(t, err)
	require.True(t, got.Blocked)

	require.NoError(t, svc.UnblockClient(ctx, c.ID))
	got, err = svc.GetClient(ctx, c.ID)
	require.NoError(t, err)
	require.False(t, got.Blocked)
}

func TestListSubClients(t *testing.T) {
	repo := newMemoryClientRepo()
	svc := NewService(repo)
	ctx := context.Background()

	cohost, err := svc.RegisterClient(ctx, CreateClientInput{Name: "Cascade", IsCoHost: true})
	require.NoError(t, err)
	_, err = svc.RegisterClient(ctx, CreateClientInput{Name: "Sub A", ParentID: &cohost.ID})
	require.NoError(t, err)
	_, err = svc.RegisterClient(ctx, CreateClientInput{Name: "Sub B", ParentID: &cohost.ID})
	require.NoError(t, err)
	_, err = svc.RegisterClient(ctx, CreateClientInput{Name: "Unrelated"})
	require.NoError(t, err)

	subs, err := svc.ListSubClients(ctx, cohost.ID)
	require.NoError(t, err)
	require.Len(t, subs, 2)
}

func TestListSubClientsOfNonCoHost(t *testing.T) {
	repo := newMemoryClientRepo()
	svc := NewService(repo)
	ctx := context.Background()

	plain, err := svc.RegisterClient(ctx, CreateClientInput{Name: "Acme"})
	require.NoError(t, err)

	_, err = svc.ListSubClients(ctx, plain.ID)
	require.Error(t, err)
}
