package persisters

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockTownsPersister struct {
	mock.Mock
}

func (m *MockTownsPersister) Open(ctx context.Context, dbURL string) error {
	args := m.Called(ctx, dbURL)
	return args.Error(0)
}

func (m *MockTownsPersister) ListTowns(ctx context.Context) ([]Town, error) {
	args := m.Called(ctx)
	if towns, ok := args.Get(0).([]Town); ok {
		return towns, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTownsPersister) CreateTown(ctx context.Context, town Town) error {
	args := m.Called(ctx, town)
	return args.Error(0)
}

func (m *MockTownsPersister) UpdateListing(ctx context.Context, id string, friendlyName string, isPubliclyListed bool) error {
	args := m.Called(ctx, id, friendlyName, isPubliclyListed)
	return args.Error(0)
}

func (m *MockTownsPersister) UpdateAdmins(ctx context.Context, id string, admins []string) error {
	args := m.Called(ctx, id, admins)
	return args.Error(0)
}

func (m *MockTownsPersister) UpdateBlockers(ctx context.Context, id string, blockers []string) error {
	args := m.Called(ctx, id, blockers)
	return args.Error(0)
}

func (m *MockTownsPersister) UpdateUsers(ctx context.Context, id string, users []string) error {
	args := m.Called(ctx, id, users)
	return args.Error(0)
}

func (m *MockTownsPersister) DeleteTown(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockTownsPersister) Close() error {
	args := m.Called()
	return args.Error(0)
}
