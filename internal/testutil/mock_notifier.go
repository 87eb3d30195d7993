//go:build !production

package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/notunoflip/notunoflip.github.io/internal/game/engine"
)

// MockNotifier 实现 engine.Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Publish(ctx context.Context, snap engine.Snapshot) error {
	args := m.Called(ctx, snap)
	return args.Error(0)
}

func (m *MockNotifier) RoomClosed(roomID string) {
	m.Called(roomID)
}

// MockSubmitter 把命令提交到房间的 mock
type MockSubmitter struct {
	mock.Mock
}

func (m *MockSubmitter) Submit(ctx context.Context, roomID string, cmd engine.Command) (engine.Snapshot, error) {
	args := m.Called(ctx, roomID, cmd)
	return args.Get(0).(engine.Snapshot), args.Error(1)
}
