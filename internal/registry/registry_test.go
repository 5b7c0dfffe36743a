package registry

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/parley-chat/parley/internal/models"
)

// nopConn carries a field so each &nopConn{} is a distinct allocation;
// pointers to zero-size values may compare equal, collapsing map keys.
type nopConn struct{ _ int }

func (nopConn) Push(ctx context.Context, msg *models.Message) error { return nil }

func TestRegisterAndConnectionsFor(t *testing.T) {
	req := require.New(t)
	reg := New()
	user := uuid.New()

	req.Empty(reg.ConnectionsFor(user))
	req.Zero(reg.OnlineCount())

	c1 := &nopConn{}
	c2 := &nopConn{}
	reg.Register(user, c1)
	reg.Register(user, c2)

	req.Len(reg.ConnectionsFor(user), 2)
	req.Equal(1, reg.OnlineCount())
}

func TestUnregister(t *testing.T) {
	req := require.New(t)
	reg := New()
	user := uuid.New()
	c1 := &nopConn{}
	c2 := &nopConn{}

	reg.Register(user, c1)
	reg.Register(user, c2)

	reg.Unregister(user, c1)
	req.Len(reg.ConnectionsFor(user), 1)
	req.Equal(1, reg.OnlineCount())

	reg.Unregister(user, c2)
	req.Empty(reg.ConnectionsFor(user))
	req.Zero(reg.OnlineCount())
}

func TestUnregisterUnknownIsNoop(t *testing.T) {
	reg := New()
	reg.Unregister(uuid.New(), &nopConn{})
}

func TestLastSeen(t *testing.T) {
	req := require.New(t)
	reg := New()
	user := uuid.New()

	req.True(reg.LastSeen(user).IsZero())

	reg.Touch(user)
	first := reg.LastSeen(user)
	req.False(first.IsZero())

	reg.Register(user, &nopConn{})
	req.False(reg.LastSeen(user).Before(first))
}
