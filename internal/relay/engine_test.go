package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/parley-chat/parley/internal/directory"
	"github.com/parley-chat/parley/internal/models"
	"github.com/parley-chat/parley/internal/msglog"
	"github.com/parley-chat/parley/internal/registry"
	"github.com/parley-chat/parley/internal/store"
)

// recordingConn captures pushed messages, optionally failing every push.
type recordingConn struct {
	mu   sync.Mutex
	msgs []*models.Message
	fail bool
}

func (c *recordingConn) Push(ctx context.Context, msg *models.Message) error {
	if c.fail {
		return errors.New("connection gone")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *recordingConn) received() []*models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*models.Message, len(c.msgs))
	copy(out, c.msgs)
	return out
}

type fixture struct {
	db     store.DataStore
	dir    *directory.Directory
	log    *msglog.Log
	reg    *registry.Registry
	engine *Engine
	alice  *models.User
	bob    *models.User
	chat   *models.Chat
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	req := require.New(t)
	ctx := context.Background()

	db := store.NewMemoryStore()
	dir := directory.New(db)
	log := msglog.New(dir, zerolog.Nop())
	reg := registry.New()

	alice, err := db.CreateUser(ctx, "+15550001", "alice")
	req.NoError(err)
	bob, err := db.CreateUser(ctx, "+15550002", "bob")
	req.NoError(err)
	chat, err := dir.CreateDirect(ctx, alice.ID, bob.ID)
	req.NoError(err)

	return &fixture{
		db:     db,
		dir:    dir,
		log:    log,
		reg:    reg,
		engine: NewEngine(dir, log, reg, zerolog.Nop()),
		alice:  alice,
		bob:    bob,
		chat:   chat,
	}
}

func TestSendPushesToOnlineRecipient(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	conn := &recordingConn{}
	f.reg.Register(f.bob.ID, conn)

	msg, err := f.engine.Send(context.Background(), f.chat.ID, f.alice.ID, "hello", models.KindText)
	req.NoError(err)
	req.Equal(int64(1), msg.Seq)

	require.Eventually(t, func() bool {
		return len(conn.received()) == 1
	}, time.Second, 10*time.Millisecond)
	req.Equal(msg.ID, conn.received()[0].ID)

	require.Eventually(t, func() bool {
		status, ok := f.log.StatusFor(msg.ID, f.bob.ID)
		return ok && status == models.StatusDelivered
	}, time.Second, 10*time.Millisecond)
}

func TestSendToOfflineRecipientStaysSent(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	msg, err := f.engine.Send(context.Background(), f.chat.ID, f.alice.ID, "anyone there", models.KindText)
	req.NoError(err)

	// give fan-out a chance to (incorrectly) advance the status
	time.Sleep(50 * time.Millisecond)
	status, ok := f.log.StatusFor(msg.ID, f.bob.ID)
	req.True(ok)
	req.Equal(models.StatusSent, status)
}

func TestOfflineRecipientCatchesUpOnReconnect(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.engine.Send(ctx, f.chat.ID, f.alice.ID, "one", models.KindText)
	req.NoError(err)
	_, err = f.engine.Send(ctx, f.chat.ID, f.alice.ID, "two", models.KindText)
	req.NoError(err)

	// bob reconnects and replays everything after the last seq he saw
	missed, err := f.log.ListSince(ctx, f.chat.ID, 0)
	req.NoError(err)
	req.Len(missed, 2)
	req.Equal(first.ID, missed[0].ID)

	f.engine.MarkDelivered(missed[0].ID, f.bob.ID)
	f.engine.MarkRead(missed[0].ID, f.bob.ID)

	status, _ := f.log.StatusFor(missed[0].ID, f.bob.ID)
	req.Equal(models.StatusRead, status)
	status, _ = f.log.StatusFor(missed[1].ID, f.bob.ID)
	req.Equal(models.StatusSent, status)
}

func TestFailedPushDoesNotMarkDelivered(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	f.reg.Register(f.bob.ID, &recordingConn{fail: true})

	msg, err := f.engine.Send(context.Background(), f.chat.ID, f.alice.ID, "hello", models.KindText)
	req.NoError(err)

	time.Sleep(50 * time.Millisecond)
	status, ok := f.log.StatusFor(msg.ID, f.bob.ID)
	req.True(ok)
	req.Equal(models.StatusSent, status)
}

func TestOneGoodConnectionIsEnough(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	good := &recordingConn{}
	f.reg.Register(f.bob.ID, &recordingConn{fail: true})
	f.reg.Register(f.bob.ID, good)

	msg, err := f.engine.Send(context.Background(), f.chat.ID, f.alice.ID, "hello", models.KindText)
	req.NoError(err)

	require.Eventually(t, func() bool {
		status, ok := f.log.StatusFor(msg.ID, f.bob.ID)
		return ok && status == models.StatusDelivered
	}, time.Second, 10*time.Millisecond)
	req.Len(good.received(), 1)
}

func TestSenderConnectionsDoNotReceiveFanout(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	senderConn := &recordingConn{}
	f.reg.Register(f.alice.ID, senderConn)

	_, err := f.engine.Send(context.Background(), f.chat.ID, f.alice.ID, "hello", models.KindText)
	req.NoError(err)

	time.Sleep(50 * time.Millisecond)
	req.Empty(senderConn.received())
}

func TestSendRejections(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Send(ctx, uuid.New(), f.alice.ID, "hello", models.KindText)
	req.ErrorIs(err, models.ErrChatNotFound)

	mallory, err := f.db.CreateUser(ctx, "+15550099", "mallory")
	req.NoError(err)
	_, err = f.engine.Send(ctx, f.chat.ID, mallory.ID, "hello", models.KindText)
	req.ErrorIs(err, models.ErrNotParticipant)

	req.Zero(f.log.TotalMessages())
}

func TestGroupFanoutReachesAllRecipients(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	carol, err := f.db.CreateUser(ctx, "+15550003", "carol")
	req.NoError(err)
	group, err := f.dir.CreateGroup(ctx, []uuid.UUID{f.alice.ID, f.bob.ID, carol.ID})
	req.NoError(err)

	bobConn := &recordingConn{}
	carolConn := &recordingConn{}
	f.reg.Register(f.bob.ID, bobConn)
	f.reg.Register(carol.ID, carolConn)

	msg, err := f.engine.Send(ctx, group.ID, f.alice.ID, "hi all", models.KindText)
	req.NoError(err)

	require.Eventually(t, func() bool {
		return len(bobConn.received()) == 1 && len(carolConn.received()) == 1
	}, time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		bs, _ := f.log.StatusFor(msg.ID, f.bob.ID)
		cs, _ := f.log.StatusFor(msg.ID, carol.ID)
		return bs == models.StatusDelivered && cs == models.StatusDelivered
	}, time.Second, 10*time.Millisecond)
}
