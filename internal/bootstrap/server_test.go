package bootstrap

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-filesharer/config"
	"github.com/dep2p/go-filesharer/internal/core/storage"
	"github.com/dep2p/go-filesharer/internal/core/transport"
	"github.com/dep2p/go-filesharer/pkg/protocol"
	"github.com/dep2p/go-filesharer/pkg/types"
)

const (
	localhost  = "127.0.0.1"
	serverPort = 55555
)

func newRegistry(t *testing.T, maxNodes int) *Registry {
	t.Helper()
	eng, err := storage.NewEngine(storage.Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return NewRegistry(storage.NewKVStore(eng, RegistryPrefix), maxNodes, clock.NewMock())
}

// ============================================================================
//                              Registry
// ============================================================================

func TestRegistry_RegisterReturnsOtherPeers(t *testing.T) {
	r := newRegistry(t, 10)

	peers, err := r.Register(localhost, 7100, "a", 2)
	require.NoError(t, err)
	assert.Empty(t, peers)

	peers, err = r.Register(localhost, 7101, "b", 2)
	require.NoError(t, err)
	require.Len(t, peers, 1)
	assert.True(t, peers[0].Is(localhost, 7100))

	_, err = r.Register(localhost, 7102, "c", 2)
	require.NoError(t, err)
	peers, err = r.Register(localhost, 7103, "d", 2)
	require.NoError(t, err)
	assert.Len(t, peers, 2)
	for _, p := range peers {
		assert.False(t, p.Is(localhost, 7103))
	}

	n, err := r.Len()
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestRegistry_RejectsDuplicatesAndOverflow(t *testing.T) {
	r := newRegistry(t, 2)

	_, err := r.Register(localhost, 7100, "a", 2)
	require.NoError(t, err)

	_, err = r.Register(localhost, 7100, "a", 2)
	assert.ErrorIs(t, err, ErrAlreadyRegistered)

	_, err = r.Register(localhost, 7100, "someone-else", 2)
	assert.ErrorIs(t, err, ErrAddressOccupied)

	_, err = r.Register(localhost, 7101, "b", 2)
	require.NoError(t, err)
	_, err = r.Register(localhost, 7102, "c", 2)
	assert.ErrorIs(t, err, ErrRegistryFull)
}

func TestRegistry_Unregister(t *testing.T) {
	r := newRegistry(t, 10)
	_, err := r.Register(localhost, 7100, "a", 2)
	require.NoError(t, err)

	assert.ErrorIs(t, r.Unregister(localhost, 7100, "b"), ErrNotRegistered)
	assert.ErrorIs(t, r.Unregister(localhost, 7199, "a"), ErrNotRegistered)
	require.NoError(t, r.Unregister(localhost, 7100, "a"))

	// 注销后可以重新注册
	_, err = r.Register(localhost, 7100, "a", 2)
	assert.NoError(t, err)
}

func TestRegistry_EntriesRecordMetadata(t *testing.T) {
	r := newRegistry(t, 10)
	_, err := r.Register(localhost, 7101, "b", 2)
	require.NoError(t, err)
	_, err = r.Register(localhost, 7100, "a", 2)
	require.NoError(t, err)

	entries, err := r.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// 按键排序
	assert.Equal(t, 7100, entries[0].Port)
	assert.Equal(t, "a", entries[0].Username)
	assert.NotEmpty(t, entries[0].ID)
	assert.NotEqual(t, entries[0].ID, entries[1].ID)
	assert.Equal(t, time.Unix(0, 0).UTC(), entries[0].RegisteredAt.UTC())

	require.NoError(t, r.Clear())
	n, err := r.Len()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRegistry_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	eng, err := storage.NewEngine(storage.Config{Path: dir})
	require.NoError(t, err)
	r := NewRegistry(storage.NewKVStore(eng, RegistryPrefix), 10, nil)
	_, err = r.Register(localhost, 7100, "a", 2)
	require.NoError(t, err)
	require.NoError(t, eng.Close())

	eng, err = storage.NewEngine(storage.Config{Path: dir})
	require.NoError(t, err)
	defer eng.Close()
	r = NewRegistry(storage.NewKVStore(eng, RegistryPrefix), 10, nil)

	_, err = r.Register(localhost, 7100, "a", 2)
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
}

// ============================================================================
//                              Server
// ============================================================================

type client struct {
	mu       sync.Mutex
	handler  *transport.MemoryHandler
	messages []*protocol.Message
}

func newClient(t *testing.T, network *transport.Network, port int) *client {
	t.Helper()
	c := &client{handler: transport.NewMemoryHandler(network, localhost, port)}
	c.handler.RegisterListener(c)
	require.NoError(t, c.handler.Start(context.Background()))
	t.Cleanup(func() { _ = c.handler.Shutdown() })
	return c
}

func (c *client) OnMessageReceived(_ string, _ int, msg *protocol.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
}

func (c *client) OnMessageSendFailed(string, int, *protocol.Message) {}

func (c *client) received() []*protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*protocol.Message(nil), c.messages...)
}

func (c *client) request(t *testing.T, msg *protocol.Message) *protocol.Message {
	t.Helper()
	before := len(c.received())
	require.NoError(t, c.handler.SendMessage(localhost, serverPort, msg, false))
	require.Eventually(t, func() bool { return len(c.received()) > before }, 2*time.Second, 5*time.Millisecond)
	return c.received()[before]
}

func startServer(t *testing.T, network *transport.Network, maxNodes int) *Server {
	t.Helper()
	h := transport.NewMemoryHandler(network, localhost, serverPort)
	require.NoError(t, h.Start(context.Background()))
	s := NewServer(h, newRegistry(t, maxNodes), Config{MaxNodes: maxNodes, MaxReturned: 2})
	t.Cleanup(func() {
		_ = s.Close()
		_ = h.Shutdown()
	})
	return s
}

func reg(port int, user string) *protocol.Message {
	return protocol.New(protocol.TypeReg, localhost, strconv.Itoa(port), user)
}

func TestServer_RegisterFlow(t *testing.T) {
	network := transport.NewNetwork()
	startServer(t, network, 3)
	a := newClient(t, network, 7100)
	b := newClient(t, network, 7101)

	reply := a.request(t, reg(7100, "a"))
	assert.Equal(t, protocol.TypeRegOK, reply.Type)
	assert.Equal(t, "0", reply.Field(protocol.RegOKCount))

	reply = b.request(t, reg(7101, "b"))
	nodes, err := protocol.ParseNodeFields(reply, protocol.RegOKCount, protocol.RegOKNodesStart)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.True(t, nodes[0].Is(localhost, 7100))

	reply = a.request(t, reg(7100, "a"))
	assert.Equal(t, protocol.RegOKAlreadyRegistered, reply.Field(protocol.RegOKCount))

	reply = a.request(t, reg(7100, "mallory"))
	assert.Equal(t, protocol.RegOKAlreadyOccupied, reply.Field(protocol.RegOKCount))
}

func TestServer_RegistryFull(t *testing.T) {
	network := transport.NewNetwork()
	startServer(t, network, 1)
	a := newClient(t, network, 7100)
	b := newClient(t, network, 7101)

	a.request(t, reg(7100, "a"))
	reply := b.request(t, reg(7101, "b"))
	assert.Equal(t, protocol.RegOKFull, reply.Field(protocol.RegOKCount))
}

func TestServer_UnregisterAndEcho(t *testing.T) {
	network := transport.NewNetwork()
	s := startServer(t, network, 10)
	a := newClient(t, network, 7100)

	a.request(t, reg(7100, "a"))

	reply := a.request(t, protocol.New(protocol.TypeUnreg, localhost, "7100", "a"))
	assert.Equal(t, protocol.TypeUnregOK, reply.Type)
	assert.Equal(t, protocol.ValueSuccess, reply.Field(protocol.UnregOKValue))

	reply = a.request(t, protocol.New(protocol.TypeUnreg, localhost, "7100", "a"))
	assert.Equal(t, protocol.ValueError, reply.Field(protocol.UnregOKValue))

	reply = a.request(t, protocol.New(protocol.TypeEcho))
	assert.Equal(t, protocol.TypeEchoOK, reply.Type)
	assert.Equal(t, protocol.ValueSuccess, reply.Field(0))

	n, err := s.Registry().Len()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestServer_InvalidPort(t *testing.T) {
	network := transport.NewNetwork()
	startServer(t, network, 10)
	a := newClient(t, network, 7100)

	reply := a.request(t, protocol.New(protocol.TypeReg, localhost, "port", "a"))
	assert.Equal(t, protocol.RegOKFailed, reply.Field(protocol.RegOKCount))
}

// ============================================================================
//                              模块
// ============================================================================

func TestModule_ServesOverConfiguredTransport(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Node.Port = serverPort
	cfg.Transport.Handler = string(types.HandlerMemory)
	cfg.Storage.InMemory = true

	network := transport.NewNetwork()
	var server *Server
	app := fxtest.New(t,
		fx.Supply(cfg, network),
		storage.Module(),
		transport.Module(),
		Module(),
		fx.Populate(&server),
	)
	app.RequireStart()
	defer app.RequireStop()

	a := newClient(t, network, 7100)
	reply := a.request(t, reg(7100, "a"))
	assert.Equal(t, "0", reply.Field(protocol.RegOKCount))

	entries, err := server.Registry().Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].Username)
}

func TestConfigFromUnified(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Bootstrap.MaxNodes = 5
	got := ConfigFromUnified(cfg)
	assert.Equal(t, 5, got.MaxNodes)
	assert.Equal(t, 2, got.MaxReturned)
	assert.Equal(t, DefaultConfig().MaxReturned, ConfigFromUnified(nil).MaxReturned)
}
