package transport

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-filesharer/pkg/protocol"
	"github.com/dep2p/go-filesharer/pkg/types"
)

// ============================================================================
//                              Mock 实现
// ============================================================================

type receivedMessage struct {
	from string
	msg  *protocol.Message
}

// recordingListener 记录收到的消息与发送失败
type recordingListener struct {
	mu       sync.Mutex
	received []receivedMessage
	failed   []string
}

func (l *recordingListener) OnMessageReceived(fromIP string, fromPort int, msg *protocol.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.received = append(l.received, receivedMessage{from: types.NodeKey(fromIP, fromPort), msg: msg})
}

func (l *recordingListener) OnMessageSendFailed(toIP string, toPort int, _ *protocol.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failed = append(l.failed, types.NodeKey(toIP, toPort))
}

func (l *recordingListener) messages() []receivedMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]receivedMessage(nil), l.received...)
}

func (l *recordingListener) failures() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.failed...)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.IP = "127.0.0.1"
	cfg.Port = 0
	cfg.DialTimeout = time.Second
	cfg.ReadTimeout = time.Second
	cfg.MaxRetries = 2
	cfg.AckTimeout = 50 * time.Millisecond
	return cfg
}

// freePort 返回一个当前未被占用的端口
func freePort(t *testing.T, network string) int {
	t.Helper()
	switch network {
	case "udp":
		conn, err := net.ListenPacket("udp", "127.0.0.1:0")
		require.NoError(t, err)
		defer conn.Close()
		return conn.LocalAddr().(*net.UDPAddr).Port
	default:
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer ln.Close()
		return ln.Addr().(*net.TCPAddr).Port
	}
}

var searchMessage = protocol.New(protocol.TypeSer, "127.0.0.1", "7100", "1", "0", "Lord of the Rings")

// ============================================================================
//                              MemoryHandler
// ============================================================================

func TestMemoryHandler_Delivers(t *testing.T) {
	network := NewNetwork()
	a := NewMemoryHandler(network, "127.0.0.1", 7100)
	b := NewMemoryHandler(network, "127.0.0.1", 7101)
	require.NoError(t, a.Start(context.Background()))
	require.NoError(t, b.Start(context.Background()))
	defer a.Shutdown()
	defer b.Shutdown()
	assert.Equal(t, 2, network.Size())

	l := &recordingListener{}
	b.RegisterListener(l)

	require.NoError(t, a.SendMessage("127.0.0.1", 7101, searchMessage, false))
	require.Eventually(t, func() bool { return len(l.messages()) == 1 }, time.Second, 5*time.Millisecond)

	got := l.messages()[0]
	assert.Equal(t, "127.0.0.1:7100", got.from)
	assert.True(t, searchMessage.Equal(got.msg))
	assert.NotSame(t, searchMessage, got.msg)
}

func TestMemoryHandler_UnreachableTarget(t *testing.T) {
	network := NewNetwork()
	a := NewMemoryHandler(network, "127.0.0.1", 7100)
	b := NewMemoryHandler(network, "127.0.0.1", 7101)
	require.NoError(t, a.Start(context.Background()))
	require.NoError(t, b.Start(context.Background()))
	defer a.Shutdown()

	l := &recordingListener{}
	a.RegisterListener(l)

	err := a.SendMessage("127.0.0.1", 7199, searchMessage, false)
	assert.ErrorIs(t, err, ErrPeerUnreachable)

	require.NoError(t, b.Shutdown())
	err = a.SendMessage("127.0.0.1", 7101, searchMessage, false)
	assert.ErrorIs(t, err, ErrPeerUnreachable)
	assert.Equal(t, []string{"127.0.0.1:7199", "127.0.0.1:7101"}, l.failures())
}

func TestMemoryHandler_Lifecycle(t *testing.T) {
	network := NewNetwork()
	a := NewMemoryHandler(network, "127.0.0.1", 7100)
	dup := NewMemoryHandler(network, "127.0.0.1", 7100)

	assert.ErrorIs(t, a.SendMessage("127.0.0.1", 7101, searchMessage, false), ErrNotStarted)

	require.NoError(t, a.Start(context.Background()))
	assert.ErrorIs(t, a.Start(context.Background()), ErrAlreadyStarted)
	assert.ErrorIs(t, dup.Start(context.Background()), ErrAddressInUse)

	require.NoError(t, a.Restart(context.Background()))
	require.NoError(t, a.Shutdown())
	require.NoError(t, a.Shutdown())
	assert.Equal(t, 0, network.Size())

	// 地址释放后可以被其他处理器使用
	require.NoError(t, dup.Start(context.Background()))
	require.NoError(t, dup.Shutdown())
}

// ============================================================================
//                              TCPHandler
// ============================================================================

func startTCP(t *testing.T) *TCPHandler {
	t.Helper()
	h := NewTCPHandler(testConfig())
	require.NoError(t, h.Start(context.Background()))
	t.Cleanup(func() { _ = h.Shutdown() })
	return h
}

func TestTCPHandler_DeliversWithListeningAddress(t *testing.T) {
	a := startTCP(t)
	b := startTCP(t)

	l := &recordingListener{}
	b.RegisterListener(l)

	_, bPort := b.Addr()
	require.NoError(t, a.SendMessage("127.0.0.1", bPort, searchMessage, false))
	require.Eventually(t, func() bool { return len(l.messages()) == 1 }, time.Second, 5*time.Millisecond)

	_, aPort := a.Addr()
	got := l.messages()[0]
	assert.Equal(t, types.NodeKey("127.0.0.1", aPort), got.from, "源地址取自封装而不是临时端口")
	assert.True(t, searchMessage.Equal(got.msg))
}

func TestTCPHandler_SendFailureNotifiesListeners(t *testing.T) {
	a := startTCP(t)
	l := &recordingListener{}
	a.RegisterListener(l)

	port := freePort(t, "tcp")
	err := a.SendMessage("127.0.0.1", port, searchMessage, false)
	assert.ErrorIs(t, err, ErrPeerUnreachable)
	assert.Equal(t, []string{types.NodeKey("127.0.0.1", port)}, l.failures())
}

func TestTCPHandler_RebindAfterShutdown(t *testing.T) {
	h := NewTCPHandler(testConfig())
	require.NoError(t, h.Start(context.Background()))
	_, port := h.Addr()

	require.NoError(t, h.Shutdown())
	require.NoError(t, h.Shutdown())

	// 端口立即可以重新绑定
	require.NoError(t, h.Start(context.Background()))
	_, again := h.Addr()
	assert.Equal(t, port, again)

	require.NoError(t, h.Restart(context.Background()))
	require.NoError(t, h.Shutdown())
}

func TestTCPHandler_WaitForReply(t *testing.T) {
	// 对端在同一连接上回复一行裸消息
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	serverPort := ln.Addr().(*net.TCPAddr).Port

	var request string
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		request, _ = bufio.NewReader(conn).ReadString('\n')
		_, _ = conn.Write([]byte("REGOK 1 127.0.0.1 7105\n"))
	}()

	a := startTCP(t)
	l := &recordingListener{}
	a.RegisterListener(l)

	reg := protocol.New(protocol.TypeReg, "127.0.0.1", "7100", "alice")
	require.NoError(t, a.SendMessage("127.0.0.1", serverPort, reg, true))
	<-done

	assert.True(t, strings.HasPrefix(request, "DATA 127.0.0.1 "))
	assert.True(t, strings.HasSuffix(strings.TrimSpace(request), "REG 127.0.0.1 7100 alice"))

	msgs := l.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, types.NodeKey("127.0.0.1", serverPort), msgs[0].from)
	assert.Equal(t, protocol.TypeRegOK, msgs[0].msg.Type)
}

func TestTCPHandler_DropsMalformedLines(t *testing.T) {
	b := startTCP(t)
	l := &recordingListener{}
	b.RegisterListener(l)

	_, port := b.Addr()
	conn, err := net.Dial("tcp", types.NodeKey("127.0.0.1", port))
	require.NoError(t, err)
	_, _ = conn.Write([]byte("BOGUS 1 2 3\n"))
	_ = conn.Close()

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, l.messages())
}

// ============================================================================
//                              UDPHandler
// ============================================================================

func startUDP(t *testing.T) *UDPHandler {
	t.Helper()
	h, err := NewUDPHandler(testConfig())
	require.NoError(t, err)
	require.NoError(t, h.Start(context.Background()))
	t.Cleanup(func() { _ = h.Shutdown() })
	return h
}

func TestUDPHandler_DeliversAndAcks(t *testing.T) {
	a := startUDP(t)
	b := startUDP(t)

	l := &recordingListener{}
	b.RegisterListener(l)

	_, bPort := b.Addr()
	require.NoError(t, a.SendMessage("127.0.0.1", bPort, searchMessage, false))
	require.Eventually(t, func() bool { return len(l.messages()) == 1 }, time.Second, 5*time.Millisecond)

	_, aPort := a.Addr()
	assert.Equal(t, types.NodeKey("127.0.0.1", aPort), l.messages()[0].from)
	assert.True(t, searchMessage.Equal(l.messages()[0].msg))
}

func TestUDPHandler_RetryThenFail(t *testing.T) {
	a := startUDP(t)
	l := &recordingListener{}
	a.RegisterListener(l)

	// 没有人监听的端口永远不会回复 ACK
	port := freePort(t, "udp")
	start := time.Now()
	err := a.SendMessage("127.0.0.1", port, searchMessage, false)
	assert.ErrorIs(t, err, ErrPeerUnreachable)
	assert.GreaterOrEqual(t, time.Since(start), 3*50*time.Millisecond, "初次发送加两次重传")
	assert.Equal(t, []string{types.NodeKey("127.0.0.1", port)}, l.failures())
}

func TestUDPHandler_ShutdownDuringSendDoesNotReportFailure(t *testing.T) {
	cfg := testConfig()
	cfg.AckTimeout = 5 * time.Second
	a, err := NewUDPHandler(cfg)
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	l := &recordingListener{}
	a.RegisterListener(l)

	port := freePort(t, "udp")
	done := make(chan error, 1)
	go func() { done <- a.SendMessage("127.0.0.1", port, searchMessage, false) }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, a.Shutdown())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrHandlerStopped)
		assert.NotErrorIs(t, err, ErrPeerUnreachable)
	case <-time.After(time.Second):
		t.Fatal("关闭后发送仍未返回")
	}
	assert.Empty(t, l.failures(), "本端关闭不应把对端标记为不可达")
}

func TestUDPHandler_RepliesErrorToMalformedPayload(t *testing.T) {
	b := startUDP(t)
	l := &recordingListener{}
	b.RegisterListener(l)
	_, bPort := b.Addr()

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	defer conn.Close()

	env := protocol.Envelope{Kind: protocol.EnvelopeData, SourceIP: "127.0.0.1", SourcePort: 9, Sequence: 42, Payload: "NOPE"}
	_, err = conn.WriteToUDP([]byte(env.Encode()), &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: bPort})
	require.NoError(t, err)

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 1024)
	n, _, err := conn.ReadFromUDP(buf)
	require.NoError(t, err)

	reply, err := protocol.ParseEnvelope(string(buf[:n]))
	require.NoError(t, err)
	assert.Equal(t, protocol.EnvelopeError, reply.Kind)
	assert.Equal(t, uint64(42), reply.Sequence)
	assert.Empty(t, l.messages())
}

func TestUDPHandler_SuppressesDuplicateDelivery(t *testing.T) {
	b := startUDP(t)
	l := &recordingListener{}
	b.RegisterListener(l)
	_, bPort := b.Addr()

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	defer conn.Close()
	target := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: bPort}

	env := protocol.Envelope{
		Kind: protocol.EnvelopeData, SourceIP: "127.0.0.1", SourcePort: 7100, Sequence: 7,
		Payload: protocol.Encode(searchMessage),
	}
	buf := make([]byte, 1024)
	for retry := 0; retry < 2; retry++ {
		env.RetryCount = retry
		_, err = conn.WriteToUDP([]byte(env.Encode()), target)
		require.NoError(t, err)

		// 每次都会回复 ACK
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		n, _, err := conn.ReadFromUDP(buf)
		require.NoError(t, err)
		ack, err := protocol.ParseEnvelope(string(buf[:n]))
		require.NoError(t, err)
		assert.Equal(t, protocol.EnvelopeAck, ack.Kind)
		assert.Equal(t, retry, ack.RetryCount)
	}

	require.Eventually(t, func() bool { return len(l.messages()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, l.messages(), 1)
}

func TestUDPHandler_NotStarted(t *testing.T) {
	h, err := NewUDPHandler(testConfig())
	require.NoError(t, err)
	assert.ErrorIs(t, h.SendMessage("127.0.0.1", 1, searchMessage, false), ErrNotStarted)
	assert.NoError(t, h.Shutdown())
}

// ============================================================================
//                              工厂
// ============================================================================

func TestNewHandler(t *testing.T) {
	h, err := NewHandler(types.HandlerTCP, testConfig(), nil)
	require.NoError(t, err)
	assert.Equal(t, types.HandlerTCP, h.Name())

	h, err = NewHandler(types.HandlerUDP, testConfig(), nil)
	require.NoError(t, err)
	assert.Equal(t, types.HandlerUDP, h.Name())

	h, err = NewHandler(types.HandlerMemory, testConfig(), NewNetwork())
	require.NoError(t, err)
	assert.Equal(t, types.HandlerMemory, h.Name())

	_, err = NewHandler(types.HandlerMemory, testConfig(), nil)
	assert.ErrorIs(t, err, ErrUnknownHandler)

	_, err = NewHandler("sctp", testConfig(), nil)
	assert.ErrorIs(t, err, ErrUnknownHandler)
}
