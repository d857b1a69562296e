package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dep2p/go-filesharer/pkg/interfaces"
	"github.com/dep2p/go-filesharer/pkg/protocol"
	"github.com/dep2p/go-filesharer/pkg/types"
)

// maxDatagramSize UDP 读缓冲
const maxDatagramSize = 64 * 1024

// UDPHandler 带确认与重传的 UDP 网络处理器
//
// 发送方每次写出 DATA 后等待 AckTimeout，未收到同序列号的 ACK 则以
// RetryCount+1 重传，超过 MaxRetries 后视为不可达。接收方对每个 DATA 回复 ACK，
// 用 (源地址, 序列号) 过滤重传造成的重复投递，无法解析的载荷回复 ERROR。
type UDPHandler struct {
	cfg       Config
	listeners listenerSet
	seq       atomic.Uint64
	seen      *lru.Cache[string, struct{}]

	pendingMu sync.Mutex
	pending   map[uint64]chan protocol.EnvelopeKind

	mu      sync.Mutex
	session atomic.Pointer[udpSession]
	port    atomic.Int64
	wg      sync.WaitGroup
	running atomic.Bool
}

// udpSession 一次 Start 到 Shutdown 之间的套接字
type udpSession struct {
	conn   *net.UDPConn
	ctx    context.Context
	cancel context.CancelFunc
}

var _ interfaces.NetworkHandler = (*UDPHandler)(nil)

// NewUDPHandler 创建 UDP 网络处理器
func NewUDPHandler(cfg Config) (*UDPHandler, error) {
	size := cfg.DuplicateCacheSize
	if size <= 0 {
		size = 1024
	}
	seen, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, err
	}

	h := &UDPHandler{
		cfg:     cfg,
		seen:    seen,
		pending: make(map[uint64]chan protocol.EnvelopeKind),
	}
	h.port.Store(int64(cfg.Port))
	h.seq.Store(uint64(time.Now().UnixNano()))
	return h, nil
}

// Name 处理器类型
func (h *UDPHandler) Name() types.NetworkHandlerType {
	return types.HandlerUDP
}

// Addr 实际监听地址
func (h *UDPHandler) Addr() (string, int) {
	return h.cfg.IP, int(h.port.Load())
}

// Start 开始监听
func (h *UDPHandler) Start(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running.Load() {
		return ErrAlreadyStarted
	}

	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(h.cfg.IP, strconv.Itoa(int(h.port.Load()))))
	if err != nil {
		return fmt.Errorf("解析地址失败: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("监听失败: %w", err)
	}
	if local, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		h.port.Store(int64(local.Port))
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.session.Store(&udpSession{conn: conn, ctx: ctx, cancel: cancel})
	h.running.Store(true)

	h.wg.Add(1)
	go h.readLoop(conn)

	log.Info("UDP 处理器已启动", "addr", conn.LocalAddr().String())
	return nil
}

// Shutdown 关闭套接字并等待读循环与派发退出
func (h *UDPHandler) Shutdown() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running.CompareAndSwap(true, false) {
		return nil
	}

	sess := h.session.Swap(nil)
	sess.cancel()
	err := sess.conn.Close()
	h.wg.Wait()

	log.Info("UDP 处理器已停止", "port", h.port.Load())
	return err
}

// Restart 先停止再启动
func (h *UDPHandler) Restart(ctx context.Context) error {
	if err := h.Shutdown(); err != nil {
		log.Debug("重启时关闭套接字出错", "err", err)
	}
	return h.Start(ctx)
}

func (h *UDPHandler) readLoop(conn *net.UDPConn) {
	defer h.wg.Done()
	buf := make([]byte, maxDatagramSize)
	for {
		n, remote, err := conn.ReadFromUDP(buf)
		if err != nil {
			if !h.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			log.Debug("读取数据报失败", "err", err)
			continue
		}
		h.handleDatagram(conn, remote, string(buf[:n]))
	}
}

func (h *UDPHandler) handleDatagram(conn *net.UDPConn, remote *net.UDPAddr, text string) {
	env, err := protocol.ParseEnvelope(text)
	if err != nil {
		log.Warn("丢弃无法解析的数据报", "remote", remote.String(), "err", err)
		return
	}

	switch env.Kind {
	case protocol.EnvelopeAck, protocol.EnvelopeError:
		h.pendingMu.Lock()
		ch, ok := h.pending[env.Sequence]
		h.pendingMu.Unlock()
		if ok {
			select {
			case ch <- env.Kind:
			default:
			}
		}
		return
	}

	msg, err := protocol.Parse(env.Payload)
	if err != nil {
		log.Warn("载荷无法解析，回复 ERROR", "from", types.NodeKey(env.SourceIP, env.SourcePort), "err", err)
		h.writeControl(conn, remote, protocol.EnvelopeError, env)
		return
	}
	h.writeControl(conn, remote, protocol.EnvelopeAck, env)

	key := types.NodeKey(env.SourceIP, env.SourcePort) + "/" + strconv.FormatUint(env.Sequence, 10)
	if dup, _ := h.seen.ContainsOrAdd(key, struct{}{}); dup {
		log.Debug("忽略重复投递", "from", types.NodeKey(env.SourceIP, env.SourcePort), "seq", env.Sequence)
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.listeners.received(env.SourceIP, env.SourcePort, msg)
	}()
}

func (h *UDPHandler) writeControl(conn *net.UDPConn, remote *net.UDPAddr, kind protocol.EnvelopeKind, data *protocol.Envelope) {
	selfIP, selfPort := h.Addr()
	reply := protocol.Envelope{
		Kind:       kind,
		SourceIP:   selfIP,
		SourcePort: selfPort,
		Sequence:   data.Sequence,
		RetryCount: data.RetryCount,
	}
	if _, err := conn.WriteToUDP([]byte(reply.Encode()), remote); err != nil {
		log.Debug("回复控制报文失败", "kind", kind, "remote", remote.String(), "err", err)
	}
}

// SendMessage 发送 DATA 并等待 ACK，必要时重传
//
// UDP 没有请求/响应连接，waitForReply 被忽略，回复作为普通入站消息到达。
func (h *UDPHandler) SendMessage(ip string, port int, msg *protocol.Message, _ bool) error {
	sess := h.session.Load()
	if sess == nil {
		return ErrNotStarted
	}

	err := h.send(sess, ip, port, msg)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrMessageRejected):
		log.Warn("对端拒绝了消息", "to", types.NodeKey(ip, port), "type", msg.Type)
		return err
	case sess.ctx.Err() != nil:
		// 本端关闭，对端状态未知，不通知发送失败
		log.Debug("处理器关闭，放弃发送", "to", types.NodeKey(ip, port), "type", msg.Type)
		return fmt.Errorf("%w: %v", ErrHandlerStopped, err)
	default:
		log.Debug("UDP 发送失败", "to", types.NodeKey(ip, port), "type", msg.Type, "err", err)
		h.listeners.failed(ip, port, msg)
		return fmt.Errorf("%w: %s: %v", ErrPeerUnreachable, types.NodeKey(ip, port), err)
	}
}

func (h *UDPHandler) send(sess *udpSession, ip string, port int, msg *protocol.Message) error {
	remote, err := net.ResolveUDPAddr("udp", types.NodeKey(ip, port))
	if err != nil {
		return err
	}

	seq := h.seq.Add(1)
	ack := make(chan protocol.EnvelopeKind, 1)
	h.pendingMu.Lock()
	h.pending[seq] = ack
	h.pendingMu.Unlock()
	defer func() {
		h.pendingMu.Lock()
		delete(h.pending, seq)
		h.pendingMu.Unlock()
	}()

	selfIP, selfPort := h.Addr()
	env := protocol.Envelope{
		Kind:       protocol.EnvelopeData,
		SourceIP:   selfIP,
		SourcePort: selfPort,
		Sequence:   seq,
		Payload:    protocol.Encode(msg),
	}

	for attempt := 0; attempt <= h.cfg.MaxRetries; attempt++ {
		env.RetryCount = attempt
		if _, err := sess.conn.WriteToUDP([]byte(env.Encode()), remote); err != nil {
			return err
		}

		timer := time.NewTimer(h.cfg.AckTimeout)
		select {
		case kind := <-ack:
			timer.Stop()
			if kind == protocol.EnvelopeError {
				return ErrMessageRejected
			}
			return nil
		case <-sess.ctx.Done():
			timer.Stop()
			return sess.ctx.Err()
		case <-timer.C:
			log.Debug("等待 ACK 超时", "to", types.NodeKey(ip, port), "seq", seq, "attempt", attempt)
		}
	}
	return fmt.Errorf("no ack after %d attempts", h.cfg.MaxRetries+1)
}

// RegisterListener 注册监听器
func (h *UDPHandler) RegisterListener(l interfaces.NetworkHandlerListener) {
	h.listeners.add(l)
}

// UnregisterListener 注销监听器
func (h *UDPHandler) UnregisterListener(l interfaces.NetworkHandlerListener) {
	h.listeners.remove(l)
}
