package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dep2p/go-filesharer/pkg/interfaces"
	"github.com/dep2p/go-filesharer/pkg/protocol"
	"github.com/dep2p/go-filesharer/pkg/types"
)

// TCPHandler 基于 TCP 的网络处理器
//
// 每条消息使用一个新连接，写入一行 DATA 封装后关闭写端。
type TCPHandler struct {
	cfg       Config
	listeners listenerSet
	seq       atomic.Uint64

	mu      sync.Mutex
	ln      net.Listener
	port    atomic.Int64
	wg      sync.WaitGroup
	running atomic.Bool

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}
}

var _ interfaces.NetworkHandler = (*TCPHandler)(nil)

// NewTCPHandler 创建 TCP 网络处理器
func NewTCPHandler(cfg Config) *TCPHandler {
	h := &TCPHandler{
		cfg:   cfg,
		conns: make(map[net.Conn]struct{}),
	}
	h.port.Store(int64(cfg.Port))
	h.seq.Store(uint64(time.Now().UnixNano()))
	return h
}

// Name 处理器类型
func (h *TCPHandler) Name() types.NetworkHandlerType {
	return types.HandlerTCP
}

// Addr 实际监听地址
func (h *TCPHandler) Addr() (string, int) {
	return h.cfg.IP, int(h.port.Load())
}

// Start 开始监听
func (h *TCPHandler) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running.Load() {
		return ErrAlreadyStarted
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(h.cfg.IP, strconv.Itoa(int(h.port.Load()))))
	if err != nil {
		return fmt.Errorf("监听失败: %w", err)
	}
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		h.port.Store(int64(addr.Port))
	}

	h.ln = ln
	h.running.Store(true)

	h.wg.Add(1)
	go h.acceptLoop(ln)

	log.Info("TCP 处理器已启动", "addr", ln.Addr().String())
	return nil
}

// Shutdown 关闭监听器与进行中的连接，等待所有后台 goroutine 退出
func (h *TCPHandler) Shutdown() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running.CompareAndSwap(true, false) {
		return nil
	}

	err := h.ln.Close()

	h.connsMu.Lock()
	for c := range h.conns {
		_ = c.Close()
	}
	h.connsMu.Unlock()

	h.wg.Wait()
	h.ln = nil
	log.Info("TCP 处理器已停止", "port", h.port.Load())
	return err
}

// Restart 先停止再启动
func (h *TCPHandler) Restart(ctx context.Context) error {
	if err := h.Shutdown(); err != nil {
		log.Debug("重启时关闭监听器出错", "err", err)
	}
	return h.Start(ctx)
}

func (h *TCPHandler) acceptLoop(ln net.Listener) {
	defer h.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if !h.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			log.Debug("接受连接失败", "err", err)
			continue
		}

		h.track(conn, true)
		h.wg.Add(1)
		go h.serve(conn)
	}
}

func (h *TCPHandler) track(c net.Conn, add bool) {
	h.connsMu.Lock()
	defer h.connsMu.Unlock()
	if add {
		h.conns[c] = struct{}{}
	} else {
		delete(h.conns, c)
	}
}

// serve 读取一行消息并派发
func (h *TCPHandler) serve(conn net.Conn) {
	defer h.wg.Done()
	defer h.track(conn, false)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		log.Debug("读取消息失败", "remote", conn.RemoteAddr().String(), "err", err)
		return
	}
	line = strings.TrimRight(line, "\r\n")

	env, msg, err := decodeLine(line)
	if err != nil {
		log.Warn("丢弃无法解析的消息", "remote", conn.RemoteAddr().String(), "err", err)
		return
	}

	fromIP, fromPort := remoteAddr(conn)
	if env != nil {
		fromIP, fromPort = env.SourceIP, env.SourcePort
	}
	h.listeners.received(fromIP, fromPort, msg)
}

// SendMessage 建连、写入一行 DATA 封装
//
// waitForReply 为 true 时在同一连接上读取一行回复（对端未回复而直接关闭视为无回复）。
func (h *TCPHandler) SendMessage(ip string, port int, msg *protocol.Message, waitForReply bool) error {
	if err := h.send(ip, port, msg, waitForReply); err != nil {
		log.Debug("TCP 发送失败", "to", types.NodeKey(ip, port), "type", msg.Type, "err", err)
		h.listeners.failed(ip, port, msg)
		return fmt.Errorf("%w: %s: %v", ErrPeerUnreachable, types.NodeKey(ip, port), err)
	}
	return nil
}

func (h *TCPHandler) send(ip string, port int, msg *protocol.Message, waitForReply bool) error {
	conn, err := net.DialTimeout("tcp", types.NodeKey(ip, port), h.cfg.DialTimeout)
	if err != nil {
		return err
	}
	defer conn.Close()

	selfIP, selfPort := h.Addr()
	env := protocol.Envelope{
		Kind:       protocol.EnvelopeData,
		SourceIP:   selfIP,
		SourcePort: selfPort,
		Sequence:   h.seq.Add(1),
		Payload:    protocol.Encode(msg),
	}
	_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.DialTimeout))
	if _, err := io.WriteString(conn, env.Encode()+"\n"); err != nil {
		return err
	}
	if !waitForReply {
		return nil
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.CloseWrite()
	}
	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return nil
	}

	replyEnv, reply, err := decodeLine(line)
	if err != nil {
		log.Warn("丢弃无法解析的回复", "from", types.NodeKey(ip, port), "err", err)
		return nil
	}
	fromIP, fromPort := ip, port
	if replyEnv != nil {
		fromIP, fromPort = replyEnv.SourceIP, replyEnv.SourcePort
	}
	h.listeners.received(fromIP, fromPort, reply)
	return nil
}

// RegisterListener 注册监听器
func (h *TCPHandler) RegisterListener(l interfaces.NetworkHandlerListener) {
	h.listeners.add(l)
}

// UnregisterListener 注销监听器
func (h *TCPHandler) UnregisterListener(l interfaces.NetworkHandlerListener) {
	h.listeners.remove(l)
}

func remoteAddr(conn net.Conn) (string, int) {
	if addr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		return addr.IP.String(), addr.Port
	}
	return "", 0
}
