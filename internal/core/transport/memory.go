package transport

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dep2p/go-filesharer/internal/util/logger"
	"github.com/dep2p/go-filesharer/pkg/interfaces"
	"github.com/dep2p/go-filesharer/pkg/protocol"
	"github.com/dep2p/go-filesharer/pkg/types"
)

var log = logger.Logger("transport")

// ============================================================================
//                              Network
// ============================================================================

// Network 进程内网络，按 ip:port 注册 MemoryHandler
type Network struct {
	mu       sync.RWMutex
	handlers map[string]*MemoryHandler
}

// NewNetwork 创建进程内网络
func NewNetwork() *Network {
	return &Network{handlers: make(map[string]*MemoryHandler)}
}

func (n *Network) attach(h *MemoryHandler) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	key := h.self.Key()
	if existing, ok := n.handlers[key]; ok && existing != h {
		return ErrAddressInUse
	}
	n.handlers[key] = h
	return nil
}

func (n *Network) detach(h *MemoryHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.handlers[h.self.Key()] == h {
		delete(n.handlers, h.self.Key())
	}
}

func (n *Network) lookup(ip string, port int) *MemoryHandler {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.handlers[types.NodeKey(ip, port)]
}

// Size 已注册的处理器数量
func (n *Network) Size() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.handlers)
}

// ============================================================================
//                              MemoryHandler
// ============================================================================

// MemoryHandler 进程内网络处理器
type MemoryHandler struct {
	network   *Network
	self      *types.Node
	listeners listenerSet

	mu       sync.RWMutex
	running  atomic.Bool
	inflight sync.WaitGroup
}

var _ interfaces.NetworkHandler = (*MemoryHandler)(nil)

// NewMemoryHandler 创建进程内网络处理器
func NewMemoryHandler(network *Network, ip string, port int) *MemoryHandler {
	return &MemoryHandler{
		network: network,
		self:    types.NewNode(ip, port),
	}
}

// Name 处理器类型
func (h *MemoryHandler) Name() types.NetworkHandlerType {
	return types.HandlerMemory
}

// Start 加入进程内网络
func (h *MemoryHandler) Start(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running.Load() {
		return ErrAlreadyStarted
	}
	if err := h.network.attach(h); err != nil {
		return err
	}
	h.running.Store(true)
	log.Debug("内存处理器已启动", "addr", h.self.Key())
	return nil
}

// Shutdown 离开进程内网络并等待投递中的消息处理完毕
func (h *MemoryHandler) Shutdown() error {
	h.mu.Lock()
	if !h.running.Load() {
		h.mu.Unlock()
		return nil
	}
	h.running.Store(false)
	h.network.detach(h)
	h.mu.Unlock()

	h.inflight.Wait()
	log.Debug("内存处理器已停止", "addr", h.self.Key())
	return nil
}

// Restart 重新加入进程内网络
func (h *MemoryHandler) Restart(ctx context.Context) error {
	if err := h.Shutdown(); err != nil {
		return err
	}
	return h.Start(ctx)
}

// SendMessage 将消息编码后异步投递给目标
func (h *MemoryHandler) SendMessage(ip string, port int, msg *protocol.Message, _ bool) error {
	if !h.running.Load() {
		return ErrNotStarted
	}
	target := h.network.lookup(ip, port)
	if target == nil || !target.deliver(h.self.IP, h.self.Port, protocol.Encode(msg)) {
		log.Debug("内存网络中目标不可达", "to", types.NodeKey(ip, port), "type", msg.Type)
		h.listeners.failed(ip, port, msg)
		return ErrPeerUnreachable
	}
	return nil
}

// deliver 在独立 goroutine 中解析并派发，目标未运行时返回 false
func (h *MemoryHandler) deliver(fromIP string, fromPort int, line string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.running.Load() {
		return false
	}

	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		msg, err := protocol.Parse(line)
		if err != nil {
			log.Warn("丢弃无法解析的消息", "from", types.NodeKey(fromIP, fromPort), "err", err)
			return
		}
		h.listeners.received(fromIP, fromPort, msg)
	}()
	return true
}

// RegisterListener 注册监听器
func (h *MemoryHandler) RegisterListener(l interfaces.NetworkHandlerListener) {
	h.listeners.add(l)
}

// UnregisterListener 注销监听器
func (h *MemoryHandler) UnregisterListener(l interfaces.NetworkHandlerListener) {
	h.listeners.remove(l)
}
