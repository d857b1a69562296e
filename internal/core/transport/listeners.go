package transport

import (
	"sync"

	"github.com/dep2p/go-filesharer/pkg/interfaces"
	"github.com/dep2p/go-filesharer/pkg/protocol"
)

// listenerSet 处理器的监听器列表
type listenerSet struct {
	mu        sync.RWMutex
	listeners []interfaces.NetworkHandlerListener
}

func (s *listenerSet) add(l interfaces.NetworkHandlerListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.listeners {
		if existing == l {
			return
		}
	}
	s.listeners = append(s.listeners, l)
}

func (s *listenerSet) remove(l interfaces.NetworkHandlerListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.listeners {
		if existing == l {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			return
		}
	}
}

func (s *listenerSet) snapshot() []interfaces.NetworkHandlerListener {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]interfaces.NetworkHandlerListener(nil), s.listeners...)
}

// received 每个监听器拿到独立的副本，路由器会原地修改跳数
func (s *listenerSet) received(ip string, port int, msg *protocol.Message) {
	for _, l := range s.snapshot() {
		l.OnMessageReceived(ip, port, msg.Clone())
	}
}

func (s *listenerSet) failed(ip string, port int, msg *protocol.Message) {
	for _, l := range s.snapshot() {
		l.OnMessageSendFailed(ip, port, msg)
	}
}

// decodeLine 解析一行文本：DATA 封装或裸消息
//
// 裸消息没有源地址，env 为 nil 时调用方使用连接的远端地址。
func decodeLine(line string) (env *protocol.Envelope, msg *protocol.Message, err error) {
	if protocol.IsEnvelope(line) {
		env, err = protocol.ParseEnvelope(line)
		if err != nil {
			return nil, nil, err
		}
		msg, err = protocol.Parse(env.Payload)
		return env, msg, err
	}
	msg, err = protocol.Parse(line)
	return nil, msg, err
}
