// Package bootstrap 实现目录服务器
//
// 目录服务器只处理 REG / UNREG / ECHO 三种消息，可运行在任意 NetworkHandler 之上。
// 注册表持久化在存储 KV 的 reg/ 前缀下，重启后保留已注册节点。
package bootstrap

import (
	"errors"

	"github.com/dep2p/go-filesharer/internal/util/logger"
	"github.com/dep2p/go-filesharer/pkg/interfaces"
	"github.com/dep2p/go-filesharer/pkg/protocol"
	"github.com/dep2p/go-filesharer/pkg/types"
)

var log = logger.Logger("bootstrap")

// RegistryPrefix 注册表在 KV 中的前缀
var RegistryPrefix = []byte("reg/")

// Server 目录服务器
type Server struct {
	handler  interfaces.NetworkHandler
	registry *Registry
	cfg      Config
}

var _ interfaces.NetworkHandlerListener = (*Server)(nil)

// NewServer 创建目录服务器并注册为网络处理器监听器
func NewServer(handler interfaces.NetworkHandler, registry *Registry, cfg Config) *Server {
	s := &Server{handler: handler, registry: registry, cfg: cfg}
	handler.RegisterListener(s)
	return s
}

// Registry 注册表
func (s *Server) Registry() *Registry {
	return s.registry
}

// Close 注销监听器
func (s *Server) Close() error {
	s.handler.UnregisterListener(s)
	return nil
}

// OnMessageReceived 处理目录服务器消息
func (s *Server) OnMessageReceived(fromIP string, fromPort int, msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeReg:
		s.handleReg(fromIP, fromPort, msg)
	case protocol.TypeUnreg:
		s.handleUnreg(fromIP, fromPort, msg)
	case protocol.TypeEcho:
		s.reply(fromIP, fromPort, protocol.New(protocol.TypeEchoOK, protocol.ValueSuccess))
	default:
		log.Debug("忽略非目录服务器消息", "from", types.NodeKey(fromIP, fromPort), "type", msg.Type)
	}
}

// OnMessageSendFailed 回复失败只记录日志
func (s *Server) OnMessageSendFailed(toIP string, toPort int, msg *protocol.Message) {
	log.Warn("回复发送失败", "to", types.NodeKey(toIP, toPort), "type", msg.Type)
}

func (s *Server) handleReg(fromIP string, fromPort int, msg *protocol.Message) {
	ip := msg.Field(protocol.RegIP)
	port, err := msg.IntField(protocol.RegPort)
	if err != nil {
		log.Warn("REG 端口非法", "msg", msg.String())
		s.reply(fromIP, fromPort, protocol.New(protocol.TypeRegOK, protocol.RegOKFailed))
		return
	}
	username := msg.Field(protocol.RegUsername)

	peers, err := s.registry.Register(ip, port, username, s.cfg.MaxReturned)
	if err != nil {
		code := protocol.RegOKFailed
		switch {
		case errors.Is(err, ErrAlreadyRegistered):
			code = protocol.RegOKAlreadyRegistered
		case errors.Is(err, ErrAddressOccupied):
			code = protocol.RegOKAlreadyOccupied
		case errors.Is(err, ErrRegistryFull):
			code = protocol.RegOKFull
		default:
			log.Error("注册失败", "node", types.NodeKey(ip, port), "err", err)
		}
		log.Info("拒绝注册", "node", types.NodeKey(ip, port), "username", username, "code", code)
		s.reply(ip, port, protocol.New(protocol.TypeRegOK, code))
		return
	}

	log.Info("节点已注册", "node", types.NodeKey(ip, port), "username", username, "peers", len(peers))
	reply := protocol.New(protocol.TypeRegOK)
	reply.Data = protocol.NodeFields(peers)
	s.reply(ip, port, reply)
}

func (s *Server) handleUnreg(fromIP string, fromPort int, msg *protocol.Message) {
	ip := msg.Field(protocol.RegIP)
	port, err := msg.IntField(protocol.RegPort)
	if err != nil {
		s.reply(fromIP, fromPort, protocol.New(protocol.TypeUnregOK, protocol.ValueError))
		return
	}

	value := protocol.ValueSuccess
	if err := s.registry.Unregister(ip, port, msg.Field(protocol.RegUsername)); err != nil {
		value = protocol.ValueError
		log.Info("注销失败", "node", types.NodeKey(ip, port), "err", err)
	} else {
		log.Info("节点已注销", "node", types.NodeKey(ip, port))
	}
	s.reply(ip, port, protocol.New(protocol.TypeUnregOK, value))
}

func (s *Server) reply(ip string, port int, msg *protocol.Message) {
	if err := s.handler.SendMessage(ip, port, msg, false); err != nil {
		log.Debug("回复失败", "to", types.NodeKey(ip, port), "type", msg.Type, "err", err)
	}
}
