// Package query 发起资源搜索并汇总回复
//
// 每个查询字符串对应一条记录，重复查询同一字符串会以新序列号替换旧记录，
// 旧序列号的迟到回复随之被丢弃。记录不会自动过期，由调用方 ClearQueryResults。
package query

import (
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-filesharer/internal/core/metrics"
	"github.com/dep2p/go-filesharer/internal/core/routing"
	"github.com/dep2p/go-filesharer/internal/util/logger"
	"github.com/dep2p/go-filesharer/pkg/interfaces"
	"github.com/dep2p/go-filesharer/pkg/protocol"
	"github.com/dep2p/go-filesharer/pkg/types"
)

var log = logger.Logger("query")

// entry 一次进行中的查询
type entry struct {
	sequence  uint64
	results   map[string]*types.AggregatedResource
	createdAt time.Time
}

// Manager 查询管理器
type Manager struct {
	router *routing.Router
	clock  clock.Clock

	sequence atomic.Uint64

	mu      sync.RWMutex
	queries map[string]*entry
	// bySeq 序列号到查询字符串
	bySeq map[uint64]string

	closed atomic.Bool
}

var _ interfaces.RouterListener = (*Manager)(nil)

// NewManager 创建查询管理器并注册为路由器监听器
func NewManager(router *routing.Router) *Manager {
	m := &Manager{
		router:  router,
		clock:   clock.New(),
		queries: make(map[string]*entry),
		bySeq:   make(map[uint64]string),
	}
	router.RegisterListener(m)
	return m
}

// Query 发起搜索，结果通过 QueryResults 读取
func (m *Manager) Query(name string) error {
	if name == "" {
		return ErrEmptyQuery
	}
	if m.closed.Load() {
		return ErrManagerClosed
	}

	seq := m.sequence.Add(1)
	m.mu.Lock()
	if old, ok := m.queries[name]; ok {
		delete(m.bySeq, old.sequence)
	}
	m.queries[name] = &entry{
		sequence:  seq,
		results:   make(map[string]*types.AggregatedResource),
		createdAt: m.clock.Now(),
	}
	m.bySeq[seq] = name
	m.mu.Unlock()

	self := m.router.Self()
	msg := protocol.New(protocol.TypeSer,
		self.IP, strconv.Itoa(self.Port),
		strconv.FormatUint(seq, 10),
		strconv.Itoa(protocol.InitialHopCount),
		name)

	metrics.RecordQuery(self.Key())
	log.Info("发起搜索", "query", name, "seq", seq)
	return m.router.Route(msg)
}

// OnMessageReceived 合并与进行中查询匹配的 SEROK
func (m *Manager) OnMessageReceived(_ *types.Node, msg *protocol.Message) {
	if msg.Type != protocol.TypeSerOK || m.closed.Load() {
		return
	}

	count, err := msg.IntField(protocol.SerOKCount)
	if err != nil || count <= 0 || msg.Field(protocol.SerOKIP) == protocol.NotFoundIP {
		log.Debug("一条搜索路径未命中", "seq", msg.Field(protocol.SerOKSequenceNumber))
		return
	}
	seq, err := strconv.ParseUint(msg.Field(protocol.SerOKSequenceNumber), 10, 64)
	if err != nil {
		log.Warn("丢弃序列号非法的 SEROK", "msg", msg.String())
		return
	}
	port, err := msg.IntField(protocol.SerOKPort)
	if err != nil {
		log.Warn("丢弃端口非法的 SEROK", "msg", msg.String())
		return
	}
	owner := types.NewNode(msg.Field(protocol.SerOKIP), port)
	names := msg.FieldsFrom(protocol.SerOKNamesStart)

	m.mu.Lock()
	defer m.mu.Unlock()

	query, ok := m.bySeq[seq]
	if !ok {
		log.Debug("忽略未知序列号的 SEROK", "seq", seq)
		return
	}
	e := m.queries[query]
	for _, name := range names {
		r, ok := e.results[name]
		if !ok {
			r = types.NewAggregatedResource(name)
			e.results[name] = r
		}
		r.AddNode(owner)
	}
	log.Debug("收到搜索结果", "query", query, "from", owner.String(), "hops", msg.Field(protocol.SerOKHopCount), "names", len(names))
}

// QueryResults 返回查询结果副本，按资源名排序；未知查询返回 nil
func (m *Manager) QueryResults(name string) []types.AggregatedResource {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.queries[name]
	if !ok {
		return nil
	}
	out := make([]types.AggregatedResource, 0, len(e.results))
	for _, r := range e.results {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// QueryAge 查询发起至今的时长
func (m *Manager) QueryAge(name string) (time.Duration, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.queries[name]
	if !ok {
		return 0, false
	}
	return m.clock.Since(e.createdAt), true
}

// RunningQueryStrings 所有记录中的查询字符串，已排序
func (m *Manager) RunningQueryStrings() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.queries))
	for q := range m.queries {
		out = append(out, q)
	}
	sort.Strings(out)
	return out
}

// ClearQueryResults 清除所有查询记录
func (m *Manager) ClearQueryResults() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = make(map[string]*entry)
	m.bySeq = make(map[uint64]string)
}

// Close 注销监听器，之后的 Query 返回 ErrManagerClosed
func (m *Manager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	m.router.UnregisterListener(m)
	return nil
}
