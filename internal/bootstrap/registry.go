package bootstrap

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/dep2p/go-filesharer/internal/core/storage"
	"github.com/dep2p/go-filesharer/pkg/types"
)

// Entry 注册表条目
type Entry struct {
	ID           string    `json:"id"`
	IP           string    `json:"ip"`
	Port         int       `json:"port"`
	Username     string    `json:"username"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Node 条目对应的节点
func (e *Entry) Node() *types.Node {
	return types.NewNode(e.IP, e.Port)
}

// Registry 持久化的节点注册表
//
// 以 ip:port 为键存放在 KV 中；检查与写入在同一把锁内完成。
type Registry struct {
	store    *storage.KVStore
	clock    clock.Clock
	maxNodes int

	mu sync.Mutex
}

// NewRegistry 创建注册表，maxNodes 不大于 0 表示不限
func NewRegistry(store *storage.KVStore, maxNodes int, clk clock.Clock) *Registry {
	if clk == nil {
		clk = clock.New()
	}
	return &Registry{store: store, clock: clk, maxNodes: maxNodes}
}

// Register 登记节点，成功时返回最多 limit 个随机的其他节点
func (r *Registry) Register(ip string, port int, username string, limit int) ([]*types.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := []byte(types.NodeKey(ip, port))
	var existing Entry
	err := r.store.GetJSON(key, &existing)
	switch {
	case err == nil:
		if existing.Username == username {
			return nil, ErrAlreadyRegistered
		}
		return nil, ErrAddressOccupied
	case !storage.IsNotFound(err):
		return nil, fmt.Errorf("read registry: %w", err)
	}

	entries, err := r.entriesLocked()
	if err != nil {
		return nil, err
	}
	if r.maxNodes > 0 && len(entries) >= r.maxNodes {
		return nil, ErrRegistryFull
	}

	entry := Entry{
		ID:           uuid.NewString(),
		IP:           ip,
		Port:         port,
		Username:     username,
		RegisteredAt: r.clock.Now(),
	}
	if err := r.store.PutJSON(key, &entry); err != nil {
		return nil, fmt.Errorf("write registry: %w", err)
	}

	rand.Shuffle(len(entries), func(i, j int) { entries[i], entries[j] = entries[j], entries[i] })
	if limit >= 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	peers := make([]*types.Node, 0, len(entries))
	for i := range entries {
		peers = append(peers, entries[i].Node())
	}
	return peers, nil
}

// Unregister 注销节点，用户名必须与注册时一致
func (r *Registry) Unregister(ip string, port int, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := []byte(types.NodeKey(ip, port))
	var existing Entry
	if err := r.store.GetJSON(key, &existing); err != nil {
		if storage.IsNotFound(err) {
			return ErrNotRegistered
		}
		return fmt.Errorf("read registry: %w", err)
	}
	if existing.Username != username {
		return ErrNotRegistered
	}
	return r.store.Delete(key)
}

// Entries 按地址排序的全部条目
func (r *Registry) Entries() ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entriesLocked()
}

// Len 已注册节点数
func (r *Registry) Len() (int, error) {
	return r.store.Count(nil)
}

// Clear 清空注册表
func (r *Registry) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.DeletePrefix(nil)
}

func (r *Registry) entriesLocked() ([]Entry, error) {
	var (
		entries []Entry
		decErr  error
	)
	err := r.store.PrefixScan(nil, func(key, value []byte) bool {
		var e Entry
		if decErr = json.Unmarshal(value, &e); decErr != nil {
			decErr = fmt.Errorf("decode entry %s: %w", key, decErr)
			return false
		}
		entries = append(entries, e)
		return true
	})
	if err != nil {
		return nil, err
	}
	return entries, decErr
}
