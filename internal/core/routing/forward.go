package routing

import (
	"encoding/binary"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spaolacci/murmur3"

	"github.com/dep2p/go-filesharer/pkg/protocol"
	"github.com/dep2p/go-filesharer/pkg/types"
)

// forwardCache 记录已经发给某个邻居的搜索消息
//
// 键由消息身份（类型、源地址、序列号、跳数、查询）与目标节点共同决定，
// 只抑制完全相同的重复转发，不同跳数的副本仍会继续传播。
type forwardCache struct {
	seen *lru.Cache[uint64, struct{}]
}

func newForwardCache(size int) (*forwardCache, error) {
	if size <= 0 {
		return &forwardCache{}, nil
	}
	seen, err := lru.New[uint64, struct{}](size)
	if err != nil {
		return nil, err
	}
	return &forwardCache{seen: seen}, nil
}

// filter 返回尚未收到过该消息的目标，并记录它们
func (c *forwardCache) filter(msg *protocol.Message, targets []*types.Node) []*types.Node {
	if c.seen == nil {
		return targets
	}
	out := targets[:0:0]
	for _, n := range targets {
		if seen, _ := c.seen.ContainsOrAdd(forwardKey(msg, n), struct{}{}); !seen {
			out = append(out, n)
		}
	}
	return out
}

func (c *forwardCache) len() int {
	if c.seen == nil {
		return 0
	}
	return c.seen.Len()
}

func forwardKey(msg *protocol.Message, target *types.Node) uint64 {
	h := murmur3.New64()
	var code [8]byte
	binary.BigEndian.PutUint64(code[:], uint64(msg.Type))
	_, _ = h.Write(code[:])
	for _, f := range msg.Data {
		_, _ = h.Write([]byte(f))
		_, _ = h.Write([]byte{0})
	}
	_, _ = h.Write([]byte(target.Key()))
	return h.Sum64()
}
