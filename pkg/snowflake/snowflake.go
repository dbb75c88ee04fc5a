// Package snowflake generates time-ordered 63-bit ids. They order messages
// within a group and identify realtime events.
package snowflake

import (
	"errors"
	"strconv"
	"sync"
	"time"
)

const (
	nodeBits        = 10
	stepBits        = 12
	nodeMax         = -1 ^ (-1 << nodeBits)
	stepMask        = -1 ^ (-1 << stepBits)
	timeShift       = nodeBits + stepBits
	nodeShift       = stepBits
	epoch     int64 = 1704067200000 // 2024-01-01 00:00:00 UTC
)

var ErrNodeRange = errors.New("node number must be between 0 and 1023")

type Node struct {
	mu   sync.Mutex
	time int64
	node int64
	step int64
}

func NewNode(node int64) (*Node, error) {
	if node < 0 || node > nodeMax {
		return nil, ErrNodeRange
	}
	return &Node{node: node}, nil
}

// Generate returns the next id. Ids from one node strictly increase; when
// the clock moves backwards the node keeps using its last timestamp.
func (n *Node) Generate() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := time.Now().UnixMilli()
	if now < n.time {
		now = n.time
	}

	if n.time == now {
		n.step = (n.step + 1) & stepMask
		if n.step == 0 {
			for now <= n.time {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		n.step = 0
	}
	n.time = now

	return ((now - epoch) << timeShift) | (n.node << nodeShift) | n.step
}

// GenerateString is Generate formatted in base 10.
func (n *Node) GenerateString() string {
	return strconv.FormatInt(n.Generate(), 10)
}

// Time extracts the millisecond timestamp an id was generated at.
func Time(id int64) time.Time {
	return time.UnixMilli((id >> timeShift) + epoch)
}

// NodeOf extracts the node number of an id.
func NodeOf(id int64) int64 {
	return (id >> nodeShift) & nodeMax
}
