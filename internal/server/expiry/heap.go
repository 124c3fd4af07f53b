package expiry

import (
	"container/heap"
	"time"
)

type deadline struct {
	messageID string
	at        time.Time
	index     int
}

// deadlines is a min-heap ordered by at.
type deadlines []*deadline

var _ heap.Interface = (*deadlines)(nil)

func (d deadlines) Len() int { return len(d) }

func (d deadlines) Less(i, j int) bool {
	if d[i].at.Equal(d[j].at) {
		return d[i].messageID < d[j].messageID
	}
	return d[i].at.Before(d[j].at)
}

func (d deadlines) Swap(i, j int) {
	d[i], d[j] = d[j], d[i]
	d[i].index = i
	d[j].index = j
}

func (d *deadlines) Push(x any) {
	it := x.(*deadline)
	it.index = len(*d)
	*d = append(*d, it)
}

func (d *deadlines) Pop() any {
	old := *d
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*d = old[:n-1]
	return it
}
