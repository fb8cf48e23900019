package worker

import (
	"slices"
	"sync"

	"standings/pkg/consumer"
)

// offsetTracker holds back a partition's commit until every earlier message
// of that partition has been flushed, whichever worker flushed it
type offsetTracker struct {
	mu     sync.Mutex
	next   uint64
	queues map[int][]*trackedMessage
	bySeq  map[uint64]*trackedMessage
}

type trackedMessage struct {
	seq  uint64
	msg  consumer.Message
	done bool
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{
		queues: make(map[int][]*trackedMessage),
		bySeq:  make(map[uint64]*trackedMessage),
	}
}

// track registers a message in consumption order and returns its sequence
func (t *offsetTracker) track(msg consumer.Message) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.next++
	m := &trackedMessage{seq: t.next, msg: msg}
	t.queues[msg.Partition] = append(t.queues[msg.Partition], m)
	t.bySeq[m.seq] = m
	return m.seq
}

// done marks sequences as flushed and returns, per partition, the last message
// of the flushed prefix. Partitions whose oldest message is still pending
// return nothing.
func (t *offsetTracker) done(seqs ...uint64) []consumer.Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	var touched []int
	for _, seq := range seqs {
		m, ok := t.bySeq[seq]
		if !ok {
			continue
		}
		m.done = true
		if !slices.Contains(touched, m.msg.Partition) {
			touched = append(touched, m.msg.Partition)
		}
	}
	slices.Sort(touched)

	var out []consumer.Message
	for _, partition := range touched {
		q := t.queues[partition]
		n := 0
		for n < len(q) && q[n].done {
			delete(t.bySeq, q[n].seq)
			n++
		}
		if n == 0 {
			continue
		}
		out = append(out, q[n-1].msg)
		if n == len(q) {
			delete(t.queues, partition)
		} else {
			t.queues[partition] = q[n:]
		}
	}
	return out
}

// pending returns how many tracked messages are not yet committable
func (t *offsetTracker) pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.bySeq)
}
