package worker

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"standings/pkg/consumer"
)

func TestOffsetTrackerCommitsFlushedPrefix(t *testing.T) {
	tr := newOffsetTracker()
	a := tr.track(consumer.Message{Partition: 0, Offset: 10})
	b := tr.track(consumer.Message{Partition: 0, Offset: 11})
	c := tr.track(consumer.Message{Partition: 1, Offset: 3})

	assert.Equal(t, []consumer.Message{{Partition: 1, Offset: 3}}, tr.done(b, c))
	assert.Equal(t, 2, tr.pending())

	assert.Equal(t, []consumer.Message{{Partition: 0, Offset: 11}}, tr.done(a))
	assert.Equal(t, 0, tr.pending())
	assert.Empty(t, tr.done(a))
}

func TestOffsetTrackerProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("nothing is committed past an unflushed message", prop.ForAll(
		func(count, held int) bool {
			held %= count
			tr := newOffsetTracker()
			seqs := make([]uint64, count)
			for i := range seqs {
				seqs[i] = tr.track(consumer.Message{Offset: int64(i)})
			}

			var flushed []uint64
			for i, seq := range seqs {
				if i != held {
					flushed = append(flushed, seq)
				}
			}
			out := tr.done(flushed...)
			if held == 0 && len(out) != 0 {
				return false
			}
			if held > 0 && (len(out) != 1 || out[0].Offset != int64(held-1)) {
				return false
			}

			out = tr.done(seqs[held])
			return len(out) == 1 && out[0].Offset == int64(count-1) && tr.pending() == 0
		},
		gen.IntRange(1, 200),
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
