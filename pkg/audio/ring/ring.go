// Package ring provides the lock-free single-producer/single-consumer sample
// queue that carries captured audio from the driver callback to the turn
// engine.
//
// The producer side ([Ring.Push], [Ring.PushBlock]) is safe to call from a
// real-time audio thread: it never blocks, never allocates and never takes a
// lock. The consumer side ([Ring.Drain], [Ring.DrainInto], [Ring.Clear]) must
// only be used from one goroutine at a time.
package ring

import (
	"sync/atomic"
	"time"
)

// DefaultLatency is how much audio the queue is sized to absorb while the
// consumer is busy.
const DefaultLatency = 7 * time.Second

// Capacity returns the number of samples needed to hold latency worth of
// interleaved audio at the given format, doubled for headroom.
func Capacity(latency time.Duration, sampleRate, channels int) int {
	n := int(latency.Milliseconds()) * sampleRate / 1000 * channels * 2
	return max(n, 1)
}

// Ring is a bounded SPSC queue of float32 samples. On overflow the newest
// sample is rejected so the queue never reorders or corrupts what it holds.
type Ring struct {
	buf  []float32
	size uint64

	// head is the next slot to read, owned by the consumer.
	// tail is the next slot to write, owned by the producer.
	head atomic.Uint64
	tail atomic.Uint64

	dropped atomic.Uint64
}

// New returns a ring holding up to capacity samples.
func New(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]float32, capacity), size: uint64(capacity)}
}

// Cap returns the capacity in samples.
func (r *Ring) Cap() int { return len(r.buf) }

// Len returns the number of samples currently queued.
func (r *Ring) Len() int {
	return int(r.tail.Load() - r.head.Load())
}

// Dropped returns the total number of samples rejected because the queue was
// full.
func (r *Ring) Dropped() uint64 { return r.dropped.Load() }

// Push appends s. It returns false, and leaves the queue unchanged, when the
// queue is full.
func (r *Ring) Push(s float32) bool {
	tail := r.tail.Load()
	if tail-r.head.Load() >= r.size {
		r.dropped.Add(1)
		return false
	}
	r.buf[tail%r.size] = s
	r.tail.Store(tail + 1)
	return true
}

// PushBlock appends every sample of block that fits and returns how many were
// dropped. The tail index is published once for the whole block.
func (r *Ring) PushBlock(block []float32) (dropped int) {
	tail := r.tail.Load()
	free := r.size - (tail - r.head.Load())
	n := uint64(len(block))
	if n > free {
		dropped = int(n - free)
		n = free
		r.dropped.Add(uint64(dropped))
	}
	for i := range n {
		r.buf[(tail+i)%r.size] = block[i]
	}
	r.tail.Store(tail + n)
	return dropped
}

// Drain removes and returns every queued sample in push order. It never
// blocks; an empty queue yields an empty, non-nil slice.
func (r *Ring) Drain() []float32 {
	return r.DrainInto(make([]float32, 0, r.Len()))
}

// DrainInto appends every queued sample to dst and returns the extended slice.
func (r *Ring) DrainInto(dst []float32) []float32 {
	head := r.head.Load()
	tail := r.tail.Load()
	for i := head; i != tail; i++ {
		dst = append(dst, r.buf[i%r.size])
	}
	r.head.Store(tail)
	return dst
}

// Clear discards every queued sample. Consumer side only.
func (r *Ring) Clear() {
	r.head.Store(r.tail.Load())
}
