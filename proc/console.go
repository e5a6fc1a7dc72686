package proc

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/valyala/bytebufferpool"
	"golang.org/x/time/rate"
)

const (
	DefaultConsoleThreshold = 1500
	DefaultConsoleDebounce  = 2 * time.Second
	DefaultConsoleChunk     = 1900
)

// ConsoleSink delivers one formatted console block to the chat platform.
type ConsoleSink interface {
	SendConsole(ctx context.Context, block string) error
}

type ConsoleSinkFunc func(ctx context.Context, block string) error

func (f ConsoleSinkFunc) SendConsole(ctx context.Context, block string) error { return f(ctx, block) }

type RelayConfig struct {
	Sink       ConsoleSink
	Clock      Clock
	Threshold  int
	Debounce   time.Duration
	ChunkRunes int
	// Limiter paces sink calls. Defaults to five messages per five seconds.
	Limiter *rate.Limiter
	Metrics *Metrics
	OnError func(err error)
}

// ConsoleRelay batches server output and forwards it in order.
type ConsoleRelay struct {
	cfg RelayConfig

	mu      sync.Mutex
	buf     *bytebufferpool.ByteBuffer
	timer   Timer
	epoch   uint64
	pending []string
	wake    chan struct{}

	// sendMu keeps Run and Drain from interleaving blocks.
	sendMu sync.Mutex

	subMu   sync.Mutex
	subs    map[int]chan string
	nextSub int
}

func NewConsoleRelay(cfg RelayConfig) *ConsoleRelay {
	if cfg.Clock == nil {
		cfg.Clock = RealClock()
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultConsoleThreshold
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultConsoleDebounce
	}
	if cfg.ChunkRunes <= 0 {
		cfg.ChunkRunes = DefaultConsoleChunk
	}
	if cfg.Limiter == nil {
		cfg.Limiter = rate.NewLimiter(rate.Every(time.Second), 5)
	}
	return &ConsoleRelay{
		cfg:  cfg,
		wake: make(chan struct{}, 1),
		subs: make(map[int]chan string),
	}
}

// Write buffers one piece of output. It never blocks on the sink.
func (r *ConsoleRelay) Write(stream Stream, text string) {
	if stream == StreamStderr {
		text = "[ERROR] " + text
	}
	r.cfg.Metrics.consoleIn(len(text))
	r.publish(text)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.buf == nil {
		r.buf = bytebufferpool.Get()
	}
	_, _ = r.buf.WriteString(text)

	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.epoch++

	if r.buf.Len() > r.cfg.Threshold {
		r.flushLocked()
		return
	}

	epoch := r.epoch
	r.timer = r.cfg.Clock.AfterFunc(r.cfg.Debounce, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.epoch == epoch {
			r.timer = nil
			r.flushLocked()
		}
	})
}

// Flush queues whatever is buffered right away.
func (r *ConsoleRelay) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.epoch++
	r.flushLocked()
}

func (r *ConsoleRelay) flushLocked() {
	if r.buf == nil {
		return
	}
	text := r.buf.String()
	bytebufferpool.Put(r.buf)
	r.buf = nil
	if text == "" {
		return
	}

	for _, chunk := range SplitChunks(escapeFences(text), r.cfg.ChunkRunes) {
		r.pending = append(r.pending, FormatConsoleBlock(chunk))
	}
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run drains queued blocks to the sink until ctx is done.
func (r *ConsoleRelay) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.wake:
		}
		if err := r.sendPending(ctx); err != nil {
			return
		}
	}
}

// Drain queues the buffer and delivers everything still pending, giving up
// when ctx ends. Use it once Run has been cancelled.
func (r *ConsoleRelay) Drain(ctx context.Context) error {
	r.Flush()
	return r.sendPending(ctx)
}

// sendPending empties the queue. Blocks left when ctx ends go back to the
// head of the queue.
func (r *ConsoleRelay) sendPending(ctx context.Context) error {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()

	for {
		r.mu.Lock()
		batch := r.pending
		r.pending = nil
		r.mu.Unlock()
		if len(batch) == 0 {
			return nil
		}

		for i, block := range batch {
			if err := r.cfg.Limiter.Wait(ctx); err != nil {
				r.requeue(batch[i:])
				return err
			}
			if r.cfg.Sink == nil {
				continue
			}
			if err := r.cfg.Sink.SendConsole(ctx, block); err != nil {
				if ctx.Err() != nil {
					r.requeue(batch[i:])
					return ctx.Err()
				}
				if r.cfg.OnError != nil {
					r.cfg.OnError(err)
				}
				continue
			}
			r.cfg.Metrics.consoleOut()
		}
	}
}

func (r *ConsoleRelay) requeue(blocks []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(blocks[:len(blocks):len(blocks)], r.pending...)
}

// Subscribe returns a live feed of raw output. Slow subscribers miss lines
// rather than stall the relay.
func (r *ConsoleRelay) Subscribe(buffer int) (<-chan string, func()) {
	ch := make(chan string, buffer)

	r.subMu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch
	r.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.subMu.Lock()
			delete(r.subs, id)
			r.subMu.Unlock()
			close(ch)
		})
	}
}

func (r *ConsoleRelay) publish(text string) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- text:
		default:
		}
	}
}

// SplitChunks splits text into pieces of at most size runes, preserving order.
func SplitChunks(text string, size int) []string {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	chunks := make([]string, 0, len(runes)/size+1)
	for i := 0; i < len(runes); i += size {
		end := min(i+size, len(runes))
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}

func FormatConsoleBlock(chunk string) string {
	return "```\n" + chunk + "\n```"
}

func escapeFences(text string) string {
	return strings.ReplaceAll(text, "```", "`\u200b``")
}
