package proc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type blockSink struct {
	mu     sync.Mutex
	blocks []string
	fail   bool
}

func (s *blockSink) SendConsole(_ context.Context, block string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("channel deleted")
	}
	s.blocks = append(s.blocks, block)
	return nil
}

func (s *blockSink) got() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.blocks...)
}

func startRelay(t *testing.T, cfg RelayConfig) (*ConsoleRelay, *FakeClock) {
	t.Helper()
	clock := NewFakeClock(epoch0)
	cfg.Clock = clock
	cfg.Limiter = rate.NewLimiter(rate.Inf, 1)
	relay := NewConsoleRelay(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		relay.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return relay, clock
}

func TestRelayDebounce(t *testing.T) {
	sink := &blockSink{}
	relay, clock := startRelay(t, RelayConfig{Sink: sink})

	relay.Write(StreamStdout, "a\n")
	clock.Advance(time.Second)
	relay.Write(StreamStdout, "b\n")
	clock.Advance(1900 * time.Millisecond)
	assert.Never(t, func() bool { return len(sink.got()) > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	clock.Advance(100 * time.Millisecond)
	require.Eventually(t, func() bool { return len(sink.got()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "```\na\nb\n\n```", sink.got()[0])
}

func TestRelayThresholdFlushesImmediately(t *testing.T) {
	sink := &blockSink{}
	relay, clock := startRelay(t, RelayConfig{Sink: sink})

	relay.Write(StreamStdout, strings.Repeat("x", 1501))
	require.Eventually(t, func() bool { return len(sink.got()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, clock.Pending())
}

func TestRelayChunksLongOutput(t *testing.T) {
	sink := &blockSink{}
	relay, _ := startRelay(t, RelayConfig{Sink: sink, Threshold: 10_000})

	relay.Write(StreamStdout, strings.Repeat("y", 4000))
	relay.Flush()

	require.Eventually(t, func() bool { return len(sink.got()) == 3 }, time.Second, 5*time.Millisecond)
	blocks := sink.got()
	assert.Equal(t, FormatConsoleBlock(strings.Repeat("y", 1900)), blocks[0])
	assert.Equal(t, FormatConsoleBlock(strings.Repeat("y", 1900)), blocks[1])
	assert.Equal(t, FormatConsoleBlock(strings.Repeat("y", 200)), blocks[2])
}

func TestRelayPreservesOrder(t *testing.T) {
	sink := &blockSink{}
	relay, _ := startRelay(t, RelayConfig{Sink: sink})

	for i := 0; i < 50; i++ {
		relay.Write(StreamStdout, fmt.Sprintf("line %02d\n", i))
		relay.Flush()
	}

	require.Eventually(t, func() bool { return len(sink.got()) == 50 }, 2*time.Second, 5*time.Millisecond)
	for i, block := range sink.got() {
		assert.Equal(t, FormatConsoleBlock(fmt.Sprintf("line %02d\n", i)), block)
	}
}

func TestRelayMarksStderr(t *testing.T) {
	sink := &blockSink{}
	relay, _ := startRelay(t, RelayConfig{Sink: sink})

	relay.Write(StreamStderr, "Exception in thread main\n")
	relay.Flush()
	require.Eventually(t, func() bool { return len(sink.got()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Contains(t, sink.got()[0], "[ERROR] Exception in thread main")
}

func TestRelayEscapesFences(t *testing.T) {
	sink := &blockSink{}
	relay, _ := startRelay(t, RelayConfig{Sink: sink})

	relay.Write(StreamStdout, "<Steve> ```rm -rf```\n")
	relay.Flush()
	require.Eventually(t, func() bool { return len(sink.got()) == 1 }, time.Second, 5*time.Millisecond)

	inner := strings.TrimSuffix(strings.TrimPrefix(sink.got()[0], "```\n"), "\n```")
	assert.NotContains(t, inner, "```")
}

func TestRelaySinkErrorsDoNotStall(t *testing.T) {
	sink := &blockSink{fail: true}
	var mu sync.Mutex
	var errs int
	relay, _ := startRelay(t, RelayConfig{Sink: sink, OnError: func(error) {
		mu.Lock()
		errs++
		mu.Unlock()
	}})

	relay.Write(StreamStdout, "first\n")
	relay.Flush()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return errs == 1
	}, time.Second, 5*time.Millisecond)

	sink.mu.Lock()
	sink.fail = false
	sink.mu.Unlock()

	relay.Write(StreamStdout, "second\n")
	relay.Flush()
	require.Eventually(t, func() bool { return len(sink.got()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestRelayDrainSendsBufferedOutput(t *testing.T) {
	sink := &blockSink{}
	relay := NewConsoleRelay(RelayConfig{
		Sink:    sink,
		Clock:   NewFakeClock(epoch0),
		Limiter: rate.NewLimiter(rate.Inf, 1),
	})

	relay.Write(StreamStdout, "Stopping server\n")
	require.NoError(t, relay.Drain(context.Background()))
	assert.Equal(t, []string{FormatConsoleBlock("Stopping server\n")}, sink.got())

	require.NoError(t, relay.Drain(context.Background()))
	assert.Len(t, sink.got(), 1)
}

func TestRelayDrainKeepsUnsentBlocks(t *testing.T) {
	sink := &blockSink{}
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	relay := NewConsoleRelay(RelayConfig{
		Sink:       sink,
		Clock:      NewFakeClock(epoch0),
		ChunkRunes: 5,
		Limiter:    limiter,
	})

	relay.Write(StreamStdout, "aaaaabbbbbccccc")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, relay.Drain(ctx))
	assert.Equal(t, []string{FormatConsoleBlock("aaaaa")}, sink.got())

	limiter.SetLimit(rate.Inf)
	require.NoError(t, relay.Drain(context.Background()))
	assert.Equal(t, []string{
		FormatConsoleBlock("aaaaa"),
		FormatConsoleBlock("bbbbb"),
		FormatConsoleBlock("ccccc"),
	}, sink.got())
}

func TestRelaySubscribe(t *testing.T) {
	relay, _ := startRelay(t, RelayConfig{})

	feed, cancel := relay.Subscribe(4)
	relay.Write(StreamStdout, "joined the game\n")
	assert.Equal(t, "joined the game\n", <-feed)

	cancel()
	cancel()
	_, open := <-feed
	assert.False(t, open)
}

func TestSplitChunks(t *testing.T) {
	assert.Nil(t, SplitChunks("", 5))
	assert.Equal(t, []string{"abc"}, SplitChunks("abc", 5))
	assert.Equal(t, []string{"ab", "cd", "e"}, SplitChunks("abcde", 2))
	assert.Equal(t, []string{"ééé", "é"}, SplitChunks("éééé", 3))
}
