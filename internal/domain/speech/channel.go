package speech

import (
	"context"
	"sync"

	evbus "github.com/asaskevich/EventBus"

	"visionbridge-server-go/internal/domain/eventbus"
	"visionbridge-server-go/internal/platform/logging"
	"visionbridge-server-go/internal/util"
)

// Synthesizer converts text into encoded audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Player delivers synthesized audio to the listener. Play blocks until the
// utterance finishes or ctx is cancelled.
type Player interface {
	Play(ctx context.Context, audio []byte) error
}

// Channel plays utterances strictly in enqueue order, one at a time. Enqueue
// is fire-and-forget; CancelAll stops the current utterance and clears the
// queue immediately while leaving the channel ready for new input.
type Channel struct {
	queue  *util.Queue[string]
	synth  Synthesizer
	player Player
	logger *logging.Logger
	bus    evbus.Bus

	mu      sync.Mutex
	cancel  context.CancelFunc
	epoch   uint64
	started bool
	done    chan struct{}
}

// Config wires the channel's collaborators.
type Config struct {
	Synthesizer Synthesizer
	Player      Player
	Logger      *logging.Logger
	Bus         evbus.Bus
}

// NewChannel creates a stopped channel; call Start to begin playback.
func NewChannel(cfg Config) *Channel {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.DefaultLogger
	}
	return &Channel{
		queue:  util.NewQueue[string](64),
		synth:  cfg.Synthesizer,
		player: cfg.Player,
		logger: logger,
		bus:    cfg.Bus,
		done:   make(chan struct{}),
	}
}

// Start launches the playback worker.
func (c *Channel) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true
	go c.run()
}

// Enqueue appends an utterance to the playback queue.
func (c *Channel) Enqueue(text string) {
	if text == "" {
		return
	}
	if err := c.queue.Push(text); err != nil {
		c.logger.WarnTag("SPEECH", "enqueue after close dropped: %q", text)
	}
}

// CancelAll stops the current utterance and clears all pending ones. Safe to
// call at any time, including with an empty queue. The epoch bump also covers
// an utterance already dequeued but not yet playing.
func (c *Channel) CancelAll() {
	c.mu.Lock()
	c.epoch++
	c.queue.Clear()
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()
}

// Pending reports how many utterances are queued (not counting the one playing).
func (c *Channel) Pending() int {
	return c.queue.Len()
}

// Close cancels playback and shuts the worker down.
func (c *Channel) Close() {
	c.queue.Close()
	c.CancelAll()
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if started {
		<-c.done
	}
}

func (c *Channel) run() {
	defer close(c.done)
	for {
		text, err := c.queue.Pop(context.Background())
		if err != nil {
			return
		}
		c.mu.Lock()
		epoch := c.epoch
		c.mu.Unlock()
		c.play(text, epoch)
	}
}

// play voices one utterance. epoch is the cancel epoch observed when the
// utterance left the queue; a CancelAll landing between dequeue and here
// bumps it, and the utterance is dropped instead of played.
func (c *Channel) play(text string, epoch uint64) {
	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		cancel()
		return
	}
	c.cancel = cancel
	c.mu.Unlock()

	defer func() {
		cancel()
		c.mu.Lock()
		c.cancel = nil
		c.mu.Unlock()
	}()

	audio, err := c.synth.Synthesize(ctx, text)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.WarnTag("SPEECH", "synthesis failed: %v", err)
		}
		return
	}

	// A CancelAll issued during synthesis must suppress playback too.
	if ctx.Err() != nil {
		return
	}

	if err := c.player.Play(ctx, audio); err != nil {
		if ctx.Err() == nil {
			c.logger.WarnTag("SPEECH", "playback failed: %v", err)
		}
		return
	}

	if c.bus != nil {
		c.bus.Publish(eventbus.EventSpeechSpoken, text)
	}
}
