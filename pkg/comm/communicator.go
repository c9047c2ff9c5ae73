package comm

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/prismrt/prism/pkg/log"
)

// Handler consumes one dispatched message
type Handler func(*Message)

// Communicator is the tagged message plane of one rank: it frames outbound
// messages onto the transport and runs the dispatcher that routes inbound
// messages to their registered handlers. Vote messages go straight to the
// voter hook; QUIT closes the done channel.
type Communicator struct {
	rank int
	size int

	transport Transport

	mu           sync.RWMutex
	userHandlers map[uint64]Handler
	voteHandler  Handler

	quitCh   chan struct{}
	quitOnce sync.Once
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	logger   zerolog.Logger
}

// New creates a communicator for this rank over the given transport
func New(rank, size int, transport Transport) *Communicator {
	return &Communicator{
		rank:         rank,
		size:         size,
		transport:    transport,
		userHandlers: make(map[uint64]Handler),
		quitCh:       make(chan struct{}),
		stopCh:       make(chan struct{}),
		logger:       log.WithComponent("comm").With().Int("rank", rank).Logger(),
	}
}

// Rank returns this rank's id
func (c *Communicator) Rank() int { return c.rank }

// Size returns the world size
func (c *Communicator) Size() int { return c.size }

// Handle registers the handler for a user message tag
func (c *Communicator) Handle(tag uint64, h Handler) {
	c.mu.Lock()
	c.userHandlers[tag] = h
	c.mu.Unlock()
}

// HandleVote registers the voter entry point
func (c *Communicator) HandleVote(h Handler) {
	c.mu.Lock()
	c.voteHandler = h
	c.mu.Unlock()
}

// Start launches the dispatcher
func (c *Communicator) Start() {
	c.wg.Add(1)
	go c.dispatch()
}

// Stop halts the dispatcher and closes the transport
func (c *Communicator) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.transport.Close()
	c.wg.Wait()
}

// Done is closed once a QUIT command arrives (or Quit is called locally)
func (c *Communicator) Done() <-chan struct{} {
	return c.quitCh
}

// Send frames the message for the destination rank. Sends are non-blocking
// and FIFO per destination.
func (c *Communicator) Send(m *Message, dst int) error {
	if dst == c.rank {
		return fmt.Errorf("comm: rank %d sending to itself", c.rank)
	}
	m.Env.Src = int64(c.rank)
	m.Env.Dst = int64(dst)
	return c.transport.Send(dst, m.encode())
}

// SendAllOther frames the message for every rank but this one
func (c *Communicator) SendAllOther(m *Message) error {
	for dst := 0; dst < c.size; dst++ {
		if dst == c.rank {
			continue
		}
		if err := c.Send(m, dst); err != nil {
			return err
		}
	}
	return nil
}

// Quit broadcasts QUIT to all peers and marks this rank done
func (c *Communicator) Quit() error {
	cmd := Command{Kind: CommandQuit}
	err := c.SendAllOther(cmd.Encode())
	c.quitOnce.Do(func() { close(c.quitCh) })
	return err
}

func (c *Communicator) dispatch() {
	defer c.wg.Done()
	for {
		select {
		case <-c.stopCh:
			return
		case frame, ok := <-c.transport.Recv():
			if !ok {
				return
			}
			msg, err := decodeMessage(frame)
			if err != nil {
				// a malformed message means a broken or hostile peer
				c.logger.Fatal().Err(err).Msg("malformed message")
			}
			c.route(msg)
		}
	}
}

func (c *Communicator) route(msg *Message) {
	switch msg.Env.SystemTag {
	case ControlVote:
		c.mu.RLock()
		h := c.voteHandler
		c.mu.RUnlock()
		if h == nil {
			c.logger.Fatal().Msg("vote received without a voter")
		}
		h(msg)
	case ControlSystem:
		cmd, err := DecodeCommand(msg)
		if err != nil {
			c.logger.Fatal().Err(err).Msg("malformed command")
		}
		if cmd.Kind == CommandQuit {
			c.quitOnce.Do(func() { close(c.quitCh) })
		}
	case ControlUser:
		c.mu.RLock()
		h := c.userHandlers[msg.Env.UserTag]
		c.mu.RUnlock()
		if h == nil {
			c.logger.Warn().Uint64("tag", msg.Env.UserTag).Msg("no handler for user message")
			return
		}
		h(msg)
	default:
		c.logger.Fatal().Uint64("system_tag", msg.Env.SystemTag).Msg("unknown system tag")
	}
}
