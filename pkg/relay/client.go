package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

const (
	defaultOutbox = 64
	writeTimeout  = 5 * time.Second
)

// ClientOptions configures a relay client.
type ClientOptions struct {
	Room    string
	AgentID string
	// OnFrame is called on the client's read goroutine for every frame
	// received. It must hand the frame off rather than touch replica state,
	// and must return once ctx is done: Close cancels ctx and then waits
	// for the read goroutine.
	OnFrame func(ctx context.Context, f Frame)
	// Outbox bounds frames waiting to be written.
	Outbox int
	Logger *zap.Logger
}

// Client is one replica's connection to the relay.
type Client struct {
	conn   *websocket.Conn
	opts   ClientOptions
	out    chan Frame
	cancel context.CancelFunc
	wg     sync.WaitGroup

	connected atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once

	logger *zap.Logger
}

// Dial connects to the relay room and starts the read and write pumps.
func Dial(ctx context.Context, relayURL string, opts ClientOptions) (*Client, error) {
	if opts.Room == "" {
		opts.Room = DefaultRoom
	}
	if opts.Outbox <= 0 {
		opts.Outbox = defaultOutbox
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	u, err := RoomURL(relayURL, opts.Room, opts.AgentID)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.Dial(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay %s: %w", relayURL, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:   conn,
		opts:   opts,
		out:    make(chan Frame, opts.Outbox),
		cancel: cancel,
		logger: opts.Logger.With(zap.String("room", opts.Room), zap.String("agent", opts.AgentID)),
	}
	c.connected.Store(true)
	c.wg.Add(2)
	go c.readLoop(runCtx)
	go c.writeLoop(runCtx)
	return c, nil
}

// Connected reports whether both pumps are still running.
func (c *Client) Connected() bool { return c.connected.Load() }

// Publish queues f for sending. It never blocks: when the outbox is full
// the frame is dropped and false returned. Only the latest text matters to
// peers, so a later frame supersedes a dropped one.
func (c *Client) Publish(f Frame) bool {
	if c.closed.Load() {
		return false
	}
	if f.Room == "" {
		f.Room = c.opts.Room
	}
	select {
	case c.out <- f:
		return true
	default:
		c.logger.Warn("relay outbox full, dropping frame", zap.Int64("ts", f.Stamp.TS))
		return false
	}
}

// Close performs the close handshake and waits for the pumps to exit.
// Idempotent.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.connected.Store(false)
		err = c.conn.Close(websocket.StatusNormalClosure, "")
		c.cancel()
		c.wg.Wait()
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
	})
	return err
}

func (c *Client) readLoop(ctx context.Context) {
	defer c.wg.Done()
	defer c.connected.Store(false)
	for {
		var f Frame
		if err := wsjson.Read(ctx, c.conn, &f); err != nil {
			if !c.closed.Load() && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				c.logger.Warn("relay read failed", zap.Error(err))
			}
			return
		}
		if c.opts.OnFrame != nil {
			c.opts.OnFrame(ctx, f)
		}
	}
}

func (c *Client) writeLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-c.out:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, c.conn, f)
			cancel()
			if err != nil {
				if !c.closed.Load() {
					c.logger.Warn("relay write failed", zap.Error(err))
				}
				c.connected.Store(false)
				return
			}
		}
	}
}
