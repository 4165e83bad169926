package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vitos/lendflow/internal/domain"
	"go.uber.org/zap"
)

// Block is one new-head notification from the bridge.
type Block struct {
	Chain  domain.ChainID `json:"chain"`
	Number uint64         `json:"number"`
}

// BlockFeed subscribes to new blocks on the bridge websocket and calls every
// registered handler for each block. Run reconnects until its context ends.
type BlockFeed struct {
	wsURL  string
	chains []domain.ChainID
	logger *zap.Logger

	mu       sync.Mutex
	handlers []func(Block)

	dialer       *websocket.Dialer
	reconnectMin time.Duration
	reconnectMax time.Duration
}

func NewBlockFeed(wsURL string, chains []domain.ChainID, logger *zap.Logger) *BlockFeed {
	return &BlockFeed{
		wsURL:        wsURL,
		chains:       chains,
		logger:       logger,
		dialer:       websocket.DefaultDialer,
		reconnectMin: time.Second,
		reconnectMax: time.Minute,
	}
}

func (f *BlockFeed) OnBlock(handler func(Block)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, handler)
}

// Run connects, subscribes and reads until ctx is done, reconnecting with
// exponential backoff after failures.
func (f *BlockFeed) Run(ctx context.Context) {
	backoff := f.reconnectMin
	for {
		err := f.connectAndRead(ctx)
		if ctx.Err() != nil {
			return
		}
		f.logger.Warn("Block feed disconnected", zap.Error(err), zap.Duration("retry_in", backoff))
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > f.reconnectMax {
			backoff = f.reconnectMax
		}
	}
}

func (f *BlockFeed) connectAndRead(ctx context.Context) error {
	c, _, err := f.dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := f.subscribe(c); err != nil {
		return err
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-stop:
		}
	}()

	return f.readLoop(c)
}

func (f *BlockFeed) subscribe(c *websocket.Conn) error {
	args := make([]string, 0, len(f.chains))
	for _, chain := range f.chains {
		args = append(args, "newHeads."+string(chain))
	}
	return c.WriteJSON(map[string]any{
		"op":   "subscribe",
		"args": args,
	})
}

type feedEvent struct {
	Topic string `json:"topic"`
	Data  Block  `json:"data"`
}

func (f *BlockFeed) readLoop(c *websocket.Conn) error {
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			return err
		}

		var event feedEvent
		if err := json.Unmarshal(message, &event); err != nil {
			f.logger.Debug("Block feed: bad message", zap.Error(err))
			continue
		}
		if event.Topic == "" || event.Data.Chain == "" {
			continue
		}

		f.mu.Lock()
		handlers := make([]func(Block), len(f.handlers))
		copy(handlers, f.handlers)
		f.mu.Unlock()

		for _, h := range handlers {
			h(event.Data)
		}
	}
}
