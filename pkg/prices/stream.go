package prices

import (
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	maxReconnectAttempts = 10
	reconnectDelay       = 5 * time.Second
)

// Streamer subscribes to the venue's oracle price feed over websocket and
// keeps the Cache warm. Started once per process; Stop closes the
// subscription and ends the loop.
type Streamer struct {
	wsEndpoint string
	symbols    []string
	cache      *Cache
	stopCh     chan struct{}
}

// priceUpdate is one streamed tick.
type priceUpdate struct {
	Channel string `json:"channel"`
	Symbol  string `json:"symbol"`
	Price   string `json:"price"`
}

// NewStreamer creates a price streamer for the given market symbols.
func NewStreamer(wsEndpoint string, symbols []string, cache *Cache) *Streamer {
	return &Streamer{
		wsEndpoint: wsEndpoint,
		symbols:    symbols,
		cache:      cache,
		stopCh:     make(chan struct{}),
	}
}

// Start runs the subscribe/read loop in a goroutine, reconnecting with a
// bounded number of attempts.
func (s *Streamer) Start() {
	go s.connectAndRead()
}

// Stop ends the streaming loop.
func (s *Streamer) Stop() {
	close(s.stopCh)
}

func (s *Streamer) connectAndRead() {
	reconnectAttempts := 0

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		c, _, err := websocket.DefaultDialer.Dial(s.wsEndpoint, nil)
		if err != nil {
			log.WithFields(log.Fields{
				"endpoint": s.wsEndpoint,
				"error":    err.Error(),
			}).Error("Failed to connect to price feed")
			reconnectAttempts++
			if reconnectAttempts >= maxReconnectAttempts {
				log.Error("Max price feed reconnect attempts reached, stopping")
				return
			}
			time.Sleep(reconnectDelay)
			continue
		}

		subscribeMsg := map[string]interface{}{
			"type":    "subscribe",
			"channel": "oracle_prices",
			"symbols": s.symbols,
		}
		if err := c.WriteJSON(subscribeMsg); err != nil {
			log.WithField("error", err.Error()).Error("Failed to send price subscription")
			c.Close()
			time.Sleep(reconnectDelay)
			continue
		}

		reconnectAttempts = 0
		log.WithField("symbols", s.symbols).Info("Subscribed to oracle price feed")

		if !s.readMessages(c) {
			c.Close()
			return // stopped
		}
		c.Close()
		time.Sleep(reconnectDelay)
	}
}

// readMessages reads ticks until the connection drops or Stop is called.
// Returns false when stopped, true when the connection should be redialed.
func (s *Streamer) readMessages(c *websocket.Conn) bool {
	for {
		select {
		case <-s.stopCh:
			return false
		default:
		}

		var update priceUpdate
		if err := c.ReadJSON(&update); err != nil {
			log.WithField("error", err.Error()).Warn("Price feed read failed, reconnecting")
			return true
		}
		if update.Channel != "oracle_prices" || update.Symbol == "" {
			continue
		}
		price, err := strconv.ParseFloat(update.Price, 64)
		if err != nil || price <= 0 {
			continue
		}
		s.cache.Set(update.Symbol, price)
	}
}
