package gateway

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	cartdomain "github.com/dwikikusuma/bullion-store/internal/cart/domain"
	checkoutapp "github.com/dwikikusuma/bullion-store/internal/checkout/app"
	"github.com/dwikikusuma/bullion-store/internal/checkout/domain"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 32
)

const (
	eventCart     = "cart"
	eventCheckout = "checkout"
)

// Events upgrades to a websocket and streams cart and checkout changes of
// one session. The first messages are the current cart and, when one
// exists, the current checkout.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", slog.String("session_id", s.ID), slog.Any("err", err))
		return
	}

	send := make(chan event, sendBuffer)
	done := make(chan struct{})
	var once sync.Once
	stop := func() { once.Do(func() { close(done) }) }

	push := func(ev event) {
		select {
		case send <- ev:
		case <-done:
		default:
			h.log.Warn("dropping session event", slog.String("session_id", s.ID), slog.String("type", ev.Type))
		}
	}

	var (
		mu           sync.Mutex
		stopCheckout func()
	)
	follow := func(c *checkoutapp.Controller) {
		unsubscribe := c.Subscribe(func(cs domain.Session) {
			v := newCheckoutView(cs)
			push(event{Type: eventCheckout, Checkout: &v})
		})

		mu.Lock()
		if stopCheckout != nil {
			stopCheckout()
		}
		stopCheckout = unsubscribe
		mu.Unlock()

		v := newCheckoutView(c.Session())
		push(event{Type: eventCheckout, Checkout: &v})
	}

	stopCart := s.Cart.Subscribe(func(snap cartdomain.Snapshot) {
		v := newCartView(snap, s.Cart.QuoteOf(snap))
		push(event{Type: eventCart, Cart: &v})
	})
	stopWatch := s.WatchCheckout(follow)

	initial := cartViewOf(s)
	push(event{Type: eventCart, Cart: &initial})
	if c, err := s.Checkout(); err == nil {
		follow(c)
	}

	defer func() {
		stopCart()
		stopWatch()
		mu.Lock()
		if stopCheckout != nil {
			stopCheckout()
		}
		mu.Unlock()
		conn.Close()
	}()

	go readPump(conn, stop)
	writePump(conn, send, done)
	stop()
}

// readPump drains client frames so that pongs and close frames are seen.
func readPump(conn *websocket.Conn, stop func()) {
	defer stop()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writePump(conn *websocket.Conn, send <-chan event, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
