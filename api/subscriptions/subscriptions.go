// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package subscriptions

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/vechain/burnpool/api/utils"
	"github.com/vechain/burnpool/co"
	"github.com/vechain/burnpool/events"
	"github.com/vechain/burnpool/log"
	"github.com/vechain/burnpool/metrics"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 7) / 10
)

var (
	logger              = log.WithContext("pkg", "subscriptions")
	metricActiveCount   = metrics.LazyLoadGaugeVec("api_active_websocket_count", []string{"subject"})
	metricDroppedEvents = metrics.LazyLoadCounter("api_dropped_events_count")
)

type Subscriptions struct {
	feed     *events.Feed
	backlog  int
	upgrader *websocket.Upgrader
	done     chan struct{}
	doneOnce sync.Once
	goes     co.Goes
}

// New creates the event stream API. Each connection buffers up to backlog events;
// events arriving at a full buffer are dropped for that connection.
func New(feed *events.Feed, allowedOrigins []string, backlog int) *Subscriptions {
	if backlog <= 0 {
		backlog = 64
	}
	return &Subscriptions{
		feed:    feed,
		backlog: backlog,
		upgrader: &websocket.Upgrader{
			EnableCompression: true,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				for _, allowed := range allowedOrigins {
					if allowed == origin || allowed == "*" {
						return true
					}
				}
				return false
			},
		},
		done: make(chan struct{}),
	}
}

// filter selects events by machine and kind. Empty fields match everything.
type filter struct {
	machines map[string]bool
	kinds    map[events.Kind]bool
}

func parseFilter(req *http.Request) *filter {
	f := &filter{machines: map[string]bool{}, kinds: map[events.Kind]bool{}}
	query := req.URL.Query()
	for _, m := range strings.Split(query.Get("machine"), ",") {
		if m = strings.TrimSpace(m); m != "" {
			f.machines[m] = true
		}
	}
	for _, k := range strings.Split(query.Get("kind"), ",") {
		if k = strings.TrimSpace(k); k != "" {
			f.kinds[events.Kind(k)] = true
		}
	}
	return f
}

func (f *filter) match(ev *events.Event) bool {
	if len(f.machines) > 0 && !f.machines[ev.Machine] {
		return false
	}
	if len(f.kinds) > 0 && !f.kinds[ev.Kind] {
		return false
	}
	return true
}

func (s *Subscriptions) handleSubject(w http.ResponseWriter, req *http.Request) error {
	f := parseFilter(req)

	conn, err := s.upgrader.Upgrade(w, req, nil)
	// since the conn is hijacked here, no error should be returned in lines below
	if err != nil {
		logger.Debug("upgrade to websocket", "err", err)
		return nil
	}

	metricActiveCount().AddWithLabel(1, map[string]string{"subject": "events"})
	defer metricActiveCount().AddWithLabel(-1, map[string]string{"subject": "events"})

	closed := make(chan struct{})
	// start a goroutine to read from the connection so pong and close frames are processed
	s.goes.Go(func() {
		defer close(closed)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				logger.Debug("websocket read", "err", err)
				return
			}
		}
	})

	err = s.pipe(conn, f, closed)
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err != nil {
		logger.Debug("websocket pipe", "err", err)
		closeMsg = websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error())
	}
	conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(writeWait))
	conn.Close()
	<-closed
	return nil
}

func (s *Subscriptions) pipe(conn *websocket.Conn, f *filter, closed <-chan struct{}) error {
	ch := make(chan *events.Event)
	sub := s.feed.Subscribe(ch)
	defer sub.Unsubscribe()

	// the feed blocks its sender until every subscriber took the event, so the
	// connection is decoupled from it by a buffered queue
	queue := make(chan *events.Event, s.backlog)
	s.goes.Go(func() {
		for {
			select {
			case ev := <-ch:
				if !f.match(ev) {
					continue
				}
				select {
				case queue <- ev:
				default:
					metricDroppedEvents().Add(1)
				}
			case <-sub.Err():
				return
			}
		}
	})

	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()

	for {
		select {
		case ev := <-queue:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				return err
			}
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		case <-sub.Err():
			return nil
		case <-closed:
			return nil
		case <-s.done:
			return nil
		}
	}
}

// Close ends all open streams and waits for their goroutines.
func (s *Subscriptions) Close() {
	s.doneOnce.Do(func() { close(s.done) })
	s.goes.Wait()
}

func (s *Subscriptions) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("/events").
		Methods(http.MethodGet).
		Name("WS /subscriptions/events").
		HandlerFunc(utils.WrapHandlerFunc(s.handleSubject))
}
