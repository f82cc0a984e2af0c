package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"water_timer/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMsgSize     = 1 << 12
	streamDefault  = time.Second
	streamMaxEvery = 10 * time.Second

	msgStatus = "status"
	msgValve  = "valve"
)

var errStreamInterval = errors.New("interval must be a positive duration up to 10s")

type wsEnvelope struct {
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type valveChange struct {
	Open bool      `json:"open"`
	At   time.Time `json:"at"`
}

// The device serves a LAN dashboard from any origin.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamInterval reads ?interval=2s or ?interval_ms=2000. interval wins when both parse.
func streamInterval(q url.Values) (time.Duration, error) {
	s, ms := q.Get("interval"), q.Get("interval_ms")
	if s == "" && ms == "" {
		return streamDefault, nil
	}
	if s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 && d <= streamMaxEvery {
			return d, nil
		}
	}
	if ms != "" {
		if v, err := strconv.ParseInt(ms, 10, 64); err == nil && v > 0 && v <= streamMaxEvery.Milliseconds() {
			return time.Duration(v) * time.Millisecond, nil
		}
	}
	return 0, errStreamInterval
}

// @Summary      Status stream
// @Description  Upgrades to a WebSocket and pushes {"type":"status","data":...} every interval (?interval=2s or ?interval_ms=2000, max 10s). A {"type":"valve"} frame precedes the status whenever the valve opens or closes.
// @Tags         status
// @Param        interval     query  string  false  "Go duration, e.g. 500ms"
// @Param        interval_ms  query  int     false  "Milliseconds"
// @Failure      400  {object}  map[string]string
// @Router       /ws [get]
func (h *Handler) wsConnect(c *gin.Context) {
	every, err := streamInterval(c.Request.URL.Query())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_upgrade_failed", "err", err)
		}
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	go h.drainReads(conn, done)

	st := &statusStream{conn: conn, source: h.services.Monitoring}
	if err := st.push(); err != nil {
		h.streamClosed("ws_write_failed_initial", err)
		return
	}

	ticker := time.NewTicker(every)
	ping := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.streamClosed("ws_ping_failed", err)
				return
			}
		case <-ticker.C:
			if err := st.push(); err != nil {
				h.streamClosed("ws_write_failed", err)
				return
			}
		}
	}
}

func (h *Handler) streamClosed(key string, err error) {
	if h.log != nil {
		h.log.Infow(key, "err", err)
	}
}

// drainReads consumes control frames and closes done once the client goes away.
func (h *Handler) drainReads(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.streamClosed("ws_read_closed", err)
			return
		}
	}
}

// statusStream is owned by the writer loop of one connection.
type statusStream struct {
	conn   *websocket.Conn
	source interface{ Status() models.Status }
	sent   bool
	open   bool
}

func (s *statusStream) push() error {
	cur := s.source.Status()
	if s.sent && cur.ValveOpen != s.open {
		at := cur.ComputedAt
		if cur.ValveOpen && cur.RunStartedAt != nil {
			at = *cur.RunStartedAt
		}
		if err := s.write(wsEnvelope{Type: msgValve, Data: valveChange{Open: cur.ValveOpen, At: at}}); err != nil {
			return err
		}
	}
	s.sent, s.open = true, cur.ValveOpen
	return s.write(wsEnvelope{Type: msgStatus, Data: cur})
}

func (s *statusStream) write(env wsEnvelope) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(env)
}
