// Package station is the operator side of the robot: a websocket driver
// station for live driving and a scenario player for scripted bench runs. Both
// provide the gamepad and the enable switch to the control core.
package station

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"minibot-core/robot"
	"minibot-core/utils"
)

// Packet is one operator update: the enable switch plus stick and button state.
type Packet struct {
	Enabled bool                  `json:"enabled"`
	Axes    map[robot.Axis]float64 `json:"axes,omitempty"`
	Buttons map[robot.Button]bool  `json:"buttons,omitempty"`
}

// clientLock admits one control client at a time.
type clientLock struct {
	mu    sync.Mutex
	inuse bool
}

// maxPacketBytes bounds one control message; a full gamepad packet is a few
// hundred bytes.
const maxPacketBytes = 4096

var errClientConnected = errors.New("a control client is already connected")

func (l *clientLock) Lock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inuse {
		return errClientConnected
	}
	l.inuse = true
	return nil
}

func (l *clientLock) Unlock() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inuse = false
}

// Websocket serves /control. While no client is connected, or the last packet
// is older than the link timeout, the robot is reported disabled and every
// axis and button reads as released.
type Websocket struct {
	log         *utils.Logger
	linkTimeout time.Duration
	now         func() time.Time
	upgrader    websocket.Upgrader
	client      clientLock
	auth        *tokenVerifier

	mu        sync.Mutex
	connected bool
	last      Packet
	lastAt    time.Time
}

var (
	_ robot.InputDevice = (*Websocket)(nil)
	_ robot.ModeSource  = (*Websocket)(nil)
)

func NewWebsocket(linkTimeout time.Duration, log *utils.Logger) *Websocket {
	return &Websocket{
		log:         log,
		linkTimeout: linkTimeout,
		now:         time.Now,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RequireToken makes /control accept only clients presenting an operator token
// signed with secret. Call before serving.
func (s *Websocket) RequireToken(secret []byte) {
	s.auth = &tokenVerifier{secret: secret, now: func() time.Time { return s.now() }}
}

func (s *Websocket) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/control", s.serveControl)
	return mux
}

// Serve listens on addr until ctx ends.
func (s *Websocket) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, ln)
}

func (s *Websocket) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = srv.Close()
	}()

	s.log.Info("driver station listening on %s", ln.Addr())
	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return ctx.Err()
	}
	return err
}

func (s *Websocket) serveControl(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Cache-Control", "no-cache")
	operator := "anonymous"
	if s.auth != nil {
		sub, err := s.auth.verify(requestToken(r))
		if err != nil {
			s.log.Warn("control refused for %s: %v", r.RemoteAddr, err)
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		operator = sub
	}
	if err := s.client.Lock(); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	defer s.client.Unlock()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("control upgrade from %s: %v", r.RemoteAddr, err)
		return
	}
	defer ws.Close()
	ws.SetReadLimit(maxPacketBytes)

	s.log.Info("control client connected: %s (operator %s)", r.RemoteAddr, operator)
	s.setConnected(true)
	defer func() {
		s.setConnected(false)
		s.log.Warn("control client disconnected: %s", r.RemoteAddr)
	}()

	for {
		var p Packet
		if err := ws.ReadJSON(&p); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Error("control read: %v", err)
			}
			return
		}
		s.update(p)
	}
}

func (s *Websocket) setConnected(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = v
	s.last = Packet{}
	s.lastAt = time.Time{}
}

func (s *Websocket) update(p Packet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Enabled != s.last.Enabled {
		s.log.Info("operator enable=%t", p.Enabled)
	}
	s.last = p
	s.lastAt = s.now()
}

// live reports the current packet if the link is up and fresh.
func (s *Websocket) live() (Packet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected || s.lastAt.IsZero() || s.now().Sub(s.lastAt) > s.linkTimeout {
		return Packet{}, false
	}
	return s.last, true
}

func (s *Websocket) Enabled() bool {
	p, ok := s.live()
	return ok && p.Enabled
}

func (s *Websocket) Axis(a robot.Axis) (float64, error) {
	p, _ := s.live()
	return p.Axes[a], nil
}

func (s *Websocket) Button(b robot.Button) (bool, error) {
	p, _ := s.live()
	return p.Buttons[b], nil
}

// Connected reports whether a control client currently holds the link.
func (s *Websocket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}
