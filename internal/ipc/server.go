// Package ipc serves the line protocol on the control socket. Read-only
// commands are open to every connection; control commands belong to the
// first connection that issues one, until it disconnects.
package ipc

import (
	"bufio"
	"net"
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"soundscape/internal/events"
	"soundscape/internal/player"
)

// Controller is the session surface the socket drives. *player.Session
// satisfies it.
type Controller interface {
	ID() string
	Status() player.Status
	Song() (player.SongInfo, error)
	Load(name string) error
	Cue(name string) error
	Play(startBar, loopBars int) error
	Stop() error
	Transition(bar int, mode player.Mode) error
	CancelPending() bool
}

// Songs lists playable files. *catalog.Library satisfies it.
type Songs interface {
	ListSongs() ([]string, error)
}

// Events hands out subscriptions. *events.Broadcaster satisfies it.
type Events interface {
	Subscribe(buf int) (<-chan events.Event, func())
}

type Config struct {
	Controller Controller
	Songs      Songs
	Events     Events
	Log        *logrus.Entry
	// EventBuffer is the queue length of each subscription.
	EventBuffer int
}

type Server struct {
	ctrl   Controller
	songs  Songs
	events Events
	log    *logrus.Entry
	buf    int

	mu     sync.Mutex
	owner  *conn
	conns  map[*conn]struct{}
	ln     net.Listener
	closed bool
	wg     sync.WaitGroup
}

func New(cfg Config) *Server {
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Server{
		ctrl:   cfg.Controller,
		songs:  cfg.Songs,
		events: cfg.Events,
		log:    log.WithField("component", "ipc"),
		buf:    cfg.EventBuffer,
		conns:  make(map[*conn]struct{}),
	}
}

// Listen binds the unix socket at path, replacing a stale socket file.
func (s *Server) Listen(path string) (net.Listener, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "remove stale socket")
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s", path)
	}
	s.log.WithField("socket", path).Info("listening")
	return ln, nil
}

// Serve accepts connections until Close. It returns nil after Close.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return nil
	}
	s.ln = ln
	s.mu.Unlock()

	for {
		c, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return errors.Wrap(err, "accept")
		}
		s.ServeConn(c)
	}
}

// ServeConn handles c on its own goroutine.
func (s *Server) ServeConn(c net.Conn) {
	cc := &conn{Conn: c}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		c.Close()
		return
	}
	s.conns[cc] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.handle(cc)
	}()
}

// Close stops accepting, drops every connection and waits for handlers.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}

func (s *Server) handle(c *conn) {
	log := s.log.WithField("conn", c.id())
	log.Debug("connected")
	defer func() {
		s.releaseOwner(c)
		c.unsubscribe()
		c.Close()
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		log.Debug("disconnected")
	}()

	sc := bufio.NewScanner(c)
	for sc.Scan() {
		if err := s.dispatch(c, sc.Text()); err != nil {
			log.WithError(err).Debug("write failed")
			return
		}
	}
}

// === control ownership ===

func (s *Server) isOwner(c *conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner == c
}

// claimOwner makes c the owner if nobody is. It reports whether c owns
// control afterwards and whether it just became owner.
func (s *Server) claimOwner(c *conn) (owner, claimed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owner == nil {
		s.owner = c
		return true, true
	}
	return s.owner == c, false
}

// releaseOwner frees control when c leaves. Playback carries on.
func (s *Server) releaseOwner(c *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owner == c {
		s.owner = nil
		s.log.Info("control released")
	}
}

// === connection ===

type conn struct {
	net.Conn
	wmu   sync.Mutex
	unsub func()
}

func (c *conn) id() string {
	if a := c.RemoteAddr(); a != nil && a.String() != "" {
		return a.String()
	}
	return "local"
}

func (c *conn) writeLine(line string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err := c.Write([]byte(line + "\n"))
	return err
}

func (c *conn) unsubscribe() {
	if c.unsub != nil {
		c.unsub()
		c.unsub = nil
	}
}

// subscribe forwards events to c until it unsubscribes. It is idempotent.
func (s *Server) subscribe(c *conn) {
	if c.unsub != nil || s.events == nil {
		return
	}
	ch, cancel := s.events.Subscribe(s.buf)
	c.unsub = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for ev := range ch {
			if err := c.writeLine(ev.Line()); err != nil {
				c.Close()
				return
			}
		}
	}()
}
