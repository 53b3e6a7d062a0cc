//go:build linux

package network

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/hashicorp/go-metrics"
	"golang.org/x/sys/unix"

	log "github.com/Geal/proust/logging"
)

// reserved event ids, connection events carry the token index which is never negative
const (
	listenerID = -1
	wakeID     = -2
)

// DefaultMaxEvents is the number of events fetched per wait
const DefaultMaxEvents = 256

// Config of the event loop server
type Config struct {
	// Address is host:port, an empty host listens on every IPv4 interface
	Address string
	// MaxFrameSize closes connections announcing a larger frame, 0 disables the check
	MaxFrameSize int32
	MaxEvents    int
}

// Server is a single threaded epoll event loop accepting connections and
// driving one Session per connection
type Server struct {
	cfg        Config
	dispatcher Dispatcher

	listenFd int
	epollFd  int
	wakeFd   int
	addr     *net.TCPAddr

	conns connTable
}

// NewServer binds and listens on cfg.Address
func NewServer(cfg Config, d Dispatcher) (*Server, error) {
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = DefaultMaxEvents
	}
	sa, family, err := socketAddress(cfg.Address)
	if err != nil {
		return nil, err
	}
	s := &Server{cfg: cfg, dispatcher: d, listenFd: -1, epollFd: -1, wakeFd: -1}
	if err := s.setup(sa, family); err != nil {
		s.Close()
		return nil, err
	}
	log.Info("listening on %v", s.addr)
	return s, nil
}

func (s *Server) setup(sa unix.Sockaddr, family int) error {
	var err error
	s.listenFd, err = unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetsockoptInt(s.listenFd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("setsockopt: %w", err)
	}
	if err := unix.Bind(s.listenFd, sa); err != nil {
		return fmt.Errorf("bind %v: %w", s.cfg.Address, err)
	}
	if err := unix.Listen(s.listenFd, unix.SOMAXCONN); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	local, err := unix.Getsockname(s.listenFd)
	if err != nil {
		return fmt.Errorf("getsockname: %w", err)
	}
	s.addr = tcpAddr(local)

	if s.epollFd, err = unix.EpollCreate1(unix.EPOLL_CLOEXEC); err != nil {
		return fmt.Errorf("epoll_create: %w", err)
	}
	if s.wakeFd, err = unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC); err != nil {
		return fmt.Errorf("eventfd: %w", err)
	}
	if err := unix.EpollCtl(s.epollFd, unix.EPOLL_CTL_ADD, s.listenFd, &unix.EpollEvent{Events: unix.EPOLLIN, Fd: listenerID}); err != nil {
		return fmt.Errorf("registering listener: %w", err)
	}
	if err := unix.EpollCtl(s.epollFd, unix.EPOLL_CTL_ADD, s.wakeFd, &unix.EpollEvent{Events: unix.EPOLLIN, Fd: wakeID}); err != nil {
		return fmt.Errorf("registering eventfd: %w", err)
	}
	return nil
}

func socketAddress(address string) (unix.Sockaddr, int, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid address %q: %w", address, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return nil, 0, fmt.Errorf("invalid port %q", portStr)
	}
	var ip net.IP
	if host != "" {
		if ip = net.ParseIP(host); ip == nil {
			addrs, err := net.LookupIP(host)
			if err != nil || len(addrs) == 0 {
				return nil, 0, fmt.Errorf("resolving %q: %w", host, err)
			}
			ip = addrs[0]
		}
	}
	if ip == nil || ip.To4() != nil {
		sa := &unix.SockaddrInet4{Port: port}
		if ip != nil {
			copy(sa.Addr[:], ip.To4())
		}
		return sa, unix.AF_INET, nil
	}
	sa := &unix.SockaddrInet6{Port: port}
	copy(sa.Addr[:], ip.To16())
	return sa, unix.AF_INET6, nil
}

func tcpAddr(sa unix.Sockaddr) *net.TCPAddr {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(a.Addr[:]).To16(), Port: a.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(a.Addr[:]), Port: a.Port}
	}
	return &net.TCPAddr{}
}

// Addr returns the bound address, useful when listening on port 0
func (s *Server) Addr() *net.TCPAddr {
	return s.addr
}

// Connections returns the number of open connections.
// It must only be called from the event loop goroutine or after Run returned.
func (s *Server) Connections() int {
	return s.conns.len()
}

// Run processes events until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, s.wake)
	defer stop()

	events := make([]unix.EpollEvent, s.cfg.MaxEvents)
	for {
		n, err := unix.EpollWait(s.epollFd, events, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("epoll_wait: %w", err)
		}
		for _, ev := range events[:n] {
			switch ev.Fd {
			case listenerID:
				if err := s.accept(); err != nil {
					return err
				}
			case wakeID:
				s.drainWake()
				if ctx.Err() != nil {
					log.Info("event loop stopping, %d connections open", s.conns.len())
					return nil
				}
			default:
				s.handle(ev)
			}
		}
	}
}

func (s *Server) wake() {
	var one [8]byte
	binary.NativeEndian.PutUint64(one[:], 1)
	if _, err := unix.Write(s.wakeFd, one[:]); err != nil && err != unix.EAGAIN {
		log.Error("waking event loop: %v", err)
	}
}

func (s *Server) drainWake() {
	var buf [8]byte
	for {
		if _, err := unix.Read(s.wakeFd, buf[:]); err != nil {
			return
		}
	}
}

func (s *Server) accept() error {
	for {
		fd, peer, err := unix.Accept4(s.listenFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			switch err {
			case unix.EAGAIN:
				return nil
			case unix.EINTR, unix.ECONNABORTED:
				continue
			case unix.EMFILE, unix.ENFILE, unix.ENOBUFS, unix.ENOMEM:
				log.Error("accept: %v, %d connections open", err, s.conns.len())
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
			log.Debug("setting TCP_NODELAY: %v", err)
		}
		sess := NewSession(&fdConn{fd: fd}, tcpAddr(peer).String(), s.dispatcher, s.cfg.MaxFrameSize)
		tok := s.conns.insert(sess)
		ev := &unix.EpollEvent{
			Events: unix.EPOLLIN | unix.EPOLLOUT | unix.EPOLLRDHUP | unix.EPOLLET,
			Fd:     int32(tok.Index),
			Pad:    int32(tok.Generation),
		}
		if err := unix.EpollCtl(s.epollFd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
			log.Error("registering connection from %v: %v", sess.Peer, err)
			s.conns.remove(tok)
			unix.Close(fd)
			continue
		}
		metrics.IncrCounter([]string{"network", "accepted"}, 1)
		metrics.SetGauge([]string{"network", "connections"}, float32(s.conns.len()))
		log.Debug("accepted connection %v from %v as %v", sess.ID, sess.Peer, tok)
	}
}

func (s *Server) handle(ev unix.EpollEvent) {
	tok := Token{Index: uint32(ev.Fd), Generation: uint32(ev.Pad)}
	sess, ok := s.conns.get(tok)
	if !ok {
		log.Debug("ignoring event for stale token %v", tok)
		return
	}
	res := Continue
	if ev.Events&(unix.EPOLLIN|unix.EPOLLRDHUP|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
		res = sess.OnReadable()
	}
	if res == Continue && ev.Events&unix.EPOLLOUT != 0 {
		res = sess.OnWritable()
	}
	if res == ShouldClose || ev.Events&(unix.EPOLLHUP|unix.EPOLLERR) != 0 {
		s.closeSession(tok)
	}
}

func (s *Server) closeSession(tok Token) {
	sess, ok := s.conns.remove(tok)
	if !ok {
		return
	}
	if err := sess.Close(); err != nil {
		log.Debug("%v", err)
	}
	metrics.IncrCounter([]string{"network", "closed"}, 1)
	metrics.SetGauge([]string{"network", "connections"}, float32(s.conns.len()))
	log.Debug("closed connection %v from %v", sess.ID, sess.Peer)
}

// Close releases the listener, the event loop descriptors and every open connection.
// It must not be called while Run is active.
func (s *Server) Close() error {
	var errs []error
	for _, sess := range s.conns.sessions() {
		s.closeSession(sess.Token)
	}
	for _, fd := range []*int{&s.listenFd, &s.wakeFd, &s.epollFd} {
		if *fd >= 0 {
			if err := unix.Close(*fd); err != nil {
				errs = append(errs, err)
			}
			*fd = -1
		}
	}
	return errors.Join(errs...)
}
