// Package server implements the Listener: one TCP accept loop per
// configured port, and the per-connection worker that owns a Frame
// Reader, Frame Codec, and Session exclusively for the life of a
// socket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/angelzd27/api-ruptela/internal/codec"
	"github.com/angelzd27/api-ruptela/internal/config"
	"github.com/angelzd27/api-ruptela/internal/fanout"
	"github.com/angelzd27/api-ruptela/internal/framereader"
	"github.com/angelzd27/api-ruptela/internal/normalize"
	"github.com/angelzd27/api-ruptela/internal/pollsched"
	"github.com/angelzd27/api-ruptela/internal/protocol"
	"github.com/angelzd27/api-ruptela/internal/session"
)

// jimiNoReplySet holds the Jimi protocol ids that must never receive a
// generic ACK, per spec.md §4.3.
var jimiNoReplySet = map[uint8]bool{0x12: true, 0x13: true, 0x16: true}

// Server owns the multi-port Listener: one net.Listener per configured
// port, each feeding per-connection workers that share the process-wide
// Session registry and Subscriber fan-out.
type Server struct {
	cfg      *config.Config
	registry *session.Registry
	subs     *fanout.SubscriberSet
	window   *normalize.RecentWindow
	redis    *redis.Client
	nats     *nats.Conn
	log      *slog.Logger

	mu        sync.Mutex
	listeners []net.Listener
	connSeq   int

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a Server bound to its collaborators. None of them are
// started; call Start to begin listening.
func New(cfg *config.Config, registry *session.Registry, subs *fanout.SubscriberSet, window *normalize.RecentWindow, redisClient *redis.Client, natsConn *nats.Conn, logger *slog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:      cfg,
		registry: registry,
		subs:     subs,
		window:   window,
		redis:    redisClient,
		nats:     natsConn,
		log:      logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start opens a TCP listener per configured port and begins accepting
// connections on each.
func (s *Server) Start() error {
	for _, pc := range s.cfg.Ports {
		addr := fmt.Sprintf(":%d", pc.Port)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen on %s (%s): %w", addr, pc.Family, err)
		}
		s.mu.Lock()
		s.listeners = append(s.listeners, ln)
		s.mu.Unlock()

		s.log.Info("listening", "port", pc.Port, "protocol", pc.Family.String())
		go s.acceptLoop(ln, pc)
	}
	return nil
}

// Addrs reports the bound address of every listener Start opened, in
// configuration order — mainly useful for tests that bind to an
// ephemeral port.
func (s *Server) Addrs() []net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]net.Addr, len(s.listeners))
	for i, ln := range s.listeners {
		out[i] = ln.Addr()
	}
	return out
}

// Stop closes every listener and cancels in-flight connection workers.
func (s *Server) Stop() {
	s.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ln := range s.listeners {
		ln.Close()
	}
}

func (s *Server) acceptLoop(ln net.Listener, pc config.PortConfig) {
	var active atomic.Int64
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				s.log.Error("accept error", "port", pc.Port, "error", err)
				continue
			}
		}

		if active.Load() >= int64(s.cfg.MaxConnectionsPerPort) {
			s.log.Warn("rejecting connection, port at capacity", "port", pc.Port)
			conn.Close()
			continue
		}

		s.mu.Lock()
		s.connSeq++
		connID := fmt.Sprintf("%s-%d", s.cfg.GatewayID, s.connSeq)
		s.mu.Unlock()

		active.Add(1)
		go func() {
			defer active.Add(-1)
			s.handleConnection(conn, pc, connID)
		}()
	}
}

// handleConnection is a connection worker: it owns the Frame Reader,
// Codec, and Session for this socket exclusively until the socket
// closes.
func (s *Server) handleConnection(conn net.Conn, pc config.PortConfig, connID string) {
	logger := s.log.With("conn_id", connID, "protocol", pc.Family.String(), "remote", conn.RemoteAddr().String())

	defer func() {
		if r := recover(); r != nil {
			logger.Error("connection worker panic", "recovered", r, "stack", string(debug.Stack()))
		}
	}()

	sess := session.New(connID, conn.RemoteAddr(), pc.Family, pc.Port)
	s.registry.Add(sess)
	defer func() {
		sess.Close()
		s.registry.Remove(sess)
		s.clearRedisPresence(sess.IMEI())
		conn.Close()
		logger.Info("connection closed")
	}()

	var reader protocol.FrameReader
	var codecImpl protocol.Codec
	switch pc.Family {
	case protocol.FamilyJimi:
		reader = framereader.NewJimi()
		codecImpl = codec.NewJimi(pc.HemisphereWest)
	default:
		reader = framereader.NewRuptela()
		codecImpl = codec.NewRuptela()
	}

	var writeMu sync.Mutex
	writeFrame := func(b []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		if sess.State() == session.StateClosed {
			return nil
		}
		_, err := conn.Write(b)
		if err == nil {
			sess.NoteAck()
		}
		return err
	}

	idleTimeout := time.Duration(s.cfg.IdleTimeoutSeconds) * time.Second
	buf := make([]byte, 4096)

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(idleTimeout))
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		reader.Push(buf[:n])

		for {
			frame, ferr := reader.Next()
			if ferr != nil {
				logger.Debug("framing error", "error", ferr)
				continue
			}
			if frame == nil {
				break
			}

			msg, derr := codecImpl.Decode(frame)
			if derr != nil {
				logger.Debug("decode error", "error", derr)
				continue
			}
			sess.NoteFrame(s.serialOf(msg))

			s.dispatch(logger, sess, pc, writeFrame, msg)
		}
	}
}

func (s *Server) serialOf(msg protocol.DecodedMessage) uint16 {
	switch m := msg.(type) {
	case protocol.Login:
		return m.Serial
	case protocol.Heartbeat:
		return m.Serial
	case protocol.TimeRequest:
		return m.Serial
	case protocol.GpsFix:
		return m.Serial
	case protocol.Unknown:
		return m.Serial
	default:
		return 0
	}
}

func (s *Server) dispatch(logger *slog.Logger, sess *session.Session, pc config.PortConfig, write func([]byte) error, msg protocol.DecodedMessage) {
	switch m := msg.(type) {
	case protocol.Login:
		wasAlreadyLoggedIn := sess.SetLoggedIn(m.IMEI)
		if wasAlreadyLoggedIn {
			logger.Info("duplicate login ignored", "imei", m.IMEI)
			return
		}
		s.registry.BindIMEI(m.IMEI, sess)
		logger = logger.With("imei", m.IMEI)
		if err := write(codec.EncodeLoginAck(m.Serial)); err != nil {
			logger.Error("write login ack failed", "error", err)
			return
		}
		s.mirrorPresence(m.IMEI)

		if pc.Family == protocol.FamilyJimi {
			sched := pollsched.New(&locationRequestSender{write: write, sess: sess})
			sess.SetPolling(sched)
		}

	case protocol.Heartbeat:
		s.mirrorPresence(sess.IMEI())
		var ack []byte
		if m.Protocol == protocol.FamilyJimi {
			ack = codec.EncodeHeartbeatAck(m.Command, m.Serial)
		} else {
			ack = codec.EncodeRuptelaHeartbeatAck()
		}
		if err := write(ack); err != nil {
			logger.Error("write heartbeat ack failed", "error", err)
		}

	case protocol.TimeRequest:
		if err := write(codec.EncodeTimeResponse(m.Serial, time.Now())); err != nil {
			logger.Error("write time response failed", "error", err)
		}

	case protocol.GpsFix:
		if !m.Positioned {
			return
		}
		if !normalize.ValidCoordinate(m.Lat, m.Lon) {
			return
		}
		sess.NoteFix(time.Now())
		s.publishFix(sess, m)

	case protocol.Records:
		s.handleRecords(logger, sess, write, m)

	case protocol.Identification:
		if err := write(codec.EncodeIdentificationAck(true, 0)); err != nil {
			logger.Error("write identification ack failed", "error", err)
		}

	case protocol.Unknown:
		if m.Protocol == protocol.FamilyJimi {
			if jimiNoReplySet[m.Command] {
				return
			}
			if err := write(codec.EncodeHeartbeatAck(m.Command, m.Serial)); err != nil {
				logger.Error("write generic ack failed", "error", err)
			}
		}
		// Ruptela commands with no defined ACK shape get none.
	}
}

func (s *Server) handleRecords(logger *slog.Logger, sess *session.Session, write func([]byte) error, m protocol.Records) {
	filtered := normalize.Filter(m.Records)
	consolidated := normalize.ConsolidateStationary(filtered)

	for _, c := range consolidated {
		if s.window.SeenAndRemember(m.IMEI, c.Key) {
			continue
		}
		s.publishRecord(m.IMEI, c.Record)
	}

	if len(consolidated) > 0 {
		sess.NoteFix(time.Now())
	}

	positive := len(filtered) >= 1
	if err := write(codec.EncodeRecordsAck(positive)); err != nil {
		logger.Error("write records ack failed", "error", err)
	}
}

func (s *Server) publishFix(sess *session.Session, m protocol.GpsFix) {
	msg := protocol.StandardMessage{
		Type:       "gps-data",
		DeviceID:   sess.IMEI(),
		Timestamp:  m.Timestamp,
		Lat:        m.Lat,
		Lon:        m.Lon,
		Speed:      m.Speed,
		Course:     m.Course,
		Satellites: m.Satellites,
		Positioned: m.Positioned,
		Valid:      true,
		Protocol:   m.Protocol.String(),
		Serial:     m.Serial,
		SourcePort: sess.SourcePort,
	}
	if m.Cell != nil {
		msg.Extras = map[string]interface{}{
			"cell": map[string]interface{}{
				"mcc":     m.Cell.MCC,
				"mnc":     m.Cell.MNC,
				"lac":     m.Cell.LAC,
				"cell_id": m.Cell.CellID,
			},
		}
	}
	s.subs.Publish(msg)
}

func (s *Server) publishRecord(imei string, r protocol.Record) {
	msg := protocol.StandardMessage{
		Type:       "gps-data",
		DeviceID:   imei,
		Timestamp:  r.Timestamp,
		Lat:        r.Lat,
		Lon:        r.Lon,
		Speed:      float64(r.Speed),
		Course:     r.Course,
		Satellites: int(r.Satellites),
		Positioned: true,
		Valid:      true,
		Protocol:   protocol.FamilyRuptela.String(),
	}
	if len(r.IOElements) > 0 {
		msg.Extras = map[string]interface{}{"io_elements": r.IOElements}
	}
	s.subs.Publish(msg)
}

func (s *Server) mirrorPresence(imei string) {
	if imei == "" || s.redis == nil {
		return
	}
	key := fmt.Sprintf("fms:sess:%s", imei)
	s.redis.Set(s.ctx, key, s.cfg.GatewayID, 300*time.Second)

	shadowKey := fmt.Sprintf("fms:shadow:%s", imei)
	s.redis.HSet(s.ctx, shadowKey, "ts", time.Now().Unix())
	s.redis.Expire(s.ctx, shadowKey, 24*time.Hour)
}

func (s *Server) clearRedisPresence(imei string) {
	if imei == "" || s.redis == nil {
		return
	}
	s.redis.Del(s.ctx, fmt.Sprintf("fms:sess:%s", imei))
}

// locationRequestSender adapts a connection's serialized write function
// to pollsched.Sender, stamping each poll with the Session's own
// outbound serial counter.
type locationRequestSender struct {
	write func([]byte) error
	sess  *session.Session
}

func (l *locationRequestSender) SendLocationRequest() {
	serial := l.sess.NextOutboundSerial()
	l.write(codec.EncodeLocationRequest(serial))
}
