package notify

import (
	"context"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomail "github.com/wneessen/go-mail"

	"github.com/hamed0406/uptimealert/internal/config"
)

type receivedMail struct {
	from string
	to   []string
	data string
}

// smtpServer is a minimal in-process relay. rejectMail makes MAIL FROM fail
// with that reply; silent accepts connections and never greets.
type smtpServer struct {
	ln         net.Listener
	rejectMail string
	silent     bool

	mu    sync.Mutex
	msgs  []receivedMail
	conns []net.Conn
}

func startSMTP(t *testing.T, configure func(*smtpServer)) *smtpServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &smtpServer{ln: ln}
	if configure != nil {
		configure(s)
	}
	t.Cleanup(func() {
		_ = ln.Close()
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, c := range s.conns {
			_ = c.Close()
		}
	})
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			s.mu.Lock()
			s.conns = append(s.conns, conn)
			s.mu.Unlock()
			if !s.silent {
				go s.serve(conn)
			}
		}
	}()
	return s
}

func (s *smtpServer) port() int { return s.ln.Addr().(*net.TCPAddr).Port }

func (s *smtpServer) received() []receivedMail {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]receivedMail(nil), s.msgs...)
}

func angleAddr(arg string) string {
	_, rest, _ := strings.Cut(arg, "<")
	addr, _, _ := strings.Cut(rest, ">")
	return addr
}

func (s *smtpServer) serve(conn net.Conn) {
	tp := textproto.NewConn(conn)
	defer tp.Close()
	_ = tp.PrintfLine("220 test ESMTP")
	var cur receivedMail
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		cmd := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(cmd, "EHLO"):
			_ = tp.PrintfLine("250-test")
			_ = tp.PrintfLine("250 8BITMIME")
		case strings.HasPrefix(cmd, "MAIL FROM:"):
			if s.rejectMail != "" {
				_ = tp.PrintfLine("%s", s.rejectMail)
				continue
			}
			cur = receivedMail{from: angleAddr(line)}
			_ = tp.PrintfLine("250 ok")
		case strings.HasPrefix(cmd, "RCPT TO:"):
			cur.to = append(cur.to, angleAddr(line))
			_ = tp.PrintfLine("250 ok")
		case cmd == "DATA":
			_ = tp.PrintfLine("354 go ahead")
			lines, err := tp.ReadDotLines()
			if err != nil {
				return
			}
			cur.data = strings.Join(lines, "\n")
			s.mu.Lock()
			s.msgs = append(s.msgs, cur)
			s.mu.Unlock()
			_ = tp.PrintfLine("250 queued")
		case cmd == "QUIT":
			_ = tp.PrintfLine("221 bye")
			return
		default:
			_ = tp.PrintfLine("250 ok")
		}
	}
}

func newTestMail(t *testing.T, srv *smtpServer) *Mail {
	t.Helper()
	m, err := NewMail(config.SMTPConfig{Server: "127.0.0.1", Port: srv.port(), From: "uptime@example.org"})
	require.NoError(t, err)
	m.TLSPolicy = gomail.NoTLS
	m.Timeout = 5 * time.Second
	m.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	return m
}

func TestMail_SendUsesMonitorMailbox(t *testing.T) {
	srv := startSMTP(t, nil)
	m := newTestMail(t, srv)
	require.NoError(t, m.Send(context.Background(), "api", "monitor api returned HTTP 500"))

	got := srv.received()
	require.Len(t, got, 1)
	assert.Equal(t, "uptime@example.org", got[0].from)
	assert.Equal(t, []string{"api@example.org"}, got[0].to)
	assert.Contains(t, got[0].data, "Subject: uptime alert: api")
	assert.Contains(t, got[0].data, "monitor api returned HTTP 500")
}

func TestMail_SendToRecipient(t *testing.T) {
	srv := startSMTP(t, nil)
	m := newTestMail(t, srv)
	require.NoError(t, m.SendTo(context.Background(), "ops@example.com", "down"))

	got := srv.received()
	require.Len(t, got, 1)
	assert.Equal(t, []string{"ops@example.com"}, got[0].to)
	assert.Contains(t, got[0].data, "Subject: uptime alert")
}

func TestMail_RejectsBadRecipient(t *testing.T) {
	srv := startSMTP(t, nil)
	m := newTestMail(t, srv)
	require.Error(t, m.SendTo(context.Background(), "not an address", "down"))
	assert.Empty(t, srv.received())
}

func TestMail_TransportError(t *testing.T) {
	srv := startSMTP(t, func(s *smtpServer) { s.rejectMail = "421 try later" })
	m := newTestMail(t, srv)
	require.Error(t, m.Send(context.Background(), "api", "down"))
	assert.Empty(t, srv.received())
}

func TestMail_SilentServerHonoursContextDeadline(t *testing.T) {
	srv := startSMTP(t, func(s *smtpServer) { s.silent = true })
	m := newTestMail(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := m.SendTo(ctx, "a@example.com", "down")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestMail_SilentServerHonoursTimeout(t *testing.T) {
	srv := startSMTP(t, func(s *smtpServer) { s.silent = true })
	m := newTestMail(t, srv)
	m.Timeout = 200 * time.Millisecond

	start := time.Now()
	err := m.Send(context.Background(), "api", "down")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestNewMail_Validation(t *testing.T) {
	_, err := NewMail(config.SMTPConfig{Server: "smtp.example.org"})
	assert.Error(t, err)
	_, err = NewMail(config.SMTPConfig{Server: "smtp.example.org", From: "@@"})
	assert.Error(t, err)

	m, err := NewMail(config.SMTPConfig{Server: "smtp.example.org", From: "a@b.io", Username: "u", Password: "p"})
	require.NoError(t, err)
	assert.Equal(t, 587, m.Port)
	assert.Equal(t, DefaultMailTimeout, m.Timeout)
	assert.Equal(t, gomail.TLSOpportunistic, m.TLSPolicy)
	assert.Equal(t, "u", m.Username)
	assert.Equal(t, "smtp.example.org", m.Host)
}
