package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/mail"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"

	"github.com/hamed0406/uptimealert/internal/config"
	"github.com/hamed0406/uptimealert/internal/domain"
)

// DefaultMailTimeout bounds one delivery when smtp.timeout is unset.
const DefaultMailTimeout = 30 * time.Second

// Mail delivers alerts as plain-text email over SMTP.
type Mail struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
	// Timeout bounds a whole delivery, dial to QUIT.
	Timeout   time.Duration
	TLSPolicy gomail.TLSPolicy

	now func() time.Time
}

func NewMail(c config.SMTPConfig) (*Mail, error) {
	if c.Server == "" || c.From == "" {
		return nil, errors.New("notify: smtp server and from are required")
	}
	if _, err := mail.ParseAddress(c.From); err != nil {
		return nil, fmt.Errorf("notify: smtp from: %w", err)
	}
	m := &Mail{
		Host:      c.Server,
		Port:      c.Port,
		From:      c.From,
		Username:  c.Username,
		Password:  c.Password,
		Timeout:   c.Timeout,
		TLSPolicy: gomail.TLSOpportunistic,
		now:       time.Now,
	}
	if m.Port == 0 {
		m.Port = 587
	}
	if m.Timeout <= 0 {
		m.Timeout = DefaultMailTimeout
	}
	return m, nil
}

// Send mails the monitor's own mailbox, <monitorID>@<domain of From>.
func (m *Mail) Send(ctx context.Context, monitorID domain.MonitorID, message string) error {
	return m.deliver(ctx, m.monitorMailbox(monitorID), "uptime alert: "+string(monitorID), message)
}

func (m *Mail) SendTo(ctx context.Context, recipient, message string) error {
	return m.deliver(ctx, recipient, "uptime alert", message)
}

func (m *Mail) monitorMailbox(id domain.MonitorID) string {
	host := "localhost"
	if a, err := mail.ParseAddress(m.From); err == nil {
		if i := strings.LastIndex(a.Address, "@"); i >= 0 {
			host = a.Address[i+1:]
		}
	}
	return string(id) + "@" + host
}

func (m *Mail) deliver(ctx context.Context, to, subject, body string) error {
	if _, err := mail.ParseAddress(to); err != nil {
		return fmt.Errorf("notify: recipient %q: %w", to, err)
	}
	ctx, cancel := context.WithTimeout(ctx, m.Timeout)
	defer cancel()

	msg := gomail.NewMsg()
	if err := msg.From(m.From); err != nil {
		return fmt.Errorf("notify: smtp from: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("notify: recipient %q: %w", to, err)
	}
	msg.Subject(subject)
	msg.SetDateWithValue(m.now())
	msg.SetBodyString(gomail.TypeTextPlain, body)

	opts := []gomail.Option{
		gomail.WithPort(m.Port),
		gomail.WithTimeout(m.Timeout),
		gomail.WithTLSPolicy(m.TLSPolicy),
		gomail.WithDialContextFunc(boundDialer(ctx)),
	}
	if m.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(m.Username),
			gomail.WithPassword(m.Password),
		)
	}
	client, err := gomail.NewClient(m.Host, opts...)
	if err != nil {
		return fmt.Errorf("notify: smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("notify: smtp to %s: %w", to, err)
	}
	return nil
}

// boundDialer ties each connection to ctx: it inherits ctx's deadline and
// times out as soon as ctx ends, so a server that stops answering cannot
// hold a delivery open.
func boundDialer(ctx context.Context) gomail.DialContextFunc {
	return func(dialCtx context.Context, network, addr string) (net.Conn, error) {
		var d net.Dialer
		conn, err := d.DialContext(dialCtx, network, addr)
		if err != nil {
			return nil, err
		}
		if deadline, ok := ctx.Deadline(); ok {
			_ = conn.SetDeadline(deadline)
		}
		context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
		return conn, nil
	}
}
