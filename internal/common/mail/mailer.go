// Package mail speaks SMTP for the direct SMTP tier and the relay server.
package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"github.com/google/uuid"

	"notification-dispatch/internal/common/config"
)

// Envelope is one outbound message.
type Envelope struct {
	From    mail.Address
	To      string
	ReplyTo string
	Subject string
	Text    string
	HTML    string
	Headers map[string]string
}

type Mailer struct {
	cfg    config.SMTPConfig
	dialer net.Dialer
}

func New(cfg config.SMTPConfig) *Mailer {
	timeout := config.GetDuration(cfg.Timeout)
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Mailer{cfg: cfg, dialer: net.Dialer{Timeout: timeout}}
}

func (m *Mailer) addr() string {
	return net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
}

// Verify performs the connection handshake (greeting, EHLO, STARTTLS when
// configured) and quits without sending.
func (m *Mailer) Verify(ctx context.Context) error {
	client, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()
	return client.Quit()
}

// Send delivers env and returns the Message-ID it was sent with.
func (m *Mailer) Send(ctx context.Context, env Envelope) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context cancelled before sending email: %w", err)
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), m.cfg.Host)
	msg, err := BuildMessage(env, messageID, time.Now())
	if err != nil {
		return "", err
	}

	client, err := m.connect(ctx)
	if err != nil {
		return "", err
	}
	defer client.Close()

	if m.cfg.Username != "" && m.cfg.Password != "" {
		auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
		if err = client.Auth(auth); err != nil {
			return "", fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err = client.Mail(env.From.Address); err != nil {
		return "", fmt.Errorf("failed to set sender: %w", err)
	}
	if err = client.Rcpt(env.To); err != nil {
		return "", fmt.Errorf("failed to set recipient %s: %w", env.To, err)
	}

	w, err := client.Data()
	if err != nil {
		return "", fmt.Errorf("failed to open data writer: %w", err)
	}
	if _, err = w.Write(msg); err != nil {
		return "", fmt.Errorf("failed to write message: %w", err)
	}
	if err = w.Close(); err != nil {
		return "", fmt.Errorf("failed to close data writer: %w", err)
	}

	// The server accepted DATA; a failed QUIT does not undo delivery.
	_ = client.Quit()
	return messageID, nil
}

func (m *Mailer) connect(ctx context.Context) (*smtp.Client, error) {
	conn, err := m.dialer.DialContext(ctx, "tcp", m.addr())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	tlsConfig := &tls.Config{ServerName: m.cfg.Host}

	// Port 465 expects TLS from the first byte.
	if m.cfg.Port == 465 {
		conn = tls.Client(conn, tlsConfig)
	}

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("SMTP greeting failed: %w", err)
	}

	if m.cfg.UseTLS && m.cfg.Port != 465 {
		if err = client.StartTLS(tlsConfig); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to start TLS: %w", err)
		}
	}
	return client, nil
}

// BuildMessage renders env as RFC 5322 bytes. Text and HTML together become
// multipart/alternative; bodies are quoted-printable UTF-8.
func BuildMessage(env Envelope, messageID string, now time.Time) ([]byte, error) {
	var buf bytes.Buffer

	header := func(k, v string) {
		fmt.Fprintf(&buf, "%s: %s\r\n", k, v)
	}

	header("From", env.From.String())
	header("To", env.To)
	if env.ReplyTo != "" {
		header("Reply-To", env.ReplyTo)
	}
	header("Subject", mime.BEncoding.Encode("UTF-8", env.Subject))
	header("Date", now.Format(time.RFC1123Z))
	header("Message-ID", messageID)
	for k, v := range env.Headers {
		header(textproto.CanonicalMIMEHeaderKey(k), v)
	}
	header("MIME-Version", "1.0")

	switch {
	case env.Text != "" && env.HTML != "":
		mw := multipart.NewWriter(&buf)
		header("Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", mw.Boundary()))
		buf.WriteString("\r\n")
		for _, part := range []struct{ ctype, body string }{
			{"text/plain", env.Text},
			{"text/html", env.HTML},
		} {
			pw, err := mw.CreatePart(textproto.MIMEHeader{
				"Content-Type":              {part.ctype + "; charset=UTF-8"},
				"Content-Transfer-Encoding": {"quoted-printable"},
			})
			if err != nil {
				return nil, err
			}
			if err := writeQP(pw, part.body); err != nil {
				return nil, err
			}
		}
		if err := mw.Close(); err != nil {
			return nil, err
		}

	default:
		ctype, body := "text/plain", env.Text
		if env.HTML != "" {
			ctype, body = "text/html", env.HTML
		}
		header("Content-Type", ctype+"; charset=UTF-8")
		header("Content-Transfer-Encoding", "quoted-printable")
		buf.WriteString("\r\n")
		if err := writeQP(&buf, body); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

func writeQP(w io.Writer, body string) error {
	qp := quotedprintable.NewWriter(w)
	if _, err := qp.Write([]byte(body)); err != nil {
		return err
	}
	return qp.Close()
}
