package utils

import (
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/communityconnect/server/config"
)

// MailConfigured reports whether SMTP settings are present.
func MailConfigured() bool {
	cfg := config.Get()
	return cfg.SMTPHost != "" && cfg.SMTPFrom != ""
}

// SendMail sends a plain text email using SMTP settings from config.
func SendMail(to, subject, body string) error {
	cfg := config.Get()
	if !MailConfigured() {
		return fmt.Errorf("smtp not configured")
	}
	addr := net.JoinHostPort(cfg.SMTPHost, strconv.Itoa(cfg.SMTPPort))
	auth := smtp.PlainAuth("", cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPHost)

	fromName := cfg.SMTPFromName
	if fromName == "" {
		fromName = "Community Connect"
	}
	msg := buildMessage(fmt.Sprintf("%s <%s>", mime.BEncoding.Encode("UTF-8", fromName), cfg.SMTPFrom), to, subject, body)

	if !cfg.SMTPTLS {
		return smtp.SendMail(addr, auth, cfg.SMTPFrom, []string{to}, msg)
	}

	// STARTTLS with timeouts
	d := net.Dialer{Timeout: 5 * time.Second}
	conn, err := d.Dial("tcp", addr)
	if err != nil {
		return err
	}
	_ = conn.SetDeadline(time.Now().Add(15 * time.Second))
	c, err := smtp.NewClient(conn, cfg.SMTPHost)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer c.Close()
	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: cfg.SMTPHost}); err != nil {
			return err
		}
	}
	if cfg.SMTPUsername != "" {
		if err := c.Auth(auth); err != nil {
			return err
		}
	}
	if err := c.Mail(cfg.SMTPFrom); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	wc, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := wc.Write(msg); err != nil {
		_ = wc.Close()
		return err
	}
	if err := wc.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + mime.BEncoding.Encode("UTF-8", subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

// ModerationMail renders the notification sent to a listing owner.
func ModerationMail(username, kind, title, action, reason string) (string, string) {
	subject := fmt.Sprintf("Your %s \"%s\" was %s", kind, title, pastTense(action))
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", username)
	fmt.Fprintf(&b, "An administrator %s your %s \"%s\".\n", pastTense(action), kind, title)
	if reason != "" {
		fmt.Fprintf(&b, "\nReason: %s\n", reason)
	}
	b.WriteString("\nCommunity Connect\n")
	return subject, b.String()
}

func pastTense(action string) string {
	switch action {
	case ActionApprove:
		return "approved"
	case ActionReject:
		return "rejected"
	case ActionArchive:
		return "archived"
	case ActionRemove:
		return "removed"
	default:
		return action + "d"
	}
}

// NotifyAsync sends mail in the background when SMTP is configured.
func NotifyAsync(to, subject, body string) {
	if to == "" || !MailConfigured() {
		return
	}
	go func() {
		if err := SendMail(to, subject, body); err != nil {
			Logger.Warn("send notification mail failed", zap.String("to", to), zap.Error(err))
		}
	}()
}
