package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strconv"
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Service handles email sending via SMTP
type Service struct {
	host     string
	port     int
	username string
	password string
	from     string
	send     sendFunc
}

// NewService creates a new email service. Credentials are optional; without
// them mail is relayed unauthenticated.
func NewService(host string, port int, username, password, from string) *Service {
	return &Service{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		send:     smtp.SendMail,
	}
}

// SendTickets mails the tickets of a paid order.
func (s *Service) SendTickets(ctx context.Context, to string, mail TicketMail) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := BuildTicketsBody(mail)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("Your tickets for %s (order %s)", mail.SaleName, shortID(mail.OrderID))
	return s.deliver(to, subject, body)
}

func (s *Service) deliver(to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		s.from, to, subject, body)
	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}
	addr := s.host + ":" + strconv.Itoa(s.port)
	if err := s.send(addr, auth, s.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
