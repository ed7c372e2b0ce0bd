package notify

import (
	"context"
	"strings"
	"time"

	"github.com/samsarahq/go/oops"
	"github.com/wneessen/go-mail"

	"github.com/KevinXing/ilive-tracker/go/crawler"
)

type SMTPConfig struct {
	Host     string
	Port     int
	From     string
	Password string
	To       []string
	// SiteURL is linked from the mail. Default: the rental page.
	SiteURL string
	// Timeout bounds the whole SMTP conversation. Default: 30s.
	Timeout time.Duration
}

func (c *SMTPConfig) defaults() {
	if c.Port == 0 {
		c.Port = 587
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

// SMTPNotifier sends the availability mail over SMTP. STARTTLS is mandatory
// and the sender authenticates with PLAIN when a password is set.
type SMTPNotifier struct {
	config SMTPConfig
	now    func() time.Time
}

func NewSMTPNotifier(cfg SMTPConfig) *SMTPNotifier {
	cfg.defaults()
	return &SMTPNotifier{config: cfg, now: time.Now}
}

func (n *SMTPNotifier) Name() string { return "smtp" }

func (n *SMTPNotifier) Notify(ctx context.Context, delta crawler.Snapshot) error {
	if len(delta) == 0 {
		return nil
	}
	email, err := ComposeEmail(delta, n.config.SiteURL)
	if err != nil {
		return err
	}
	msg, err := newMessage(n.config.From, n.config.To, email, n.now())
	if err != nil {
		return err
	}

	client, err := mail.NewClient(n.config.Host, n.clientOptions()...)
	if err != nil {
		return oops.Wrapf(err, "create smtp client for %s", n.config.Host)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return oops.Wrapf(err, "send mail via %s:%d", n.config.Host, n.config.Port)
	}
	return nil
}

func (n *SMTPNotifier) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(n.config.Port),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithTimeout(n.config.Timeout),
	}
	if n.config.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(n.config.From),
			mail.WithPassword(n.config.Password),
		)
	}
	return opts
}

// newMessage builds a multipart/alternative message with a text and an HTML
// part.
func newMessage(from string, to []string, email *Email, date time.Time) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, oops.Wrapf(err, "invalid sender %q", from)
	}
	if err := msg.To(to...); err != nil {
		return nil, oops.Wrapf(err, "invalid recipients %q", strings.Join(to, ", "))
	}
	msg.Subject(email.Subject)
	msg.SetDateWithValue(date)
	msg.SetBodyString(mail.TypeTextPlain, email.Text)
	msg.AddAlternativeString(mail.TypeTextHTML, email.HTML)
	return msg, nil
}

// ParseRecipients splits a comma separated address list.
func ParseRecipients(s string) []string {
	var out []string
	for _, addr := range strings.Split(s, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}
