package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"gopkg.in/gomail.v2"
)

// Config 是 SMTP 連線設定
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type mailerOptions struct {
	logger *slog.Logger
}

type MailerOption func(*mailerOptions)

// WithMailerLogger 設置日誌記錄器
func WithMailerLogger(logger *slog.Logger) MailerOption {
	return func(o *mailerOptions) {
		o.logger = logger
	}
}

// Mailer 透過 SMTP 寄送拍賣通知信件。
// 每次寄送都重新撥號，流量低的通知信不值得維護連線池。
type Mailer struct {
	dialer *gomail.Dialer
	from   string
	logger *slog.Logger
}

// New 建立 SMTP 信件協作者
func New(config Config, opts ...MailerOption) (*Mailer, error) {
	if config.Host == "" {
		return nil, errors.New("smtp host cannot be empty")
	}
	if config.From == "" {
		return nil, errors.New("from address cannot be empty")
	}

	// 默認選項
	options := mailerOptions{
		logger: slog.Default(),
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}

	return &Mailer{
		dialer: gomail.NewDialer(config.Host, config.Port, config.Username, config.Password),
		from:   config.From,
		logger: options.logger.With(slog.String("caller", "Mailer")),
	}, nil
}

// SendWinnerEmail 通知得標者拍賣結果
func (m *Mailer) SendWinnerEmail(ctx context.Context, to, itemTitle string) error {
	subject := fmt.Sprintf("Congratulations! You won the auction for %s", itemTitle)
	body := fmt.Sprintf(
		"Dear bidder,\n\nYou have won the auction for %q. Please check your account for details.\n\nThank you for participating!",
		itemTitle)
	return m.send(ctx, to, subject, body)
}

// SendOutbidEmail 通知被超越的出價者目前的最高出價
func (m *Mailer) SendOutbidEmail(ctx context.Context, to, itemTitle string, newAmount, yourAmount decimal.Decimal) error {
	subject := fmt.Sprintf("You've been outbid on %s", itemTitle)
	body := fmt.Sprintf(
		"Dear bidder,\n\nYour bid of $%s on %q has been outbid. The new highest bid is $%s.\n\nYou can place a new bid to stay in the running!\n\nThank you for participating!",
		yourAmount, itemTitle, newAmount)
	return m.send(ctx, to, subject, body)
}

func (m *Mailer) send(ctx context.Context, to, subject, body string) error {
	const op = "Mailer.send"
	if err := ctx.Err(); err != nil {
		return err
	}

	message := gomail.NewMessage()
	message.SetHeader("From", m.from)
	message.SetHeader("To", to)
	message.SetHeader("Subject", subject)
	message.SetBody("text/plain", body)

	if err := m.dialer.DialAndSend(message); err != nil {
		return fmt.Errorf("[%s] Fail to send email, err=%w", op, err)
	}

	m.logger.Info("Email sent", slog.String("to", to), slog.String("subject", subject))
	return nil
}
