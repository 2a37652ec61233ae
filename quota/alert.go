package quota

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/skillsenselab/transcribed/logger"
)

// SMTPConfig holds the mail relay configuration for quota alerts.
type SMTPConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	From     string `yaml:"from" mapstructure:"from"`
}

// SMTPAlerter delivers quota alerts by mail to the operator addresses.
// When no operator addresses are configured it falls back to the single
// fallback contact address.
type SMTPAlerter struct {
	cfg       SMTPConfig
	operators []string
	fallback  string
}

// NewSMTPAlerter creates a mail-based alerter.
func NewSMTPAlerter(cfg SMTPConfig, operators []string, fallback string) *SMTPAlerter {
	return &SMTPAlerter{cfg: cfg, operators: operators, fallback: fallback}
}

// SendQuotaAlert sends the usage summary to every recipient.
func (a *SMTPAlerter) SendQuotaAlert(_ context.Context, alert Alert) error {
	recipients := a.operators
	if len(recipients) == 0 && a.fallback != "" {
		recipients = []string{a.fallback}
	}
	if len(recipients) == 0 {
		return fmt.Errorf("quota: no alert recipients configured")
	}

	subject := fmt.Sprintf("Transcription quota alert: %.1f%% used in %s", alert.Percent, alert.Month)
	body := fmt.Sprintf(
		"Monthly transcription usage has reached %d of %d minutes (%.1f%%).\r\n"+
			"New jobs will be blocked once the quota is exhausted.\r\n",
		alert.UsedMinutes, alert.QuotaMinutes, alert.Percent,
	)
	msg := []byte(fmt.Sprintf("From: %s\r\nSubject: %s\r\n\r\n%s", a.cfg.From, subject, body))

	var auth smtp.Auth
	if a.cfg.Username != "" {
		auth = smtp.PlainAuth("", a.cfg.Username, a.cfg.Password, a.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", a.cfg.Host, a.cfg.Port)
	if err := smtp.SendMail(addr, auth, a.cfg.From, recipients, msg); err != nil {
		return fmt.Errorf("quota: send alert mail: %w", err)
	}
	return nil
}

// LogAlerter writes quota alerts to the service log. Used when no mail relay
// is configured so threshold crossings are still visible to operators.
type LogAlerter struct {
	log *logger.Logger
}

// NewLogAlerter creates a log-based alerter.
func NewLogAlerter(log *logger.Logger) *LogAlerter {
	return &LogAlerter{log: log.WithComponent("quota-alert")}
}

// SendQuotaAlert logs the usage summary at warn level.
func (a *LogAlerter) SendQuotaAlert(_ context.Context, alert Alert) error {
	a.log.Warn("monthly quota threshold crossed", logger.Fields(
		"month", alert.Month,
		"used_minutes", alert.UsedMinutes,
		"quota_minutes", alert.QuotaMinutes,
		"percent", fmt.Sprintf("%.1f", alert.Percent),
	))
	return nil
}

var (
	_ Alerter = (*SMTPAlerter)(nil)
	_ Alerter = (*LogAlerter)(nil)
)
