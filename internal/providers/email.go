package providers

import (
	"fmt"
	"time"

	"chamber-monitor/internal/config"
	"chamber-monitor/internal/models"
	"chamber-monitor/pkg/email"
)

// SendEmail mails one alert to the configured recipient over SMTP.
func SendEmail(task models.Task, cfg config.Config) error {
	if cfg.Email.SMTPServer == "" || cfg.Email.SMTPPort == 0 || cfg.Email.Username == "" || cfg.Email.Password == "" {
		return fmt.Errorf("missing Email configuration: SMTPServer, SMTPPort, Username, or Password is empty")
	}
	if cfg.Email.Recipient == "" {
		return fmt.Errorf("missing EMAIL_RECIPIENT")
	}

	subject := fmt.Sprintf("[%s] %s", task.Severity, task.Title)
	body := fmt.Sprintf("%s\nValue: %s\nAt: %s\n\n%s",
		task.Title,
		task.ValueText,
		time.UnixMilli(task.TS).UTC().Format("2006-01-02 15:04:05 MST"),
		task.Suggestion,
	)

	return email.Send(cfg.Email.SMTPServer, cfg.Email.SMTPPort, cfg.Email.Username, cfg.Email.Password, cfg.Email.Recipient, subject, body)
}
