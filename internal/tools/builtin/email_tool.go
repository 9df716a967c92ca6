package builtin

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/smtp"
	"strings"

	"backend/internal/config"
)

// EmailTool SMTP 邮件发送工具
type EmailTool struct {
	cfg config.EmailToolConfig
}

// NewEmailTool 创建邮件工具
func NewEmailTool(cfg config.EmailToolConfig) *EmailTool {
	return &EmailTool{cfg: cfg}
}

func (t *EmailTool) Name() string {
	return "email"
}

func (t *EmailTool) Description() string {
	return "发送邮件通知。需要提供收件人、主题和正文。"
}

func (t *EmailTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"to": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "收件人邮箱列表",
			},
			"subject": map[string]any{
				"type":        "string",
				"description": "邮件主题",
			},
			"body": map[string]any{
				"type":        "string",
				"description": "邮件正文",
			},
		},
		"required": []string{"to", "subject", "body"},
	}
}

// Available SMTP 凭证齐全才可用
func (t *EmailTool) Available() bool {
	return t.cfg.SMTPHost != "" && t.cfg.FromAddress != ""
}

func (t *EmailTool) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	toList, err := parseStringArray(input["to"])
	if err != nil || len(toList) == 0 {
		return nil, fmt.Errorf("to is required and must be an array of email addresses")
	}

	subject, _ := input["subject"].(string)
	if subject == "" {
		return nil, fmt.Errorf("subject is required")
	}
	body, _ := input["body"].(string)
	if body == "" {
		return nil, fmt.Errorf("body is required")
	}

	for _, to := range toList {
		if !t.isAllowedRecipient(to) {
			return nil, fmt.Errorf("recipient %s is not in allowed list", to)
		}
	}

	if err := t.sendMail(toList, t.buildMessage(toList, subject, body)); err != nil {
		return nil, fmt.Errorf("failed to send email: %w", err)
	}

	return map[string]any{
		"success":    true,
		"message":    "email sent successfully",
		"recipients": len(toList),
		"subject":    subject,
	}, nil
}

func parseStringArray(v any) ([]string, error) {
	if v == nil {
		return nil, nil
	}
	switch arr := v.(type) {
	case []string:
		return arr, nil
	case []any:
		result := make([]string, 0, len(arr))
		for _, item := range arr {
			if s, ok := item.(string); ok {
				result = append(result, s)
			}
		}
		return result, nil
	default:
		return nil, fmt.Errorf("invalid array type")
	}
}

func (t *EmailTool) isAllowedRecipient(email string) bool {
	if len(t.cfg.AllowedTo) == 0 {
		return true // 无白名单限制
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	domain := strings.ToLower(parts[1])
	for _, allowed := range t.cfg.AllowedTo {
		if strings.ToLower(allowed) == domain {
			return true
		}
	}
	return false
}

func (t *EmailTool) buildMessage(to []string, subject, body string) []byte {
	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s <%s>\r\n", t.cfg.FromName, t.cfg.FromAddress))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(to, ", ")))
	msg.WriteString(fmt.Sprintf("Subject: =?UTF-8?B?%s?=\r\n", base64.StdEncoding.EncodeToString([]byte(subject))))
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)
	return []byte(msg.String())
}

func (t *EmailTool) sendMail(recipients []string, message []byte) error {
	addr := fmt.Sprintf("%s:%d", t.cfg.SMTPHost, t.cfg.SMTPPort)

	var client *smtp.Client
	var err error

	if t.cfg.UseTLS {
		conn, dialErr := tls.Dial("tcp", addr, &tls.Config{ServerName: t.cfg.SMTPHost})
		if dialErr != nil {
			return dialErr
		}
		client, err = smtp.NewClient(conn, t.cfg.SMTPHost)
	} else {
		client, err = smtp.Dial(addr)
	}
	if err != nil {
		return err
	}
	defer client.Close()

	if t.cfg.Username != "" && t.cfg.Password != "" {
		auth := smtp.PlainAuth("", t.cfg.Username, t.cfg.Password, t.cfg.SMTPHost)
		if err := client.Auth(auth); err != nil {
			return err
		}
	}

	if err := client.Mail(t.cfg.FromAddress); err != nil {
		return err
	}
	for _, to := range recipients {
		if err := client.Rcpt(to); err != nil {
			return err
		}
	}

	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(message); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}
