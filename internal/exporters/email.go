package exporters

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"net/smtp"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"com.duole/query-export-go/internal/config"
)

// EmailSender SMTP 邮件发送器，支持附件
type EmailSender struct {
	cfg config.EmailConfig
}

// NewEmailSender 创建邮件发送器
func NewEmailSender(cfg config.EmailConfig) *EmailSender {
	return &EmailSender{cfg: cfg}
}

// Configured 检查 SMTP 是否已配置
func (s *EmailSender) Configured() bool {
	return s.cfg.SMTPServer != "" && s.cfg.From != ""
}

// SendWithAttachment 发送带附件的邮件。attachmentPath 为空时发送纯文本邮件。
func (s *EmailSender) SendWithAttachment(recipients []string, subject, body, attachmentPath string) error {
	if !s.Configured() {
		return fmt.Errorf("未配置SMTP服务器")
	}
	if len(recipients) == 0 {
		return fmt.Errorf("没有邮件接收人")
	}

	msg, err := s.buildMessage(recipients, subject, body, attachmentPath)
	if err != nil {
		return err
	}

	addr := s.cfg.SMTPServer + ":" + s.cfg.SMTPPort
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.SMTPServer)
	}

	if err := smtp.SendMail(addr, auth, s.cfg.From, recipients, msg); err != nil {
		return fmt.Errorf("发送邮件失败: %w", err)
	}

	log.Info().Strs("recipients", recipients).Str("subject", subject).Msg("邮件发送成功")
	return nil
}

// buildMessage 构造 multipart/mixed 邮件报文，附件走 base64 编码
func (s *EmailSender) buildMessage(recipients []string, subject, body, attachmentPath string) ([]byte, error) {
	boundary := fmt.Sprintf("==boundary_%d==", time.Now().UnixNano())

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(recipients, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=\"%s\"\r\n", boundary)
	buf.WriteString("\r\n")

	// 正文
	fmt.Fprintf(&buf, "--%s\r\n", boundary)
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	buf.WriteString("Content-Transfer-Encoding: base64\r\n")
	buf.WriteString("\r\n")
	writeBase64(&buf, []byte(body))

	// 附件
	if attachmentPath != "" {
		data, err := os.ReadFile(attachmentPath)
		if err != nil {
			return nil, fmt.Errorf("读取附件 '%s' 失败: %w", attachmentPath, err)
		}
		filename := filepath.Base(attachmentPath)

		fmt.Fprintf(&buf, "--%s\r\n", boundary)
		fmt.Fprintf(&buf, "Content-Type: application/octet-stream; name=\"%s\"\r\n", filename)
		buf.WriteString("Content-Transfer-Encoding: base64\r\n")
		fmt.Fprintf(&buf, "Content-Disposition: attachment; filename=\"%s\"\r\n",
			mime.BEncoding.Encode("utf-8", filename))
		buf.WriteString("\r\n")
		writeBase64(&buf, data)
	}

	fmt.Fprintf(&buf, "--%s--\r\n", boundary)
	return buf.Bytes(), nil
}

// writeBase64 按 RFC 2045 的 76 列换行写入 base64 内容
func writeBase64(buf *bytes.Buffer, data []byte) {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 76 {
		buf.WriteString(encoded[:76])
		buf.WriteString("\r\n")
		encoded = encoded[76:]
	}
	buf.WriteString(encoded)
	buf.WriteString("\r\n")
}
