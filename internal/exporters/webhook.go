package exporters

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// WebhookNotifier 群机器人 Webhook 通知器。
// 消息体为 markdown，支持 HMAC-SHA256 加签（时间戳和签名追加在 URL 上）。
type WebhookNotifier struct {
	defaultURL    string
	defaultSecret string
	fileServerURL string
	client        *http.Client
}

// NewWebhookNotifier 创建 Webhook 通知器。
// defaultURL 和 defaultSecret 是全局配置，任务自带的配置优先。
func NewWebhookNotifier(defaultURL, defaultSecret, fileServerURL string) *WebhookNotifier {
	return &WebhookNotifier{
		defaultURL:    defaultURL,
		defaultSecret: defaultSecret,
		fileServerURL: fileServerURL,
		client:        &http.Client{Timeout: 10 * time.Second},
	}
}

// Configured 检查是否有可用的 Webhook 地址（全局或任务级）
func (n *WebhookNotifier) Configured(taskURL string) bool {
	return taskURL != "" || n.defaultURL != ""
}

// SendSuccess 发送任务成功通知
func (n *WebhookNotifier) SendSuccess(taskURL, taskSecret, template, taskName, filePath string, rowCount int, duration string) error {
	var text string
	if template != "" {
		text = renderTemplate(template, map[string]string{
			"task_name": taskName,
			"file_path": filePath,
			"row_count": strconv.Itoa(rowCount),
			"duration":  duration,
			"time":      time.Now().Format("2006-01-02 15:04:05"),
		})
	} else {
		var b strings.Builder
		b.WriteString("## 数据导出完成\n\n")
		fmt.Fprintf(&b, "**任务名称**: %s\n\n", taskName)
		fmt.Fprintf(&b, "**数据行数**: %d\n\n", rowCount)
		fmt.Fprintf(&b, "**执行耗时**: %s\n\n", duration)
		fmt.Fprintf(&b, "**完成时间**: %s\n\n", time.Now().Format("2006-01-02 15:04:05"))
		if link := n.fileLink(filePath); link != "" {
			fmt.Fprintf(&b, "**下载地址**: [%s](%s)\n", filePath, link)
		}
		text = b.String()
	}
	return n.send(taskURL, taskSecret, "数据导出完成", text)
}

// SendFailure 发送任务失败通知
func (n *WebhookNotifier) SendFailure(taskURL, taskSecret, taskName, executionTime, errorType, errorMessage, duration string) error {
	var b strings.Builder
	b.WriteString("## 数据导出失败\n\n")
	fmt.Fprintf(&b, "**任务名称**: %s\n\n", taskName)
	fmt.Fprintf(&b, "**开始时间**: %s\n\n", executionTime)
	fmt.Fprintf(&b, "**错误类型**: %s\n\n", errorType)
	fmt.Fprintf(&b, "**错误信息**: %s\n\n", errorMessage)
	fmt.Fprintf(&b, "**执行耗时**: %s\n", duration)
	return n.send(taskURL, taskSecret, "数据导出失败", b.String())
}

// send 发送 markdown 消息，任务级地址和密钥优先于全局配置
func (n *WebhookNotifier) send(taskURL, taskSecret, title, text string) error {
	webhookURL := taskURL
	secret := taskSecret
	if webhookURL == "" {
		webhookURL = n.defaultURL
		secret = n.defaultSecret
	}
	if webhookURL == "" {
		return fmt.Errorf("未配置Webhook地址")
	}

	if secret != "" {
		signed, err := signURL(webhookURL, secret)
		if err != nil {
			return fmt.Errorf("Webhook加签失败: %w", err)
		}
		webhookURL = signed
	}

	payload, err := json.Marshal(map[string]any{
		"msgtype": "markdown",
		"markdown": map[string]string{
			"title": title,
			"text":  text,
		},
	})
	if err != nil {
		return fmt.Errorf("构造Webhook消息失败: %w", err)
	}

	resp, err := n.client.Post(webhookURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("发送Webhook请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Webhook返回状态码 %d", resp.StatusCode)
	}

	var result struct {
		ErrCode int    `json:"errcode"`
		ErrMsg  string `json:"errmsg"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && result.ErrCode != 0 {
		return fmt.Errorf("Webhook返回错误: %d %s", result.ErrCode, result.ErrMsg)
	}

	log.Info().Str("title", title).Msg("Webhook通知发送成功")
	return nil
}

// signURL 按机器人加签规范生成带时间戳和签名的 URL。
// 签名内容为 "timestamp\nsecret" 的 HMAC-SHA256 再 base64，
// URL 编码交给 q.Encode 统一做一次，避免双重转义。
func signURL(webhookURL, secret string) (string, error) {
	timestamp := time.Now().UnixMilli()
	payload := fmt.Sprintf("%d\n%s", timestamp, secret)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	sign := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	u, err := url.Parse(webhookURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("timestamp", strconv.FormatInt(timestamp, 10))
	q.Set("sign", sign)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// fileLink 拼接文件下载链接，未配置文件服务器时返回空
func (n *WebhookNotifier) fileLink(filePath string) string {
	if n.fileServerURL == "" || filePath == "" {
		return ""
	}
	return strings.TrimRight(n.fileServerURL, "/") + "/" + url.PathEscape(filepathBase(filePath))
}

func filepathBase(p string) string {
	if idx := strings.LastIndexAny(p, "/\\"); idx >= 0 {
		return p[idx+1:]
	}
	return p
}

// renderTemplate 替换模板中的 {key} 占位符
func renderTemplate(template string, vars map[string]string) string {
	out := template
	for key, value := range vars {
		out = strings.ReplaceAll(out, "{"+key+"}", value)
	}
	return out
}
