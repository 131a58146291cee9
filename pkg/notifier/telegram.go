package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"costscan/pkg/config"
	"costscan/pkg/importer"
	"costscan/pkg/logger"

	"go.uber.org/zap"
)

// TelegramNotifier delivers operator alerts through the Telegram bot API
type TelegramNotifier struct {
	config     *config.TelegramConfig
	httpClient *http.Client
}

var _ importer.Notifier = (*TelegramNotifier)(nil)

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
	ErrorCode   int    `json:"error_code,omitempty"`
}

func NewTelegramNotifier(cfg *config.TelegramConfig) *TelegramNotifier {
	return &TelegramNotifier{
		config: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
	}
}

// SendMessage sends a message to the configured chat. Disabled notifiers
// swallow messages silently so callers never need to branch.
func (t *TelegramNotifier) SendMessage(ctx context.Context, message string) error {
	if !t.config.Enabled {
		logger.Debug("telegram notifications disabled")
		return nil
	}

	if t.config.BotToken == "" || t.config.ChatID == "" {
		return fmt.Errorf("telegram bot token or chat id not configured")
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.config.BotToken)

	payload, err := json.Marshal(telegramMessage{
		ChatID:    t.config.ChatID,
		Text:      message,
		ParseMode: "Markdown",
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	var tgResp telegramResponse
	if err := json.NewDecoder(resp.Body).Decode(&tgResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if !tgResp.OK {
		return fmt.Errorf("telegram API error: %s (code: %d)", tgResp.Description, tgResp.ErrorCode)
	}

	logger.Debug("telegram message sent", zap.Int("length", len(message)))
	return nil
}

// ValidateConfig checks the notifier settings when enabled
func (t *TelegramNotifier) ValidateConfig() error {
	if !t.config.Enabled {
		return nil
	}
	if t.config.BotToken == "" {
		return fmt.Errorf("telegram bot token is required when enabled")
	}
	if t.config.ChatID == "" {
		return fmt.Errorf("telegram chat id is required when enabled")
	}
	return nil
}
