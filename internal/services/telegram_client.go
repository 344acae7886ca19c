package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/leonid-shevtsov/telegold"
	"github.com/yuin/goldmark"
)

const (
	telegramAPIBaseURL   = "https://api.telegram.org"
	telegramMaxChunkSize = 4000 // Telegram caps messages at 4096 chars
)

// Telegram Markdown converter using telegold (goldmark with Telegram HTML renderer)
var telegramMarkdownConverter = goldmark.New(goldmark.WithRenderer(telegold.NewRenderer()))

var (
	codeBlockPattern = regexp.MustCompile("```[a-zA-Z]*\\n([\\s\\S]*?)```")
	headerPattern    = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	linkPattern      = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
)

// TelegramClient sends bot messages through the Telegram Bot API
type TelegramClient struct {
	botToken   string
	baseURL    string
	httpClient *http.Client
	chunkDelay time.Duration
}

// NewTelegramClient creates a client for botToken. baseURL may be empty.
func NewTelegramClient(botToken, baseURL string) *TelegramClient {
	if baseURL == "" {
		baseURL = telegramAPIBaseURL
	}
	return &TelegramClient{
		botToken:   botToken,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		chunkDelay: 300 * time.Millisecond,
	}
}

// Enabled reports whether a bot token is configured
func (c *TelegramClient) Enabled() bool {
	return c != nil && c.botToken != ""
}

// convertToTelegramHTML converts standard Markdown to Telegram-compatible HTML
func convertToTelegramHTML(text string) string {
	var buf bytes.Buffer
	if err := telegramMarkdownConverter.Convert([]byte(text), &buf); err != nil {
		log.Printf("⚠️ [TELEGRAM] Markdown conversion failed: %v", err)
		return text
	}
	return buf.String()
}

// SendMessage sends text to chatID, splitting it when it exceeds Telegram's limit
func (c *TelegramClient) SendMessage(ctx context.Context, chatID int64, text string) error {
	if !c.Enabled() {
		return fmt.Errorf("telegram bot token not configured")
	}

	chunks := splitMessageIntoChunks(text, telegramMaxChunkSize)
	if len(chunks) > 1 {
		log.Printf("📨 [TELEGRAM] Splitting message (%d chars) into %d chunks", len(text), len(chunks))
	}

	for i, chunk := range chunks {
		if len(chunks) > 1 {
			chunk = fmt.Sprintf("**[Part %d/%d]**\n\n%s", i+1, len(chunks), chunk)
		}
		if err := c.sendOne(ctx, chatID, chunk); err != nil {
			return fmt.Errorf("failed to send chunk %d/%d: %w", i+1, len(chunks), err)
		}
		if i < len(chunks)-1 && c.chunkDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.chunkDelay):
			}
		}
	}
	return nil
}

// sendOne posts a single message as HTML, retrying as plain text when
// Telegram rejects the markup
func (c *TelegramClient) sendOne(ctx context.Context, chatID int64, text string) error {
	status, body, err := c.post(ctx, map[string]interface{}{
		"chat_id":    chatID,
		"text":       convertToTelegramHTML(text),
		"parse_mode": "HTML",
	})
	if err != nil {
		return err
	}
	if status == http.StatusOK {
		return nil
	}

	if !strings.Contains(body, "can't parse entities") {
		return fmt.Errorf("telegram API error: %s", body)
	}

	log.Printf("⚠️ [TELEGRAM] HTML parsing failed, retrying without parse_mode")
	status, body, err = c.post(ctx, map[string]interface{}{
		"chat_id": chatID,
		"text":    stripMarkdown(text),
	})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("telegram API error (plain): %s", body)
	}
	return nil
}

func (c *TelegramClient) post(ctx context.Context, payload map[string]interface{}) (int, string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, "", fmt.Errorf("failed to marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, "", fmt.Errorf("failed to create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("failed to send Telegram message: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(respBody), nil
}

// stripMarkdown removes Markdown formatting for plain text fallback
func stripMarkdown(text string) string {
	text = strings.ReplaceAll(text, "**", "")
	text = strings.ReplaceAll(text, "__", "")
	text = codeBlockPattern.ReplaceAllString(text, "$1")
	text = strings.ReplaceAll(text, "`", "")
	text = strings.ReplaceAll(text, "~~", "")
	text = headerPattern.ReplaceAllString(text, "")
	text = linkPattern.ReplaceAllString(text, "$1 ($2)")
	return text
}

// splitMessageIntoChunks splits a message into chunks of at most maxSize
// bytes, preferring code block, paragraph, line, sentence and word boundaries
func splitMessageIntoChunks(text string, maxSize int) []string {
	if len(text) <= maxSize {
		return []string{text}
	}

	var chunks []string
	remaining := text

	for len(remaining) > 0 {
		if len(remaining) <= maxSize {
			chunks = append(chunks, remaining)
			break
		}

		chunk := remaining[:maxSize]
		breakPoint := maxSize

		if idx := strings.LastIndex(chunk, "\n```"); idx > maxSize/2 {
			breakPoint = idx + 1
		} else if idx := strings.LastIndex(chunk, "```\n"); idx > maxSize/2 {
			breakPoint = idx + 4
		} else if idx := strings.LastIndex(chunk, "\n\n"); idx > maxSize/2 {
			breakPoint = idx + 2
		} else if idx := strings.LastIndex(chunk, "\n"); idx > maxSize/2 {
			breakPoint = idx + 1
		} else if idx := strings.LastIndex(chunk, ". "); idx > maxSize/2 {
			breakPoint = idx + 2
		} else if idx := strings.LastIndex(chunk, " "); idx > maxSize/2 {
			breakPoint = idx + 1
		}

		chunks = append(chunks, strings.TrimSpace(remaining[:breakPoint]))
		remaining = strings.TrimSpace(remaining[breakPoint:])
	}

	return chunks
}
