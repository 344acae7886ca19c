package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"aitwin/internal/models"
)

type telegramServer struct {
	*httptest.Server
	mu       sync.Mutex
	payloads []map[string]interface{}
}

func newTelegramServer(t *testing.T, handler func(payload map[string]interface{}) (int, string)) *telegramServer {
	t.Helper()
	ts := &telegramServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bottest-token/sendMessage" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		var payload map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		ts.mu.Lock()
		ts.payloads = append(ts.payloads, payload)
		ts.mu.Unlock()

		status, body := handler(payload)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestTelegramClient_SendsHTML(t *testing.T) {
	ts := newTelegramServer(t, func(map[string]interface{}) (int, string) {
		return http.StatusOK, `{"ok":true}`
	})
	client := NewTelegramClient("test-token", ts.URL)

	if err := client.SendMessage(context.Background(), 42, "see you **tonight**"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	p := ts.payloads[0]
	if p["parse_mode"] != "HTML" || p["chat_id"] != float64(42) {
		t.Errorf("Unexpected payload %v", p)
	}
	if text, _ := p["text"].(string); strings.Contains(text, "**") || !strings.Contains(text, "tonight") {
		t.Errorf("Expected markdown converted to HTML, got %q", text)
	}
}

func TestTelegramClient_RetriesPlainOnParseError(t *testing.T) {
	ts := newTelegramServer(t, func(p map[string]interface{}) (int, string) {
		if p["parse_mode"] == "HTML" {
			return http.StatusBadRequest, `{"ok":false,"description":"Bad Request: can't parse entities"}`
		}
		return http.StatusOK, `{"ok":true}`
	})
	client := NewTelegramClient("test-token", ts.URL)

	if err := client.SendMessage(context.Background(), 42, "## Plan\n**dinner** at [place](https://example.com)"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if len(ts.payloads) != 2 {
		t.Fatalf("Expected HTML attempt plus plain retry, got %d requests", len(ts.payloads))
	}
	if text := ts.payloads[1]["text"]; text != "Plan\ndinner at place (https://example.com)" {
		t.Errorf("Unexpected plain text %q", text)
	}
}

func TestTelegramClient_APIError(t *testing.T) {
	ts := newTelegramServer(t, func(map[string]interface{}) (int, string) {
		return http.StatusForbidden, `{"ok":false,"description":"bot was blocked by the user"}`
	})

	err := NewTelegramClient("test-token", ts.URL).SendMessage(context.Background(), 42, "hi")
	if err == nil || !strings.Contains(err.Error(), "blocked") {
		t.Errorf("Expected API error, got %v", err)
	}
}

func TestTelegramClient_ChunksLongMessages(t *testing.T) {
	ts := newTelegramServer(t, func(map[string]interface{}) (int, string) {
		return http.StatusOK, `{"ok":true}`
	})
	client := NewTelegramClient("test-token", ts.URL)
	client.chunkDelay = 0

	long := strings.Repeat("word ", 1800) // 9000 chars
	if err := client.SendMessage(context.Background(), 42, long); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if len(ts.payloads) != 3 {
		t.Fatalf("Expected 3 chunks, got %d", len(ts.payloads))
	}
	if text, _ := ts.payloads[0]["text"].(string); !strings.Contains(text, "[Part 1/3]") {
		t.Errorf("Expected part marker, got %.40q", text)
	}
}

func TestTelegramClient_Disabled(t *testing.T) {
	client := NewTelegramClient("", "")
	if client.Enabled() {
		t.Error("Expected client without token to be disabled")
	}
	if err := client.SendMessage(context.Background(), 1, "hi"); err == nil {
		t.Error("Expected error without bot token")
	}
}

func TestSplitMessageIntoChunks(t *testing.T) {
	if chunks := splitMessageIntoChunks("short", 100); len(chunks) != 1 || chunks[0] != "short" {
		t.Errorf("Unexpected chunks %v", chunks)
	}

	text := strings.Repeat("a", 60) + "\n\n" + strings.Repeat("b", 60)
	chunks := splitMessageIntoChunks(text, 100)
	if len(chunks) != 2 || chunks[0] != strings.Repeat("a", 60) || chunks[1] != strings.Repeat("b", 60) {
		t.Errorf("Expected split at paragraph boundary, got %q", chunks)
	}

	for _, chunk := range splitMessageIntoChunks(strings.Repeat("x", 250), 100) {
		if len(chunk) > 100 {
			t.Errorf("Chunk exceeds limit: %d", len(chunk))
		}
	}
}

type fakeResponder struct {
	owner, sender, text string
	reply               string
	err                 error
}

func (f *fakeResponder) HandleChannelMessage(ctx context.Context, ownerID, senderName, text string) (string, error) {
	f.owner, f.sender, f.text = ownerID, senderName, text
	return f.reply, f.err
}

type fakeSender struct {
	chatID int64
	text   string
	err    error
}

func (f *fakeSender) SendMessage(ctx context.Context, chatID int64, text string) error {
	f.chatID, f.text = chatID, text
	return f.err
}

func TestTelegramRelay_HandleUpdate(t *testing.T) {
	responder := &fakeResponder{reply: "yes, 8pm!"}
	sender := &fakeSender{}
	relay := NewTelegramRelay(responder, sender, "owner")

	status, err := relay.HandleUpdate(context.Background(), &models.TelegramUpdate{
		Message: &models.TelegramMessage{
			From: &models.TelegramUser{FirstName: "Bob"},
			Chat: &models.TelegramChat{ID: 99},
			Text: "dinner tonight?",
		},
	})
	if err != nil || status != RelayStatusOK {
		t.Fatalf("HandleUpdate = %s, %v", status, err)
	}
	if responder.owner != "owner" || responder.sender != "Bob" || responder.text != "dinner tonight?" {
		t.Errorf("Unexpected relay input %+v", responder)
	}
	if sender.chatID != 99 || sender.text != "yes, 8pm!" {
		t.Errorf("Unexpected delivery %+v", sender)
	}
}

func TestTelegramRelay_IgnoredUpdates(t *testing.T) {
	relay := NewTelegramRelay(&fakeResponder{}, &fakeSender{}, "owner")
	chat := &models.TelegramChat{ID: 1}

	tests := []struct {
		name   string
		update *models.TelegramUpdate
		want   string
	}{
		{"no message", &models.TelegramUpdate{}, RelayStatusIgnored},
		{"no text", &models.TelegramUpdate{Message: &models.TelegramMessage{Chat: chat}}, RelayStatusNoText},
		{"from bot", &models.TelegramUpdate{Message: &models.TelegramMessage{Chat: chat, Text: "beep", From: &models.TelegramUser{IsBot: true}}}, RelayStatusIgnored},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, err := relay.HandleUpdate(context.Background(), tt.update)
			if err != nil || status != tt.want {
				t.Errorf("HandleUpdate = %s, %v; want %s", status, err, tt.want)
			}
		})
	}
}

func TestTelegramRelay_DefaultSenderAndErrors(t *testing.T) {
	responder := &fakeResponder{reply: "hi"}
	relay := NewTelegramRelay(responder, &fakeSender{err: errors.New("network down")}, "owner")

	_, err := relay.HandleUpdate(context.Background(), &models.TelegramUpdate{
		Message: &models.TelegramMessage{Chat: &models.TelegramChat{ID: 1}, Text: "hello"},
	})
	if responder.sender != "Friend" {
		t.Errorf("Expected default sender name, got %q", responder.sender)
	}
	if err == nil || !strings.Contains(err.Error(), "failed to deliver reply") {
		t.Errorf("Expected delivery error, got %v", err)
	}
}
