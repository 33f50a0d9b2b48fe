package genai

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AssadourKH/NEWAIBOT/internal/models"
	"github.com/openai/openai-go"
)

// mockChatService implements chatService for testing.
type mockChatService struct {
	resp   openai.ChatCompletion
	err    error
	params openai.ChatCompletionNewParams
}

func (m *mockChatService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	m.params = params
	return m.resp, m.err
}

func replyOf(content string) openai.ChatCompletion {
	return openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}
}

func TestComplete_Success(t *testing.T) {
	mock := &mockChatService{resp: replyOf("Hello! What would you like to order?")}
	client := &Client{chat: mock, model: "test-model", temperature: 0.7, topP: 0.95, maxTokens: 100}

	out, err := client.Complete(context.Background(), []models.ChatMessage{
		{Role: models.ChatRoleUser, Content: "hi earlier"},
		{Role: models.ChatRoleAssistant, Content: "hello earlier"},
		{Role: models.ChatRoleSystem, Content: "You are the ordering assistant."},
		{Role: models.ChatRoleUser, Content: "hi"},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "Hello! What would you like to order?" {
		t.Errorf("unexpected reply %q", out)
	}
	if len(mock.params.Messages) != 4 {
		t.Fatalf("expected 4 messages sent, got %d", len(mock.params.Messages))
	}
	if mock.params.Model != "test-model" {
		t.Errorf("expected model test-model, got %s", mock.params.Model)
	}
	if mock.params.Messages[2].OfSystem == nil {
		t.Error("expected third message to be a system message")
	}
	if mock.params.Messages[1].OfAssistant == nil {
		t.Error("expected second message to be an assistant message")
	}
}

func TestComplete_ServiceError(t *testing.T) {
	client := &Client{chat: &mockChatService{err: errors.New("service failure")}, model: "m"}
	_, err := client.Complete(context.Background(), []models.ChatMessage{{Role: models.ChatRoleUser, Content: "x"}})
	if err == nil || !strings.Contains(err.Error(), "service failure") {
		t.Errorf("expected service failure error, got %v", err)
	}
}

func TestComplete_NoChoices(t *testing.T) {
	client := &Client{chat: &mockChatService{resp: openai.ChatCompletion{}}, model: "m"}
	_, err := client.Complete(context.Background(), nil)
	if !errors.Is(err, ErrNoChoicesReturned) {
		t.Errorf("expected ErrNoChoicesReturned, got %v", err)
	}
}

func TestNewClient_NoKey(t *testing.T) {
	if _, err := NewClient(); err == nil {
		t.Error("expected error when API key not provided, got nil")
	}
}

func TestNewClient_WithKey(t *testing.T) {
	cli, err := NewClient(WithAPIKey("test-key"), WithModel("gpt-test"), WithTemperature(0.2))
	if err != nil {
		t.Fatalf("expected no error with API key, got %v", err)
	}
	if cli.model != "gpt-test" || cli.temperature != 0.2 || cli.topP != DefaultTopP {
		t.Errorf("options not applied: %+v", cli)
	}
}

func TestNewClient_Azure(t *testing.T) {
	cli, err := NewClient(
		WithAPIKey("test-key"),
		WithAzureEndpoint("https://example.openai.azure.com/", ""),
		WithModel("orders-deployment"),
	)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cli.model != "orders-deployment" {
		t.Errorf("expected deployment as model, got %s", cli.model)
	}
}

func TestDebugLogging(t *testing.T) {
	dir := t.TempDir()
	client := &Client{
		chat:      &mockChatService{resp: replyOf("Test response")},
		model:     "test-model",
		debugMode: true,
		stateDir:  dir,
	}
	if _, err := client.Complete(context.Background(), []models.ChatMessage{{Role: models.ChatRoleUser, Content: "hi"}}); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	files, err := os.ReadDir(filepath.Join(dir, "debug"))
	if err != nil || len(files) != 1 {
		t.Fatalf("expected one debug file, got %d (err %v)", len(files), err)
	}
	content, err := os.ReadFile(filepath.Join(dir, "debug", files[0].Name()))
	if err != nil {
		t.Fatalf("failed to read debug file: %v", err)
	}
	var entry map[string]interface{}
	if err := json.Unmarshal(content, &entry); err != nil {
		t.Fatalf("failed to unmarshal debug log: %v", err)
	}
	for _, field := range []string{"timestamp", "method", "model", "params", "response"} {
		if _, ok := entry[field]; !ok {
			t.Errorf("required field %q missing from debug log", field)
		}
	}
	if entry["method"] != "Complete" || entry["model"] != "test-model" {
		t.Errorf("unexpected method/model: %v/%v", entry["method"], entry["model"])
	}
}

func TestDebugLoggingDisabled(t *testing.T) {
	dir := t.TempDir()
	client := &Client{chat: &mockChatService{resp: replyOf("ok")}, model: "m", stateDir: dir}
	if _, err := client.Complete(context.Background(), nil); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "debug")); !os.IsNotExist(err) {
		t.Error("debug directory should not be created when debug mode is disabled")
	}
}
