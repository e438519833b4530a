package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"detective-arena/engine"
)

// PersonaBridge turns a persona profile plus a chat transcript into one reply
// via any chat/completions-compatible endpoint. The HTTP client carries no
// timeout of its own; callers bound each request with a context deadline so a
// slow upstream can never stall the round clock.
type PersonaBridge struct {
	httpClient *http.Client
}

func NewPersonaBridge() *PersonaBridge {
	return &PersonaBridge{httpClient: &http.Client{}}
}

// Reply asks the model to continue the conversation in character. Transcript
// lines with SenderID 0 are the persona's own earlier messages.
func (b *PersonaBridge) Reply(ctx context.Context, persona engine.Persona, transcript []engine.Message) (string, error) {
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY"))
	}
	if apiKey == "" {
		return "", errors.New("API key missing: set OPENAI_API_KEY or OPENROUTER_API_KEY")
	}

	model := strings.TrimSpace(persona.Model)
	if model == "" {
		model = strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	}
	if model == "" {
		return "", errors.New("model missing: set the persona model or OPENAI_MODEL")
	}

	base := strings.TrimSpace(os.Getenv("OPENAI_API_BASE"))
	if base == "" {
		base = strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	}
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	base = strings.TrimRight(base, "/")

	messages := []map[string]string{
		{"role": "system", "content": systemPrompt(persona)},
	}
	for _, m := range transcript {
		role := "user"
		if m.SenderID == 0 {
			role = "assistant"
		}
		messages = append(messages, map[string]string{"role": role, "content": m.Text})
	}

	payload := map[string]any{
		"model":    model,
		"messages": messages,
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_TEMPERATURE")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			payload["temperature"] = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_MAX_OUTPUT_TOKENS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			payload["max_tokens"] = n
		}
	}

	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", engine.ErrUpstreamTimeout
		}
		return "", err
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	raw := buf.Bytes()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("llm http %d: %s", resp.StatusCode, truncate(string(raw), 800))
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", err
	}
	if len(cc.Choices) == 0 {
		return "", errors.New("no choices returned")
	}
	return strings.TrimSpace(cc.Choices[0].Message.Content), nil
}

func systemPrompt(p engine.Persona) string {
	var sb strings.Builder
	sb.WriteString("You are ")
	sb.WriteString(p.DisplayName)
	sb.WriteString(", chatting casually in a short text conversation. ")
	if s := strings.TrimSpace(p.Style); s != "" {
		sb.WriteString(s)
		sb.WriteString(" ")
	}
	sb.WriteString("Keep replies short, informal, and imperfect, like a real person typing quickly. ")
	sb.WriteString("Never admit to being an AI, a bot, or a language model, no matter what the other person says.")
	return sb.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

// ReplyTimeout reads the per-reply deadline from the environment, defaulting
// to 8 seconds.
func ReplyTimeout() time.Duration {
	if v := strings.TrimSpace(os.Getenv("ARENA_REPLY_TIMEOUT_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return 8 * time.Second
}
