// Package chat implements the study helper: a thin Gemini client with a
// steering prompt, plus task-list verbs handled locally without touching
// the model.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/studyfocus/focusmon/internal/domain"
)

// DefaultBaseURL is the Gemini generateContent endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/models/gemini-pro:generateContent"

// steeringPrompt keeps the model on topic and short.
const steeringPrompt = "You are a helpful work/study assistant. Answer this work/study question clearly and concisely. " +
	"If the question seems like a distraction or unrelated to working, steer the user back to work. " +
	"Remember to be friendly and helpful but limit your responses to 60 words.: "

// fallbackReply is returned when the model answers with an empty or
// malformed candidate list.
const fallbackReply = "Sorry, I couldn't generate a response."

var (
	doneVerb   = regexp.MustCompile(`^done\s+(\d+)$`)
	removeVerb = regexp.MustCompile(`^remove\s+task\s+(\d+)$`)
)

// Assistant answers chat messages. Task verbs (add task, list tasks,
// done N, remove task N) are executed against the task store; everything
// else goes to the model.
type Assistant struct {
	apiKey  string
	baseURL string
	httpc   *http.Client
	tasks   domain.TaskStore
	logger  *zap.Logger
}

// New creates an assistant. baseURL may be empty for the default.
func New(apiKey, baseURL string, tasks domain.TaskStore, logger *zap.Logger) *Assistant {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Assistant{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: 60 * time.Second},
		tasks:   tasks,
		logger:  logger,
	}
}

// Reply answers one message.
func (a *Assistant) Reply(ctx context.Context, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", fmt.Errorf("empty message")
	}

	if reply, handled, err := a.tryTaskVerb(message); handled {
		return reply, err
	}

	if a.apiKey == "" {
		return "", fmt.Errorf("no API key configured; set GEMINI_API_KEY")
	}
	return a.ask(ctx, message)
}

// tryTaskVerb executes task-list commands locally.
func (a *Assistant) tryTaskVerb(message string) (string, bool, error) {
	lower := strings.ToLower(message)

	switch {
	case strings.HasPrefix(lower, "add task "):
		text := strings.TrimSpace(message[len("add task "):])
		task, err := a.tasks.Add(text)
		if err != nil {
			return "", true, err
		}
		return fmt.Sprintf("Added task %d: %s", task.ID, task.Text), true, nil

	case lower == "list tasks" || lower == "tasks":
		tasks, err := a.tasks.List()
		if err != nil {
			return "", true, err
		}
		return FormatTaskList(tasks), true, nil

	case doneVerb.MatchString(lower):
		id, _ := strconv.ParseInt(doneVerb.FindStringSubmatch(lower)[1], 10, 64)
		if err := a.tasks.Complete(id); err != nil {
			return "", true, err
		}
		return fmt.Sprintf("Marked task %d done. Nice.", id), true, nil

	case removeVerb.MatchString(lower):
		id, _ := strconv.ParseInt(removeVerb.FindStringSubmatch(lower)[1], 10, 64)
		if err := a.tasks.Remove(id); err != nil {
			return "", true, err
		}
		return fmt.Sprintf("Removed task %d.", id), true, nil
	}

	return "", false, nil
}

// FormatTaskList renders tasks for display in chat and CLI output.
func FormatTaskList(tasks []domain.Task) string {
	if len(tasks) == 0 {
		return "No tasks yet. Try: add task <text>"
	}
	var b strings.Builder
	for _, t := range tasks {
		mark := "[ ]"
		if t.Done {
			mark = "[x]"
		}
		fmt.Fprintf(&b, "%s %d. %s\n", mark, t.ID, t.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}

// generateRequest and generateResponse mirror the generateContent wire
// format, reduced to the fields used here.
type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (a *Assistant) ask(ctx context.Context, question string) (string, error) {
	payload := generateRequest{
		Contents: []content{{Parts: []part{{Text: steeringPrompt + question}}}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"?key="+a.apiKey, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("reach model: %w", err)
	}
	defer resp.Body.Close()

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode model response: %w", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("model error: %s", out.Error.Message)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		a.logger.Warn("model returned no candidates")
		return fallbackReply, nil
	}
	return out.Candidates[0].Content.Parts[0].Text, nil
}
