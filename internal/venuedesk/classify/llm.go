package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	defaultLLMBase    = "https://api.openai.com/v1"
	defaultLLMModel   = "gpt-4o-mini"
	defaultLLMTimeout = 15 * time.Second
)

// LLMConfig configures the OpenAI-compatible classification provider.
type LLMConfig struct {
	// APIKey is the bearer token used to authenticate against the API.
	APIKey string

	// BaseURL overrides the API endpoint (local models, Azure, any
	// OpenAI-compatible server).  Defaults to https://api.openai.com/v1.
	BaseURL string

	// Model is the chat model to use.  Defaults to gpt-4o-mini.
	Model string

	// Timeout bounds the HTTP round trip.  The engine relies on this bound:
	// on expiry it falls back to the deterministic rule path instead of
	// stalling the turn.  Defaults to 15 s.
	Timeout time.Duration
}

// resultSchema validates the model's JSON output before any field of it is
// trusted.  A response that fails validation is treated as malformed output,
// not silently patched.
const resultSchema = `{
  "type": "object",
  "required": ["intent", "confidence"],
  "properties": {
    "intent": {
      "type": "string",
      "enum": ["confirmation", "decline", "counter_offer", "structural_change",
               "general_question", "escalation_request", "none"]
    },
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "signals": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    },
    "entities": {
      "type": "object",
      "properties": {
        "date": {"type": "string"},
        "headcount": {"type": "integer", "minimum": 0},
        "room_id": {"type": "string"},
        "products": {"type": "array", "items": {"type": "string"}},
        "billing_company": {"type": "string"},
        "billing_address": {"type": "string"},
        "billing_tax_id": {"type": "string"},
        "billing_email": {"type": "string"}
      },
      "additionalProperties": false
    }
  },
  "additionalProperties": true
}`

// llmProvider implements Provider using an OpenAI-compatible chat completion
// API with JSON-mode output.
type llmProvider struct {
	cfg    LLMConfig
	client *http.Client
	schema *jsonschema.Schema
}

// NewLLM returns a Provider backed by an OpenAI-compatible chat API.
// The returned provider is safe for concurrent use.
func NewLLM(cfg LLMConfig) (Provider, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultLLMBase
	}
	if cfg.Model == "" {
		cfg.Model = defaultLLMModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultLLMTimeout
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("result.schema.json", strings.NewReader(resultSchema)); err != nil {
		return nil, fmt.Errorf("classify: add result schema: %w", err)
	}
	schema, err := compiler.Compile("result.schema.json")
	if err != nil {
		return nil, fmt.Errorf("classify: compile result schema: %w", err)
	}

	return &llmProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		schema: schema,
	}, nil
}

// --- minimal OpenAI wire types ---

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	ResponseFormat *chatFormat   `json:"response_format,omitempty"`
}

type chatFormat struct {
	Type string `json:"type"` // "json_object"
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

type chatChoice struct {
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// systemPromptTmpl is the instruction set sent as the "system" message.
// Substitutions, in order: step number, step name context block, known room
// names, known products.
const systemPromptTmpl = `You are the routing classifier of a venue booking desk that negotiates
event bookings over email.

Your only job is to label ONE inbound client message. You never compose the
reply, never change booking state, and never invent facts.

Conversation context:
%s

Known rooms: %s
Known products: %s

RULES (strict):
1. Respond ONLY with valid JSON matching the schema below. No markdown.
2. "structural_change" means the client asserts a change to an already
   agreed decision (event date, room, guest count, product selection).
   Hypothetical or exploratory phrasing ("what if we moved it?") is a
   "general_question", never a "structural_change".
3. Billing or contact details are not a structural change; record them in
   entities and pick the label for the rest of the message.
4. Only bind entities that the client states in their OWN words in this
   message; ignore anything that is quoted from earlier mails.
5. confidence reflects how certain you are about the intent label only.

JSON schema:
{
  "intent": "confirmation" | "decline" | "counter_offer" | "structural_change"
          | "general_question" | "escalation_request" | "none",
  "confidence": 0.0-1.0,
  "signals": {"is_question": "true|false", "is_acceptance": "true|false",
              "wants_manager": "true|false"},
  "entities": {"date": "YYYY-MM-DD", "headcount": 0, "room_id": "",
               "products": [], "billing_company": "", "billing_address": "",
               "billing_tax_id": "", "billing_email": ""}
}`

// Classify sends the cleaned message to the LLM and returns the validated
// Result.  Schema violations and unparseable bodies yield ErrMalformedOutput
// so callers can distinguish "model misbehaved" from transport failures.
func (p *llmProvider) Classify(ctx context.Context, req Request) (*Result, error) {
	system := fmt.Sprintf(systemPromptTmpl,
		contextBlock(req),
		orNone(strings.Join(req.KnownRoomNames, ", ")),
		orNone(strings.Join(req.KnownProducts, ", ")),
	)

	message := req.Cleaned
	if message == "" {
		message = req.Message
	}

	body := chatRequest{
		Model: p.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: message},
		},
		MaxTokens:      512,
		ResponseFormat: &chatFormat{Type: "json_object"},
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("classify: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.BaseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("classify: create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("classify: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("classify: read response body: %w", err)
	}

	var chat chatResponse
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return nil, fmt.Errorf("classify: decode API response: %w", err)
	}
	if chat.Error != nil {
		return nil, fmt.Errorf("classify: API error (%s): %s", chat.Error.Type, chat.Error.Message)
	}
	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("classify: no choices returned (HTTP %d)", resp.StatusCode)
	}

	content := chat.Choices[0].Message.Content

	var raw any
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v (raw content: %.200s)", ErrMalformedOutput, err, content)
	}
	if err := p.schema.Validate(raw); err != nil {
		return nil, fmt.Errorf("%w: schema violation: %v", ErrMalformedOutput, err)
	}

	var result Result
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if !ValidIntent(result.Intent) {
		return nil, fmt.Errorf("%w: unknown intent %q", ErrMalformedOutput, result.Intent)
	}
	if result.Signals == nil {
		result.Signals = make(map[string]string)
	}
	result.Source = "llm"
	return &result, nil
}

func contextBlock(req Request) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "- current negotiation step: %d of 7\n", req.CurrentStep)
	if req.ConfirmedDate != "" {
		fmt.Fprintf(&sb, "- confirmed event date: %s\n", req.ConfirmedDate)
	}
	if req.Headcount > 0 {
		fmt.Fprintf(&sb, "- agreed headcount: %d\n", req.Headcount)
	}
	if req.AwaitingRoomDecision {
		sb.WriteString("- room options were presented; the client has not picked one yet\n")
	}
	if req.PendingDraft {
		sb.WriteString("- a reply to the previous message is still awaiting operator approval\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
