package mood

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

const analyzerInstructions = `You are a warm, supportive listener in a mood-tracking chat.
Read the conversation transcript and the user's latest message, then return JSON with:
- response: a short, empathetic reply to the latest message (1-3 sentences, no diagnoses).
- summary: one sentence describing the user's overall emotional state in this conversation.
- mood_score: an integer from 0 (very distressed) to 100 (very happy) for the latest message, 50 when unclear.
- mood_label: one of happy, content, neutral, sad, distressed.`

// modelReply is the structured output requested from the model
type modelReply struct {
	Response  string `json:"response" jsonschema:"required"`
	Summary   string `json:"summary" jsonschema:"required"`
	MoodScore int    `json:"mood_score" jsonschema:"required"`
	MoodLabel string `json:"mood_label" jsonschema:"required,enum=happy,enum=content,enum=neutral,enum=sad,enum=distressed"`
}

var replySchema = generateSchema[modelReply]()

// responder is the subset of the OpenAI Responses service used here
type responder interface {
	New(ctx context.Context, body responses.ResponseNewParams, opts ...option.RequestOption) (*responses.Response, error)
}

// OpenAIConfig holds remote analyzer configuration
type OpenAIConfig struct {
	APIKey          string
	Model           string
	BaseURL         string
	Timeout         time.Duration
	MaxOutputTokens int64
	MaxRetries      int
}

// OpenAIAnalyzer asks an OpenAI model for the reply, summary and score.
type OpenAIAnalyzer struct {
	responses       responder
	model           string
	timeout         time.Duration
	maxOutputTokens int64
}

// NewOpenAI creates a remote analyzer. The SDK retries 429 and 5xx responses
// up to MaxRetries times.
func NewOpenAI(cfg OpenAIConfig) (*OpenAIAnalyzer, error) {
	if cfg.Model == "" {
		return nil, errors.New("openai analyzer: model is empty")
	}

	opts := []option.RequestOption{option.WithMaxRetries(cfg.MaxRetries)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)

	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = 600
	}

	return &OpenAIAnalyzer{
		responses:       &client.Responses,
		model:           cfg.Model,
		timeout:         cfg.Timeout,
		maxOutputTokens: cfg.MaxOutputTokens,
	}, nil
}

// Analyze calls the model once and validates its structured reply.
func (a *OpenAIAnalyzer) Analyze(ctx context.Context, history []Message, latest string) (Result, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	params := responses.ResponseNewParams{
		Model:           a.model,
		MaxOutputTokens: openai.Int(a.maxOutputTokens),
		Instructions:    openai.String(analyzerInstructions),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(buildTranscript(history, latest), responses.EasyInputMessageRoleUser),
			},
		},
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Name:        "MoodAnalysis",
					Schema:      replySchema,
					Strict:      openai.Bool(true),
					Description: openai.String("Chat reply with mood analysis"),
					Type:        "json_schema",
				},
			},
		},
	}

	resp, err := a.responses.New(ctx, params)
	if err != nil {
		return Result{}, fmt.Errorf("openai analyze: %w", err)
	}

	var out modelReply
	if err := decodeModelJSON(resp.OutputText(), &out); err != nil {
		return Result{}, fmt.Errorf("unmarshal analysis: %w", err)
	}

	if out.MoodScore < 0 || out.MoodScore > 100 {
		return Result{}, fmt.Errorf("model returned mood score %d outside [0,100]", out.MoodScore)
	}

	result := Result{
		Response:  strings.TrimSpace(out.Response),
		Summary:   strings.TrimSpace(out.Summary),
		MoodScore: out.MoodScore,
		MoodLabel: strings.ToLower(strings.TrimSpace(out.MoodLabel)),
	}
	if result.Response == "" {
		return Result{}, errors.New("model returned an empty response")
	}
	if result.MoodLabel == "" {
		result.MoodLabel = LabelFor(result.MoodScore)
	}

	return result, nil
}

func buildTranscript(history []Message, latest string) string {
	var b strings.Builder
	b.WriteString("Transcript:\n")
	for _, m := range history {
		role := "User"
		if m.IsBot {
			role = "Assistant"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, strings.TrimSpace(m.Text))
	}
	fmt.Fprintf(&b, "\nLatest user message:\n%s\n", strings.TrimSpace(latest))
	return b.String()
}

// decodeModelJSON unmarshals the model output, tolerating prose around the
// JSON object.
func decodeModelJSON(outputText string, v any) error {
	s := strings.TrimSpace(outputText)
	if s == "" {
		return io.ErrUnexpectedEOF
	}

	if err := json.Unmarshal([]byte(s), v); err == nil {
		return nil
	}

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start != -1 && end == -1 {
		return io.ErrUnexpectedEOF
	}
	if start == -1 || end <= start {
		return fmt.Errorf("no JSON object in model output")
	}

	return json.Unmarshal([]byte(s[start:end+1]), v)
}

func generateSchema[T any]() map[string]any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	schema := reflector.Reflect(v)

	b, err := schema.MarshalJSON()
	if err != nil {
		panic(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		panic(err)
	}

	ensureStrict(m)
	return m
}

// ensureStrict applies the strict structured-output rules: every object
// forbids additional properties and requires all of its properties.
func ensureStrict(schema map[string]any) {
	if t, ok := schema["type"].(string); ok && t == "object" {
		schema["additionalProperties"] = false

		if props, ok := schema["properties"].(map[string]any); ok {
			required := make([]string, 0, len(props))
			for name := range props {
				required = append(required, name)
			}
			if len(required) > 0 {
				schema["required"] = required
			}
		}
	}

	if props, ok := schema["properties"].(map[string]any); ok {
		for _, p := range props {
			if pm, ok := p.(map[string]any); ok {
				ensureStrict(pm)
			}
		}
	}

	if items, ok := schema["items"].(map[string]any); ok {
		ensureStrict(items)
	}
}
