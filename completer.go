package quizbank

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/api/option"
)

// TextCompleter is the text-completion service: a prompt in, raw text out.
// Output carries no structural guarantee.
type TextCompleter interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CompletionOptions tunes a completer. Structured asks the provider for
// schema-constrained output; the checker still validates every item.
type CompletionOptions struct {
	Model           string
	Temperature     float32
	TopP            float32
	MaxOutputTokens int
	Structured      bool
}

const systemPrompt = "You are an expert English-learning quiz generator. Generate high-quality multiple choice questions with exactly 4 options each and return only JSON."

// OpenAICompleter generates questions using the OpenAI chat completions API.
type OpenAICompleter struct {
	client *openai.Client
	opts   CompletionOptions
}

// NewOpenAICompleter creates a completer with its own OpenAI client.
func NewOpenAICompleter(apiKey string, opts CompletionOptions) *OpenAICompleter {
	return NewOpenAICompleterWithClient(openai.NewClient(apiKey), opts)
}

// NewOpenAICompleterWithClient wraps an existing client, e.g. one pointed at a
// compatible endpoint through openai.DefaultConfig.
func NewOpenAICompleterWithClient(client *openai.Client, opts CompletionOptions) *OpenAICompleter {
	if opts.Model == "" {
		opts.Model = openai.GPT4o
	}
	return &OpenAICompleter{client: client, opts: opts}
}

func (c *OpenAICompleter) Complete(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.opts.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: c.opts.Temperature,
		TopP:        c.opts.TopP,
		MaxTokens:   c.opts.MaxOutputTokens,
	}

	if c.opts.Structured {
		req.Tools = []openai.Tool{
			{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        "submit_questions",
					Description: "Submit generated quiz questions",
					Parameters:  QuestionListSchema(),
				},
			},
		}
		req.ToolChoice = openai.ToolChoice{
			Type: openai.ToolTypeFunction,
			Function: openai.ToolFunction{
				Name: "submit_questions",
			},
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to generate questions: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from %s", c.opts.Model)
	}

	choice := resp.Choices[0]
	if c.opts.Structured {
		if len(choice.Message.ToolCalls) == 0 {
			return "", fmt.Errorf("no tool calls in response")
		}
		toolCall := choice.Message.ToolCalls[0]
		if toolCall.Function.Name != "submit_questions" {
			return "", fmt.Errorf("unexpected tool call: %s", toolCall.Function.Name)
		}
		return toolCall.Function.Arguments, nil
	}
	return choice.Message.Content, nil
}

// GeminiCompleter generates questions using the Gemini API.
type GeminiCompleter struct {
	client *genai.Client
	model  *genai.GenerativeModel
	name   string
}

// NewGeminiCompleter creates a Gemini client and configures the model from opts.
// Callers must Close it.
func NewGeminiCompleter(ctx context.Context, apiKey string, opts CompletionOptions) (*GeminiCompleter, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	name := opts.Model
	if name == "" {
		name = "gemini-2.5-flash-lite"
	}
	model := client.GenerativeModel(name)
	if opts.Temperature > 0 {
		model.SetTemperature(opts.Temperature)
	}
	if opts.TopP > 0 {
		model.SetTopP(opts.TopP)
	}
	if opts.MaxOutputTokens > 0 {
		model.SetMaxOutputTokens(int32(opts.MaxOutputTokens))
	}
	model.SystemInstruction = genai.NewUserContent(genai.Text(systemPrompt))
	if opts.Structured {
		model.ResponseMIMEType = "application/json"
		model.ResponseSchema = geminiQuestionArraySchema()
	}

	return &GeminiCompleter{client: client, model: model, name: name}, nil
}

func (c *GeminiCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate questions: %w", err)
	}
	text := extractGeminiText(resp)
	if text == "" {
		return "", fmt.Errorf("empty response from %s", c.name)
	}
	return text, nil
}

func (c *GeminiCompleter) Close() error {
	return c.client.Close()
}

func extractGeminiText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	cand := resp.Candidates[0]
	if cand.Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	return sb.String()
}

func geminiQuestionArraySchema() *genai.Schema {
	str := func() *genai.Schema { return &genai.Schema{Type: genai.TypeString} }
	return &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"passage":  {Type: genai.TypeString, Nullable: true},
				"question": str(),
				"options": {
					Type:  genai.TypeArray,
					Items: str(),
				},
				"correctIndex": {Type: genai.TypeInteger},
				"explanation":  str(),
				"clue":         str(),
			},
			Required: []string{"question", "options", "correctIndex", "explanation", "clue"},
		},
	}
}
