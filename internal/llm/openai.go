package llm

import (
	"context"
	"errors"
	"time"

	"blogdraft-server/internal/config"
	"blogdraft-server/internal/domain"
	"blogdraft-server/internal/logger"
	"blogdraft-server/internal/prompts"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const groqBaseURL = "https://api.groq.com/openai/v1/"

var defaultModels = map[string]string{
	ProviderGroq:   "llama-3.1-8b-instant",
	ProviderOpenAI: "gpt-4o-mini",
}

// OpenAIEditor calls any OpenAI-compatible chat completions endpoint.
type OpenAIEditor struct {
	client      openai.Client
	provider    string
	model       string
	temperature float64
	maxTokens   int
	prompts     *prompts.Set
	retry       retryPolicy
	log         *logger.Logger
}

func NewOpenAIEditor(cfg config.LLMConfig, set *prompts.Set, log *logger.Logger) (*OpenAIEditor, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm api key missing; set LLM_API_KEY")
	}
	if set == nil {
		return nil, errors.New("llm prompts are required")
	}

	model := cfg.Model
	if model == "" {
		model = defaultModels[cfg.Provider]
	}
	baseURL := cfg.BaseURL
	if baseURL == "" && cfg.Provider == ProviderGroq {
		baseURL = groqBaseURL
	}

	// Retries are driven by retryPolicy so every attempt shares one deadline.
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &OpenAIEditor{
		client:      openai.NewClient(opts...),
		provider:    cfg.Provider,
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		prompts:     set,
		retry:       defaultRetryPolicy(cfg.MaxRetries),
		log:         log.With("component", "OpenAIEditor", "provider", cfg.Provider, "model", model),
	}, nil
}

func (e *OpenAIEditor) GenerateEdit(ctx context.Context, content, instruction string) (*Edit, error) {
	user, err := e.prompts.EditUser(prompts.EditInput{Content: content, Instruction: instruction})
	if err != nil {
		return nil, domain.NewUpstreamError(domain.UpstreamMalformed, err)
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(e.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(e.prompts.EditSystem),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(e.temperature),
	}
	if e.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(e.maxTokens))
	}

	start := time.Now()
	raw, err := e.retry.do(ctx, e.logRetry, func(ctx context.Context) (string, error) {
		resp, err := e.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", domain.NewUpstreamError(domain.UpstreamMalformed, errors.New("response has no choices"))
		}
		return resp.Choices[0].Message.Content, nil
	})
	if err != nil {
		e.log.Warn("edit generation failed", "error", err, "elapsed", time.Since(start))
		return nil, err
	}

	out, err := cleanOutput(raw)
	if err != nil {
		return nil, err
	}

	e.log.Debug("edit generated", "elapsed", time.Since(start), "chars", len(out))
	return &Edit{Content: out, Model: e.model, Provider: e.provider}, nil
}

func (e *OpenAIEditor) logRetry(attempt int, wait time.Duration, err error) {
	e.log.Warn("retrying edit generation", "attempt", attempt, "wait", wait, "error", err)
}
