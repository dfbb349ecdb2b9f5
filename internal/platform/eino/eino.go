// Package eino wraps an LLM chat model for short business summaries.
package eino

import (
	"context"
	"fmt"
	"strings"

	"mapscraper/internal/logger"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	gemini "github.com/cloudwego/eino-ext/components/model/gemini"
	"google.golang.org/genai"
)

// maxInputChars bounds the website text sent to the model.
const maxInputChars = 6000

type Config struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`
}

type Service struct {
	config       Config
	chatModel    model.BaseChatModel
	chatTemplate prompt.ChatTemplate
	log          *logger.Logger
}

// NewService creates the chat model for config.Provider.
func NewService(config Config) (*Service, error) {
	s := &Service{config: config, log: logger.New("Eino")}
	if err := s.initializeChatModel(); err != nil {
		return nil, fmt.Errorf("failed to initialize chat model: %w", err)
	}
	s.initializeChatTemplate()
	return s, nil
}

// NewServiceWithModel uses a pre-configured chat model.
func NewServiceWithModel(config Config, chatModel model.BaseChatModel) *Service {
	s := &Service{config: config, chatModel: chatModel, log: logger.New("Eino")}
	s.initializeChatTemplate()
	return s
}

func (s *Service) initializeChatModel() error {
	switch strings.ToLower(s.config.Provider) {
	case "gemini", "":
		return s.initializeGeminiModel()
	default:
		return fmt.Errorf("unsupported provider: %s. Supported: gemini", s.config.Provider)
	}
}

func (s *Service) initializeGeminiModel() error {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: s.config.APIKey,
	})
	if err != nil {
		return fmt.Errorf("failed to create Gemini client: %w", err)
	}
	geminiModel, err := gemini.NewChatModel(context.Background(), &gemini.Config{
		Client: client,
		Model:  s.config.Model,
	})
	if err != nil {
		return fmt.Errorf("failed to create Gemini chat model: %w", err)
	}
	s.chatModel = geminiModel
	return nil
}

func (s *Service) initializeChatTemplate() {
	system := schema.SystemMessage(`You write one-paragraph descriptions of local businesses for a directory.

RULES:
1. Use only facts present in the supplied website text.
2. At most three sentences, plain text, no markdown, no lists.
3. Do not mention the website itself, prices you are unsure of, or contact details.
4. If the text says nothing useful about the business, reply with an empty string.`)

	user := schema.UserMessage(`BUSINESS: {name}

WEBSITE TEXT:
{website_text}

Write the description now.`)

	s.chatTemplate = prompt.FromMessages(schema.FString, system, user)
}

// Summarize asks the model for a short description of the business named
// name based on its website text.
func (s *Service) Summarize(ctx context.Context, name, text string) (string, error) {
	if s.chatModel == nil {
		return "", fmt.Errorf("chat model not initialized")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	if r := []rune(text); len(r) > maxInputChars {
		text = string(r[:maxInputChars])
	}

	messages, err := s.chatTemplate.Format(ctx, map[string]any{
		"name":         name,
		"website_text": text,
	})
	if err != nil {
		return "", fmt.Errorf("failed to format chat template: %w", err)
	}
	resp, err := s.chatModel.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("LLM generation failed: %w", err)
	}
	if resp.ResponseMeta != nil && resp.ResponseMeta.Usage != nil {
		s.log.LogDebugf("summary for %s used %d tokens", name, resp.ResponseMeta.Usage.TotalTokens)
	}
	return cleanSummary(resp.Content), nil
}

// cleanSummary strips fences and quotes models like to wrap answers in.
func cleanSummary(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```text")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"`)
	return strings.Join(strings.Fields(s), " ")
}
