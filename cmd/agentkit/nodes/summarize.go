package nodes

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/agentkit/agentkit/common/config"
	"github.com/agentkit/agentkit/common/db"
	"github.com/agentkit/agentkit/common/models"
)

const defaultSummarizePrompt = "You are an expert email analyst. Given an email (subject, body, and any attachments), " +
	"produce a clean, structured summary with the following sections:\n" +
	"1. **Summary** – 2-3 sentence overview\n" +
	"2. **Key Points** – bullet list of important information\n" +
	"3. **Action Items** – any tasks or follow-ups required\n" +
	"4. **Sentiment** – overall tone (positive / neutral / negative)\n" +
	"5. **Category** – classify as: support / sales / invoice / hr / general\n" +
	"Be concise and professional."

// chatClient is the slice of the OpenAI client the handler needs.
// Tests substitute a fake.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// SummarizeHandler sends extracted email content to OpenAI and returns
// a structured summary. The API key comes from the node's data, with
// the service-level key as fallback.
type SummarizeHandler struct {
	fallbackKey string
	baseURL     string
	newClient   func(apiKey string) chatClient
}

// NewSummarizeHandler creates a summarize handler backed by the OpenAI API
func NewSummarizeHandler(cfg *config.Config) *SummarizeHandler {
	h := &SummarizeHandler{
		fallbackKey: cfg.OpenAI.APIKey,
		baseURL:     cfg.OpenAI.BaseURL,
	}
	h.newClient = func(apiKey string) chatClient {
		clientCfg := openai.DefaultConfig(apiKey)
		if h.baseURL != "" {
			clientCfg.BaseURL = h.baseURL
		}
		return openai.NewClientWithConfig(clientCfg)
	}
	return h
}

func (h *SummarizeHandler) Execute(ctx context.Context, data, _ map[string]interface{}, _ *db.DB) (*Result, error) {
	apiKey := strings.TrimSpace(toString(data["api_key"]))
	if apiKey == "" {
		apiKey = h.fallbackKey
	}
	if apiKey == "" {
		return nil, NewConfigError("OpenAI API key is required. Set it in the summarize node config.")
	}

	model := toString(data["model"])
	if model == "" {
		model = "gpt-4o"
	}
	temperature := toFloat(data["temperature"], 0.3)
	emailContent := toString(data["email_content"])

	systemPrompt := toString(data["system_prompt"])
	if systemPrompt == "" {
		systemPrompt = defaultSummarizePrompt
	}

	resp, err := h.newClient(apiKey).CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Temperature: float32(temperature),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("Analyse this email:\n\n%s", emailContent)},
		},
	})
	if err != nil {
		return nil, &UpstreamError{Service: "openai", Detail: err.Error()}
	}
	if len(resp.Choices) == 0 {
		return nil, &UpstreamError{Service: "openai", Detail: "no choices in completion response"}
	}

	summary := resp.Choices[0].Message.Content

	result := &Result{
		Output: map[string]interface{}{
			"summary":      summary,
			"overview":     extractSection(summary, "Summary"),
			"key_points":   extractSection(summary, "Key Points"),
			"action_items": extractSection(summary, "Action Items"),
			"sentiment":    extractSection(summary, "Sentiment"),
			"category":     extractSection(summary, "Category"),
			"model":        model,
		},
	}
	if resp.Usage.TotalTokens > 0 {
		result.TokenUsage = &models.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return result, nil
}

// sectionBoundaryRe matches the start of the next markdown heading,
// numbered item or bold label
var sectionBoundaryRe = regexp.MustCompile(`\n(?:#+|\d+\.|\*\*)`)

// extractSection pulls the text under a heading out of the model's
// markdown summary. Headings may be plain, hash-prefixed or bold.
func extractSection(text, heading string) string {
	headingRe := regexp.MustCompile(`(?i)(?:#+\s*|\*\*)?` + regexp.QuoteMeta(heading) + `[:*]*\*?\s*`)
	loc := headingRe.FindStringIndex(text)
	if loc == nil {
		return ""
	}
	rest := text[loc[1]:]
	if b := sectionBoundaryRe.FindStringIndex(rest); b != nil {
		rest = rest[:b[0]]
	}
	return strings.TrimSpace(rest)
}
