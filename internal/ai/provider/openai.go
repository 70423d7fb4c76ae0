package provider

import (
	"context"
	"errors"
	"strings"

	openai "github.com/openai/openai-go"
	ooption "github.com/openai/openai-go/option"
)

// openAIProducer speaks the OpenAI chat-completions dialect, which is what
// the DeepSeek and Volcengine Ark endpoints expose.
type openAIProducer struct {
	baseURL string
}

func (p *openAIProducer) newClient(apiKey string) openai.Client {
	opts := []ooption.RequestOption{ooption.WithAPIKey(strings.TrimSpace(apiKey))}
	if strings.TrimSpace(p.baseURL) != "" {
		opts = append(opts, ooption.WithBaseURL(strings.TrimSpace(p.baseURL)))
	}
	return openai.NewClient(opts...)
}

func buildOpenAIMessages(msgs []TurnMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		content := m.Content
		switch strings.TrimSpace(m.Role) {
		case "assistant":
			out = append(out, openai.AssistantMessage(content))
		case "system":
			out = append(out, openai.SystemMessage(content))
		default:
			out = append(out, openai.UserMessage(content))
		}
	}
	return out
}

func (p *openAIProducer) Stream(ctx context.Context, apiKey, model string, msgs []TurnMessage, onText func(string)) (string, error) {
	if p == nil {
		return "", errors.New("nil producer")
	}
	client := p.newClient(apiKey)

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(strings.TrimSpace(model)),
		Messages: buildOpenAIMessages(msgs),
	}

	stream := client.Chat.Completions.NewStreaming(ctx, params)
	var buf strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		buf.WriteString(delta)
		if onText != nil {
			onText(buf.String())
		}
	}
	if err := stream.Err(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (p *openAIProducer) Complete(ctx context.Context, apiKey, model string, msgs []TurnMessage) (string, error) {
	if p == nil {
		return "", errors.New("nil producer")
	}
	client := p.newClient(apiKey)

	completion, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(strings.TrimSpace(model)),
		Messages: buildOpenAIMessages(msgs),
	})
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", nil
	}
	return completion.Choices[0].Message.Content, nil
}
