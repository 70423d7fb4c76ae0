package provider

import (
	"context"
	"errors"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	aoption "github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicMaxOutputTokens = 4096

type anthropicProducer struct{}

// buildAnthropicParams splits system messages into the System field and maps
// the rest onto user/assistant message params.
func buildAnthropicParams(model string, msgs []TurnMessage) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(strings.TrimSpace(model)),
		MaxTokens: anthropicMaxOutputTokens,
	}

	var system strings.Builder
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		switch strings.TrimSpace(m.Role) {
		case "system":
			if system.Len() > 0 {
				system.WriteString("\n\n")
			}
			system.WriteString(content)
		case "assistant":
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(content)))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(content)))
		}
	}
	if len(out) == 0 {
		out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(defaultGreeting)))
	}
	params.Messages = out
	if system.Len() > 0 {
		params.System = []anthropic.TextBlockParam{{Text: system.String()}}
	}
	return params
}

func (p *anthropicProducer) Stream(ctx context.Context, apiKey, model string, msgs []TurnMessage, onText func(string)) (string, error) {
	if p == nil {
		return "", errors.New("nil producer")
	}
	client := anthropic.NewClient(aoption.WithAPIKey(strings.TrimSpace(apiKey)))

	stream := client.Messages.NewStreaming(ctx, buildAnthropicParams(model, msgs))
	var buf strings.Builder
	for stream.Next() {
		event := stream.Current()
		variant, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
		if !ok {
			continue
		}
		delta, ok := variant.Delta.AsAny().(anthropic.TextDelta)
		if !ok || delta.Text == "" {
			continue
		}
		buf.WriteString(delta.Text)
		if onText != nil {
			onText(buf.String())
		}
	}
	if err := stream.Err(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (p *anthropicProducer) Complete(ctx context.Context, apiKey, model string, msgs []TurnMessage) (string, error) {
	if p == nil {
		return "", errors.New("nil producer")
	}
	client := anthropic.NewClient(aoption.WithAPIKey(strings.TrimSpace(apiKey)))

	msg, err := client.Messages.New(ctx, buildAnthropicParams(model, msgs))
	if err != nil {
		return "", err
	}

	var buf strings.Builder
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			buf.WriteString(tb.Text)
		}
	}
	return buf.String(), nil
}
