package openai

import (
	"context"
	"errors"

	"github.com/sashabaranov/go-openai"
)

// Generator produces the final RAG answer from retrieved context.
type Generator struct {
	client *openai.Client
	model  string
}

func NewGenerator(apiKey, model string) *Generator {
	return &Generator{client: openai.NewClient(apiKey), model: model}
}

func NewGeneratorWithClient(client *openai.Client, model string) *Generator {
	return &Generator{client: client, model: model}
}

func (g *Generator) Complete(ctx context.Context, system, user string) (string, error) {
	rsp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", err
	}
	if len(rsp.Choices) == 0 {
		return "", errors.New("no completion choices returned")
	}
	return rsp.Choices[0].Message.Content, nil
}
