package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// ConverseAPI is the Bedrock runtime subset used here.
type ConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockClient implements Client with the Bedrock Converse API.
type BedrockClient struct {
	api   ConverseAPI
	model string
}

func NewBedrockClient(api ConverseAPI, model string) *BedrockClient {
	return &BedrockClient{api: api, model: model}
}

// NewBedrockClientFromEnv resolves AWS credentials through the default chain.
func NewBedrockClientFromEnv(ctx context.Context, region, model string) (*BedrockClient, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("ai: aws config: %w", err)
	}
	return NewBedrockClient(bedrockruntime.NewFromConfig(cfg), model), nil
}

func (c *BedrockClient) Complete(ctx context.Context, req Request) (Response, error) {
	if c.api == nil {
		return Response{}, errors.New("ai: bedrock client not configured")
	}
	model := req.model(c.model)
	if model == "" {
		return Response{}, errors.New("ai: bedrock model id is required")
	}
	system, turns, err := req.split()
	if err != nil {
		return Response{}, err
	}

	in := &bedrockruntime.ConverseInput{
		ModelId:         aws.String(model),
		Messages:        bedrockMessages(turns),
		InferenceConfig: bedrockInference(req),
	}
	if system != "" {
		in.System = []brtypes.SystemContentBlock{&brtypes.SystemContentBlockMemberText{Value: system}}
	}
	out, err := c.api.Converse(ctx, in)
	if err != nil {
		return Response{}, fmt.Errorf("ai: bedrock converse: %w", err)
	}
	return bedrockResponse(out)
}

func bedrockMessages(turns []Message) []brtypes.Message {
	msgs := make([]brtypes.Message, 0, len(turns))
	for _, t := range turns {
		role := brtypes.ConversationRoleUser
		if t.Role == RoleAssistant {
			role = brtypes.ConversationRoleAssistant
		}
		msgs = append(msgs, brtypes.Message{
			Role:    role,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: t.Content}},
		})
	}
	return msgs
}

func bedrockInference(req Request) *brtypes.InferenceConfiguration {
	if req.MaxTokens <= 0 && req.Temperature < 0 {
		return nil
	}
	cfg := &brtypes.InferenceConfiguration{}
	if req.MaxTokens > 0 {
		cfg.MaxTokens = aws.Int32(req.MaxTokens)
	}
	if req.Temperature >= 0 {
		cfg.Temperature = aws.Float32(req.Temperature)
	}
	return cfg
}

func bedrockResponse(out *bedrockruntime.ConverseOutput) (Response, error) {
	if out == nil {
		return Response{}, errors.New("ai: bedrock returned nothing")
	}
	msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return Response{}, errors.New("ai: bedrock output is not a message")
	}
	var sb strings.Builder
	for _, block := range msg.Value.Content {
		if t, ok := block.(*brtypes.ContentBlockMemberText); ok {
			sb.WriteString(t.Value)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return Response{}, errors.New("ai: bedrock message had no text")
	}
	resp := Response{Text: text, StopReason: string(out.StopReason)}
	if u := out.Usage; u != nil {
		resp.Usage = Usage{
			InputTokens:  aws.ToInt32(u.InputTokens),
			OutputTokens: aws.ToInt32(u.OutputTokens),
			TotalTokens:  aws.ToInt32(u.TotalTokens),
		}
	}
	return resp, nil
}
