package policy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

type bedrockConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockLookup answers policy questions with a Bedrock model.
type BedrockLookup struct {
	api     bedrockConverseAPI
	modelID string
}

// NewBedrockLookup creates a lookup that calls modelID through api.
func NewBedrockLookup(api bedrockConverseAPI, modelID string) *BedrockLookup {
	if api == nil {
		panic("policy: bedrock converse client cannot be nil")
	}
	return &BedrockLookup{api: api, modelID: strings.TrimSpace(modelID)}
}

func (b *BedrockLookup) LookupJustification(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" || b.modelID == "" {
		return "", ErrPolicyLookupUnavailable
	}
	out, err := b.api.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId: aws.String(b.modelID),
		System:  []brtypes.SystemContentBlock{&brtypes.SystemContentBlockMemberText{Value: systemPrompt}},
		Messages: []brtypes.Message{{
			Role:    brtypes.ConversationRoleUser,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: query}},
		}},
		InferenceConfig: &brtypes.InferenceConfiguration{
			MaxTokens:   aws.Int32(200),
			Temperature: aws.Float32(0),
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: bedrock: %w", ErrPolicyLookupUnavailable, err)
	}
	text, err := bedrockText(out)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPolicyLookupUnavailable, err)
	}
	return text, nil
}

func bedrockText(out *bedrockruntime.ConverseOutput) (string, error) {
	if out == nil {
		return "", errors.New("policy: bedrock response is nil")
	}
	msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return "", errors.New("policy: bedrock response did not include a message")
	}
	var builder strings.Builder
	for _, block := range msg.Value.Content {
		if text, ok := block.(*brtypes.ContentBlockMemberText); ok {
			builder.WriteString(text.Value)
		}
	}
	text := strings.TrimSpace(builder.String())
	if text == "" {
		return "", errors.New("policy: bedrock response contained no text")
	}
	return text, nil
}
