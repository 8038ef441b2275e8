package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const modelsTimeout = 10 * time.Second

// BaseURL derives the API root from a chat completions endpoint, e.g.
// https://api.siliconflow.cn/v1/chat/completions -> https://api.siliconflow.cn/v1/
func BaseURL(endpoint string) string {
	base := strings.TrimSuffix(strings.TrimRight(endpoint, "/"), "/chat/completions")
	return base + "/"
}

// ListModels returns the model IDs the endpoint advertises for apiKey.
// It doubles as a credentials check.
func ListModels(ctx context.Context, endpoint, apiKey string) ([]string, error) {
	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(BaseURL(endpoint)),
		option.WithRequestTimeout(modelsTimeout),
		option.WithMaxRetries(0),
	)

	page, err := client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	ids := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}
