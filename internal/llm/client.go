package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fachebot/point-digest/internal/config"
	"github.com/fachebot/point-digest/internal/logger"
	"github.com/sashabaranov/go-openai"
)

// openAIClientInterface 定义 OpenAI 客户端接口，便于测试
type openAIClientInterface interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Client struct {
	config         *config.LLM
	openaiClient   openAIClientInterface
	maxInputTokens int
}

// NewClient 创建 LLM 客户端，transport 不为空时通过代理访问
func NewClient(cfg *config.LLM, transport *http.Transport) *Client {
	openaiConfig := openai.DefaultConfig(cfg.APIKey)
	openaiConfig.BaseURL = cfg.BaseURL
	if transport != nil {
		openaiConfig.HTTPClient = &http.Client{Transport: transport}
	}

	client := &Client{
		config:         cfg,
		openaiClient:   openai.NewClientWithConfig(openaiConfig),
		maxInputTokens: cfg.MaxTokens - 2000, // 预留 2000 tokens 给 system prompt 和输出
	}
	if client.maxInputTokens <= 0 {
		client.maxInputTokens = cfg.MaxTokens / 2
	}

	return client
}

// estimateTokens 估算文本的 token 数量
func estimateTokens(text string) int {
	// 简单估算：中文约 1.5 token/字，英文约 1.3 token/词
	chineseChars := 0
	for _, r := range text {
		if r >= 0x4e00 && r <= 0x9fff {
			chineseChars++
		}
	}
	englishWords := len(strings.Fields(text))

	tokens := int(float64(chineseChars)*1.5 + float64(englishWords)*1.3)
	if tokens < len(text)/4 {
		// 如果估算值太小，使用字符数的 1/4 作为下限
		tokens = len(text) / 4
	}

	return tokens
}

// splitLinesIntoChunks 将段落行按 token 估算拆分为多个 chunk
func splitLinesIntoChunks(lines []string, maxTokensPerChunk int) [][]string {
	if len(lines) == 0 {
		return nil
	}
	chunks := make([][]string, 0)
	current := make([]string, 0)
	currentTokens := 0

	for _, line := range lines {
		tokens := estimateTokens(line)
		if currentTokens+tokens > maxTokensPerChunk && len(current) > 0 {
			chunks = append(chunks, current)
			current = nil
			currentTokens = 0
		}
		current = append(current, line)
		currentTokens += tokens
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

// WriteAbstract 为报告生成两句话的导语
// 段落过长时按 chunk 增量生成，每轮带上上一轮的导语
func (c *Client) WriteAbstract(ctx context.Context, title string, lines []string) (string, error) {
	if len(lines) == 0 {
		return "", nil
	}
	text := strings.Join(lines, "\n")
	tokens := estimateTokens(text)

	if tokens <= c.maxInputTokens {
		return c.writeAbstractOnce(ctx, title, text, "")
	}

	// Token 超限，按 chunk 增量生成
	logger.Infof("[LLM] 段落过长 (%d tokens)，将拆分为多个 chunk 生成导语", tokens)
	chunks := splitLinesIntoChunks(lines, c.maxInputTokens)

	var abstract string
	for i, chunk := range chunks {
		logger.Debugf("[LLM] 处理 chunk %d/%d", i+1, len(chunks))
		result, err := c.writeAbstractOnce(ctx, title, strings.Join(chunk, "\n"), abstract)
		if err != nil {
			return "", fmt.Errorf("生成 chunk %d 的导语失败: %w", i+1, err)
		}
		abstract = result
	}
	return abstract, nil
}

// writeAbstractOnce 执行一次导语生成请求
func (c *Client) writeAbstractOnce(ctx context.Context, title, content, prevAbstract string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	systemPrompt := `You write the opening of a debate digest. Given the digest title and the ordered points,
write an abstract of at most two sentences in English that states the main claims and the main open question.
Output plain text only, no markdown, no quotes.`

	var userPrompt string
	if prevAbstract != "" {
		userPrompt = "Title: " + title + "\n\n" +
			"Abstract so far:\n" + prevAbstract + "\n\n" +
			"More points:\n" + content + "\n\n" +
			"Rewrite the abstract so it also covers the new points."
	} else {
		userPrompt = "Title: " + title + "\n\nPoints:\n" + content
	}

	req := openai.ChatCompletionRequest{
		Model: c.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: 0.3,
		MaxTokens:   400,
	}

	resp, err := c.openaiClient.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("调用 LLM API 失败: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM API 返回空结果")
	}

	content = strings.TrimSpace(resp.Choices[0].Message.Content)
	content = strings.TrimPrefix(content, "```text")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)
	return content, nil
}
