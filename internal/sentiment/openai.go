package sentiment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"aurum-trader/internal/config"
)

const sentimentPrompt = `你是加密市场情绪分析助手。请评估标的 %s 当前的整体市场情绪，
综合考虑近期资金流向、衍生品多空倾向与舆论热度。

只输出一个JSON对象，不要输出其他任何内容：
{"sentiment": <介于-1与1之间的数值，-1为极度悲观，1为极度乐观>, "summary": "<一句话说明>"}`

type sentimentReply struct {
	Sentiment float64 `json:"sentiment"`
	Summary   string  `json:"summary"`
}

// OpenAIProvider 通过大模型估计市场情绪。
type OpenAIProvider struct {
	cfg    config.SentimentConfig
	logger *zap.Logger
	sdk    *openai.Client
}

// NewOpenAIProvider 使用给定配置创建情绪客户端。
func NewOpenAIProvider(cfg config.SentimentConfig, logger *zap.Logger) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("sentiment api_key 不能为空")
	}
	if cfg.Model == "" {
		return nil, errors.New("sentiment model 不能为空")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sdkConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		sdkConfig.BaseURL = cfg.BaseURL
	}
	sdkConfig.HTTPClient = &http.Client{
		Timeout: cfg.Timeout + 5*time.Second,
	}

	return &OpenAIProvider{
		cfg:    cfg,
		logger: logger,
		sdk:    openai.NewClientWithConfig(sdkConfig),
	}, nil
}

// GetSentiment 调用模型获取情绪得分。
func (p *OpenAIProvider) GetSentiment(ctx context.Context, symbol string) (float64, error) {
	response, err := p.sdk.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf(sentimentPrompt, symbol),
			},
		},
		Temperature: 0,
	})
	if err != nil {
		p.logger.Error("调用情绪模型失败", zap.String("symbol", symbol), zap.Error(err))
		return 0, fmt.Errorf("调用情绪模型失败: %w", err)
	}

	if len(response.Choices) == 0 {
		return 0, errors.New("情绪模型返回结果为空")
	}

	rawContent := strings.TrimSpace(response.Choices[0].Message.Content)
	if rawContent == "" {
		return 0, errors.New("情绪模型返回内容为空")
	}

	reply, err := parseReply(rawContent)
	if err != nil {
		p.logger.Error("解析情绪结果失败",
			zap.Error(err),
			zap.String("raw_content", rawContent),
		)
		return 0, err
	}

	score := clamp(reply.Sentiment)
	p.logger.Info("情绪评估完成",
		zap.String("symbol", symbol),
		zap.Float64("sentiment", score),
		zap.String("summary", reply.Summary),
	)

	return score, nil
}

func parseReply(content string) (sentimentReply, error) {
	payload, err := extractJSON(content)
	if err != nil {
		return sentimentReply{}, err
	}

	var reply sentimentReply
	if err = json.Unmarshal(payload, &reply); err != nil {
		return sentimentReply{}, fmt.Errorf("解析情绪JSON失败: %w", err)
	}

	return reply, nil
}

func extractJSON(content string) ([]byte, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")

	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("模型输出未找到有效JSON: %s", content)
	}

	return []byte(content[start : end+1]), nil
}
