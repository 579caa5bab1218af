package analysis

import (
	"context"
	"fmt"
	"time"

	"lifesignal/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Request 风险分析请求
type Request struct {
	HeartRate   *float64 `json:"heart_rate,omitempty"`
	BloodOxygen *float64 `json:"blood_oxygen,omitempty"`
}

// Result 风险分析结果
type Result struct {
	Timestamp       string   `json:"timestamp"`
	IsAnomaly       bool     `json:"is_anomaly"`
	RiskScore       float64  `json:"risk_score"`
	Recommendations []string `json:"recommendations"`
}

// Client 远程风险分析服务客户端（可选分类器，失败不影响本地检测）
type Client struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewClient 创建分析客户端
func NewClient(baseURL string, timeout time.Duration, retryCount int, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(retryCount).
		SetRetryWaitTime(100*time.Millisecond).
		SetRetryMaxWaitTime(500*time.Millisecond).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient: client,
		logger:     logger,
	}
}

// Analyze 提交生命体征快照，返回风险评分
func (c *Client) Analyze(ctx context.Context, vitals models.Vitals) (*Result, error) {
	if vitals.HeartRate == nil && vitals.BloodOxygen == nil {
		return nil, fmt.Errorf("no vitals to analyze")
	}

	request := Request{
		HeartRate:   vitals.HeartRate,
		BloodOxygen: vitals.BloodOxygen,
	}

	var result Result
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(request).
		SetResult(&result).
		Post("/analyze_health_data")
	if err != nil {
		c.logger.Warn("Analysis API call failed", zap.Error(err))
		return nil, fmt.Errorf("failed to call analysis API: %w", err)
	}
	if resp.IsError() {
		c.logger.Warn("Analysis API returned error",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("body", resp.String()),
		)
		return nil, fmt.Errorf("analysis API error: status %d", resp.StatusCode())
	}

	c.logger.Debug("Analysis completed",
		zap.Bool("is_anomaly", result.IsAnomaly),
		zap.Float64("risk_score", result.RiskScore),
		zap.Int("recommendation_count", len(result.Recommendations)),
	)
	return &result, nil
}
