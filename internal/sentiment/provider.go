package sentiment

import "context"

// Provider 提供标的的市场情绪得分，范围 [-1,1]。
type Provider interface {
	GetSentiment(ctx context.Context, symbol string) (float64, error)
}

// StaticProvider 返回固定情绪值，用于模拟运行和回测。
type StaticProvider struct {
	Value float64
}

// GetSentiment 返回配置的固定情绪值。
func (p StaticProvider) GetSentiment(_ context.Context, _ string) (float64, error) {
	return clamp(p.Value), nil
}

func clamp(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
