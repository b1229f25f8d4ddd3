package execution

import (
	"context"
	"errors"
	"fmt"

	"aurum-trader/internal/market"
)

// Fill 为券商返回的成交回报。
type Fill struct {
	Price    float64
	Quantity float64
}

// TransientError 标记可重试的传输层失败，应用层拒绝不属于此类。
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("execution: 传输层暂时性失败: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient 判断错误是否为可重试的暂时性失败。
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// Broker 为下单通道的最小接口，模拟盘与实盘各有一个实现。
type Broker interface {
	SubmitOrder(ctx context.Context, order Order, snapshot market.Snapshot) (Fill, error)
}
