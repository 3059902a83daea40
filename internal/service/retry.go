package service

import (
	"time"
)

// RetryDecision 单次失败后的处置
type RetryDecision struct {
	// Exhausted 为真表示尝试次数已用尽，帖子应转入 error 状态
	Exhausted bool
	// Delay 下一次尝试前的等待时长
	Delay time.Duration
}

// NextAttempt 指数退避：base * 2^(attempt-1)，以 max 封顶。
// attempt 是已完成的尝试次数（含本次失败）。retryAfter 来自平台限流响应，
// 给出时直接替代退避值，并夹到 [base, max] 区间内。
func NextAttempt(attempt, maxAttempts int, base, max, retryAfter time.Duration) RetryDecision {
	if attempt >= maxAttempts {
		return RetryDecision{Exhausted: true}
	}

	if retryAfter > 0 {
		delay := retryAfter
		if delay < base {
			delay = base
		}
		if delay > max {
			delay = max
		}
		return RetryDecision{Delay: delay}
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			break
		}
	}
	if delay > max {
		delay = max
	}

	return RetryDecision{Delay: delay}
}
