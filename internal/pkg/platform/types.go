package platform

import (
	"context"
	"fmt"
	"time"
)

// Ref 远端帖子的标识，不同平台使用不同字段
type Ref struct {
	URI      string `json:"uri,omitempty"`
	CID      string `json:"cid,omitempty"`
	StatusID string `json:"statusId,omitempty"`
}

// ReplyRefs 线程回复引用，Root 指向线程首条，Parent 指向上一条
type ReplyRefs struct {
	Root   Ref `json:"root"`
	Parent Ref `json:"parent"`
}

// PublishInput 单条发布请求
type PublishInput struct {
	Content string
	Reply   *ReplyRefs
}

// PublishResult 发布成功后的远端标识
type PublishResult struct {
	URI      string
	CID      string
	StatusID string
}

// DeleteIdentifiers 撤回时定位远端帖子所需的标识
type DeleteIdentifiers struct {
	URI      string
	StatusID string
}

// Client 单个平台的发布适配器
type Client interface {
	ID() string
	// CheckConfig 凭据缺失时返回错误，调度侧以此短路该平台
	CheckConfig() error
	Publish(ctx context.Context, in PublishInput) (*PublishResult, error)
	Delete(ctx context.Context, ids DeleteIdentifiers) error
}

// Error 平台调用失败，携带可用于退避决策的信息
type Error struct {
	Platform   string
	Code       int
	RetryAfter time.Duration
	Message    string
}

func (e *Error) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s: [%d] %s", e.Platform, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Platform, e.Message)
}
