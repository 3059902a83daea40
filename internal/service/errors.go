package service

import (
	"errors"
)

const (
	BadRequest          = 400
	Unauthorized        = 401
	NotFound            = 404
	InternalServerError = 500
)

var (
	ErrParamInvalid            = errors.New("参数错误")
	ErrPostNotFound            = errors.New("帖子不存在")
	ErrPostNotPending          = errors.New("帖子不在待人工处理状态")
	ErrPostNotPublishable      = errors.New("帖子当前状态不允许发布")
	ErrContentRequired         = errors.New("内容不能为空")
	ErrScheduleRequired        = errors.New("一次性帖子必须指定发布时间")
	ErrRepeatRuleInvalid       = errors.New("重复规则无效")
	ErrPlatformInvalid         = errors.New("不支持的平台")
	ErrPlatformRequired        = errors.New("至少需要一个目标平台")
	ErrNextScheduleUnknown     = errors.New("无法计算下一次发布时间")
	ErrNoPublishedPlatformData = errors.New("没有可撤回的平台发布记录")
	ErrPostHasLiveRemote       = errors.New("帖子在远端仍有成功发布记录，请先撤回")
	ErrThreadSegmentMissing    = errors.New("线程片段不完整")
	ErrAllPlatformsFailed      = errors.New("所有平台发布失败")
	UnExpectedError            = errors.New("系统异常，请稍后重试")
)

var ErrorMap = map[error]int{
	ErrParamInvalid:            BadRequest,
	ErrPostNotFound:            NotFound,
	ErrPostNotPending:          BadRequest,
	ErrPostNotPublishable:      BadRequest,
	ErrContentRequired:         BadRequest,
	ErrScheduleRequired:        BadRequest,
	ErrRepeatRuleInvalid:       BadRequest,
	ErrPlatformInvalid:         BadRequest,
	ErrPlatformRequired:        BadRequest,
	ErrNextScheduleUnknown:     BadRequest,
	ErrNoPublishedPlatformData: BadRequest,
	ErrPostHasLiveRemote:       BadRequest,
	ErrThreadSegmentMissing:    BadRequest,
	ErrAllPlatformsFailed:      InternalServerError,
	UnExpectedError:            InternalServerError,
}
