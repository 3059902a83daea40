package handler

import (
	"Crosspost/internal/pkg/response"
	"Crosspost/internal/service"

	"github.com/gin-gonic/gin"
)

type PendingHandler struct {
	postSvc service.PostService
}

func NewPendingHandler(postSvc service.PostService) *PendingHandler {
	return &PendingHandler{
		postSvc: postSvc,
	}
}

func (s *PendingHandler) ListPending(c *gin.Context) {
	posts, err := s.postSvc.ListPending(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, posts)
}

// PublishPending 补发：对 pending_manual 帖子立即发布一次
func (s *PendingHandler) PublishPending(c *gin.Context) {
	postID, err := parsePostID(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	post, err := s.postSvc.PublishPendingOnce(c.Request.Context(), postID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, post)
}

// DiscardPending 丢弃：一次性帖转 skipped，周期帖滚动到下一次计划时间
func (s *PendingHandler) DiscardPending(c *gin.Context) {
	postID, err := parsePostID(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	post, err := s.postSvc.DiscardPending(c.Request.Context(), postID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, post)
}
