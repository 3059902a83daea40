package handler

import (
	"Crosspost/internal/api/dto"
	"Crosspost/internal/pkg/response"
	"Crosspost/internal/service"
	"strconv"

	"github.com/gin-gonic/gin"
)

type PostHandler struct {
	postSvc    service.PostService
	retractSvc service.RetractionService
}

func NewPostHandler(postSvc service.PostService, retractSvc service.RetractionService) *PostHandler {
	return &PostHandler{
		postSvc:    postSvc,
		retractSvc: retractSvc,
	}
}

func (s *PostHandler) CreatePost(c *gin.Context) {
	var req dto.PostBaseDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, err)
		return
	}

	post, err := s.postSvc.CreatePost(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, post)
}

func (s *PostHandler) GetPost(c *gin.Context) {
	postID, err := parsePostID(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	includeDeleted := c.Query("include_deleted") == "true"

	post, err := s.postSvc.GetPost(c.Request.Context(), postID, includeDeleted)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, post)
}

func (s *PostHandler) ListPosts(c *gin.Context) {
	var query dto.ListPostsQueryDTO
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, err)
		return
	}

	posts, err := s.postSvc.ListPosts(c.Request.Context(), &query)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, posts)
}

func (s *PostHandler) UpdatePost(c *gin.Context) {
	postID, err := parsePostID(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req dto.PostBaseDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, err)
		return
	}

	post, err := s.postSvc.UpdatePost(c.Request.Context(), postID, &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, post)
}

func (s *PostHandler) DeletePost(c *gin.Context) {
	postID, err := parsePostID(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var query dto.DeletePostQueryDTO
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, err)
		return
	}

	err = s.postSvc.DeletePost(c.Request.Context(), postID, query.Permanent, query.Force)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, nil)
}

func (s *PostHandler) RestorePost(c *gin.Context) {
	postID, err := parsePostID(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	if err := s.postSvc.RestorePost(c.Request.Context(), postID); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, nil)
}

func (s *PostHandler) PublishNow(c *gin.Context) {
	postID, err := parsePostID(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	post, err := s.postSvc.PublishNow(c.Request.Context(), postID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, post)
}

func (s *PostHandler) RetractPost(c *gin.Context) {
	postID, err := parsePostID(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req dto.RetractReqDTO
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		response.Error(c, err)
		return
	}

	results, err := s.retractSvc.Retract(c.Request.Context(), postID, req.Platforms)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, results)
}

func (s *PostHandler) GetSendHistory(c *gin.Context) {
	postID, err := parsePostID(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var query dto.SendLogQueryDTO
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, err)
		return
	}

	logs, err := s.postSvc.GetSendHistory(c.Request.Context(), postID, query.Limit, query.Offset)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, logs)
}

func parsePostID(c *gin.Context) (uint64, error) {
	postID, err := strconv.ParseUint(c.Param("post_id"), 10, 64)
	if err != nil {
		return 0, service.ErrParamInvalid
	}
	return postID, nil
}
