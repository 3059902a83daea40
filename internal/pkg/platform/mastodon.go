package platform

import (
	"Crosspost/internal/api/config"
	"Crosspost/internal/pkg/consts"
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// MastodonClient 调用 Mastodon REST API
type MastodonClient struct {
	cfg  config.MastodonConfig
	http *resty.Client
}

func NewMastodonClient(cfg config.MastodonConfig) *MastodonClient {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.APIURL, "/")).
		SetTimeout(20 * time.Second).
		SetAuthToken(cfg.AccessToken)

	return &MastodonClient{cfg: cfg, http: client}
}

func (s *MastodonClient) ID() string {
	return consts.PlatformMastodon
}

func (s *MastodonClient) CheckConfig() error {
	if s.cfg.APIURL == "" || s.cfg.AccessToken == "" {
		return &Error{Platform: s.ID(), Message: "凭据未配置"}
	}
	return nil
}

func (s *MastodonClient) Publish(ctx context.Context, in PublishInput) (*PublishResult, error) {
	body := map[string]string{
		"status": in.Content,
	}
	if in.Reply != nil && in.Reply.Parent.StatusID != "" {
		body["in_reply_to_id"] = in.Reply.Parent.StatusID
	}

	var result struct {
		ID string `json:"id"`
	}

	resp, err := s.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		Post("/api/v1/statuses")
	if err != nil {
		return nil, &Error{Platform: s.ID(), Message: err.Error()}
	}
	if resp.IsError() {
		return nil, s.asError(resp)
	}

	return &PublishResult{StatusID: result.ID}, nil
}

func (s *MastodonClient) Delete(ctx context.Context, ids DeleteIdentifiers) error {
	if ids.StatusID == "" {
		return &Error{Platform: s.ID(), Message: "缺少 status id"}
	}

	resp, err := s.http.R().
		SetContext(ctx).
		Delete("/api/v1/statuses/" + ids.StatusID)
	if err != nil {
		return &Error{Platform: s.ID(), Message: err.Error()}
	}
	if resp.IsError() {
		return s.asError(resp)
	}
	return nil
}

func (s *MastodonClient) asError(resp *resty.Response) *Error {
	e := &Error{
		Platform: s.ID(),
		Code:     resp.StatusCode(),
		Message:  strings.TrimSpace(string(resp.Body())),
	}
	if e.Message == "" {
		e.Message = resp.Status()
	}
	if resp.StatusCode() == 429 {
		e.RetryAfter = parseRetryAfter(resp.Header().Get("Retry-After"))
	}
	return e
}
