package platform

import (
	"Crosspost/internal/api/config"
	"Crosspost/internal/pkg/cache"
	"Crosspost/internal/pkg/consts"
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
)

const (
	blueskySessionSuccessTTL = time.Hour
	blueskySessionErrorTTL   = 30 * time.Second

	blueskyPostCollection = "app.bsky.feed.post"
)

// BlueskyClient 通过 XRPC 调用 Bluesky（AT Protocol）
type BlueskyClient struct {
	cfg        config.BlueskyConfig
	http       *resty.Client
	sessions   cache.Cache
	sessionKey string
}

type blueskySession struct {
	AccessJwt string `json:"accessJwt"`
	Did       string `json:"did"`
}

func NewBlueskyClient(cfg config.BlueskyConfig, sessions cache.Cache) *BlueskyClient {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.ServiceURL, "/")).
		SetTimeout(20 * time.Second).
		SetHeader("Content-Type", "application/json")

	return &BlueskyClient{
		cfg:        cfg,
		http:       client,
		sessions:   sessions,
		sessionKey: consts.PlatformSessionKey + consts.PlatformBluesky,
	}
}

func (s *BlueskyClient) ID() string {
	return consts.PlatformBluesky
}

func (s *BlueskyClient) CheckConfig() error {
	if s.cfg.ServiceURL == "" || s.cfg.Identifier == "" || s.cfg.AppPassword == "" {
		return &Error{Platform: s.ID(), Message: "凭据未配置"}
	}
	return nil
}

// session 获取缓存的会话，未命中时走 createSession 登录
func (s *BlueskyClient) session(ctx context.Context) (*blueskySession, error) {
	raw, err := s.sessions.GetOrLoad(ctx, s.sessionKey, blueskySessionSuccessTTL, blueskySessionErrorTTL,
		func(ctx context.Context) (string, error) {
			return s.createSession(ctx)
		})
	if err != nil {
		if errors.Is(err, cache.ErrNegativeCached) {
			return nil, &Error{Platform: s.ID(), Message: "登录近期失败，等待重试窗口"}
		}
		return nil, err
	}

	var session blueskySession
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *BlueskyClient) createSession(ctx context.Context) (string, error) {
	var session blueskySession

	resp, err := s.http.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"identifier": s.cfg.Identifier,
			"password":   s.cfg.AppPassword,
		}).
		SetResult(&session).
		Post("/xrpc/com.atproto.server.createSession")
	if err != nil {
		return "", &Error{Platform: s.ID(), Message: err.Error()}
	}
	if resp.IsError() {
		return "", s.asError(resp)
	}

	raw, err := json.Marshal(session)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (s *BlueskyClient) Publish(ctx context.Context, in PublishInput) (*PublishResult, error) {
	session, err := s.session(ctx)
	if err != nil {
		return nil, err
	}

	record := map[string]interface{}{
		"$type":     blueskyPostCollection,
		"text":      in.Content,
		"createdAt": time.Now().UTC().Format(time.RFC3339),
	}
	if in.Reply != nil {
		record["reply"] = map[string]interface{}{
			"root":   map[string]string{"uri": in.Reply.Root.URI, "cid": in.Reply.Root.CID},
			"parent": map[string]string{"uri": in.Reply.Parent.URI, "cid": in.Reply.Parent.CID},
		}
	}

	var result struct {
		URI string `json:"uri"`
		CID string `json:"cid"`
	}

	resp, err := s.http.R().
		SetContext(ctx).
		SetAuthToken(session.AccessJwt).
		SetBody(map[string]interface{}{
			"repo":       session.Did,
			"collection": blueskyPostCollection,
			"record":     record,
		}).
		SetResult(&result).
		Post("/xrpc/com.atproto.repo.createRecord")
	if err != nil {
		return nil, &Error{Platform: s.ID(), Message: err.Error()}
	}
	if resp.StatusCode() == 401 {
		// 会话过期，清掉缓存让下一次重新登录
		_ = s.sessions.Invalidate(ctx, s.sessionKey)
		return nil, s.asError(resp)
	}
	if resp.IsError() {
		return nil, s.asError(resp)
	}

	return &PublishResult{URI: result.URI, CID: result.CID}, nil
}

func (s *BlueskyClient) Delete(ctx context.Context, ids DeleteIdentifiers) error {
	rkey, err := recordKeyFromURI(ids.URI)
	if err != nil {
		return &Error{Platform: s.ID(), Message: err.Error()}
	}

	session, err := s.session(ctx)
	if err != nil {
		return err
	}

	resp, err := s.http.R().
		SetContext(ctx).
		SetAuthToken(session.AccessJwt).
		SetBody(map[string]string{
			"repo":       session.Did,
			"collection": blueskyPostCollection,
			"rkey":       rkey,
		}).
		Post("/xrpc/com.atproto.repo.deleteRecord")
	if err != nil {
		return &Error{Platform: s.ID(), Message: err.Error()}
	}
	if resp.StatusCode() == 401 {
		_ = s.sessions.Invalidate(ctx, s.sessionKey)
		return s.asError(resp)
	}
	if resp.IsError() {
		return s.asError(resp)
	}
	return nil
}

// recordKeyFromURI 从 at://did/collection/rkey 中取出 rkey
func recordKeyFromURI(uri string) (string, error) {
	if !strings.HasPrefix(uri, "at://") {
		return "", errors.New("无效的 at:// URI")
	}
	parts := strings.Split(strings.TrimPrefix(uri, "at://"), "/")
	if len(parts) < 3 || parts[2] == "" {
		return "", errors.New("无效的 at:// URI")
	}
	return parts[2], nil
}

func (s *BlueskyClient) asError(resp *resty.Response) *Error {
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

// parseRetryAfter 只处理秒数形式，无法解析时返回 0
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
