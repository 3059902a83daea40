package platform

import (
	"errors"
)

// ErrUnknownPlatform 请求了未注册的平台
var ErrUnknownPlatform = errors.New("未注册的平台")

// Registry 平台适配器注册表
type Registry struct {
	clients map[string]Client
}

func NewRegistry(clients ...Client) *Registry {
	m := make(map[string]Client, len(clients))
	for _, c := range clients {
		m[c.ID()] = c
	}
	return &Registry{clients: m}
}

func (s *Registry) Get(id string) (Client, error) {
	c, ok := s.clients[id]
	if !ok {
		return nil, ErrUnknownPlatform
	}
	return c, nil
}

func (s *Registry) Has(id string) bool {
	_, ok := s.clients[id]
	return ok
}

// IDs 返回所有已注册平台
func (s *Registry) IDs() []string {
	ids := make([]string, 0, len(s.clients))
	for id := range s.clients {
		ids = append(ids, id)
	}
	return ids
}
