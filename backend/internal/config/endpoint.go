package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"

	"cinefm/backend/internal/types"
)

// keyringService 是保存 endpoint 密码的钥匙串服务名
const keyringService = "cinefm"

// ResolveEndpoint 根据源前缀选出唯一匹配的 endpoint。
// 没有匹配时返回 (nil, nil)，调用方应回退到本地传输；
// 多于一个匹配时返回 *EndpointConflictError，而不是随意挑一个。
func ResolveEndpoint(panel types.Panel, endpoints []types.EndpointConfig, prefix string) (*types.EndpointConfig, error) {
	folder := strings.Trim(prefix, "/")

	var match *types.EndpointConfig
	count := 0
	for i := range endpoints {
		if strings.Trim(endpoints[i].Folder, "/") == folder {
			count++
			if match == nil {
				e := endpoints[i]
				match = &e
			}
		}
	}

	switch {
	case count == 0:
		return nil, nil
	case count > 1:
		return nil, &EndpointConflictError{Panel: panel, Folder: folder, Count: count}
	}
	return match, nil
}

// EndpointPassword 返回 endpoint 的密码；配置中为空时查询系统钥匙串。
// 钥匙串中没有记录时返回空串；钥匙串本身不可用时返回错误，调用方应回退到匿名登录
func EndpointPassword(e types.EndpointConfig) (string, error) {
	if e.Password != "" {
		return e.Password, nil
	}
	account := e.User + "@" + e.Host
	secret, err := keyring.Get(keyringService, account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("keyring lookup for %s: %w", account, err)
	}
	return secret, nil
}

// SaveEndpointPassword 把密码写入系统钥匙串
func SaveEndpointPassword(e types.EndpointConfig, password string) error {
	return keyring.Set(keyringService, e.User+"@"+e.Host, password)
}
