// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package secrets

import (
	"context"
	"os"
	"sort"
	"strings"
	"sync"

	"verify-platform/pkg/errors"
)

// memoryStore 进程内 secret，可由配置预置（provider: memory 时 config 即初始内容）
type memoryStore struct {
	mu      sync.RWMutex
	secrets map[string]string
}

// NewMemoryStore 创建内存 secret store，seed 为初始内容（可为 nil）
func NewMemoryStore(seed map[string]string) Store {
	m := &memoryStore{secrets: make(map[string]string, len(seed))}
	for k, v := range seed {
		m.secrets[k] = v
	}
	return m
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	value, ok := m.secrets[key]
	m.mu.RUnlock()
	if !ok {
		return "", errors.Wrapf(errors.ErrNotFound, "secret %q", key)
	}
	return value, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value string) error {
	m.mu.Lock()
	m.secrets[key] = value
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.secrets, key)
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedMatching(m.secrets, prefix), nil
}

// envStore 从环境变量读取 secret。key 映射为 <prefix><KEY>：
// 转大写，'-' '.' '/' 替换为 '_'，如 anthropic_api_key -> ANTHROPIC_API_KEY
type envStore struct {
	prefix string
}

// NewEnvStore 创建环境变量 secret store；prefix 为变量名前缀，如 "VERIFY_"
func NewEnvStore(prefix string) Store {
	return &envStore{prefix: strings.ToUpper(prefix)}
}

var envKeyReplacer = strings.NewReplacer("-", "_", ".", "_", "/", "_")

func (e *envStore) varName(key string) string {
	return e.prefix + strings.ToUpper(envKeyReplacer.Replace(key))
}

func (e *envStore) Get(_ context.Context, key string) (string, error) {
	name := e.varName(key)
	value, ok := os.LookupEnv(name)
	if !ok || value == "" {
		return "", errors.Wrapf(errors.ErrNotFound, "secret %q (env %s)", key, name)
	}
	return value, nil
}

func (e *envStore) Set(_ context.Context, key string, value string) error {
	return os.Setenv(e.varName(key), value)
}

func (e *envStore) Delete(_ context.Context, key string) error {
	return os.Unsetenv(e.varName(key))
}

// List 返回去掉前缀后的变量名（小写），与 Get 的 key 形式一致
func (e *envStore) List(_ context.Context, prefix string) ([]string, error) {
	vars := make(map[string]string)
	for _, kv := range os.Environ() {
		name, value, _ := strings.Cut(kv, "=")
		if rest, ok := strings.CutPrefix(name, e.prefix); ok && rest != "" {
			vars[strings.ToLower(rest)] = value
		}
	}
	return sortedMatching(vars, strings.ToLower(envKeyReplacer.Replace(prefix))), nil
}

func sortedMatching(m map[string]string, prefix string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
