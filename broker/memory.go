package broker

import (
	"context"
	"sort"
	"sync"
)

// LocalStore 内存消息存储，用于测试和演练模式.
//
// 消息按 Topic 分组，保持写入顺序.
type LocalStore struct {
	mu       sync.RWMutex
	messages map[string][][]byte
}

// NewLocalStore 创建空的内存存储.
func NewLocalStore() *LocalStore {
	return &LocalStore{messages: make(map[string][][]byte)}
}

// Append 追加消息.
func (s *LocalStore) Append(topic string, msgs ...[]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.messages == nil {
		s.messages = make(map[string][][]byte)
	}
	for _, msg := range msgs {
		s.messages[topic] = append(s.messages[topic], append([]byte(nil), msg...))
	}
}

// Messages 返回指定 Topic 下的消息副本.
func (s *LocalStore) Messages(topic string) [][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.messages[topic]
	out := make([][]byte, len(src))
	copy(out, src)
	return out
}

// Topics 返回已写入过的 Topic，按名称排序.
func (s *LocalStore) Topics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	topics := make([]string, 0, len(s.messages))
	for t := range s.messages {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// Len 返回消息总数.
func (s *LocalStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, msgs := range s.messages {
		n += len(msgs)
	}
	return n
}

// memoryClient 写入 LocalStore 的客户端，不访问网络.
type memoryClient struct {
	store *LocalStore
}

func newMemoryClient(store *LocalStore) *memoryClient {
	return &memoryClient{store: store}
}

// Connect 同步上报就绪.
func (c *memoryClient) Connect(hooks Hooks) {
	if hooks.Ready != nil {
		hooks.Ready()
	}
}

func (c *memoryClient) Send(_ context.Context, env *Envelope, done func(error)) {
	c.store.Append(env.Topic, env.Messages...)
	done(nil)
}

func (c *memoryClient) Close() error {
	return nil
}
