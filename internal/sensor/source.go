package sensor

import (
	"context"
	"errors"
	"sync"

	"lifesignal/internal/models"
)

var (
	// ErrAuthorizationDenied 用户拒绝了传感器数据访问
	ErrAuthorizationDenied = errors.New("sensor authorization denied")
	// ErrNotAvailable 传感器数据源不可用
	ErrNotAvailable = errors.New("sensor data not available")
)

// Source 读数来源
// Authorize 成功之前不应消费 Readings
type Source interface {
	Authorize(ctx context.Context) error
	Readings() <-chan models.Reading
	Close() error
}

// ChannelSource 由调用方直接推送读数的来源
type ChannelSource struct {
	mu        sync.Mutex
	readings  chan models.Reading
	done      chan struct{}
	closeOnce sync.Once
	authErr   error
	closed    bool
}

// NewChannelSource 创建推送式来源
func NewChannelSource(buffer int) *ChannelSource {
	return &ChannelSource{
		readings: make(chan models.Reading, buffer),
		done:     make(chan struct{}),
	}
}

// SetAuthorizationError 设置 Authorize 的返回值（nil 表示授权成功）
func (s *ChannelSource) SetAuthorizationError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authErr = err
}

// Authorize 授权
func (s *ChannelSource) Authorize(context.Context) error {
	select {
	case <-s.done:
		return ErrNotAvailable
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authErr
}

// Push 推送一条读数；来源关闭或 ctx 结束时返回错误
func (s *ChannelSource) Push(ctx context.Context, r models.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrNotAvailable
	}

	select {
	case s.readings <- r:
		return nil
	case <-s.done:
		return ErrNotAvailable
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Readings 读数通道
func (s *ChannelSource) Readings() <-chan models.Reading {
	return s.readings
}

// Close 关闭来源
func (s *ChannelSource) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		s.closed = true
		close(s.readings)
		s.mu.Unlock()
	})
	return nil
}
