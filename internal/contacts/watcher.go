package contacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// FileWatcher 监视联系人文件，被其他进程修改后重新加载注册表
type FileWatcher struct {
	path     string
	registry *Registry
	watcher  *fsnotify.Watcher
	timeout  time.Duration
	logger   *zap.Logger

	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// WatchFile 开始监视 path
// FileStore 以临时文件 + rename 写入，所以监视的是所在目录
func WatchFile(path string, registry *Registry, logger *zap.Logger) (*FileWatcher, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create contacts dir: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	fw := &FileWatcher{
		path:     filepath.Clean(path),
		registry: registry,
		watcher:  w,
		timeout:  5 * time.Second,
		logger:   logger,
		stop:     make(chan struct{}),
	}
	fw.wg.Add(1)
	go fw.loop()

	logger.Info("Watching contacts file", zap.String("path", fw.path))
	return fw, nil
}

func (fw *FileWatcher) loop() {
	defer fw.wg.Done()
	for {
		select {
		case <-fw.stop:
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != fw.path {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			fw.reload(event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn("Contacts file watcher error", zap.Error(err))
		}
	}
}

func (fw *FileWatcher) reload(event fsnotify.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), fw.timeout)
	defer cancel()

	if err := fw.registry.Reload(ctx); err != nil {
		// 手工编辑可能留下不完整内容，下一次事件会再读
		fw.logger.Warn("Failed to reload contacts after file change",
			zap.String("op", event.Op.String()),
			zap.Error(err),
		)
		return
	}
	fw.logger.Info("Contacts reloaded after file change",
		zap.String("op", event.Op.String()),
	)
}

// Close 停止监视
func (fw *FileWatcher) Close() error {
	var err error
	fw.closeOnce.Do(func() {
		close(fw.stop)
		err = fw.watcher.Close()
		fw.wg.Wait()
	})
	return err
}
