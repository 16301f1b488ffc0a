package configwatcher

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"lesson_engine_backend/internal/config"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Reloader 接收重新加载后的配置
type Reloader func(cfg *config.Config)

type Watcher struct {
	file     string
	debounce time.Duration
	load     func(dir string) (*config.Config, error)
	log      *zap.Logger
}

func New(configFile string, log *zap.Logger) *Watcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{
		file:     configFile,
		debounce: time.Second,
		load:     config.LoadConfig,
		log:      log,
	}
}

// Watch 监听配置文件所在目录，文件变化后防抖重新加载，直到 ctx 结束
func (w *Watcher) Watch(ctx context.Context, reload Reloader) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer fw.Close()

	absPath, err := filepath.Abs(w.file)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}

	// 监听目录而不是文件，编辑器保存时常常会替换文件
	if err := fw.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("watch config dir: %w", err)
	}

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != absPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// 防抖处理
			timer.Reset(w.debounce)
		case <-timer.C:
			newCfg, err := w.load(filepath.Dir(absPath))
			if err != nil {
				w.log.Error("Failed to reload config", zap.Error(err))
				continue
			}
			w.log.Info("Config reloaded", zap.String("file", absPath))
			reload(newCfg)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Error("Config watcher error", zap.Error(err))
		}
	}
}
