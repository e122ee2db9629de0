package strategy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"tradesim/internal/logger"
)

// Loader 加载 profiles YAML，并在 serve 模式下监听文件热更新。
type Loader struct {
	path string

	mu       sync.RWMutex
	profiles map[string]Profile
}

type profileFile struct {
	Profiles []Profile `mapstructure:"profiles" yaml:"profiles"`
}

func NewLoader(path string) (*Loader, error) {
	if path == "" {
		return nil, fmt.Errorf("profiles 路径不能为空")
	}
	l := &Loader{path: path}
	if err := l.reload(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Loader) reload() error {
	v := viper.New()
	v.SetConfigFile(l.path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("读取 profiles 失败 (%s): %w", l.path, err)
	}
	var file profileFile
	if err := v.Unmarshal(&file, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return fmt.Errorf("解析 profiles 失败: %w", err)
	}
	if len(file.Profiles) == 0 {
		return fmt.Errorf("profiles 文件 %s 为空", l.path)
	}
	next := make(map[string]Profile, len(file.Profiles))
	for _, p := range file.Profiles {
		if err := p.normalize(); err != nil {
			return err
		}
		if _, dup := next[p.Name]; dup {
			return fmt.Errorf("profile 名称重复: %s", p.Name)
		}
		next[p.Name] = p
	}
	l.mu.Lock()
	l.profiles = next
	l.mu.Unlock()
	return nil
}

// Profiles 当前全部 profile，按名称排序。
func (l *Loader) Profiles() []Profile {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Profile, 0, len(l.profiles))
	for _, p := range l.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Get 按名称取 profile。
func (l *Loader) Get(name string) (Profile, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.profiles[name]
	return p, ok
}

// Watch 监听 profiles 文件改动并热加载，直到 ctx 结束。
// 编辑器普遍用 rename+create 覆盖写，所以监听所在目录而非文件本身。
func (l *Loader) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(l.path)); err != nil {
		return err
	}
	target := filepath.Clean(l.path)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			// 去抖：覆盖写会触发多个事件
			if timer == nil {
				timer = time.NewTimer(200 * time.Millisecond)
			} else {
				timer.Reset(200 * time.Millisecond)
			}
			timerC = timer.C
		case <-timerC:
			timerC = nil
			if err := l.reload(); err != nil {
				logger.Warnf("strategy: profiles 热加载失败: %v", err)
				continue
			}
			logger.Infof("strategy: profiles 已热加载 (%s)", l.path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnf("strategy: profiles 监听异常: %v", err)
		}
	}
}

// WriteDefaultProfiles 在路径不存在时写出一份示例 profiles 文件。
func WriteDefaultProfiles(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	sample := profileFile{
		Profiles: []Profile{
			{
				Name:     "sma-demo",
				Kind:     KindSMACross,
				Universe: []string{"600000.SH", "000001.SZ"},
				Fast:     5,
				Slow:     20,
				Weight:   0.4,
			},
			{
				Name:           "hold-demo",
				Kind:           KindRebalance,
				Universe:       []string{"600000.SH"},
				RebalanceEvery: 20,
			},
		},
	}
	data, err := yaml.Marshal(sample)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
