// Package app 负责应用级编排：加载配置 -> 初始化依赖 -> 跑回测或启动服务。
package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"tradesim/internal/backtest"
	"tradesim/internal/config"
	"tradesim/internal/feed"
	"tradesim/internal/logger"
	"tradesim/internal/report"
	"tradesim/internal/store"
	"tradesim/internal/strategy"
)

// App 持有全部组件。serve 模式常驻 HTTP 服务并热加载 profiles，
// 一次性模式跑完配置的 profile 后退出。
type App struct {
	cfg      *config.Config
	quotes   *feed.QuoteStore
	results  *store.ResultStore
	profiles *strategy.Loader
	runner   *backtest.Runner
	server   *report.Server
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	quotes, err := feed.OpenQuoteStore(cfg.Data.QuotesDB)
	if err != nil {
		return nil, fmt.Errorf("打开行情库失败: %w", err)
	}
	if cfg.Data.ImportJSON != "" {
		n, err := feed.ImportJSON(ctx, quotes, cfg.Data.ImportJSON)
		if err != nil {
			quotes.Close()
			return nil, fmt.Errorf("导入行情失败 (%s): %w", cfg.Data.ImportJSON, err)
		}
		logger.Infof("app: 已导入 %d 行行情 (%s)", n, cfg.Data.ImportJSON)
	}

	results, err := store.NewResultStore(cfg.Data.ResultsDB)
	if err != nil {
		quotes.Close()
		return nil, fmt.Errorf("打开结果库失败: %w", err)
	}

	if err := strategy.WriteDefaultProfiles(cfg.Backtest.ProfilesPath); err != nil {
		quotes.Close()
		results.Close()
		return nil, err
	}
	profiles, err := strategy.NewLoader(cfg.Backtest.ProfilesPath)
	if err != nil {
		quotes.Close()
		results.Close()
		return nil, fmt.Errorf("加载 profiles 失败: %w", err)
	}

	runner, err := backtest.NewRunner(backtest.RunnerConfig{
		Quotes:   quotes,
		Results:  results,
		Profiles: profiles,
		Defaults: backtest.RunConfig{
			Start:         cfg.Backtest.Start,
			End:           cfg.Backtest.End,
			InitialEquity: cfg.Broker.InitialEquity,
			Commission:    cfg.Broker.Commission,
			StampTax:      cfg.Broker.StampTax,
			PricePolicy:   cfg.Broker.PricePolicy,
			ShortAllowed:  cfg.Broker.ShortAllowed,
		},
		MaxConcurrent: cfg.Backtest.MaxConcurrent,
	})
	if err != nil {
		quotes.Close()
		results.Close()
		return nil, err
	}

	a := &App{
		cfg:      cfg,
		quotes:   quotes,
		results:  results,
		profiles: profiles,
		runner:   runner,
	}
	if cfg.Server.Enabled {
		server, err := report.NewServer(report.ServerConfig{
			Addr:    cfg.Server.Addr,
			Runner:  runner,
			Results: results,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.server = server
	}
	return a, nil
}

// Run 按配置运行：serve 模式阻塞到 ctx 取消，一次性模式跑完即返回。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	a.runner.SetContext(ctx)

	if a.server != nil {
		group, ctx := errgroup.WithContext(ctx)
		group.Go(func() error {
			return a.server.Start(ctx)
		})
		group.Go(func() error {
			err := a.profiles.Watch(ctx)
			if err == context.Canceled {
				return nil
			}
			return err
		})
		return group.Wait()
	}
	return a.runConfigured(ctx)
}

// runConfigured 一次性模式：跑配置里点名的 profile（为空则全部）。
func (a *App) runConfigured(ctx context.Context) error {
	names := a.cfg.Backtest.Profiles
	if len(names) == 0 {
		for _, p := range a.profiles.Profiles() {
			names = append(names, p.Name)
		}
	}
	if len(names) == 0 {
		return fmt.Errorf("没有可运行的 profile")
	}
	reqs := make([]backtest.RunRequest, 0, len(names))
	for _, name := range names {
		reqs = append(reqs, backtest.RunRequest{Profile: name})
	}
	runs, err := a.runner.RunAll(ctx, reqs)
	if err != nil {
		return err
	}
	for _, run := range runs {
		logger.Infof("app: %s 收益=%.2f%% 最大回撤=%.2f%% 成交=%d 笔 (run=%s)",
			run.Profile, run.Stats.ReturnPct, run.Stats.MaxDrawdownPct, run.Stats.Executed, run.ID)
	}
	return nil
}

// Close 释放全部持久化资源。
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.quotes != nil {
		a.quotes.Close()
	}
	if a.results != nil {
		a.results.Close()
	}
}

// Runner 暴露底层 runner，测试与回放工具使用。
func (a *App) Runner() *backtest.Runner { return a.runner }
