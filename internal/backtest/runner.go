package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"tradesim/internal/broker"
	"tradesim/internal/feed"
	"tradesim/internal/logger"
	"tradesim/internal/market"
	"tradesim/internal/portfolio"
	"tradesim/internal/store"
	"tradesim/internal/strategy"
)

// RunnerConfig 配置 Runner。
type RunnerConfig struct {
	Quotes   *feed.QuoteStore
	Results  *store.ResultStore
	Profiles *strategy.Loader
	// Defaults 提交请求缺省字段的回落值。
	Defaults      RunConfig
	MaxConcurrent int
}

// Runner 负责管理回测任务：接收提交、限并发执行、落库结果。
type Runner struct {
	quotes   *feed.QuoteStore
	results  *store.ResultStore
	profiles *strategy.Loader
	defaults RunConfig

	sem     chan struct{}
	baseCtx context.Context
}

func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Quotes == nil {
		return nil, fmt.Errorf("quote store 不能为空")
	}
	if cfg.Results == nil {
		return nil, fmt.Errorf("result store 不能为空")
	}
	if cfg.Profiles == nil {
		return nil, fmt.Errorf("profile loader 不能为空")
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	defaults := cfg.Defaults
	if defaults.InitialEquity <= 0 {
		defaults.InitialEquity = 1_000_000
	}
	if defaults.PricePolicy == "" {
		defaults.PricePolicy = string(market.PolicyClose)
	}
	return &Runner{
		quotes:   cfg.Quotes,
		results:  cfg.Results,
		profiles: cfg.Profiles,
		defaults: defaults,
		sem:      make(chan struct{}, maxConcurrent),
		baseCtx:  context.Background(),
	}, nil
}

// SetContext 注入宿主 ctx，用于任务取消。
func (r *Runner) SetContext(ctx context.Context) {
	if ctx != nil {
		r.baseCtx = ctx
	}
}

func (r *Runner) ctx() context.Context {
	if r.baseCtx == nil {
		return context.Background()
	}
	return r.baseCtx
}

// resolveConfig 合并请求与默认值，并做参数校验。
func (r *Runner) resolveConfig(req RunRequest) (RunConfig, error) {
	cfg := RunConfig{
		Profile:       req.Profile,
		Start:         req.Start,
		End:           req.End,
		InitialEquity: req.InitialEquity,
		Commission:    req.Commission,
		StampTax:      req.StampTax,
		PricePolicy:   req.PricePolicy,
		ShortAllowed:  req.ShortAllowed,
	}
	if cfg.Profile == "" {
		return RunConfig{}, fmt.Errorf("profile 不能为空")
	}
	if _, ok := r.profiles.Get(cfg.Profile); !ok {
		return RunConfig{}, fmt.Errorf("未知 profile: %s", cfg.Profile)
	}
	if cfg.Start == "" {
		cfg.Start = r.defaults.Start
	}
	if cfg.End == "" {
		cfg.End = r.defaults.End
	}
	if cfg.InitialEquity <= 0 {
		cfg.InitialEquity = r.defaults.InitialEquity
	}
	if cfg.Commission == 0 {
		cfg.Commission = r.defaults.Commission
	}
	if cfg.Commission < 0 {
		return RunConfig{}, fmt.Errorf("commission 不能为负: %v", cfg.Commission)
	}
	if cfg.StampTax == 0 {
		cfg.StampTax = r.defaults.StampTax
	}
	if cfg.PricePolicy == "" {
		cfg.PricePolicy = r.defaults.PricePolicy
	}
	if _, err := market.ParsePricePolicy(cfg.PricePolicy); err != nil {
		return RunConfig{}, err
	}
	return cfg, nil
}

// StartRun 提交一个异步回测任务，立即返回 pending 状态的 run。
func (r *Runner) StartRun(req RunRequest) (Run, error) {
	cfg, err := r.resolveConfig(req)
	if err != nil {
		return Run{}, err
	}
	run, model, err := newRunRecord(cfg)
	if err != nil {
		return Run{}, err
	}
	if err := r.results.InsertRun(r.ctx(), &model); err != nil {
		return Run{}, err
	}
	logger.Infof("backtest: 任务 %s 提交 profile=%s [%s,%s]", run.ID, cfg.Profile, cfg.Start, cfg.End)
	go r.runAsync(run.ID, cfg)
	return run, nil
}

// RunOnce 同步执行一次回测，CLI 一次性模式使用。
func (r *Runner) RunOnce(ctx context.Context, req RunRequest) (Run, error) {
	cfg, err := r.resolveConfig(req)
	if err != nil {
		return Run{}, err
	}
	run, model, err := newRunRecord(cfg)
	if err != nil {
		return Run{}, err
	}
	if err := r.results.InsertRun(ctx, &model); err != nil {
		return Run{}, err
	}
	if err := r.execute(ctx, run.ID, cfg); err != nil {
		return Run{}, err
	}
	final, err := r.results.GetRun(ctx, run.ID)
	if err != nil {
		return Run{}, err
	}
	return runFromModel(final), nil
}

// RunAll 并发执行多个请求，任一失败即整体失败。
func (r *Runner) RunAll(ctx context.Context, reqs []RunRequest) ([]Run, error) {
	runs := make([]Run, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cap(r.sem))
	for i, req := range reqs {
		g.Go(func() error {
			run, err := r.RunOnce(gctx, req)
			if err != nil {
				return fmt.Errorf("profile %s: %w", req.Profile, err)
			}
			runs[i] = run
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return runs, nil
}

func newRunRecord(cfg RunConfig) (Run, store.RunModel, error) {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return Run{}, store.RunModel{}, err
	}
	run := Run{
		ID:        uuid.NewString(),
		Profile:   cfg.Profile,
		Status:    RunStatusPending,
		Config:    cfg,
		CreatedAt: time.Now(),
	}
	model := store.RunModel{
		ID:            run.ID,
		Profile:       cfg.Profile,
		Status:        RunStatusPending,
		Start:         cfg.Start,
		End:           cfg.End,
		InitialEquity: cfg.InitialEquity,
		Config:        cfgJSON,
	}
	return run, model, nil
}

func (r *Runner) runAsync(id string, cfg RunConfig) {
	select {
	case r.sem <- struct{}{}:
	case <-r.ctx().Done():
		_ = r.results.UpdateRunStatus(context.Background(), id, RunStatusFailed, "服务已关闭")
		return
	}
	defer func() { <-r.sem }()

	if err := r.execute(r.ctx(), id, cfg); err != nil {
		logger.Errorf("backtest: 任务 %s 失败: %v", id, err)
	}
}

// execute 驱动一次完整回测并落库；失败时回写 failed 状态。
func (r *Runner) execute(ctx context.Context, id string, cfg RunConfig) error {
	if err := r.results.UpdateRunStatus(ctx, id, RunStatusRunning, ""); err != nil {
		return err
	}
	stats, navs, trades, err := r.simulate(ctx, id, cfg)
	if err != nil {
		_ = r.results.UpdateRunStatus(context.Background(), id, RunStatusFailed, err.Error())
		return err
	}

	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	if err := r.results.SaveNavs(ctx, navs); err != nil {
		return err
	}
	if err := r.results.SaveTradeDays(ctx, trades); err != nil {
		return err
	}
	model := store.RunModel{
		ID:             id,
		Status:         RunStatusDone,
		FinalNav:       stats.FinalNav,
		Profit:         stats.Profit,
		ReturnPct:      stats.ReturnPct,
		MaxDrawdownPct: stats.MaxDrawdownPct,
		Orders:         stats.Orders,
		Executed:       stats.Executed,
		Stats:          statsJSON,
	}
	if err := r.results.UpdateRunSummary(ctx, &model); err != nil {
		return err
	}
	logger.Infof("backtest: 任务 %s 完成 days=%d return=%.2f%% maxDD=%.2f%%",
		id, stats.Days, stats.ReturnPct, stats.MaxDrawdownPct)
	return nil
}

// simulate 执行回测主循环：逐日 载入快照 -> 策略下单 -> 执行 -> 收盘估值。
func (r *Runner) simulate(ctx context.Context, id string, cfg RunConfig) (RunStats, []store.NavModel, []store.TradeDayModel, error) {
	profile, ok := r.profiles.Get(cfg.Profile)
	if !ok {
		return RunStats{}, nil, nil, fmt.Errorf("未知 profile: %s", cfg.Profile)
	}
	strat, err := strategy.New(profile)
	if err != nil {
		return RunStats{}, nil, nil, err
	}
	policy, err := market.ParsePricePolicy(cfg.PricePolicy)
	if err != nil {
		return RunStats{}, nil, nil, err
	}
	ledger, err := portfolio.NewLedger(portfolio.Options{
		InitialEquity: cfg.InitialEquity,
		Commission:    cfg.Commission,
		StampTax:      cfg.StampTax,
	})
	if err != nil {
		return RunStats{}, nil, nil, err
	}
	b, err := broker.New(ledger, broker.Options{
		Commission:   cfg.Commission,
		PricePolicy:  policy,
		ShortAllowed: cfg.ShortAllowed,
	})
	if err != nil {
		return RunStats{}, nil, nil, err
	}
	f, err := feed.New(ctx, r.quotes, cfg.Start, cfg.End)
	if err != nil {
		return RunStats{}, nil, nil, err
	}
	if f.Len() == 0 {
		return RunStats{}, nil, nil, fmt.Errorf("区间 [%s,%s] 内没有行情", cfg.Start, cfg.End)
	}

	for {
		if err := ctx.Err(); err != nil {
			return RunStats{}, nil, nil, err
		}
		day, ok, err := f.Next(ctx)
		if err != nil {
			return RunStats{}, nil, nil, err
		}
		if !ok {
			break
		}
		if err := b.UpdateInfo(day.Date, day.Quotes); err != nil {
			return RunStats{}, nil, nil, fmt.Errorf("载入 %s 行情失败: %w", day.Date, err)
		}
		if err := strat.OnBar(b.Snapshot(), b); err != nil {
			return RunStats{}, nil, nil, fmt.Errorf("策略 %s 在 %s 失败: %w", strat.Name(), day.Date, err)
		}
		if err := b.Execute(); err != nil {
			return RunStats{}, nil, nil, fmt.Errorf("执行 %s 委托失败: %w", day.Date, err)
		}
		if err := b.UpdateValue(); err != nil {
			return RunStats{}, nil, nil, err
		}
	}

	history := ledger.History()
	tradeLog := b.TradeLog()
	stats := computeStats(cfg.InitialEquity, history, tradeLog)

	navs := make([]store.NavModel, 0, len(history))
	for _, rec := range history {
		positions, err := json.Marshal(rec.Positions)
		if err != nil {
			return RunStats{}, nil, nil, err
		}
		navs = append(navs, store.NavModel{
			RunID:     id,
			Date:      rec.Date,
			Nav:       rec.Nav,
			Cash:      rec.Cash,
			Positions: positions,
		})
	}
	trades := make([]store.TradeDayModel, 0, len(tradeLog))
	for _, day := range tradeLog {
		trades = append(trades, store.TradeDayModel{
			RunID:    id,
			Date:     day.Date,
			Traded:   day.Traded,
			Fees:     day.Fees,
			Orders:   day.Orders,
			Executed: day.Executed,
		})
	}
	return stats, navs, trades, nil
}

// ListRuns 透传结果库的 run 列表。
func (r *Runner) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	models, err := r.results.ListRuns(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Run, 0, len(models))
	for _, m := range models {
		out = append(out, runFromModel(m))
	}
	return out, nil
}

// GetRun 按 ID 取 run 详情。
func (r *Runner) GetRun(ctx context.Context, id string) (Run, error) {
	m, err := r.results.GetRun(ctx, id)
	if err != nil {
		return Run{}, err
	}
	return runFromModel(m), nil
}
