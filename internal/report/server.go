// Package report 对外提供回测结果的 HTTP 接口与净值图表页。
package report

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"tradesim/internal/backtest"
	"tradesim/internal/logger"
	"tradesim/internal/store"
)

// Server 提供 Gin 接口，供前端提交回测、查询结果与查看净值曲线。
type Server struct {
	addr    string
	runner  *backtest.Runner
	results *store.ResultStore
	router  *gin.Engine
}

type ServerConfig struct {
	Addr    string
	Runner  *backtest.Runner
	Results *store.ResultStore
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Runner == nil {
		return nil, errors.New("runner 不能为空")
	}
	if cfg.Results == nil {
		return nil, errors.New("result store 不能为空")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9985"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		addr:    cfg.Addr,
		runner:  cfg.Runner,
		results: cfg.Results,
		router:  router,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.router.GET("/", s.handleIndex)
	api := s.router.Group("/api")
	api.POST("/runs", s.handleRunSubmit)
	api.GET("/runs", s.handleRunList)
	api.GET("/runs/:id", s.handleRunDetail)
	api.GET("/runs/:id/nav", s.handleRunNav)
	api.GET("/runs/:id/trades", s.handleRunTrades)
	s.router.GET("/runs/:id/chart", s.handleRunChart)
}

func (s *Server) handleIndex(c *gin.Context) {
	c.Redirect(http.StatusFound, "/api/runs")
}

func (s *Server) handleRunSubmit(c *gin.Context) {
	var req backtest.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	run, err := s.runner.StartRun(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run": run})
}

func (s *Server) handleRunList(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := s.runner.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) handleRunDetail(c *gin.Context) {
	run, err := s.runner.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run})
}

func (s *Server) handleRunNav(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "2000"))
	navs, err := s.results.ListNavs(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"nav": navs})
}

func (s *Server) handleRunTrades(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "2000"))
	trades, err := s.results.ListTradeDays(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) handleRunChart(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	run, err := s.runner.GetRun(ctx, id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	navs, err := s.results.ListNavs(ctx, id, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(navs) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "该 run 暂无净值数据"})
		return
	}
	chart := NavChart(run, navs)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := chart.Render(c.Writer); err != nil {
		logger.Errorf("report: 渲染净值图失败 (run=%s): %v", id, err)
	}
}

// Start 启动 HTTP 服务，阻塞直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Infof("report: HTTP 服务已启动 %s", s.addr)

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

// Handler 暴露路由，测试时直接挂到 httptest。
func (s *Server) Handler() http.Handler { return s.router }
