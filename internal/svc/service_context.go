package svc

import (
	"crypto/tls"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/fachebot/point-digest/internal/classifier"
	"github.com/fachebot/point-digest/internal/config"
	"github.com/fachebot/point-digest/internal/llm"
	"github.com/fachebot/point-digest/internal/logger"
	"github.com/fachebot/point-digest/internal/model"
	"github.com/fachebot/point-digest/internal/presenter"
	"github.com/fachebot/point-digest/internal/report"
	"github.com/fachebot/point-digest/internal/summarizer"

	"golang.org/x/net/proxy"
)

type ServiceContext struct {
	Config         *config.Config
	DB             *sql.DB
	TransportProxy *http.Transport
	ReportModel    *model.ReportModel
	LLMClient      *llm.Client
	Classifier     *classifier.Heuristic
	Presenter      *presenter.Presenter
	Renderer       *report.Renderer
	Summarizer     *summarizer.Summarizer
}

func NewServiceContext(c *config.Config) (*ServiceContext, error) {
	// 打开数据库
	db, err := model.Open(c.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	// 创建SOCKS5代理
	var transportProxy *http.Transport
	if c.Sock5Proxy.Enable {
		socks5Proxy := fmt.Sprintf("%s:%d", c.Sock5Proxy.Host, c.Sock5Proxy.Port)
		dialer, err := proxy.SOCKS5("tcp", socks5Proxy, nil, proxy.Direct)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("创建SOCKS5代理失败: %w", err)
		}

		transportProxy = &http.Transport{
			Dial:            dialer.Dial,
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	renderer, err := report.NewRenderer(c.Report.Template)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("加载报告模板失败: %w", err)
	}

	// 未启用 LLM 时报告不包含导语
	var llmClient *llm.Client
	if c.LLM.Enable {
		llmClient = llm.NewClient(&c.LLM, transportProxy)
	}

	svcCtx := &ServiceContext{
		Config:         c,
		DB:             db,
		TransportProxy: transportProxy,
		ReportModel:    model.NewReportModel(db),
		LLMClient:      llmClient,
		Classifier:     classifier.NewHeuristic(c.Classifier),
		Presenter:      presenter.New(),
		Renderer:       renderer,
	}
	svcCtx.Summarizer = summarizer.NewSummarizer(
		svcCtx.Classifier,
		svcCtx.Presenter,
		svcCtx.LLMClient,
		svcCtx.ReportModel,
		svcCtx.Renderer,
		c.Report.OutputDir,
	)
	return svcCtx, nil
}

func (svcCtx *ServiceContext) Close() {
	if err := svcCtx.DB.Close(); err != nil {
		logger.Errorf("关闭数据库失败, %v", err)
	}
}
