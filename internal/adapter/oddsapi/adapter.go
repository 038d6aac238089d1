package oddsapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"OddsSync/internal/config"
	"OddsSync/internal/interfaces"
	"OddsSync/internal/model"
	"OddsSync/internal/utils/httpclient"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ErrTransient 网络/超时/5xx/限流类错误，大概率重试可恢复
var ErrTransient = errors.New("临时性拉取错误")

// ErrPermanent 4xx/响应格式类错误；无法可靠区分时仍按重试上限重试
var ErrPermanent = errors.New("永久性拉取错误")

// Adapter 赔率API适配器，实现interfaces.OddsFetcher。
// 内置每分钟速率限制（与日/月配额账本分层，账本管预算，这里管瞬时速率）。
type Adapter struct {
	cfg        *config.ProviderConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logrus.Logger
}

// NewAdapter 创建赔率API适配器
func NewAdapter(cfg *config.ProviderConfig, logger *logrus.Logger) interfaces.OddsFetcher {
	return &Adapter{
		cfg:        cfg,
		httpClient: httpclient.NewHTTPClient(cfg, logger),
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerMinute/60), 1),
		logger:     logger,
	}
}

// FetchOdds 拉取一个联赛的全部比赛赔率并展平为PriceRecord列表
func (a *Adapter) FetchOdds(ctx context.Context, feedKey string) ([]model.PriceRecord, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: 等待速率限制被取消: %v", ErrTransient, err)
	}

	oddsURL := fmt.Sprintf("%s/v4/sports/%s/odds?apiKey=%s&regions=%s&markets=%s&oddsFormat=decimal",
		a.cfg.BaseURL, feedKey, a.cfg.APIKey, a.cfg.Regions, a.cfg.Markets)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, oddsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: 构造请求失败: %v", ErrPermanent, err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: 请求赔率接口失败: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	var events []model.ProviderEvent
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return nil, fmt.Errorf("%w: 解析赔率响应失败: %v", ErrPermanent, err)
	}

	records := flatten(events)
	a.logger.WithFields(logrus.Fields{
		"feed_key": feedKey,
		"events":   len(events),
		"records":  len(records),
	}).Info("赔率拉取成功")
	return records, nil
}

// classifyStatus 按HTTP状态码归类错误；不管哪类，对重试策略都一样（上限内重试）
func classifyStatus(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusTooManyRequests || code >= 500:
		return fmt.Errorf("%w: 赔率接口返回%d", ErrTransient, code)
	default:
		return fmt.Errorf("%w: 赔率接口返回%d", ErrPermanent, code)
	}
}

// flatten 把提供商的嵌套结构展平：一场比赛×一个公司×一个市场=一条记录。
// 空响应返回空切片而非nil，快照序列化后是[]而不是null。
func flatten(events []model.ProviderEvent) []model.PriceRecord {
	records := []model.PriceRecord{}
	for _, ev := range events {
		matchName := fmt.Sprintf("%s vs %s", ev.HomeTeam, ev.AwayTeam)
		for _, bk := range ev.Bookmakers {
			for _, mk := range bk.Markets {
				outcomes := make(map[string]float64, len(mk.Outcomes))
				for _, o := range mk.Outcomes {
					outcomes[o.Name] = o.Price
				}
				records = append(records, model.PriceRecord{
					MatchID:      ev.ID,
					MatchName:    matchName,
					CommenceTime: ev.CommenceTime,
					Bookmaker:    bk.Key,
					Market:       mk.Key,
					Outcomes:     outcomes,
				})
			}
		}
	}
	return records
}
