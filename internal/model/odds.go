package model

import "time"

// PriceRecord 单条赔率记录（调度器不解释其内容，原样存入Snapshot）
type PriceRecord struct {
	MatchID      string             `json:"match_id"`
	MatchName    string             `json:"match_name"`
	CommenceTime time.Time          `json:"commence_time"`
	Bookmaker    string             `json:"bookmaker"`
	Market       string             `json:"market"`   // 1x2 / totals / spreads
	Outcomes     map[string]float64 `json:"outcomes"` // 选项名→赔率
}

// ProviderEvent 赔率API返回的原始比赛结构
type ProviderEvent struct {
	ID           string              `json:"id"`
	SportKey     string              `json:"sport_key"`
	HomeTeam     string              `json:"home_team"`
	AwayTeam     string              `json:"away_team"`
	CommenceTime time.Time           `json:"commence_time"`
	Bookmakers   []ProviderBookmaker `json:"bookmakers"`
}

// ProviderBookmaker 单个博彩公司在一场比赛下的报价
type ProviderBookmaker struct {
	Key     string           `json:"key"`
	Title   string           `json:"title"`
	Markets []ProviderMarket `json:"markets"`
}

// ProviderMarket 市场（玩法）及其各选项报价
type ProviderMarket struct {
	Key      string            `json:"key"`
	Outcomes []ProviderOutcome `json:"outcomes"`
}

// ProviderOutcome 单个选项的名称与价格
type ProviderOutcome struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}
