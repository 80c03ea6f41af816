package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/riskcore/internal/domain"
)

var log = logrus.WithField("module", "venue")

// Client 交易所持仓只读客户端（Data API positions 端点）。
// 风控核心对 venue 的唯一出站调用；下单、签名等都在外部的交易客户端里。
type Client struct {
	http        *resty.Client
	userAddress string
}

// NewClient 创建 venue 客户端。
// resty 会自动从环境变量读取代理配置（HTTP_PROXY/HTTPS_PROXY）。
func NewClient(baseURL, userAddress string, timeout time.Duration) (*Client, error) {
	baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("venue: base url is required")
	}
	if strings.TrimSpace(userAddress) == "" {
		return nil, errors.New("venue: user address is required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second)

	return &Client{
		http:        client,
		userAddress: strings.TrimSpace(userAddress),
	}, nil
}

// flexFloat 兼容字符串和数字两种 JSON 表达（Data API 两种都出现过）
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// dataAPIPosition Data API positions 响应条目（只取对账需要的字段）
type dataAPIPosition struct {
	ConditionID string    `json:"conditionId"`
	Market      string    `json:"market"`
	Size        flexFloat `json:"size"`
	AvgPrice    flexFloat `json:"avgPrice"`
}

// OpenPositions 拉取当前全部未平仓持仓。
// sizeThreshold=0 避免漏掉小额持仓；limit=500 对单机器人足够。
func (c *Client) OpenPositions(ctx context.Context) ([]domain.VenuePosition, error) {
	if c == nil {
		return nil, errors.New("venue: client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"user":          c.userAddress,
			"sizeThreshold": "0",
			"limit":         "500",
		}).
		Get("/positions")
	if err != nil {
		return nil, errors.Wrap(err, "venue: positions request failed")
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("venue: positions status=%d", resp.StatusCode())
	}

	var raw []dataAPIPosition
	if err := json.Unmarshal(resp.Body(), &raw); err != nil {
		return nil, errors.Wrap(err, "venue: decode positions")
	}

	out := make([]domain.VenuePosition, 0, len(raw))
	for _, p := range raw {
		marketID := p.ConditionID
		if marketID == "" {
			marketID = p.Market
		}
		if marketID == "" || p.Size <= 0 {
			continue
		}
		out = append(out, domain.VenuePosition{
			MarketID:      marketID,
			Shares:        decimal.NewFromFloat(float64(p.Size)),
			AvgEntryPrice: decimal.NewFromFloat(float64(p.AvgPrice)),
		})
	}
	log.Debugf("venue 持仓拉取完成: raw=%d usable=%d", len(raw), len(out))
	return out, nil
}
