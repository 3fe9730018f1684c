/*
Copyright 2025 Kagurabot Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/texttheater/golang-levenshtein/levenshtein"

	"github.com/kagurabot/exchange/config"
	"github.com/kagurabot/exchange/internal/cache"
	"github.com/kagurabot/exchange/internal/request"
	"github.com/kagurabot/exchange/model"
)

const (
	listPageSize      = 20
	maxCatalogRetries = 2
	detailCacheTTL    = 30 * time.Second
)

// Mall retcodes the catalog cares about.
const (
	retcodeOK           = 0
	retcodeGoodNotExist = -2
)

// mallResponse is the envelope every mall endpoint wraps its payload in.
type mallResponse struct {
	Retcode int             `json:"retcode"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type goodsListData struct {
	List  []model.Good `json:"list"`
	Total int          `json:"total"`
}

// CatalogClient fetches goods listings and per-item detail from the mall and
// normalizes their openness state. Detail lookups can be served from a short
// TTL cache for browsing; scheduling decisions always hit the network.
type CatalogClient struct {
	client *http.Client
	cache  cache.Cache // optional; nil disables caching
}

// NewCatalogClient returns a catalog client using the configured HTTP
// timeout. The cache may be nil.
func NewCatalogClient(c cache.Cache) (*CatalogClient, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	return &CatalogClient{
		client: request.NewClient(time.Duration(cfg.Mall.TimeoutSec) * time.Second),
		cache:  c,
	}, nil
}

// ListGoods pages through the catalog for one game until an empty page and
// returns the goods eligible for timed redemption. Items without an unlock
// time are dropped: they are either purchasable at any time or their sale is
// over, and neither state can be scheduled.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - gameBiz string: The game/region code to filter by; empty for all.
//
// Returns:
// - []model.Good: Schedulable goods, in catalog order.
// - error: A transport or schema error after bounded retries.
func (c *CatalogClient) ListGoods(ctx context.Context, gameBiz string) ([]model.Good, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	var goods []model.Good
	for page := 1; ; page++ {
		url := fmt.Sprintf("%s/goods/list?app_id=%d&point_sn=%s&page_size=%d&page=%d&game=%s",
			cfg.Mall.BaseUrl, cfg.Mall.AppID, cfg.Mall.PointSn, listPageSize, page, gameBiz)

		var data goodsListData
		envelope, err := c.getJSON(ctx, url, &data)
		if err != nil {
			return nil, err
		}
		if envelope.Retcode != retcodeOK {
			return nil, errors.Errorf("goods list rejected with retcode %d: %s", envelope.Retcode, envelope.Message)
		}
		if len(data.List) == 0 {
			break
		}
		for _, g := range data.List {
			if !g.Schedulable() {
				continue
			}
			goods = append(goods, g)
		}
	}
	return goods, nil
}

// GetDetail fetches the authoritative unlock time and stock for one good.
// When an existing Good is passed, the fresh fields are merged into it and
// the same pointer is returned; otherwise a new Good is constructed.
//
// A delisted item is reported as StatusGoodNotExist so callers can drive
// plan cleanup; transport failures map to StatusNetworkError and schema
// drift to StatusIncorrectReturn.
func (c *CatalogClient) GetDetail(ctx context.Context, goodsID string, existing *model.Good) (model.ExchangeStatus, *model.Good) {
	cfg, err := config.Fetch()
	if err != nil {
		return model.StatusNetworkError, existing
	}
	url := fmt.Sprintf("%s/goods/detail?app_id=%d&point_sn=%s&goods_id=%s",
		cfg.Mall.BaseUrl, cfg.Mall.AppID, cfg.Mall.PointSn, goodsID)

	var fresh model.Good
	envelope, err := c.getJSON(ctx, url, &fresh)
	if err != nil {
		if de, ok := request.IsDecodeError(errors.Cause(err)); ok {
			logrus.WithField("body", string(de.Body)).Debug("goods detail response did not match expected shape")
			return model.StatusIncorrectReturn, existing
		}
		return model.StatusNetworkError, existing
	}
	if envelope.Retcode != retcodeOK {
		if envelope.Retcode == retcodeGoodNotExist || len(envelope.Data) == 0 || string(envelope.Data) == "null" {
			return model.StatusGoodNotExist, existing
		}
		logrus.WithField("retcode", envelope.Retcode).Debugf("goods detail rejected: %s", envelope.Message)
		return model.StatusIncorrectReturn, existing
	}
	if fresh.GoodsID == "" {
		fresh.GoodsID = goodsID
	}

	if existing == nil {
		return model.StatusSuccess, &fresh
	}
	*existing = fresh
	return model.StatusSuccess, existing
}

// GetDetailCached serves browsing lookups from the short-TTL cache when one
// is configured. Never used at fire time.
func (c *CatalogClient) GetDetailCached(ctx context.Context, goodsID string) (model.ExchangeStatus, *model.Good) {
	key := "goods:detail:" + goodsID
	if c.cache != nil {
		var cached model.Good
		if err := c.cache.Get(ctx, key, &cached); err == nil && cached.GoodsID != "" {
			return model.StatusSuccess, &cached
		}
	}

	status, good := c.GetDetail(ctx, goodsID, nil)
	if status == model.StatusSuccess && c.cache != nil {
		if err := c.cache.Set(ctx, key, good, detailCacheTTL); err != nil {
			logrus.Debugf("failed to cache goods detail: %v", err)
		}
	}
	return status, good
}

// FindGoodsByName ranks goods by edit distance to the query so the chat
// front-end can resolve what the user typed. Exact substring matches rank
// first, then closest names.
func FindGoodsByName(goods []model.Good, query string, limit int) []model.Good {
	type scored struct {
		good  model.Good
		score int
	}

	ranked := make([]scored, 0, len(goods))
	for _, g := range goods {
		score := levenshtein.DistanceForStrings([]rune(query), []rune(g.Name), levenshtein.DefaultOptions)
		if containsRunes(g.Name, query) {
			score = 0
		}
		ranked = append(ranked, scored{good: g, score: score})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score < ranked[j].score })

	if limit > len(ranked) {
		limit = len(ranked)
	}
	out := make([]model.Good, 0, limit)
	for _, r := range ranked[:limit] {
		out = append(out, r.good)
	}
	return out
}

func containsRunes(name, query string) bool {
	return query != "" && strings.Contains(name, query)
}

// getJSON performs one GET against the mall with bounded retry on transport
// errors only; schema errors surface immediately with the raw body attached.
func (c *CatalogClient) getJSON(ctx context.Context, url string, out interface{}) (*mallResponse, error) {
	var envelope mallResponse

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		if _, err := request.Call(c.client, req, &envelope); err != nil {
			if _, ok := request.IsDecodeError(err); ok {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxCatalogRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, errors.Wrap(err, "catalog request failed")
	}

	if envelope.Retcode == retcodeOK && len(envelope.Data) > 0 && out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return nil, &request.DecodeError{Err: err, Body: envelope.Data}
		}
	}
	return &envelope, nil
}
