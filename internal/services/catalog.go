// Package services 提供辩论核心周边的支撑服务
package services

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/run-bigpig/sanjiu/internal/embed"
	"github.com/run-bigpig/sanjiu/internal/models"
)

// CatalogService 标的目录服务
// 基于内嵌基础数据做 symbol → 名称/板块 的查询，行情价格
// 仍由外部采集方提供
type CatalogService struct {
	once   sync.Once
	bySym  map[string]models.Stock
	loaded []models.Stock
	err    error
}

// NewCatalogService 创建标的目录服务
func NewCatalogService() *CatalogService {
	return &CatalogService{}
}

// load 惰性解析内嵌数据
func (s *CatalogService) load() {
	s.once.Do(func() {
		var stocks []models.Stock
		if err := json.Unmarshal(embed.StockBasicJSON, &stocks); err != nil {
			s.err = fmt.Errorf("解析内嵌标的数据失败: %w", err)
			return
		}
		s.loaded = stocks
		s.bySym = make(map[string]models.Stock, len(stocks))
		for _, st := range stocks {
			s.bySym[st.Symbol] = st
		}
	})
}

// Lookup 按代码查询标的基础信息
func (s *CatalogService) Lookup(symbol string) (models.Stock, bool) {
	s.load()
	if s.err != nil {
		return models.Stock{}, false
	}
	st, ok := s.bySym[symbol]
	return st, ok
}

// List 返回全部内嵌标的
func (s *CatalogService) List() []models.Stock {
	s.load()
	out := make([]models.Stock, len(s.loaded))
	copy(out, s.loaded)
	return out
}
