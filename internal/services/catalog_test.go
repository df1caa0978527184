package services

import "testing"

func TestCatalogLookup(t *testing.T) {
	c := NewCatalogService()

	stock, ok := c.Lookup("sh600519")
	if !ok {
		t.Fatal("内嵌目录应包含 sh600519")
	}
	if stock.Name != "贵州茅台" {
		t.Errorf("标的名称错误: %s", stock.Name)
	}
	if stock.Sector == "" {
		t.Error("行业字段不应为空")
	}

	if _, ok := c.Lookup("sh999999"); ok {
		t.Error("未知代码不应命中")
	}
}

func TestCatalogList(t *testing.T) {
	c := NewCatalogService()
	list := c.List()
	if len(list) == 0 {
		t.Fatal("内嵌目录不应为空")
	}
	seen := make(map[string]bool, len(list))
	for _, s := range list {
		if s.Symbol == "" || s.Name == "" {
			t.Errorf("目录条目字段不完整: %+v", s)
		}
		if seen[s.Symbol] {
			t.Errorf("目录代码重复: %s", s.Symbol)
		}
		seen[s.Symbol] = true
	}
}
