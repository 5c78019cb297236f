package tax

import (
	"fmt"
	"math"
)

// Regime 税制。
type Regime string

const (
	RegimeNew Regime = "new"
	RegimeOld Regime = "old"
)

// FiscalYear 税率表与预算分配对应的财年。
const FiscalYear = "2026-27"

// CessRate 健康与教育附加税率。
const CessRate = 0.04

// Slab 一个税级，Max 为 nil 表示无上限。
type Slab struct {
	Min  float64  `json:"min_income"`
	Max  *float64 `json:"max_income"`
	Rate float64  `json:"rate"`
}

// Description 返回税率描述，如 "No tax"、"5%"。
func (s Slab) Description() string {
	if s.Rate == 0 {
		return "No tax"
	}
	return fmt.Sprintf("%g%%", s.Percent())
}

// Percent 返回百分数形式的税率。
func (s Slab) Percent() float64 {
	return math.Round(s.Rate*10000) / 100
}

func upTo(v float64) *float64 { return &v }

var (
	newRegimeSlabs = []Slab{
		{Min: 0, Max: upTo(300000), Rate: 0},
		{Min: 300000, Max: upTo(600000), Rate: 0.05},
		{Min: 600000, Max: upTo(900000), Rate: 0.10},
		{Min: 900000, Max: upTo(1200000), Rate: 0.15},
		{Min: 1200000, Max: upTo(1500000), Rate: 0.20},
		{Min: 1500000, Rate: 0.30},
	}
	oldRegimeSlabs = []Slab{
		{Min: 0, Max: upTo(250000), Rate: 0},
		{Min: 250000, Max: upTo(500000), Rate: 0.05},
		{Min: 500000, Max: upTo(1000000), Rate: 0.20},
		{Min: 1000000, Rate: 0.30},
	}
)

// ParseRegime 解析税制名称，空字符串视为新税制。
func ParseRegime(s string) (Regime, error) {
	switch Regime(s) {
	case "", RegimeNew:
		return RegimeNew, nil
	case RegimeOld:
		return RegimeOld, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRegime, s)
	}
}

// Slabs 返回税制的税级（副本）。
func Slabs(r Regime) []Slab {
	src := newRegimeSlabs
	if r == RegimeOld {
		src = oldRegimeSlabs
	}
	out := make([]Slab, len(src))
	copy(out, src)
	return out
}

// SlabView 税率表接口的展示项，Rate 为百分数。
type SlabView struct {
	MinIncome   float64  `json:"min_income"`
	MaxIncome   *float64 `json:"max_income"`
	Rate        float64  `json:"rate"`
	Description string   `json:"description"`
}

// SlabTable 税率表。
type SlabTable struct {
	Year   string     `json:"year"`
	Regime Regime     `json:"regime"`
	Slabs  []SlabView `json:"slabs"`
}

// Table 返回税制的税率表。
func Table(r Regime) SlabTable {
	slabs := Slabs(r)
	views := make([]SlabView, 0, len(slabs))
	for _, s := range slabs {
		views = append(views, SlabView{
			MinIncome:   s.Min,
			MaxIncome:   s.Max,
			Rate:        s.Percent(),
			Description: s.Description(),
		})
	}
	return SlabTable{Year: FiscalYear, Regime: r, Slabs: views}
}

// Allocation 预算分配项，金额单位为千万卢比（crore）。
type Allocation struct {
	Sector     string  `json:"sector"`
	Amount     float64 `json:"amount"`
	Percentage float64 `json:"percentage"`
}

// Allocations 预算分配汇总。
type Allocations struct {
	Year        string       `json:"year"`
	Total       float64      `json:"total"`
	Allocations []Allocation `json:"allocations"`
}

// BudgetAllocations 返回按部门的预算分配（Budget at a Glance 的近似值）。
func BudgetAllocations() Allocations {
	items := []Allocation{
		{Sector: "Defence", Amount: 650000, Percentage: 12.5},
		{Sector: "Education", Amount: 450000, Percentage: 8.5},
		{Sector: "Healthcare", Amount: 380000, Percentage: 7.2},
		{Sector: "Infrastructure", Amount: 1100000, Percentage: 21.0},
		{Sector: "Agriculture", Amount: 320000, Percentage: 6.1},
		{Sector: "Social Welfare", Amount: 580000, Percentage: 11.2},
		{Sector: "Energy", Amount: 280000, Percentage: 5.4},
		{Sector: "Other", Amount: 1440000, Percentage: 28.1},
	}
	var total float64
	for _, it := range items {
		total += it.Amount
	}
	return Allocations{Year: FiscalYear, Total: total, Allocations: items}
}
