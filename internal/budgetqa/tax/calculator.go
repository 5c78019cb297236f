// Package tax 实现新旧税制下的个人所得税计算与比较。
package tax

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	// ErrInvalidRegime 未知税制。
	ErrInvalidRegime = errors.New("tax: regime must be 'new' or 'old'")
	// ErrNegativeAmount 收入或扣除额为负。
	ErrNegativeAmount = errors.New("tax: income and deductions must not be negative")
)

// SlabTax 单个税级的应税额与税额。
type SlabTax struct {
	SlabMin       float64  `json:"slab_min"`
	SlabMax       *float64 `json:"slab_max"`
	Rate          float64  `json:"rate"`
	TaxableAmount float64  `json:"taxable_amount"`
	TaxAmount     float64  `json:"tax_amount"`
}

// Result 计算结果。
type Result struct {
	Regime         Regime    `json:"regime"`
	GrossIncome    float64   `json:"gross_income"`
	Deductions     float64   `json:"deductions"`
	TaxableIncome  float64   `json:"taxable_income"`
	TaxSlabs       []SlabTax `json:"tax_slabs"`
	TotalTax       float64   `json:"total_tax"`
	Cess           float64   `json:"cess"`
	TotalLiability float64   `json:"total_liability"`
	EffectiveRate  float64   `json:"effective_rate"`
	TakeHome       float64   `json:"take_home"`
}

// Calculate 计算应纳税额。扣除额仅在旧税制下生效；有效税率为百分比，保留两位小数。
func Calculate(income float64, regime Regime, deductions float64) (*Result, error) {
	if income < 0 || deductions < 0 {
		return nil, ErrNegativeAmount
	}
	if regime != RegimeNew && regime != RegimeOld {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRegime, regime)
	}

	if regime != RegimeOld {
		deductions = 0
	}
	taxable := math.Max(0, income-deductions)

	res := &Result{
		Regime:        regime,
		GrossIncome:   income,
		Deductions:    deductions,
		TaxableIncome: taxable,
		TaxSlabs:      []SlabTax{},
	}

	remaining := taxable
	for _, s := range Slabs(regime) {
		if remaining <= 0 {
			break
		}
		inSlab := remaining
		if s.Max != nil {
			inSlab = math.Min(remaining, *s.Max-s.Min)
		}
		amount := inSlab * s.Rate
		res.TotalTax += amount
		if inSlab > 0 {
			res.TaxSlabs = append(res.TaxSlabs, SlabTax{
				SlabMin:       s.Min,
				SlabMax:       s.Max,
				Rate:          s.Rate,
				TaxableAmount: inSlab,
				TaxAmount:     amount,
			})
		}
		remaining -= inSlab
	}

	res.Cess = res.TotalTax * CessRate
	res.TotalLiability = res.TotalTax + res.Cess
	if income > 0 {
		res.EffectiveRate = math.Round(res.TotalLiability/income*100*100) / 100
	}
	res.TakeHome = income - res.TotalLiability
	return res, nil
}

// Comparison 新旧税制比较结果。
type Comparison struct {
	Income         float64 `json:"income"`
	Deductions     float64 `json:"deductions"`
	NewRegime      *Result `json:"new_regime"`
	OldRegime      *Result `json:"old_regime"`
	Savings        float64 `json:"savings"`
	BetterRegime   Regime  `json:"better_regime"`
	Recommendation string  `json:"recommendation"`
}

var printer = message.NewPrinter(language.English)

// Compare 比较两种税制。新税制总负担严格更低时推荐新税制，否则推荐旧税制。
func Compare(income, deductions float64) (*Comparison, error) {
	newRes, err := Calculate(income, RegimeNew, 0)
	if err != nil {
		return nil, err
	}
	oldRes, err := Calculate(income, RegimeOld, deductions)
	if err != nil {
		return nil, err
	}

	diff := oldRes.TotalLiability - newRes.TotalLiability
	better, label := RegimeOld, "Old"
	if diff > 0 {
		better, label = RegimeNew, "New"
	}
	savings := math.Abs(diff)

	return &Comparison{
		Income:         income,
		Deductions:     deductions,
		NewRegime:      newRes,
		OldRegime:      oldRes,
		Savings:        savings,
		BetterRegime:   better,
		Recommendation: printer.Sprintf("%s regime saves ₹%.0f", label, savings),
	}, nil
}
