package handler

import (
	stderrors "errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/budgetqa/internal/budgetqa/tax"
	"github.com/kart-io/budgetqa/pkg/errors"
	"github.com/kart-io/budgetqa/pkg/utils/response"
)

// TaxRequest 税额计算请求。
type TaxRequest struct {
	Income     *float64 `json:"income" binding:"required,gte=0"`
	Regime     string   `json:"regime" binding:"regime"`
	Deductions float64  `json:"deductions" binding:"gte=0"`
}

// CompareRequest 新旧税制比较请求。
type CompareRequest struct {
	Income     *float64 `json:"income" binding:"required,gte=0"`
	Deductions float64  `json:"deductions" binding:"gte=0"`
}

// CalculateTax computes the tax liability under one regime.
func (h *Handler) CalculateTax(c *gin.Context) {
	var req TaxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, bindError(c, err, errors.ErrInvalidTaxInput))
		return
	}

	regime, err := tax.ParseRegime(strings.ToLower(strings.TrimSpace(req.Regime)))
	if err != nil {
		response.Fail(c, taxError(err))
		return
	}

	res, err := tax.Calculate(*req.Income, regime, req.Deductions)
	if err != nil {
		response.Fail(c, taxError(err))
		return
	}
	response.OK(c, res)
}

// CompareRegimes computes both regimes and recommends the cheaper one.
func (h *Handler) CompareRegimes(c *gin.Context) {
	var req CompareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, bindError(c, err, errors.ErrInvalidTaxInput))
		return
	}

	res, err := tax.Compare(*req.Income, req.Deductions)
	if err != nil {
		response.Fail(c, taxError(err))
		return
	}
	response.OK(c, res)
}

// TaxSlabs returns the slab tables of both regimes.
func (h *Handler) TaxSlabs(c *gin.Context) {
	response.OK(c, gin.H{
		"new_regime": tax.Table(tax.RegimeNew),
		"old_regime": tax.Table(tax.RegimeOld),
	})
}

// Allocations returns the sector-wise budget allocations.
func (h *Handler) Allocations(c *gin.Context) {
	response.OK(c, tax.BudgetAllocations())
}

func taxError(err error) error {
	if stderrors.Is(err, tax.ErrInvalidRegime) || stderrors.Is(err, tax.ErrNegativeAmount) {
		return errors.ErrInvalidTaxInput.WithMessage(err.Error()).WithCause(err)
	}
	return errors.ErrInternal.WithCause(err)
}
