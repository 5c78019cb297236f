package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"

	bmodel "github.com/kart-io/budgetqa/internal/model"
)

// PrimaryEngine 基于 ledongthuc/pdf 的文本提取，不做表格检测。
type PrimaryEngine struct{}

// NewPrimaryEngine 创建主引擎。
func NewPrimaryEngine() *PrimaryEngine { return &PrimaryEngine{} }

// Method implements Engine.
func (*PrimaryEngine) Method() bmodel.ExtractionMethod { return bmodel.ExtractionPrimary }

// Pages implements Engine.
func (*PrimaryEngine) Pages(ctx context.Context, data []byte) ([]bmodel.PageContent, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	n := r.NumPage()
	pages := make([]bmodel.PageContent, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, bmodel.NewPageContent(i, "", false, false))
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, bmodel.NewPageContent(i, strings.TrimSpace(text), false, pageHasImages(p)))
	}
	return pages, nil
}

func pageHasImages(p pdf.Page) bool {
	xobjects := p.Resources().Key("XObject")
	for _, name := range xobjects.Keys() {
		if xobjects.Key(name).Key("Subtype").Name() == "Image" {
			return true
		}
	}
	return false
}

// FallbackEngine 基于 ledongthuc/pdf 字符坐标的版面分析，额外检测表格；图片由 pdfcpu 检测。
type FallbackEngine struct{}

// NewFallbackEngine 创建备用引擎。
func NewFallbackEngine() *FallbackEngine { return &FallbackEngine{} }

// Method implements Engine.
func (*FallbackEngine) Method() bmodel.ExtractionMethod { return bmodel.ExtractionFallback }

// Pages implements Engine.
func (*FallbackEngine) Pages(ctx context.Context, data []byte) ([]bmodel.PageContent, error) {
	pdfCtx, err := readContext(data)
	if err != nil {
		return nil, err
	}
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	n := r.NumPage()
	pages := make([]bmodel.PageContent, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, bmodel.NewPageContent(i, "", false, false))
			continue
		}
		layout, err := analyzePage(p)
		if err != nil {
			return nil, fmt.Errorf("page %d layout: %w", i, err)
		}

		hasImages := false
		if i <= pdfCtx.PageCount {
			images, err := pdfcpu.ExtractPageImages(pdfCtx, i, true)
			if err != nil {
				return nil, fmt.Errorf("page %d images: %w", i, err)
			}
			hasImages = len(images) > 0
		}
		pages = append(pages, bmodel.NewPageContent(i, layout.Text(), layout.HasTable(), hasImages))
	}
	return pages, nil
}
