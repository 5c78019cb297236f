package extract

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
)

const (
	// minTableRectangles 页面上至少这么多矩形框线时视为表格。
	minTableRectangles = 4
	// minTableRows 连续这么多行列对齐时视为表格。
	minTableRows = 3
	// columnTolerance 判定两行同一列对齐的横向容差（pt）。
	columnTolerance = 3.0
)

// textRun 同一行内连续绘制的一段文本，列之间的大间距会切分出新的 run。
type textRun struct {
	x, end float64
	b      strings.Builder
}

func (r *textRun) text() string {
	return strings.TrimSpace(r.b.String())
}

// textRow 基线相近的一行文本。
type textRow struct {
	y    float64
	runs []*textRun
}

// pageLayout 版面分析结果。
type pageLayout struct {
	rows       []*textRow
	rectangles int
}

// analyzePage 按字符坐标重建页面的行与列。Content 无法解析时退回 GetTextByRow，
// 此时没有矩形信息。
func analyzePage(p pdf.Page) (pageLayout, error) {
	if p.V.Key("Contents").IsNull() {
		return pageLayout{}, nil
	}
	content, err := pageContent(p)
	if err == nil {
		return pageLayout{rows: groupRows(content.Text), rectangles: len(content.Rect)}, nil
	}

	rows, rowErr := p.GetTextByRow()
	if rowErr != nil {
		return pageLayout{}, fmt.Errorf("%v; rows: %w", err, rowErr)
	}
	return pageLayout{rows: convertRows(rows)}, nil
}

// pageContent 包装 Page.Content，解析器对异常操作数直接 panic。
func pageContent(p pdf.Page) (content pdf.Content, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("content stream: %v", r)
		}
	}()
	return p.Content(), nil
}

// groupRows 把逐字符输出的文本按基线归行、按横向间距切分 run。
func groupRows(chars []pdf.Text) []*textRow {
	var rows []*textRow
	for _, ch := range chars {
		r := firstRune(ch.S)
		if r == 0 || (unicode.IsControl(r) && r != '\t') {
			continue
		}
		size := math.Max(ch.FontSize, 1)
		row := findRow(rows, ch.Y, size/2)
		if row == nil {
			row = &textRow{y: ch.Y}
			rows = append(rows, row)
		}
		row.add(ch, size)
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].y > rows[j].y })
	for _, row := range rows {
		sort.SliceStable(row.runs, func(i, j int) bool { return row.runs[i].x < row.runs[j].x })
	}
	return rows
}

func findRow(rows []*textRow, y, tol float64) *textRow {
	for _, row := range rows {
		if math.Abs(row.y-y) <= tol {
			return row
		}
	}
	return nil
}

func (row *textRow) add(ch pdf.Text, size float64) {
	space := unicode.IsSpace(firstRune(ch.S))

	var run *textRun
	if n := len(row.runs); n > 0 {
		last := row.runs[n-1]
		gap := ch.X - last.end
		// 回退超过一个字宽或间距超过两个字宽都算新的一列
		if gap >= -size && gap <= 2*size {
			run = last
			if !space && gap > 0.2*size && !strings.HasSuffix(last.b.String(), " ") {
				last.b.WriteByte(' ')
			}
		}
	}
	if run == nil {
		if space {
			return
		}
		run = &textRun{x: ch.X}
		row.runs = append(row.runs, run)
	}

	if space {
		if !strings.HasSuffix(run.b.String(), " ") {
			run.b.WriteByte(' ')
		}
	} else {
		run.b.WriteString(ch.S)
	}
	run.end = math.Max(run.end, ch.X+ch.W)
}

// convertRows 把 GetTextByRow 的结果转换为行与 run，每个文本片段即一个 run。
func convertRows(rows pdf.Rows) []*textRow {
	out := make([]*textRow, 0, len(rows))
	for _, row := range rows {
		tr := &textRow{y: float64(row.Position)}
		for _, t := range row.Content {
			if strings.TrimSpace(t.S) == "" {
				continue
			}
			run := &textRun{x: t.X, end: t.X + t.W}
			run.b.WriteString(t.S)
			tr.runs = append(tr.runs, run)
		}
		if len(tr.runs) > 0 {
			out = append(out, tr)
		}
	}
	return out
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}

// Text 返回页面文本：行之间换行，同一行的 run 以空格连接。
func (l pageLayout) Text() string {
	lines := make([]string, 0, len(l.rows))
	for _, row := range l.rows {
		cells := make([]string, 0, len(row.runs))
		for _, run := range row.runs {
			if t := run.text(); t != "" {
				cells = append(cells, t)
			}
		}
		if len(cells) > 0 {
			lines = append(lines, strings.Join(cells, " "))
		}
	}
	return strings.Join(lines, "\n")
}

// HasTable 存在足够多的矩形框线，或连续多行的多个列起点（或终点）对齐，则认为页面含表格。
func (l pageLayout) HasTable() bool {
	if l.rectangles >= minTableRectangles {
		return true
	}
	streak := 0
	var prev *textRow
	for _, row := range l.rows {
		if len(row.runs) < 2 {
			streak, prev = 0, nil
			continue
		}
		if prev != nil && columnsAligned(prev, row) {
			streak++
		} else {
			streak = 1
		}
		if streak >= minTableRows {
			return true
		}
		prev = row
	}
	return false
}

func columnsAligned(a, b *textRow) bool {
	if len(a.runs) != len(b.runs) {
		return false
	}
	for i := range a.runs {
		ra, rb := a.runs[i], b.runs[i]
		if math.Abs(ra.x-rb.x) > columnTolerance && math.Abs(ra.end-rb.end) > columnTolerance {
			return false
		}
	}
	return true
}
