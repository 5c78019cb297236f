package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const budgetTable = `BT /F1 10 Tf
1 0 0 1 72 700 Tm (Ministry) Tj 1 0 0 1 250 700 Tm (2025-26) Tj 1 0 0 1 400 700 Tm (2026-27) Tj
1 0 0 1 72 686 Tm (Defence) Tj 1 0 0 1 250 686 Tm (6,21,941) Tj 1 0 0 1 400 686 Tm (6,81,210) Tj
1 0 0 1 72 672 Tm (Railways) Tj 1 0 0 1 250 672 Tm (2,55,393) Tj 1 0 0 1 400 672 Tm (2,65,200) Tj
ET
`

func TestFallbackEngine_Pages(t *testing.T) {
	tests := []struct {
		name      string
		stream    string
		want      string
		wantTable bool
	}{
		{
			name:   "single line",
			stream: "BT /F1 12 Tf 72 720 Td (Allocation for rural roads rises.) Tj ET",
			want:   "Allocation for rural roads rises.",
		},
		{
			name:   "escapes and font encoding",
			stream: `BT /F1 12 Tf 72 720 Td (Scheme \(revised\) for Caf\351 owners) Tj ET`,
			want:   "Scheme (revised) for Café owners",
		},
		{
			name:   "rows top to bottom",
			stream: "BT /F1 12 Tf 72 700 Td (Second line) Tj 0 20 Td (First line) Tj ET",
			want:   "First line\nSecond line",
		},
		{
			name:   "kerning gap becomes a space",
			stream: "BT /F1 12 Tf 72 720 Td [(Rural) -250 (roads)] TJ ET",
			want:   "Rural roads",
		},
		{
			name:      "aligned columns",
			stream:    budgetTable,
			want:      "Ministry 2025-26 2026-27\nDefence 6,21,941 6,81,210\nRailways 2,55,393 2,65,200",
			wantTable: true,
		},
		{
			name: "ruled grid",
			stream: "0 0 100 20 re S 0 20 100 20 re S 0 40 100 20 re S 0 60 100 20 re S\n" +
				"BT /F1 12 Tf 72 720 Td (Grid) Tj ET",
			want:      "Grid",
			wantTable: true,
		},
		{
			name:   "unbalanced state falls back to rows",
			stream: "q Q Q BT /F1 12 Tf 72 720 Td (Recovered text) Tj ET",
			want:   "Recovered text",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pages, err := NewFallbackEngine().Pages(context.Background(), buildPDFStreams(tt.stream))
			require.NoError(t, err)
			require.Len(t, pages, 1)
			assert.Equal(t, tt.want, pages[0].Text)
			assert.Equal(t, tt.wantTable, pages[0].HasTables)
			assert.False(t, pages[0].HasImages)
		})
	}
}

func TestFallbackEngine_MultiplePages(t *testing.T) {
	data := buildPDFStreams(
		"BT /F1 12 Tf 72 720 Td (The budget focuses on growth.) Tj ET",
		budgetTable,
	)
	pages, err := NewFallbackEngine().Pages(context.Background(), data)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, 1, pages[0].PageNumber)
	assert.False(t, pages[0].HasTables)
	assert.Equal(t, 2, pages[1].PageNumber)
	assert.True(t, pages[1].HasTables)
}

func TestPageLayout_HasTable(t *testing.T) {
	row := func(y float64, cols ...[2]float64) *textRow {
		r := &textRow{y: y}
		for _, c := range cols {
			r.runs = append(r.runs, &textRun{x: c[0], end: c[1]})
		}
		return r
	}
	tests := []struct {
		name   string
		layout pageLayout
		want   bool
	}{
		{"empty", pageLayout{}, false},
		{"prose", pageLayout{rows: []*textRow{
			row(700, [2]float64{72, 500}),
			row(686, [2]float64{72, 480}),
			row(672, [2]float64{72, 300}),
		}}, false},
		{"two aligned rows only", pageLayout{rows: []*textRow{
			row(700, [2]float64{72, 120}, [2]float64{250, 290}),
			row(686, [2]float64{72, 110}, [2]float64{250, 300}),
			row(672, [2]float64{72, 400}),
		}}, false},
		{"right aligned numbers", pageLayout{rows: []*textRow{
			row(700, [2]float64{72, 120}, [2]float64{262, 300}),
			row(686, [2]float64{72, 110}, [2]float64{250, 300}),
			row(672, [2]float64{72, 130}, [2]float64{256, 300}),
		}}, true},
		{"misaligned columns", pageLayout{rows: []*textRow{
			row(700, [2]float64{72, 120}, [2]float64{200, 230}),
			row(686, [2]float64{72, 110}, [2]float64{250, 300}),
			row(672, [2]float64{72, 130}, [2]float64{320, 340}),
		}}, false},
		{"rectangles", pageLayout{rectangles: 4}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.layout.HasTable())
		})
	}
}
