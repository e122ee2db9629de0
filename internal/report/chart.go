package report

import (
	"fmt"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"tradesim/internal/backtest"
	"tradesim/internal/store"
)

const (
	colorBackground = "#060c1b"
	colorText       = "#eceff4"
	colorTextDim    = "#9ca3af"
	colorNav        = "#34d399"
	colorCash       = "#3b82f6"

	chartWidthPx  = 1200
	chartHeightPx = 520
)

// NavChart 生成单个 run 的净值曲线页：净值与现金两条线。
func NavChart(run backtest.Run, navs []store.NavModel) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", chartHeightPx),
			BackgroundColor: colorBackground,
			PageTitle:       fmt.Sprintf("%s %s", run.Profile, run.ID),
		}),
		charts.WithTitleOpts(opts.Title{
			Title: fmt.Sprintf("%s [%s, %s]", run.Profile, run.Config.Start, run.Config.End),
			Subtitle: fmt.Sprintf("收益 %.2f%% | 最大回撤 %.2f%% | 成交 %d 笔",
				run.Stats.ReturnPct, run.Stats.MaxDrawdownPct, run.Stats.Executed),
			Left:          "left",
			Top:           "10",
			TitleStyle:    &opts.TextStyle{Color: colorText, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextDim},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorText}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextDim},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextDim},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextDim, Opacity: opts.Float(0.2)}},
		}),
	)

	dates := make([]string, len(navs))
	navData := make([]opts.LineData, len(navs))
	cashData := make([]opts.LineData, len(navs))
	for i, rec := range navs {
		dates[i] = rec.Date
		navData[i] = opts.LineData{Value: rec.Nav}
		cashData[i] = opts.LineData{Value: rec.Cash}
	}
	line.SetXAxis(dates)
	line.AddSeries("净值", navData, charts.WithLineStyleOpts(opts.LineStyle{Color: colorNav, Width: 2}))
	line.AddSeries("现金", cashData, charts.WithLineStyleOpts(opts.LineStyle{Color: colorCash, Width: 2}))
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	return line
}
