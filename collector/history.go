package collector

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/montanaflynn/stats"
	"github.com/samber/lo"
)

// Summary holds the min, mean and max of one channel.
type Summary struct {
	Min, Mean, Max float64
}

// Summarize computes per channel summaries of readings. It fails when readings is empty.
func Summarize(readings []StoredReading) (temperature, humidity, pressure Summary, err error) {
	column := func(pick func(StoredReading) float64) (Summary, error) {
		data := stats.Float64Data(lo.Map(readings, func(r StoredReading, _ int) float64 { return pick(r) }))
		var s Summary
		var err error
		if s.Min, err = stats.Min(data); err != nil {
			return Summary{}, err
		}
		if s.Mean, err = stats.Mean(data); err != nil {
			return Summary{}, err
		}
		if s.Max, err = stats.Max(data); err != nil {
			return Summary{}, err
		}
		return s, nil
	}

	if temperature, err = column(func(r StoredReading) float64 { return r.Temperature }); err != nil {
		return
	}
	if humidity, err = column(func(r StoredReading) float64 { return r.Humidity }); err != nil {
		return
	}
	pressure, err = column(func(r StoredReading) float64 { return r.Pressure })
	return
}

// HistoryTable renders readings, oldest first, followed by min/mean/max rows.
func HistoryTable(readings []StoredReading) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"#", "Time", "Temperature (C)", "Humidity (%)", "Pressure (hPa)"})
	for i, r := range readings {
		t.AppendRow(table.Row{
			fmt.Sprintf("%d", i+1),
			r.Timestamp,
			fmt.Sprintf("%.2f", r.Temperature),
			fmt.Sprintf("%.2f", r.Humidity),
			fmt.Sprintf("%.2f", r.Pressure),
		})
	}

	temperature, humidity, pressure, err := Summarize(readings)
	if err != nil {
		t.AppendFooter(table.Row{"", "no readings", "", "", ""})
		return t.Render()
	}
	for _, row := range []struct {
		label string
		pick  func(Summary) float64
	}{
		{"min", func(s Summary) float64 { return s.Min }},
		{"mean", func(s Summary) float64 { return s.Mean }},
		{"max", func(s Summary) float64 { return s.Max }},
	} {
		t.AppendFooter(table.Row{
			"",
			row.label,
			fmt.Sprintf("%.2f", row.pick(temperature)),
			fmt.Sprintf("%.2f", row.pick(humidity)),
			fmt.Sprintf("%.2f", row.pick(pressure)),
		})
	}
	return t.Render()
}
