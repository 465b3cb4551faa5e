package report

import (
	"fmt"
	"html/template"
	"io"
	"strconv"
	"time"
)

// htmlReportData is what htmlTemplate renders, assembled from a Result.
type htmlReportData struct {
	GeneratedAt string
	Result
	CorrectedQuantiles []quantileRow
	ActualQuantiles    []quantileRow
	NonSuccess         []kvRow
	ClientErrors       []kvRow
}

type quantileRow struct {
	Label   string
	Latency time.Duration
}

// kvRow is countRow's exported counterpart: html/template can't read
// countRow's unexported fields via reflection.
type kvRow struct {
	Key   string
	Count int64
}

// GenerateHTML writes a standalone HTML report for res.
func GenerateHTML(w io.Writer, res Result) error {
	data := htmlReportData{
		GeneratedAt: time.Now().Format(time.RFC1123),
		Result:      res,
	}
	for _, q := range Quantiles {
		data.CorrectedQuantiles = append(data.CorrectedQuantiles, quantileRow{fmtQuantile(q), res.Report.CorrectedQuantile(q)})
		data.ActualQuantiles = append(data.ActualQuantiles, quantileRow{fmtQuantile(q), res.Report.ActualQuantile(q)})
	}
	data.NonSuccess = toKVRows(sortedCounts(res.Report.NonSuccessByClass))
	byKind := make(map[string]int64, len(res.Report.ClientErrorsByKind))
	for k, n := range res.Report.ClientErrorsByKind {
		byKind[string(k)] = n
	}
	data.ClientErrors = toKVRows(sortedCounts(byKind))

	return htmlTemplate.Execute(w, data)
}

func toKVRows(rows []countRow) []kvRow {
	out := make([]kvRow, len(rows))
	for i, r := range rows {
		out[i] = kvRow{Key: r.key, Count: r.count}
	}
	return out
}

func fmtQuantile(q float64) string {
	if q == float64(int64(q)) {
		return "p" + strconv.FormatInt(int64(q), 10)
	}
	return "p" + fmt.Sprintf("%g", q)
}

var htmlTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"mulf100": func(f float64) float64 { return f * 100 },
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Metron Run Report</title>
<style>
body { font-family: -apple-system, sans-serif; margin: 2rem; color: #1a1a1a; }
h1 { font-size: 1.4rem; }
table { border-collapse: collapse; margin-bottom: 1.5rem; }
td, th { padding: 0.3rem 0.8rem; text-align: left; border-bottom: 1px solid #ddd; }
.tag { color: #666; font-size: 0.9rem; }
</style>
</head>
<body>
<h1>Metron Run Report</h1>
<p class="tag">Generated {{.GeneratedAt}}{{if .RunTag}} &middot; tag: {{.RunTag}}{{end}}</p>

<table>
<tr><th>Sent</th><td>{{.Report.Sent}}</td></tr>
<tr><th>Successes</th><td>{{.Report.Successes}}</td></tr>
<tr><th>Client Errors</th><td>{{.Report.ClientErrors}}</td></tr>
<tr><th>Success Rate</th><td>{{printf "%.3f%%" (mulf100 .Report.SuccessRate)}}</td></tr>
<tr><th>Achieved RPS</th><td>{{printf "%.2f" .Report.AchievedRPS}}</td></tr>
<tr><th>Skipped Instants</th><td>{{.Report.SkippedInstants}}</td></tr>
<tr><th>Telemetry Drops</th><td>{{.Report.TelemetryDrops}}</td></tr>
</table>

<h2>Corrected Latency</h2>
<table>
<tr><th>Quantile</th><th>Latency</th></tr>
{{range .CorrectedQuantiles}}<tr><td>{{.Label}}</td><td>{{.Latency}}</td></tr>
{{end}}
</table>

<h2>Actual Latency</h2>
<table>
<tr><th>Quantile</th><th>Latency</th></tr>
{{range .ActualQuantiles}}<tr><td>{{.Label}}</td><td>{{.Latency}}</td></tr>
{{end}}
</table>

{{if .NonSuccess}}<h2>Non-2xx by Class</h2>
<table>
{{range .NonSuccess}}<tr><td>{{.Key}}</td><td>{{.Count}}</td></tr>
{{end}}
</table>{{end}}

{{if .ClientErrors}}<h2>Client Errors by Kind</h2>
<table>
{{range .ClientErrors}}<tr><td>{{.Key}}</td><td>{{.Count}}</td></tr>
{{end}}
</table>{{end}}

{{if .HadSLO}}<h2>SLO Search</h2>
<table>
<tr><th>Found</th><td>{{.SLOResult.Found}}</td></tr>
{{if .SLOResult.Found}}<tr><th>Max Compliant Rate</th><td>{{printf "%.2f rps" .SLOResult.MaxCompliantRate}}</td></tr>{{end}}
<tr><th>Rounds</th><td>{{.SLOResult.Rounds}}</td></tr>
</table>{{end}}
</body>
</html>
`))
