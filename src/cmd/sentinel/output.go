package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/jiaming2012/market-sentinel/src/collectors"
	"github.com/jiaming2012/market-sentinel/src/eventmodels"
)

const timeLayout = "2006-01-02 15:04:05"

var printer = message.NewPrinter(language.English)

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetColumnSeparator("")
	return table
}

func renderAlerts(w io.Writer, alerts []*eventmodels.Alert) {
	table := newTable(w, "ID", "Triggered", "Severity", "Status", "Title", "Value", "Threshold")

	for _, a := range alerts {
		table.Append([]string{
			a.ID.String(),
			a.TriggeredAt.UTC().Format(timeLayout),
			string(a.Severity),
			string(a.Status),
			a.Title,
			printer.Sprintf("%.2f", a.MetricValue),
			printer.Sprintf("%.2f", a.Threshold),
		})
	}

	table.Render()
	fmt.Fprintf(w, "%d alert(s)\n", len(alerts))
}

func renderChannels(w io.Writer, names []string, results map[string]bool) {
	header := []string{"Channel"}
	if results != nil {
		header = append(header, "Sent")
	}

	table := newTable(w, header...)
	for _, name := range names {
		row := []string{name}
		if results != nil {
			row = append(row, fmt.Sprintf("%t", results[name]))
		}
		table.Append(row)
	}

	table.Render()
}

func renderReport(w io.Writer, r *collectors.DailyReport) {
	fmt.Fprintf(w, "Report %s to %s\n", r.From.UTC().Format(timeLayout), r.To.UTC().Format(timeLayout))

	table := newTable(w, "Metric", "Value")
	table.AppendBulk([][]string{
		{"system samples", printer.Sprintf("%d", r.SystemSamples)},
		{"application samples", printer.Sprintf("%d", r.ApplicationSamples)},
		{"avg cpu usage", printer.Sprintf("%.1f%%", r.AvgCPUUsage)},
		{"avg memory usage", printer.Sprintf("%.1f%%", r.AvgMemoryUsage)},
		{"avg disk usage", printer.Sprintf("%.1f%%", r.AvgDiskUsage)},
		{"api requests", printer.Sprintf("%.0f", r.TotalAPIRequests)},
		{"api errors", printer.Sprintf("%.0f", r.TotalAPIErrors)},
		{"avg response time", printer.Sprintf("%.1f ms", r.AvgResponseTimeMs)},
		{"events ingested", printer.Sprintf("%.0f", r.TotalEventsIngested)},
	})

	severities := make([]string, 0, len(r.AlertsBySeverity))
	for s := range r.AlertsBySeverity {
		severities = append(severities, string(s))
	}
	sort.Strings(severities)

	for _, s := range severities {
		table.Append([]string{"alerts " + s, printer.Sprintf("%d", r.AlertsBySeverity[eventmodels.Severity(s)])})
	}

	table.Render()
}

type alertRow struct {
	ID               string  `csv:"id"`
	RuleID           string  `csv:"rule_id"`
	Title            string  `csv:"title"`
	Severity         string  `csv:"severity"`
	Status           string  `csv:"status"`
	MetricName       string  `csv:"metric_name"`
	MetricValue      float64 `csv:"metric_value"`
	Threshold        float64 `csv:"threshold"`
	TriggeredAt      string  `csv:"triggered_at"`
	ResolvedAt       string  `csv:"resolved_at"`
	ResolvedBy       string  `csv:"resolved_by"`
	NotificationSent bool    `csv:"notification_sent"`
}

func newAlertRow(a *eventmodels.Alert) *alertRow {
	row := &alertRow{
		ID:               a.ID.String(),
		RuleID:           a.RuleID.String(),
		Title:            a.Title,
		Severity:         string(a.Severity),
		Status:           string(a.Status),
		MetricName:       a.MetricName,
		MetricValue:      a.MetricValue,
		Threshold:        a.Threshold,
		TriggeredAt:      a.TriggeredAt.UTC().Format(time.RFC3339),
		ResolvedBy:       a.ResolvedBy,
		NotificationSent: a.NotificationSent,
	}

	if a.ResolvedAt != nil {
		row.ResolvedAt = a.ResolvedAt.UTC().Format(time.RFC3339)
	}

	return row
}

func exportAlerts(w io.Writer, alerts []*eventmodels.Alert) error {
	rows := make([]*alertRow, 0, len(alerts))
	for _, a := range alerts {
		rows = append(rows, newAlertRow(a))
	}

	if err := gocsv.Marshal(&rows, w); err != nil {
		return fmt.Errorf("exportAlerts: %w", err)
	}

	return nil
}
