package cli

import (
	"fmt"
	"strings"

	"github.com/sievefin/sift/internal/model"
	"github.com/sievefin/sift/internal/normalize"
	"github.com/sievefin/sift/internal/service"
	"github.com/sievefin/sift/internal/storage"
)

// RenderTemplates formats a template list as an aligned table.
func RenderTemplates(templates []model.Template) string {
	var sb strings.Builder
	sb.WriteString(TableHeaderStyle.Render(fmt.Sprintf("%-6s %-24s %-10s %-4s %-6s %-8s %-6s %s",
		"ID", "INSTITUTION", "FAMILY", "VER", "CONF", "SUCCESS", "VALID", "PROVENANCE")))
	sb.WriteString("\n")

	for _, tmpl := range templates {
		validated := ErrorStyle.Render("no")
		if tmpl.SecurityValidated {
			validated = SuccessStyle.Render("yes")
		}
		sb.WriteString(fmt.Sprintf("%-6d %-24s %-10s %-4d %-6.2f %-8s %-6s %s\n",
			tmpl.ID,
			truncate(tmpl.Institution, 24),
			string(tmpl.Family),
			tmpl.Version,
			tmpl.Confidence,
			fmt.Sprintf("%.0f%%", tmpl.SuccessRate()*100),
			validated,
			string(tmpl.Provenance)))
	}
	return sb.String()
}

// RenderReviewItems formats the pending review queue.
func RenderReviewItems(items []model.ReviewItem) string {
	var sb strings.Builder
	sb.WriteString(TableHeaderStyle.Render(fmt.Sprintf("%-6s %-4s %-38s %s",
		"ID", "PRI", "RESULT", "FAILURES")))
	sb.WriteString("\n")

	for _, item := range items {
		sb.WriteString(fmt.Sprintf("%-6d %-4d %-38s %s\n",
			item.ID,
			item.Priority,
			item.ResultID,
			truncate(strings.Join(item.Failures, "; "), 60)))
	}
	return sb.String()
}

// RenderResult formats one extraction result for display.
func RenderResult(result *model.ExtractionResult) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Amount:      %s %s\n", result.Amount.String(), result.Currency))
	sb.WriteString(fmt.Sprintf("Date:        %s\n", result.Date.Format("2006-01-02")))
	sb.WriteString(fmt.Sprintf("Merchant:    %s\n", normalize.DisplayMerchant(result.Merchant)))
	if result.Location != "" {
		sb.WriteString(fmt.Sprintf("Location:    %s\n", result.Location))
	}
	if result.Reference != "" {
		sb.WriteString(fmt.Sprintf("Reference:   %s\n", result.Reference))
	}
	sb.WriteString(fmt.Sprintf("Institution: %s\n", result.Institution))
	sb.WriteString(fmt.Sprintf("Family:      %s\n", string(result.Family)))
	sb.WriteString(fmt.Sprintf("Tier:        %s\n", result.Tier.String()))
	sb.WriteString(fmt.Sprintf("Confidence:  %.2f\n", result.Confidence))
	if result.NeedsReview {
		sb.WriteString(WarningStyle.Render("Needs review: " + strings.Join(result.Failures, "; ")))
		sb.WriteString("\n")
	}
	return sb.String()
}

// RenderBatchStats summarizes a processing run.
func RenderBatchStats(stats service.BatchStats) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Processed:    %d in %s\n", stats.Total, stats.Duration.Round(1e6)))
	sb.WriteString(SuccessStyle.Render(fmt.Sprintf("Accepted:     %d", stats.Accepted)))
	sb.WriteString("\n")
	sb.WriteString(WarningStyle.Render(fmt.Sprintf("Needs review: %d", stats.NeedsReview)))
	sb.WriteString("\n")
	sb.WriteString(SubtleStyle.Render(fmt.Sprintf("Duplicates:   %d", stats.Duplicates)))
	sb.WriteString("\n")
	sb.WriteString(SubtleStyle.Render(fmt.Sprintf("Discarded:    %d", stats.Discarded)))
	sb.WriteString("\n")
	if stats.Failed > 0 {
		sb.WriteString(ErrorStyle.Render(fmt.Sprintf("Failed:       %d", stats.Failed)))
		sb.WriteString("\n")
	}
	sb.WriteString(fmt.Sprintf("Spend:        $%.4f\n", stats.Cost))
	return sb.String()
}

// RenderTierSummaries formats per-tier metric aggregates.
func RenderTierSummaries(summaries []storage.TierSummary) string {
	var sb strings.Builder
	sb.WriteString(TableHeaderStyle.Render(fmt.Sprintf("%-12s %-8s %-10s %s",
		"TIER", "COUNT", "ACCEPTED", "SPEND")))
	sb.WriteString("\n")

	for _, summary := range summaries {
		sb.WriteString(fmt.Sprintf("%-12s %-8d %-10d $%.4f\n",
			summary.Tier.String(),
			summary.Count,
			summary.Accepted,
			summary.Cost))
	}
	return sb.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
