package main

import (
	"fmt"
	"strings"

	"github.com/finwire/finwire/internal/models"
	"github.com/finwire/finwire/internal/services/query"
)

// formatSearchResults renders search hits as markdown
func formatSearchResults(queryText string, results []models.SearchResult) string {
	if len(results) == 0 {
		return fmt.Sprintf("No documents match %q.", queryText)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Search results for %q (%d)\n\n", queryText, len(results))
	for i, result := range results {
		fmt.Fprintf(&b, "%d. **%s** (`%s`)\n", i+1, result.Title, result.DocumentID)
		fmt.Fprintf(&b, "   score %.2f, impact %d (%s), created %s",
			result.Score, result.ImpactScore, result.ImpactTier,
			result.CreatedAt.Format("2006-01-02 15:04"))
		if len(result.Matches) > 0 {
			fmt.Fprintf(&b, ", matched via %s", strings.Join(result.Matches, ", "))
		}
		b.WriteString("\n")
		if result.Summary != "" {
			fmt.Fprintf(&b, "   %s\n", result.Summary)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// formatFeed renders a ranked client feed as markdown
func formatFeed(clientID string, articles []models.RankedArticle) string {
	if len(articles) == 0 {
		return fmt.Sprintf("No articles in the current window for client %s.", clientID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Top news for %s (%d)\n\n", clientID, len(articles))
	for i, article := range articles {
		reasons := make([]string, len(article.Reasons))
		for j, reason := range article.Reasons {
			reasons[j] = string(reason)
		}
		fmt.Fprintf(&b, "%d. **%s** (`%s`)\n", i+1, article.Title, article.DocumentID)
		fmt.Fprintf(&b, "   score %.3f, impact %d (%s), via %s\n",
			article.FinalScore, article.ImpactScore, article.ImpactTier,
			strings.Join(reasons, ", "))
		if article.WhyItMattersBase != "" {
			fmt.Fprintf(&b, "   %s\n", article.WhyItMattersBase)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// formatExplanation renders a why-it-matters response as markdown
func formatExplanation(explanation *query.Explanation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Why it matters:** %s\n\n", explanation.WhyItMatters)
	fmt.Fprintf(&b, "**Story:** %s\n", explanation.StorySummary)
	return b.String()
}

// formatDocument renders one canonical document as markdown
func formatDocument(doc *models.Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", doc.Title)
	fmt.Fprintf(&b, "- ID: `%s` (version %d)\n", doc.DocumentID, doc.Version)
	fmt.Fprintf(&b, "- Source: %s, group: %s\n", doc.SourceID, doc.GroupID)
	fmt.Fprintf(&b, "- Created: %s, impact: %d (%s)\n",
		doc.CreatedAt.Format("2006-01-02 15:04"), doc.ImpactScore, doc.ImpactTier)
	if len(doc.Extracted.Themes) > 0 {
		fmt.Fprintf(&b, "- Themes: %s\n", strings.Join(doc.Extracted.Themes, ", "))
	}
	if doc.Extracted.Summary != "" {
		fmt.Fprintf(&b, "\n%s\n", doc.Extracted.Summary)
	}
	fmt.Fprintf(&b, "\n---\n\n%s\n", doc.Content)
	return b.String()
}

// formatIngestResult renders a pipeline outcome as markdown
func formatIngestResult(result *models.IngestResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ingest status: **%s**\n", result.Status)
	if result.DocumentID != "" {
		fmt.Fprintf(&b, "Document: `%s` (group %s)\n", result.DocumentID, result.GroupID)
	}
	if result.Duplicate != nil {
		fmt.Fprintf(&b, "Duplicate of `%s` (tier %s, score %.3f)\n",
			result.Duplicate.DocumentID, result.Duplicate.Tier, result.Duplicate.Score)
	}
	for _, warning := range result.Warnings {
		fmt.Fprintf(&b, "- warning: %s\n", warning)
	}
	return b.String()
}

// formatClients renders client profiles as a markdown list
func formatClients(list []*models.Client) string {
	if len(list) == 0 {
		return "No clients visible to this token."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Clients (%d)\n\n", len(list))
	for _, client := range list {
		fmt.Fprintf(&b, "- **%s** (`%s`) type %s, group %s, %d holdings, %d watched\n",
			client.Name, client.ClientID, client.ClientType, client.GroupID,
			len(client.Portfolio.Holdings), len(client.Watchlist.Items))
	}
	return b.String()
}
