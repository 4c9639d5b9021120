package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/azad25/erp-ai-copilot-sub000/internal/core/domain"
)

var (
	searchLimit      int
	searchThreshold  float64
	searchCollection string
	searchType       string
	searchFilters    []string
	searchJSON       bool
	contextTokens    int
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search indexed documents",
	Long: `Performs semantic similarity search across indexed documents.

Without --collection or --type every document collection is searched and the
hits are merged by score. Filters match chunk payload fields:

  --filter document_type=policy
  --filter metadata.access_level!=restricted
  --filter metadata.access_level:in=public,internal`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

var contextCmd = &cobra.Command{
	Use:   "context [query]",
	Short: "Build a prompt context from the best matches",
	Long: `Searches for the query and merges the matching chunks, best first, into a
single context string that fits the token budget.`,
	Args: cobra.ExactArgs(1),
	RunE: runContext,
}

func init() {
	for _, c := range []*cobra.Command{searchCmd, contextCmd} {
		c.Flags().IntVarP(&searchLimit, "limit", "n", 0, "maximum number of results (default from config)")
		c.Flags().Float64Var(&searchThreshold, "threshold", -1, "minimum similarity score (default from config)")
		c.Flags().StringVar(&searchType, "type", "", "restrict to one document type")
		c.Flags().StringArrayVarP(&searchFilters, "filter", "f", nil, "payload filter (repeatable)")
	}
	searchCmd.Flags().StringVarP(&searchCollection, "collection", "c", "", "collection to search")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	contextCmd.Flags().IntVar(&contextTokens, "max-tokens", 0, "token budget (default 1500)")

	rootCmd.AddCommand(searchCmd, contextCmd)
}

// queryFromFlags builds a search query from the shared flags.
func queryFromFlags(text string) (domain.SearchQuery, error) {
	q := domain.SearchQuery{
		Query:          text,
		CollectionName: searchCollection,
		MaxResults:     searchLimit,
	}
	if searchThreshold >= 0 {
		q.SimilarityThreshold = domain.Float64(searchThreshold)
	}

	if searchType != "" {
		t, err := domain.ParseDocumentType(searchType)
		if err != nil {
			return domain.SearchQuery{}, err
		}
		q.Filters = append(q.Filters, domain.SearchFilter{Field: "document_type", Operator: domain.OpEqual, Value: string(t)})
	}
	for _, raw := range searchFilters {
		f, err := parseFilter(raw)
		if err != nil {
			return domain.SearchQuery{}, err
		}
		q.Filters = append(q.Filters, f)
	}
	return q, nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	if err := requireRAG(); err != nil {
		return err
	}

	query, err := queryFromFlags(args[0])
	if err != nil {
		return err
	}

	resp, err := ragService.Search(cmd.Context(), query)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return printJSON(cmd, resp)
	}

	return outputSearchTable(cmd, resp)
}

func outputSearchTable(cmd *cobra.Command, resp *domain.SearchResponse) error {
	if len(resp.Results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for i, r := range resp.Results {
		// Format: [N] Title (Score)
		title, _ := r.Metadata["title"].(string)
		if title == "" {
			title = r.DocumentID
		}

		cmd.Printf("  [%d] %s (%.2f)\n", i+1, title, r.Score)
		cmd.Printf("      Document: %s, chunk %s\n", r.DocumentID, r.ChunkID)
		if snippet := snippet(r.Content, 160); snippet != "" {
			cmd.Printf("      %s\n", snippet)
		}
		cmd.Println()
	}

	cached := ""
	if resp.Cached {
		cached = ", cached"
	}
	cmd.Printf("%d results in %.1fms%s\n", resp.TotalResults, resp.SearchTimeMs, cached)
	return nil
}

func runContext(cmd *cobra.Command, args []string) error {
	if err := requireRAG(); err != nil {
		return err
	}

	query, err := queryFromFlags(args[0])
	if err != nil {
		return err
	}

	text, err := ragService.Context(cmd.Context(), query, contextTokens)
	if err != nil {
		return fmt.Errorf("context failed: %w", err)
	}
	if text == "" {
		cmd.Println("No matching content.")
		return nil
	}

	cmd.Println(text)
	return nil
}

// snippet collapses whitespace and truncates to n bytes on a rune boundary.
func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
