package cli

import (
	"encoding/json"
	"fmt"
	"maps"

	"github.com/spf13/cobra"

	"github.com/azad25/erp-ai-copilot-sub000/internal/core/domain"
)

// Document flags, shared by ingest and update.
var (
	docID       string
	docTitle    string
	docType     string
	docAccess   string
	docVersion  string
	docMetadata []string
	docAsync    bool
	docSync     bool
	docRevision int64
	docJSON     bool
	listLimit   int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file|-]",
	Short: "Ingest a document",
	Long: `Chunks, embeds and indexes a document read from a file or stdin.

Large documents are processed in the background; use --async or --sync to
force either mode.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

var getCmd = &cobra.Command{
	Use:   "get [doc-id]",
	Short: "Show a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

var updateCmd = &cobra.Command{
	Use:   "update [doc-id] [file|-]",
	Short: "Replace a document's content",
	Long: `Replaces the content of an existing document and regenerates its chunks
and vectors. Title, type and access level keep their stored values unless
given.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runUpdate,
}

var deleteCmd = &cobra.Command{
	Use:   "delete [doc-id]",
	Short: "Delete a document and its vectors",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored documents",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	for _, c := range []*cobra.Command{ingestCmd, updateCmd} {
		c.Flags().StringVarP(&docTitle, "title", "t", "", "document title (default: derived from the file name)")
		c.Flags().StringVar(&docType, "type", "", "document type: generic, policy, manual, faq, knowledge_base")
		c.Flags().StringVar(&docAccess, "access", "", "access level: public, internal, confidential, restricted")
		c.Flags().StringVar(&docVersion, "doc-version", "", "document version label")
		c.Flags().StringArrayVarP(&docMetadata, "meta", "m", nil, "metadata key=value (repeatable)")
		c.Flags().BoolVar(&docJSON, "json", false, "output the result as JSON")
	}
	ingestCmd.Flags().StringVar(&docID, "id", "", "document id (default: generated)")
	ingestCmd.Flags().BoolVar(&docAsync, "async", false, "process in the background")
	ingestCmd.Flags().BoolVar(&docSync, "sync", false, "process in the foreground regardless of size")
	ingestCmd.MarkFlagsMutuallyExclusive("async", "sync")
	updateCmd.Flags().Int64Var(&docRevision, "revision", 0, "expected stored revision")
	getCmd.Flags().BoolVar(&docJSON, "json", false, "output the document as JSON")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "maximum number of documents")

	rootCmd.AddCommand(ingestCmd, getCmd, updateCmd, deleteCmd, listCmd)
}

// documentFromFlags builds a document from the input and the shared flags.
// Flags win over values extracted from the input.
func documentFromFlags(in input) (domain.Document, error) {
	doc := domain.Document{
		ID:      docID,
		Title:   docTitle,
		Content: in.content,
		Version: docVersion,
	}
	if doc.Title == "" {
		doc.Title = in.title
	}
	if doc.Title == "" && in.name != "" {
		doc.Title = titleFromName(in.name)
	}

	if docType != "" {
		t, err := domain.ParseDocumentType(docType)
		if err != nil {
			return domain.Document{}, err
		}
		doc.DocumentType = t
	}
	if docAccess != "" {
		a, err := domain.ParseAccessLevel(docAccess)
		if err != nil {
			return domain.Document{}, err
		}
		doc.AccessLevel = a
	}

	md, err := parseMetadata(docMetadata)
	if err != nil {
		return domain.Document{}, err
	}
	if len(in.metadata) > 0 {
		merged := maps.Clone(in.metadata)
		maps.Copy(merged, md)
		md = merged
	}
	doc.Metadata = md
	return doc, nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	if err := requireRAG(); err != nil {
		return err
	}

	arg := ""
	if len(args) > 0 {
		arg = args[0]
	}
	in, err := readInput(cmd.Context(), arg, cmd.InOrStdin())
	if err != nil {
		return err
	}

	doc, err := documentFromFlags(in)
	if err != nil {
		return err
	}
	if doc.DocumentType == "" && in.name != "" {
		doc.DocumentType = documentTypeFor(in.name)
	}

	var opts domain.IngestOptions
	switch {
	case docAsync:
		opts.Async = domain.Bool(true)
	case docSync:
		opts.Async = domain.Bool(false)
	}

	res, err := ragService.Ingest(cmd.Context(), doc, opts)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}
	if docJSON {
		return printJSON(cmd, res)
	}
	if !res.Success {
		return fmt.Errorf("ingest failed: %s", res.Error)
	}

	switch {
	case res.Async:
		cmd.Printf("Queued document %s for background ingestion\n", res.DocumentID)
	case res.ChunksCreated != nil && *res.ChunksCreated == 0:
		cmd.Printf("Stored document %s without chunks: %s\n", res.DocumentID, res.Error)
	default:
		chunks := 0
		if res.ChunksCreated != nil {
			chunks = *res.ChunksCreated
		}
		cmd.Printf("Ingested document %s (%d chunks)\n", res.DocumentID, chunks)
	}
	return nil
}

func runGet(cmd *cobra.Command, args []string) error {
	if err := requireRAG(); err != nil {
		return err
	}

	doc, err := ragService.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}
	if doc == nil {
		return fmt.Errorf("document not found: %s", args[0])
	}
	if docJSON {
		return printJSON(cmd, doc)
	}

	cmd.Printf("Document: %s\n", doc.ID)
	cmd.Printf("  Title:    %s\n", doc.Title)
	cmd.Printf("  Type:     %s\n", doc.DocumentType)
	cmd.Printf("  Access:   %s\n", doc.AccessLevel)
	cmd.Printf("  Version:  %s (revision %d)\n", doc.Version, doc.Revision)
	cmd.Printf("  Created:  %s\n", doc.CreatedAt.Format("2006-01-02 15:04:05"))
	cmd.Printf("  Updated:  %s\n", doc.UpdatedAt.Format("2006-01-02 15:04:05"))
	cmd.Printf("  Length:   %d chars\n", len(doc.Content))
	cmd.Println()
	cmd.Println(doc.Content)
	return nil
}

func runUpdate(cmd *cobra.Command, args []string) error {
	if err := requireRAG(); err != nil {
		return err
	}

	arg := ""
	if len(args) > 1 {
		arg = args[1]
	}
	in, err := readInput(cmd.Context(), arg, cmd.InOrStdin())
	if err != nil {
		return err
	}

	doc, err := documentFromFlags(in)
	if err != nil {
		return err
	}
	doc.Revision = docRevision

	res, err := ragService.Update(cmd.Context(), args[0], doc)
	if err != nil {
		return fmt.Errorf("update failed: %w", err)
	}
	if docJSON {
		return printJSON(cmd, res)
	}
	if !res.Success {
		return fmt.Errorf("update failed: %s", res.Error)
	}

	cmd.Printf("Updated document %s\n", res.DocumentID)
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	if err := requireRAG(); err != nil {
		return err
	}

	res, err := ragService.Delete(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	if !res.Success {
		return fmt.Errorf("delete failed: %s", res.Error)
	}

	cmd.Printf("Deleted document %s\n", res.DocumentID)
	return nil
}

func runList(cmd *cobra.Command, _ []string) error {
	if err := requireRAG(); err != nil {
		return err
	}

	docs, err := ragService.List(cmd.Context(), listLimit)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	if len(docs) == 0 {
		cmd.Println("No documents found.")
		return nil
	}

	cmd.Println("Documents:")
	cmd.Println()
	for i := range docs {
		cmd.Printf("  %s\n", docs[i].ID)
		cmd.Printf("    Title: %s\n", docs[i].Title)
		cmd.Printf("    Type: %s, updated %s\n", docs[i].DocumentType, docs[i].UpdatedAt.Format("2006-01-02 15:04"))
		cmd.Println()
	}

	cmd.Printf("Total: %d documents\n", len(docs))
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
