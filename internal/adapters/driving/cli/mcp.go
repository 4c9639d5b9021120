package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/azad25/erp-ai-copilot-sub000/internal/adapters/driving/mcp"
)

var mcpPort int

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Model Context Protocol server",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the document tools to an assistant",
	Long: `Exposes search, ingestion, document management and context building as
MCP tools, and documents as rag://documents/{id} resources.

The server speaks JSON-RPC on stdin/stdout unless --port is given, in which
case it serves the streamable HTTP transport at that port.

  ragengine mcp serve
  ragengine mcp serve --port 8080

To run 'ragengine serve' with consumers and metrics as well, use its --mcp flag.`,
	Args: cobra.NoArgs,
	RunE: runMCPServe,
}

func init() {
	mcpServeCmd.Flags().IntVarP(&mcpPort, "port", "p", 0, "serve HTTP on this port instead of stdio")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	if err := requireRAG(); err != nil {
		return err
	}

	server, err := mcp.NewServer(ragService, version)
	if err != nil {
		return err
	}
	if mcpPort <= 0 {
		return server.Serve(cmd.Context())
	}

	addr := fmt.Sprintf(":%d", mcpPort)
	cmd.PrintErrf("MCP endpoint on http://localhost%s\n", addr)
	return server.ListenAndServe(cmd.Context(), addr)
}
