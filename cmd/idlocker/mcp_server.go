package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/PRATHAM1ST/IdLocker-sub001/internal/mcp"
)

func init() {
	rootCmd.AddCommand(mcpServerCmd)
}

// mcpServerCmd starts the MCP server for AI assistant integration
var mcpServerCmd = &cobra.Command{
	Use:   "mcp-server",
	Short: "Start the read-only MCP server for AI assistants",
	Long: `Start an MCP server over stdio that lets AI assistants browse the vault.

The server is read-only. Sensitive field values and custom fields are
masked (e.g. "********1234"); attachment content is never returned.

Available tools:
  - vault_search:   Search items by label or field value
  - vault_get_item: Get one item with sensitive values masked
  - asset_list:     List attachments with reference counts
  - category_list:  List categories and their field schemas

Authentication:
  Set IDLOCKER_PASSWORD before starting the server. The password is read
  once and immediately cleared from the environment.

Example MCP configuration:
  {
    "mcpServers": {
      "idlocker": {
        "type": "stdio",
        "command": "/path/to/idlocker",
        "args": ["mcp-server"],
        "env": {
          "IDLOCKER_PASSWORD": "your-master-password"
        }
      }
    }
  }`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		server, err := mcp.NewServer(ctx, &mcp.ServerOptions{Home: homeDir, Logger: newLogger()})
		if err != nil {
			return fmt.Errorf("failed to create MCP server: %w", err)
		}
		if err := server.Run(ctx); err != nil {
			// Interrupts end the session normally.
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("MCP server error: %w", err)
		}
		return nil
	},
}
