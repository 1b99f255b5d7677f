package cli

import (
	"github.com/spf13/cobra"
)

func newHooksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "hooks",
		Short:  "Hook handlers",
		Long:   "Commands called by host hooks. These are internal and not for direct user use.",
		Hidden: true, // Internal command, not for direct user use
	}

	cmd.AddCommand(newClaudeCodeHooksCmd())

	return cmd
}

func newClaudeCodeHooksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "claudecode",
		Short: "Claude Code hook handlers",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "pre-tool",
		Short: "Handle PreToolUse[Skill] events",
		RunE:  hookRunE(handlePreTool),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "post-tool",
		Short: "Handle PostToolUse[Skill] events",
		RunE:  hookRunE(handlePostTool),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "prompt-submit",
		Short: "Handle UserPromptSubmit events",
		RunE:  hookRunE(handlePromptSubmit),
	})

	return cmd
}
