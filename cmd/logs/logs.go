package logs

import (
	"context"

	"s5-keeper/cmd/root"
	"s5-keeper/internal/console"
	"s5-keeper/services"

	"github.com/spf13/cobra"
)

var lines int

func init() {
	root.RootCmd.AddCommand(Cmd)
	Cmd.Flags().SortFlags = false
	Cmd.Flags().IntVarP(&lines, "lines", "n", 50, "显示最近的日志行数")
}

// Cmd shows the proxy service journal, the place to look when a start fails.
var Cmd = &cobra.Command{
	Use:   "logs",
	Short: "显示代理服务的 systemd 日志",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		out, err := services.GetKeeper().Logs(ctx, lines)
		if err != nil {
			return err
		}
		console.Plain("%s", out)
		return nil
	},
}
