package install

import (
	"context"

	"s5-keeper/cmd/root"
	"s5-keeper/internal/console"
	"s5-keeper/services"

	"github.com/spf13/cobra"
)

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "停止并移除代理服务, 程序和连接信息",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		if err := services.GetKeeper().Uninstall(ctx); err != nil {
			return err
		}
		console.Success("SOCKS5 proxy removed")
		console.Warn("firewall rules are left in place, remove them manually if needed")
		return nil
	},
}

func init() {
	root.RootCmd.AddCommand(uninstallCmd)
}
