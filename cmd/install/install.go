package install

import (
	"context"
	"fmt"

	"s5-keeper/cmd/root"
	"s5-keeper/internal/console"
	"s5-keeper/internal/errs"
	"s5-keeper/internal/models"
	"s5-keeper/services"

	"github.com/spf13/cobra"
)

var (
	optPort     string
	optRandom   bool
	optUser     string
	optPassword string
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "安装并启动 SOCKS5 代理服务",
	Long: `依次执行: 权限检查, 端口选择, 生成凭据, 下载安装代理程序, 注册 systemd 服务,
开放防火墙端口, 输出连接信息. 任一步骤失败即中止, 不做回滚`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInstall(cmd.Context())
	},
}

/**
 * Provision the proxy and print the connection block
 * @param {context.Context} ctx - Context
 * @returns {error} Stage failure
 * @description
 * - --port selects manual mode, otherwise a random port is chosen
 * - The printed block contains the password, the operator is told so
 */
func runInstall(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	opts := services.ProvisionOptions{
		PortMode: models.PortModeRandom,
		Username: optUser,
		Password: optPassword,
	}
	if optPort != "" && !optRandom {
		opts.PortMode = models.PortModeManual
		opts.Port = optPort
	}

	console.Info("provisioning SOCKS5 proxy (%s port)", opts.PortMode)
	rec, err := services.GetKeeper().Provision(ctx, opts)
	if err != nil {
		if stage := errs.FailedStage(err); stage != "" {
			return fmt.Errorf("install failed at stage '%s': %w", stage, err)
		}
		return err
	}
	console.Success("SOCKS5 proxy installed and running")
	console.Plain("%s", services.FormatInfo(rec))
	console.Warn("The block above contains the proxy password. It is also stored in %s (mode 0600).",
		services.GetKeeper().Config().Paths.InfoFile)
	console.Plain("\n%s", services.Usage)
	return nil
}

func init() {
	installCmd.Flags().SortFlags = false
	installCmd.Flags().StringVarP(&optPort, "port", "p", "", "指定监听端口 (1-65535)")
	installCmd.Flags().BoolVarP(&optRandom, "random", "r", false, "随机选择端口 (默认)")
	installCmd.Flags().StringVarP(&optUser, "user", "u", "", "指定用户名 (默认自动生成)")
	installCmd.Flags().StringVar(&optPassword, "password", "", "指定密码, 至少8位字母数字 (默认自动生成)")
	installCmd.MarkFlagsMutuallyExclusive("port", "random")
	installCmd.Example = `  # random port, generated credentials
  s5 install
  # fixed port
  s5 install --port 18080`
	root.RootCmd.AddCommand(installCmd)
}
