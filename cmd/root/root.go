package root

import (
	"context"
	"fmt"
	"os"

	"s5-keeper/internal/config"
	"s5-keeper/internal/console"
	"s5-keeper/internal/env"
	"s5-keeper/internal/logger"
	"s5-keeper/services"

	"github.com/spf13/cobra"
)

// Version is the s5 build version, filled in from the build variables of package cmd.
var Version = "dev"

// RootCmd with no verb, or an unknown one, prints the connection info followed by usage.
var RootCmd = &cobra.Command{
	Use:           "s5",
	Short:         "SOCKS5 代理部署与管理工具",
	Long:          `s5 安装 SOCKS5 代理程序, 注册 systemd 服务, 开放防火墙端口, 并提供 start/stop/restart/status/info/update 管理命令`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		verb := ""
		if len(args) > 0 {
			verb = args[0]
		}
		return Dispatch(cmd.Context(), verb)
	},
}

/**
 * Run a management verb through the dispatcher of the process wide keeper
 * @param {context.Context} ctx - Context
 * @param {string} verb - Management verb, unknown verbs print info and usage
 * @returns {error} Action failure
 */
func Dispatch(ctx context.Context, verb string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return services.NewDispatcher(services.GetKeeper(), console.Writer()).Dispatch(ctx, verb)
}

func initConfig() {
	if err := config.Init(env.ConfigFile); err != nil {
		fmt.Fprintf(os.Stderr, "load config failed, using defaults: %v\n", err)
	}
	logger.InitLoggerWithMode(&config.Get().Log, env.Daemon)
}

func init() {
	cobra.OnInitialize(initConfig)
	RootCmd.PersistentFlags().StringVarP(&env.ConfigFile, "config", "c", "", "配置文件路径 (默认 /etc/s5/config.yaml)")
	RootCmd.Example = `  s5 install --port 18080
  s5 status
  s5 info`
}
