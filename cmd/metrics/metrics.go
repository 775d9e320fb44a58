package metrics

import (
	"context"
	"fmt"
	"time"

	"s5-keeper/cmd/root"
	"s5-keeper/internal/config"
	"s5-keeper/internal/console"
	"s5-keeper/services"

	"github.com/spf13/cobra"
)

var (
	pushGatewayAddr string
	timeout         time.Duration
)

func init() {
	root.RootCmd.AddCommand(Cmd)
	Cmd.Flags().SortFlags = false
	Cmd.Flags().StringVarP(&pushGatewayAddr, "addr", "a", "", "Pushgateway地址 (默认 metrics.pushgateway)")
	Cmd.Flags().DurationVarP(&timeout, "timeout", "t", 30*time.Second, "指标采集超时时间")
}

// Cmd samples the service state once and pushes every s5 metric.
var Cmd = &cobra.Command{
	Use:   "metrics",
	Short: "上报Prometheus指标",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if pushGatewayAddr == "" {
			pushGatewayAddr = config.Get().Metrics.Pushgateway
		}
		if pushGatewayAddr == "" {
			return fmt.Errorf("no pushgateway address, use --addr or set metrics.pushgateway")
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		// 刷新服务状态指标
		status, _, _ := services.GetKeeper().Status(ctx)
		if err := services.PushMetrics(pushGatewayAddr, config.Get().Metrics.Job); err != nil {
			return err
		}
		console.Success("metrics pushed to %s (service %s is %s)", pushGatewayAddr, status.Name, status.State)
		return nil
	},
}
