package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/fachebot/point-digest/internal/logger"
	"github.com/fachebot/point-digest/internal/scheduler"
	"github.com/spf13/cobra"
)

func watchCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "定时扫描输入目录并生成报告",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svcCtx, err := openService(cmd, root)
			if err != nil {
				return err
			}
			defer svcCtx.Close()

			// 创建输入目录
			if err := os.MkdirAll(svcCtx.Config.Watch.InputDir, 0755); err != nil {
				return err
			}

			// 创建并启动调度器
			schedulerInstance := scheduler.NewScheduler(
				svcCtx.Summarizer,
				svcCtx.ReportModel,
				&svcCtx.Config.Watch,
			)
			if err := schedulerInstance.Start(); err != nil {
				return err
			}

			// 等待程序退出
			ch := make(chan os.Signal, 2)
			signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
			select {
			case <-ch:
			case <-cmd.Context().Done():
			}

			// 优雅关闭
			logger.Infof("正在关闭服务...")
			schedulerInstance.Stop()
			logger.Infof("服务已停止")
			return nil
		},
	}
}
