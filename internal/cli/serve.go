package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"lifesignal/internal/config"
	"lifesignal/internal/logger"
	"lifesignal/internal/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// ServeCmd 运行检测服务直到收到 SIGINT/SIGTERM
func ServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the monitoring service",
		RunE: func(cmd *cobra.Command, args []string) error {
			// 1. 加载配置
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			// 2. 初始化日志
			log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, serviceName, cfg.LifeSignal.DeviceID)
			if err != nil {
				return fmt.Errorf("failed to init logger: %w", err)
			}
			defer log.Sync()

			// 3. 创建上下文（支持优雅关闭）
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			// 4. 创建服务
			svc, err := service.NewLifeSignalService(ctx, cfg, log)
			if err != nil {
				log.Error("Failed to create LifeSignal service", zap.Error(err))
				return err
			}
			defer func() {
				if err := svc.Stop(); err != nil {
					log.Error("Failed to stop service cleanly", zap.Error(err))
				}
			}()

			// 5. 启动服务（传感器未授权时直接返回，由外部重试）
			if err := svc.Start(ctx); err != nil {
				log.Error("Failed to start LifeSignal service", zap.Error(err))
				return err
			}

			// 6. 等待信号（优雅关闭）
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigChan)

			select {
			case sig := <-sigChan:
				log.Info("Received signal, shutting down",
					zap.String("signal", sig.String()),
				)
			case <-ctx.Done():
			}

			log.Info("LifeSignal service stopped")
			return nil
		},
	}
}
