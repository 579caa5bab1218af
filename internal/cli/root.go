package cli

import (
	"fmt"

	"lifesignal/internal/config"
	"lifesignal/internal/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const serviceName = "lifesignal"

// NewRootCmd 根命令
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lifesignal",
		Short: "LifeSignal vital-sign anomaly detection and emergency escalation",
		Long: `LifeSignal evaluates heart rate, blood oxygen and fall readings against safety
thresholds, runs a cancellable countdown when an anomaly persists and alerts the
registered emergency contacts when it escalates.

Configuration is read from environment variables (see internal/config).`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(ServeCmd())
	rootCmd.AddCommand(ContactsCmd())
	rootCmd.AddCommand(SOSCmd())
	rootCmd.AddCommand(CancelCmd())
	rootCmd.AddCommand(AlertsCmd())
	return rootCmd
}

// loadConfig 加载配置并为命令行工具创建日志（console，写到 stderr）
func loadConfig(level string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if level == "" {
		level = cfg.Log.Level
	}
	log, err := logger.NewLogger(level, "console", serviceName, cfg.LifeSignal.DeviceID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init logger: %w", err)
	}
	return cfg, log, nil
}
