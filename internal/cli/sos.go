package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"lifesignal/internal/config"
	"lifesignal/internal/models"
	"lifesignal/internal/transport"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// SOSCmd 向运行中的服务发送手动 SOS
func SOSCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sos",
		Short: "Trigger a manual SOS on the running service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendCommand(cmd, models.Command{Type: models.CommandSOS})
		},
	}
}

// CancelCmd 取消倒计时；不带参数取消全部
func CancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel [kind]",
		Short: "Cancel a running countdown (heart_rate, blood_oxygen, fall) or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return sendCommand(cmd, models.Command{Type: models.CommandCancelAll})
			}
			kind, err := models.ParseKind(args[0])
			if err != nil {
				return err
			}
			if !kind.Valid() {
				return fmt.Errorf("no countdown for kind %q", kind)
			}
			return sendCommand(cmd, models.Command{Type: models.CommandCancel, Kind: kind})
		},
	}
}

func sendCommand(cmd *cobra.Command, c models.Command) error {
	cfg, log, err := loadConfig("warn")
	if err != nil {
		return err
	}
	defer log.Sync()

	mqttCfg := cfg.MQTT
	mqttCfg.ClientID = cfg.MQTT.ClientID + "-cli"
	client, err := transport.NewMQTTClient(&mqttCfg, log)
	if err != nil {
		return err
	}
	defer client.Disconnect()

	c.IssuedBy = cfg.LifeSignal.DeviceID + "-cli"
	if err := publishCommand(client, cfg, c); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Sent %s command to %s\n", c.Type, cfg.CommandsTopic())
	return nil
}

func publishCommand(pub transport.Publisher, cfg *config.Config, c models.Command) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.IssuedAt.IsZero() {
		c.IssuedAt = time.Now()
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}
	if err := pub.Publish(cfg.CommandsTopic(), cfg.MQTT.QoS, false, payload); err != nil {
		return fmt.Errorf("failed to publish command: %w", err)
	}
	return nil
}
