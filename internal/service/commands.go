package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"lifesignal/internal/models"
	"lifesignal/internal/transport"

	"go.uber.org/zap"
)

// commandListener 订阅命令主题，把命令交给服务
type commandListener struct {
	service *LifeSignalService
	sub     transport.Subscriber
	topic   string
	qos     byte
	timeout time.Duration
}

func (l *commandListener) start() error {
	if err := l.sub.Subscribe(l.topic, l.qos, l.handle); err != nil {
		return fmt.Errorf("failed to subscribe commands topic: %w", err)
	}
	return nil
}

func (l *commandListener) stop() {
	if err := l.sub.Unsubscribe(l.topic); err != nil {
		l.service.logger.Warn("Failed to unsubscribe commands topic", zap.Error(err))
	}
}

func (l *commandListener) handle(_ string, payload []byte) error {
	var cmd models.Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("failed to unmarshal command: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	return l.service.HandleCommand(ctx, cmd)
}

// HandleCommand 执行一条设备命令
func (s *LifeSignalService) HandleCommand(ctx context.Context, cmd models.Command) error {
	s.logger.Info("Command received",
		zap.String("command_id", cmd.ID),
		zap.String("type", string(cmd.Type)),
		zap.String("kind", string(cmd.Kind)),
		zap.String("issued_by", cmd.IssuedBy),
	)

	switch cmd.Type {
	case models.CommandSOS:
		triggered, err := s.TriggerSOS(ctx, cmd.ID)
		if err != nil {
			return err
		}
		if !triggered {
			s.logger.Info("Manual SOS ignored, emergency already in progress")
		}
		return nil
	case models.CommandCancel:
		if !cmd.Kind.Valid() {
			return fmt.Errorf("cancel command requires a sensor kind, got %q", cmd.Kind)
		}
		_, err := s.CancelCountdown(ctx, cmd.Kind)
		return err
	case models.CommandCancelAll:
		_, err := s.CancelAll(ctx)
		return err
	default:
		return fmt.Errorf("unknown command type %q", cmd.Type)
	}
}
