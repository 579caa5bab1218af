package service

import (
	"context"
	"database/sql"
	"fmt"

	"lifesignal/internal/analysis"
	"lifesignal/internal/config"
	"lifesignal/internal/contacts"
	"lifesignal/internal/dispatcher"
	"lifesignal/internal/escalation"
	"lifesignal/internal/evaluator"
	"lifesignal/internal/eventbus"
	"lifesignal/internal/repository"
	"lifesignal/internal/sensor"
	"lifesignal/internal/sink"
	"lifesignal/internal/transport"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Connections 按配置打开的外部连接（未使用的为 nil）
type Connections struct {
	DB    *sql.DB
	Redis *redis.Client
	MQTT  *transport.MQTTClient
}

// Close 关闭所有连接
func (c *Connections) Close() error {
	var firstErr error
	if c.MQTT != nil {
		c.MQTT.Disconnect()
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close redis: %w", err)
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close database: %w", err)
		}
	}
	return firstErr
}

// Needs 需要打开的连接
type Needs struct {
	DB    bool
	Redis bool
	MQTT  bool
}

// ServeNeeds serve 模式需要的连接
func ServeNeeds(cfg *config.Config) Needs {
	return Needs{
		DB:    cfg.LifeSignal.Contacts.Store == config.StorePostgres || cfg.LifeSignal.Dispatch.AlertLogDB,
		Redis: cfg.LifeSignal.Contacts.Store == config.StoreRedis || cfg.LifeSignal.Dispatch.StreamEnabled,
		MQTT:  true,
	}
}

// ContactNeeds 只操作联系人时需要的连接
func ContactNeeds(cfg *config.Config) Needs {
	return Needs{
		DB:    cfg.LifeSignal.Contacts.Store == config.StorePostgres,
		Redis: cfg.LifeSignal.Contacts.Store == config.StoreRedis,
	}
}

// OpenConnections 打开所需连接；任一失败时关闭已打开的连接
func OpenConnections(ctx context.Context, cfg *config.Config, needs Needs, logger *zap.Logger) (*Connections, error) {
	conns := &Connections{}

	if needs.DB {
		db, err := transport.NewPostgresDB(&cfg.Database)
		if err != nil {
			return nil, err
		}
		conns.DB = db
		logger.Info("Connected to PostgreSQL", zap.String("host", cfg.Database.Host))
	}

	if needs.Redis {
		client := transport.NewRedisClient(&cfg.Redis)
		if err := transport.PingRedis(ctx, client); err != nil {
			client.Close()
			conns.Close()
			return nil, err
		}
		conns.Redis = client
		logger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))
	}

	if needs.MQTT {
		client, err := transport.NewMQTTClient(&cfg.MQTT, logger)
		if err != nil {
			conns.Close()
			return nil, err
		}
		conns.MQTT = client
	}

	return conns, nil
}

// NewContactStore 按配置选择联系人存储
func NewContactStore(cfg *config.Config, conns *Connections, logger *zap.Logger) (contacts.Store, error) {
	switch cfg.LifeSignal.Contacts.Store {
	case config.StoreFile:
		return contacts.NewFileStore(cfg.LifeSignal.Contacts.FilePath), nil
	case config.StoreRedis:
		if conns.Redis == nil {
			return nil, fmt.Errorf("redis contact store requires a redis connection")
		}
		return repository.NewRedisContactStore(conns.Redis, cfg.LifeSignal.Contacts.RedisKey, cfg.LifeSignal.UserID, logger), nil
	case config.StorePostgres:
		if conns.DB == nil {
			return nil, fmt.Errorf("postgres contact store requires a database connection")
		}
		return repository.NewPostgresContactStore(conns.DB, cfg.LifeSignal.UserID, logger), nil
	default:
		return nil, fmt.Errorf("unsupported contact store: %s", cfg.LifeSignal.Contacts.Store)
	}
}

// NewDispatcher 按配置组装报警调度器和各出口
func NewDispatcher(cfg *config.Config, conns *Connections, logger *zap.Logger) *dispatcher.Dispatcher {
	logSink := sink.NewLogSink(logger)
	notifiers := []dispatcher.NotificationSink{logSink}
	channels := []dispatcher.ContactChannel{logSink}

	if cfg.LifeSignal.Dispatch.StreamEnabled && conns.Redis != nil {
		stream := sink.NewStreamSink(conns.Redis, cfg.LifeSignal.Dispatch.AlertStream, cfg.LifeSignal.UserID, logger)
		notifiers = append(notifiers, stream)
		channels = append(channels, stream)
	}
	if cfg.LifeSignal.Dispatch.AlertLogDB && conns.DB != nil {
		repo := repository.NewAlertRecordRepository(conns.DB, logger)
		channels = append(channels, sink.NewAlertLogSink(repo, cfg.LifeSignal.UserID))
	}
	if cfg.LifeSignal.Dispatch.SMSOverMQTT && conns.MQTT != nil {
		channels = append(channels, sink.NewMQTTSink(conns.MQTT, cfg.SMSTopic(), cfg.MQTT.QoS))
	}

	opts := []dispatcher.Option{
		dispatcher.WithNotificationSinks(notifiers...),
		dispatcher.WithContactChannels(channels...),
	}
	if cfg.Analysis.Enabled {
		client := analysis.NewClient(cfg.Analysis.BaseURL, cfg.Analysis.Timeout, cfg.Analysis.RetryCount, logger)
		opts = append(opts, dispatcher.WithAnalyzer(client, cfg.Analysis.Timeout))
	}

	logger.Info("Alert dispatcher configured",
		zap.Int("notification_sinks", len(notifiers)),
		zap.Int("contact_channels", len(channels)),
		zap.Bool("analysis_enabled", cfg.Analysis.Enabled),
	)
	return dispatcher.NewDispatcher(evaluator.DefaultPolicy, logger, opts...)
}

// NewLifeSignalService 按配置创建服务（连接、存储、出口、总线、传感器来源）
func NewLifeSignalService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*LifeSignalService, error) {
	// 1. 打开连接
	conns, err := OpenConnections(ctx, cfg, ServeNeeds(cfg), logger)
	if err != nil {
		return nil, err
	}

	// 2. 联系人
	store, err := NewContactStore(cfg, conns, logger)
	if err != nil {
		conns.Close()
		return nil, err
	}
	registry := contacts.NewRegistry(ctx, store, logger)

	var watcher *contacts.FileWatcher
	if cfg.LifeSignal.Contacts.Store == config.StoreFile {
		watcher, err = contacts.WatchFile(cfg.LifeSignal.Contacts.FilePath, registry, logger)
		if err != nil {
			// 下发前仍会重新读取，监视失败不阻止启动
			logger.Warn("Failed to watch contacts file", zap.Error(err))
		}
	}

	// 3. 事件总线（可选桥接到对端设备）
	bus := eventbus.NewLocalBus(cfg.LifeSignal.Bus.BufferSize, logger)
	var bridge *eventbus.MQTTBridge
	if cfg.LifeSignal.Bus.MQTTEnabled {
		bridge = eventbus.NewMQTTBridge(bus, conns.MQTT, cfg.EventsTopic(), cfg.LifeSignal.DeviceID, cfg.MQTT.QoS, logger)
		if err := bridge.Start(); err != nil {
			if watcher != nil {
				watcher.Close()
			}
			bus.Close()
			conns.Close()
			return nil, err
		}
	}

	// 4. 读数来源
	source := sensor.NewMQTTSource(conns.MQTT, cfg.ReadingsTopic(), cfg.MQTT.QoS, cfg.LifeSignal.Bus.BufferSize, logger)

	svc := New(Dependencies{
		DeviceID:        cfg.LifeSignal.DeviceID,
		Source:          source,
		Registry:        registry,
		Dispatcher:      NewDispatcher(cfg, conns, logger),
		Bus:             bus,
		Policy:          evaluator.DefaultPolicy,
		DispatchEnabled: cfg.LifeSignal.Dispatch.Enabled,
		Escalation: escalation.Options{
			Countdown: cfg.Countdown(),
			Tick:      cfg.Tick(),
		},
		Commands:      conns.MQTT,
		CommandsTopic: cfg.CommandsTopic(),
		CommandsQoS:   cfg.MQTT.QoS,
	}, logger)

	// 关闭顺序与注册顺序相反
	svc.closers = append(svc.closers,
		conns.Close,
		func() error { bus.Close(); return nil },
	)
	if bridge != nil {
		svc.closers = append(svc.closers, func() error { bridge.Stop(); return nil })
	}
	if watcher != nil {
		svc.closers = append(svc.closers, watcher.Close)
	}
	svc.closers = append(svc.closers, source.Close)
	return svc, nil
}
