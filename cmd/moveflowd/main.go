package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"MoveFlow-Agent/internal/api"
	"MoveFlow-Agent/internal/chain/provider"
	"MoveFlow-Agent/internal/chain/signer"
	"MoveFlow-Agent/internal/config"
	"MoveFlow-Agent/internal/conversation"
	"MoveFlow-Agent/internal/dispatch"
	"MoveFlow-Agent/internal/history"
	"MoveFlow-Agent/internal/intent"
	"MoveFlow-Agent/internal/llm"
	"MoveFlow-Agent/internal/llm/openai"
	"MoveFlow-Agent/internal/notify"
	"MoveFlow-Agent/internal/schedule"
	"MoveFlow-Agent/internal/stream"
	"MoveFlow-Agent/internal/timeparse"
	"MoveFlow-Agent/pkg/logger"
)

// main 是 MoveFlow 会话守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("moveflowd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("MOVEFLOW_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "moveflow.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logger.Level,
		Format:      cfg.Logger.Format,
		OutputPaths: cfg.Logger.OutputPaths,
		AuditPath:   cfg.Logger.AuditPath,
	}); err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	llmClient, err := createLLMClient(cfg)
	if err != nil {
		return err
	}

	registry, err := provider.NewRegistry(ctx, provider.Config{
		DefinitionsPath: cfg.Chain.DefinitionsPath,
		DefaultChain:    cfg.Chain.DefaultChain,
		Timeout:         time.Duration(cfg.Chain.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return err
	}
	defer registry.Close()

	chainClient, err := registry.DefaultClient()
	if err != nil {
		return err
	}

	displayLoc := timeparse.DefaultLocation()
	if cfg.Stream.DisplayTimezone != "" {
		if loc, locErr := time.LoadLocation(cfg.Stream.DisplayTimezone); locErr == nil {
			displayLoc = loc
		} else {
			logger.L().Warn("展示时区无法加载，使用默认时区",
				"timezone", cfg.Stream.DisplayTimezone, "error", locErr)
		}
	}

	dispatchOpts := []dispatch.Option{
		dispatch.WithTokenDecimals(cfg.Stream.TokenDecimals),
		dispatch.WithCallTimeout(time.Duration(cfg.Chain.TimeoutSeconds) * time.Second),
		dispatch.WithDisplayLocation(displayLoc),
	}

	defaultMode := stream.Mode(cfg.Stream.DefaultMode)
	if cfg.Chain.SignerURL != "" {
		remote, signerErr := signer.NewRemote(ctx, signer.Config{
			URL:     cfg.Chain.SignerURL,
			KeyRef:  cfg.Chain.SignerKeyRef,
			Timeout: time.Duration(cfg.Chain.TimeoutSeconds) * time.Second,
		})
		if signerErr != nil {
			return signerErr
		}
		dispatchOpts = append(dispatchOpts, dispatch.WithSigner(remote))
	} else if defaultMode == stream.ModeSigned {
		// 没有签名服务就无法进入读写模式，降级而不是失败。
		logger.L().Warn("未配置签名服务，默认模式降级为只读")
		defaultMode = stream.ModeReadOnly
	}

	publisher, err := createPublisher(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = publisher.Close()
	}()
	dispatchOpts = append(dispatchOpts, dispatch.WithPublisher(publisher))

	dispatcher, err := dispatch.NewDispatcher(chainClient, dispatchOpts...)
	if err != nil {
		return err
	}

	records, err := createHistoryStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = records.Close()
	}()

	sessions, err := createSessionStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = sessions.Close()
	}()

	extractor := intent.NewExtractor(chainClient, defaultMode)
	computer := schedule.NewComputer(cfg.Stream.TokenDecimals)

	orchestrator, err := conversation.NewOrchestrator(
		llmClient,
		extractor,
		computer,
		dispatcher,
		sessions,
		records,
		conversation.WithLLMTimeout(time.Duration(cfg.LLM.TimeoutSeconds)*time.Second),
		conversation.WithHistoryLimit(cfg.Stream.HistoryLimit),
		conversation.WithDisplayLocation(displayLoc),
	)
	if err != nil {
		return err
	}

	snapCtx, cancelSnap := context.WithTimeout(ctx, time.Duration(cfg.Chain.TimeoutSeconds)*time.Second)
	snapshot, snapErr := chainClient.FetchSnapshot(snapCtx)
	cancelSnap()
	if snapErr != nil {
		logger.L().Warn("获取链快照失败", "chain", chainClient.Name(), "error", snapErr)
	} else {
		logger.L().Info("链端点就绪",
			"chain", chainClient.Name(),
			"chain_id", snapshot.ChainID,
			"block_height", snapshot.BlockHeight,
		)
	}

	logger.L().Info("moveflowd 启动",
		"address", cfg.Server.Address,
		"chain", chainClient.Name(),
		"chains", registry.Chains(),
		"mode", string(defaultMode),
	)

	server := api.NewServer(cfg.Server.Address, orchestrator, records)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func createLLMClient(cfg *config.Config) (llm.Client, error) {
	switch cfg.LLM.Provider {
	case "", "openai":
		apiKey := strings.TrimSpace(cfg.LLM.APIKey)
		if apiKey == "" {
			apiKey = strings.TrimSpace(os.Getenv("MOVEFLOW_OPENAI_API_KEY"))
		}
		if apiKey == "" {
			return nil, errors.New("OpenAI provider 需要配置 api_key 或 MOVEFLOW_OPENAI_API_KEY")
		}
		return openai.NewClient(openai.Config{
			APIKey:  apiKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		})
	default:
		return nil, fmt.Errorf("未知的大模型 provider: %s", cfg.LLM.Provider)
	}
}

func createHistoryStore(cfg *config.Config) (history.Store, error) {
	switch cfg.Storage.History.Driver {
	case "", "memory":
		return history.NewMemoryStore(), nil
	case "mysql":
		return history.NewMySQLStore(cfg.Storage.History.DSN)
	default:
		return nil, fmt.Errorf("未知的历史存储驱动: %s", cfg.Storage.History.Driver)
	}
}

func createSessionStore(cfg *config.Config) (conversation.Store, error) {
	switch cfg.Storage.Session.Driver {
	case "", "memory":
		return conversation.NewMemoryStore(), nil
	case "redis":
		return conversation.NewRedisStore(conversation.RedisStoreConfig{
			Address:  cfg.Storage.Session.Address,
			Password: cfg.Storage.Session.Password,
			DB:       cfg.Storage.Session.DB,
			TTL:      time.Duration(cfg.Storage.Session.TTLSeconds) * time.Second,
		})
	default:
		return nil, fmt.Errorf("未知的会话存储驱动: %s", cfg.Storage.Session.Driver)
	}
}

func createPublisher(cfg *config.Config) (notify.Publisher, error) {
	switch cfg.Notify.Driver {
	case "", "noop":
		return notify.Noop{}, nil
	case "rabbitmq":
		return notify.NewRabbitMQPublisher(notify.RabbitMQConfig{
			URL:     cfg.Notify.URL,
			Queue:   cfg.Notify.Queue,
			Durable: cfg.Notify.Durable,
		})
	default:
		return nil, fmt.Errorf("未知的通知驱动: %s", cfg.Notify.Driver)
	}
}
