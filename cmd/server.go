package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"mixflow/core/analytics"
	"mixflow/core/auth"
	"mixflow/core/upload"
	"mixflow/core/user"
	"mixflow/db"
	"mixflow/logger"
	"mixflow/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动MixFlow服务器",
	Long:  `启动MixFlow的HTTP服务器，提供上传、流式播放和曲目管理API`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	uploadCfg := upload.DefaultUploadConfig()
	uploadCfg.MaxFileSize = cfg.UploadMaxSize

	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.JWTExpiresIn)
	recorder := analytics.NewRecorder(a.tracks, a.streams, analytics.Options{
		Workers: cfg.AnalyticsWorkers,
		Queue:   cfg.AnalyticsQueue,
		Timeout: cfg.AnalyticsTimeout,
	})

	deps := server.Deps{
		Config:    cfg,
		Issuer:    issuer,
		Users:     user.NewService(a.users, issuer, cfg.BcryptRounds),
		Artists:   a.artistService(),
		Tracks:    a.trackService(),
		Validator: upload.NewValidator(a.store, uploadCfg),
		Recorder:  recorder,
		Store:     a.store,
		Database:  func(ctx context.Context) error { return db.Ping(ctx, a.db) },
	}
	if a.redis != nil {
		deps.Cache = func(ctx context.Context) error { return a.redis.Ping(ctx).Err() }
	}
	if a.minio != nil {
		deps.Storage = a.minio.Ping
	}

	err = server.Start(ctx, cfg, server.NewAPIHandler(deps))
	logger.Info("analytics summary",
		logger.Int64("failures", recorder.Failures()),
		logger.Int64("dropped", recorder.Dropped()))
	return err
}
