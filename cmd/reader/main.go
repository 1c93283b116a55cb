package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"telegram-reader/internal/app"
	"telegram-reader/internal/infra/config"
	"telegram-reader/internal/infra/logger"
	"telegram-reader/internal/infra/pr"
)

func main() {
	// envPath определяет расположение .env с секретами и общими настройками.
	envPath := flag.String("env", "assets/.env", "path to .env file")
	// Разовый режим: чат по точному названию и что с ним сделать. Без -chat стартует консоль.
	var opts app.RunOptions
	flag.StringVar(&opts.Chat, "chat", "", "exact chat title to read (one-shot mode)")
	flag.StringVar(&opts.Grep, "grep", "", "print only messages containing this text")
	flag.Int64Var(&opts.From, "from", 0, "start strictly below this message id (0 = newest)")
	flag.IntVar(&opts.Limit, "limit", 0, "messages to print (0 = HISTORY_PRINT_LIMIT, -1 = all)")
	flag.StringVar(&opts.Save, "save", "", "export the whole history to this JSON lines file")
	historyFile := flag.String("history", "", "file for CLI command history")
	flag.Parse()

	if err := pr.Init(*historyFile); err != nil {
		logger.Fatal("failed to assigning stdout and stderr", zap.Error(err))
	}

	if err := config.Load(*envPath); err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	env := config.Env()

	// logger.Init задаёт уровень, а SetWriters перенаправляет выводы в подсистему pr (чтобы видеть логи в CLI UI).
	logger.Init(env.LogLevel)
	logger.SetWriters(pr.Stdout(), pr.Stderr())
	logger.InitFile(logger.FileOptions{
		Path:       env.LogFile,
		Level:      env.LogFileLevel,
		MaxSizeMB:  env.LogFileMaxSize,
		MaxBackups: env.LogFileMaxBackups,
		MaxAgeDays: env.LogFileMaxAge,
		Compress:   env.LogFileCompress,
	})
	for _, msg := range config.Warnings() {
		logger.Warn(msg)
	}

	// Контекст с обработкой системных сигналов (Ctrl+C/SIGTERM). Важно: stop() нужно вызвать, чтобы снять подписку.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	a := app.NewApp(ctx, stop, env, opts)
	runErr := a.Run()
	stop()
	_ = pr.Close()
	logger.SetWriters(nil, nil)
	if runErr != nil {
		logger.Fatal("reader run failed", zap.Error(runErr))
	}
	logger.Info("Graceful shutdown complete")
	_ = logger.Close()
}
