package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"

	"chatrelay/internal/account"
	"chatrelay/internal/auth"
	"chatrelay/internal/blob"
	"chatrelay/internal/config"
	"chatrelay/internal/database"
	"chatrelay/internal/directory"
	"chatrelay/internal/gateway"
	"chatrelay/internal/handler"
	"chatrelay/internal/pairlock"
	"chatrelay/internal/presence"
	"chatrelay/internal/relay"
	"chatrelay/internal/store"
)

const shutdownTimeout = 10 * time.Second

var rootCmd = &cobra.Command{
	Use:          "chatrelay",
	Short:        "Runs the chat relay API and websocket server",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		envFile, _ := cmd.Flags().GetString("env-file")
		// .envファイルを読み込み
		config.LoadEnvFile(envFile)
		return run(config.LoadFlags(cmd.Flags()))
	},
}

func init() {
	rootCmd.Flags().String("env-file", ".env", "path of the .env file to load")
	rootCmd.Flags().String("port", "", "listen port (overrides SERVER_PORT)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	cfg.SetupLogging()
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	// データベース接続を初期化
	db, err := database.Init(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to initialize database")
	}
	defer db.Close()

	blobs, err := blob.NewDiskStore(cfg.UploadDir, cfg.PublicBaseURL)
	if err != nil {
		return err
	}

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.JWTTTL)
	users := store.NewUserStore(db)
	messages := store.NewMessageStore(db)
	table := presence.NewTable()
	locks := pairlock.New()

	gw := gateway.New(table, tokens, gateway.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AuthTimeout:    cfg.WSAuthTimeout,
		SendBuffer:     cfg.WSSendBuffer,
	})

	// ハンドラー初期化
	h := &handler.Handler{
		Config:    cfg,
		Verifier:  tokens,
		Accounts:  account.NewService(users, tokens, blobs),
		Relay:     relay.NewService(messages, users, blobs, table, gw, locks),
		Directory: directory.NewService(messages, users, store.NewConversationStore(db), locks),
		Gateway:   gw,
		Blobs:     blobs,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// プレゼンス変更のブロードキャスターを開始
	go gw.HandleBroadcast(ctx)

	// CORS対応
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS", "PUT"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Content-Length"},
		MaxAge:           300,
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           c.Handler(h.SetupRouter()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	printBanner(cfg)

	errCh := make(chan error, 1)
	go func() {
		jww.INFO.Println("🚀 Server started successfully")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server stopped")
		}
		return nil
	case <-ctx.Done():
	}

	jww.INFO.Println("🛑 Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// http.Server.Shutdown does not touch hijacked websocket connections.
	gw.Shutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "graceful shutdown failed")
	}
	jww.INFO.Println("👋 Server stopped")
	return nil
}

func printBanner(cfg config.Config) {
	fmt.Println("========================================")
	fmt.Println("  Chat Relay Server")
	fmt.Println("========================================")
	fmt.Printf("  Environment: %s\n", cfg.Env)
	fmt.Printf("  Server: http://localhost:%s\n", cfg.ServerPort)
	fmt.Printf("  WebSocket: ws://localhost:%s/ws\n", cfg.ServerPort)
	if cfg.DBDriver == "sqlite3" {
		fmt.Printf("  Database: sqlite3 %s\n", cfg.DBPath)
	} else {
		fmt.Printf("  Database: %s@%s:%s/%s\n", cfg.DBUser, cfg.DBHost, cfg.DBPort, cfg.DBName)
	}
	fmt.Printf("  Uploads: %s -> %s/uploads/\n", cfg.UploadDir, cfg.PublicBaseURL)
	fmt.Printf("  Allowed Origins: %v\n", cfg.AllowedOrigins)
	fmt.Println("========================================")
}
