// Command riskguard-server serves the rate-limit and abuse-detection API over HTTP and gRPC.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/credentials"

	"github.com/and161185/riskguard/internal/config"
	"github.com/and161185/riskguard/internal/kv"
	"github.com/and161185/riskguard/internal/limiter"
	"github.com/and161185/riskguard/internal/logging"
	"github.com/and161185/riskguard/internal/metrics"
	"github.com/and161185/riskguard/internal/migrate"
	"github.com/and161185/riskguard/internal/repository"
	"github.com/and161185/riskguard/internal/repository/firestore"
	"github.com/and161185/riskguard/internal/repository/postgres"
	grpcserver "github.com/and161185/riskguard/internal/server/grpc"
	httpserver "github.com/and161185/riskguard/internal/server/http"
	"github.com/and161185/riskguard/internal/service"
	"github.com/and161185/riskguard/internal/toggle"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("server error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, kind := kv.New(cfg.KV, logger)
	if c, ok := store.(io.Closer); ok {
		defer func() { _ = c.Close() }()
	}

	analyses, closeAnalyses, err := openAnalysisLog(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeAnalyses()

	sw := toggle.New(store)
	opts := []limiter.Option{
		limiter.WithPolicy(cfg.Policy),
		limiter.WithRecorder(metrics.NewOTel(nil, logger)),
		limiter.WithLogger(logger),
	}
	if analyses != nil {
		opts = append(opts, limiter.WithAnalysisCounter(analyses))
	}
	eng := limiter.NewEngine(store, sw, opts...)
	svc := service.NewGuardService(eng, sw, analyses, logger)

	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("http", cfg.HTTPAddr),
		zap.String("grpc", cfg.GRPCAddr),
		zap.String("backend", string(kind)),
		zap.Bool("analysis_log", analyses != nil),
	)

	httpSrv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpserver.NewRouter(svc, logger, httpserver.Options{
			AdminKey:   []byte(cfg.AdminJWTKey),
			TrustProxy: cfg.TrustProxy,
			Backend:    string(kind),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	var grpcStop func(context.Context)
	if cfg.GRPCAddr != "" {
		var creds credentials.TransportCredentials
		if cfg.GRPCTLSCert != "" {
			creds, err = credentials.NewServerTLSFromFile(cfg.GRPCTLSCert, cfg.GRPCTLSKey)
			if err != nil {
				return fmt.Errorf("load TLS cert/key: %w", err)
			}
		}
		gs, hs := grpcserver.New(svc, logger, grpcserver.Options{
			Creds:      creds,
			Reflection: cfg.Dev,
			TrustProxy: cfg.TrustProxy,
		})
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		go func() {
			logger.Info("grpc listening", zap.String("addr", cfg.GRPCAddr), zap.Bool("tls", creds != nil))
			if err := gs.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc: %w", err)
			}
		}()
		grpcStop = func(ctx context.Context) {
			hs.Shutdown()
			done := make(chan struct{})
			go func() {
				gs.GracefulStop()
				close(done)
			}()
			select {
			case <-done:
			case <-ctx.Done():
				gs.Stop()
			}
		}
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if grpcStop != nil {
		grpcStop(shutdownCtx)
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	return runErr
}

// openAnalysisLog picks Postgres when a DSN is set, then Firestore, else none.
// Without a log the analysis check fails closed.
func openAnalysisLog(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.AnalysisLog, func(), error) {
	switch {
	case cfg.DatabaseDSN != "":
		if err := migrate.Up(ctx, cfg.DatabaseDSN); err != nil {
			return nil, nil, err
		}
		db, err := postgres.New(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		logger.Info("analysis log: postgres")
		return postgres.NewAnalysisRepo(db), db.Close, nil

	case cfg.FirestoreProj != "":
		client, err := firestore.Open(ctx, cfg.FirestoreProj)
		if err != nil {
			return nil, nil, err
		}
		repo, err := firestore.NewAnalysisRepo(client, cfg.AnalysisColl)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		logger.Info("analysis log: firestore", zap.String("collection", cfg.AnalysisColl))
		return repo, func() { _ = client.Close() }, nil

	default:
		logger.Warn("no analysis log configured; analysis checks will deny")
		return nil, func() {}, nil
	}
}
