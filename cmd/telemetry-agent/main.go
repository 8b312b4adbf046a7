package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	// Application
	applicationPort "github.com/dreschagin/session-telemetry/internal/application/port"

	// Domain
	"github.com/dreschagin/session-telemetry/internal/domain/entity"

	// Infrastructure
	redisCache "github.com/dreschagin/session-telemetry/internal/infrastructure/cache/redis"
	"github.com/dreschagin/session-telemetry/internal/infrastructure/collector"
	natsInfra "github.com/dreschagin/session-telemetry/internal/infrastructure/messaging/nats"
	"github.com/dreschagin/session-telemetry/internal/infrastructure/observability/cloudwatch"
	"github.com/dreschagin/session-telemetry/internal/infrastructure/observability/metrics"
	s3storage "github.com/dreschagin/session-telemetry/internal/infrastructure/storage/s3"

	// Interfaces
	httpInterface "github.com/dreschagin/session-telemetry/internal/interfaces/http"
	"github.com/dreschagin/session-telemetry/internal/interfaces/http/handler"

	// Shared
	"github.com/dreschagin/session-telemetry/pkg/config"
	"github.com/dreschagin/session-telemetry/pkg/logger"
	"github.com/dreschagin/session-telemetry/pkg/telemetry"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// 1. Загружаем конфигурацию
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Инициализируем logger
	log := logger.New(cfg.LogLevel)
	log.Info("Starting telemetry agent", "data_dir", cfg.Storage.DataDir, "ingest_url", cfg.Ingest.URL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Метрики конвейера: Prometheus всегда, CloudWatch по флагу
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	promMetrics := metrics.New(registry)
	pipelineMetrics := applicationPort.MultiPipelineMetrics{promMetrics}

	var metricsPublisher *cloudwatch.MetricsPublisher
	if cfg.CloudWatch.MetricsEnabled {
		publisherImpl, initErr := cloudwatch.NewMetricsPublisher(ctx, cloudwatch.MetricsPublisherConfig{
			AWS: cloudwatch.AWSConfig{
				Region:   cfg.CloudWatch.Region,
				Endpoint: cfg.CloudWatch.Endpoint,
			},
			Namespace:         cfg.CloudWatch.MetricsNamespace,
			DefaultDimensions: map[string]string{"Stream": cfg.CloudWatch.LogStream},
		})
		if initErr != nil {
			log.Error("Failed to initialize CloudWatch metrics publisher", initErr)
			os.Exit(1)
		}
		metricsPublisher = publisherImpl
		pipelineMetrics = append(pipelineMetrics, metricsPublisher)
		log.Info("CloudWatch metrics publisher initialized")
	} else {
		log.Warn("CloudWatch metrics publishing is disabled")
	}

	// 4. Пересылка собственных логов агента в CloudWatch Logs
	var logsPublisher *cloudwatch.LogsPublisher
	if cfg.CloudWatch.LogsEnabled {
		publisherImpl, initErr := cloudwatch.NewLogsPublisher(ctx, cloudwatch.LogsPublisherConfig{
			AWS: cloudwatch.AWSConfig{
				Region:   cfg.CloudWatch.Region,
				Endpoint: cfg.CloudWatch.Endpoint,
			},
			LogGroupName:  cfg.CloudWatch.LogGroup,
			LogStreamName: cfg.CloudWatch.LogStream,
			AutoCreate:    true,
		})
		if initErr != nil {
			log.Error("Failed to initialize CloudWatch logs publisher", initErr)
			os.Exit(1)
		}
		logsPublisher = publisherImpl
		log.SetLogPublisher(logsPublisher)
		log.Info("CloudWatch logs publisher initialized")
	} else {
		log.Warn("CloudWatch logs publishing is disabled")
	}

	// 5. Опциональная инфраструктура конвейера
	opts := []telemetry.Option{
		telemetry.WithMetrics(pipelineMetrics),
		telemetry.WithCollector(collector.NewDeviceCollector(entity.Package{}, false)),
	}

	if cfg.NATS.Enabled {
		publisherImpl, initErr := natsInfra.NewIngestionPublisher(cfg.NATS.URL, cfg.NATS.SubjectPrefix, log)
		if initErr != nil {
			log.Warn("Failed to connect to NATS, continuing without ingestion notifications", "error", initErr.Error())
		} else {
			defer publisherImpl.Close()
			opts = append(opts, telemetry.WithPublisher(publisherImpl))
			log.Info("NATS ingestion publisher initialized", "url", cfg.NATS.URL)
		}
	} else {
		log.Warn("NATS ingestion notifications are disabled")
	}

	if cfg.Redis.Enabled {
		cacheImpl, initErr := redisCache.NewTokenCache(redisCache.Options{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if initErr != nil {
			log.Warn("Failed to connect to Redis, using in-memory token cache", "error", initErr.Error())
		} else {
			defer cacheImpl.Close()
			opts = append(opts, telemetry.WithTokenCache(cacheImpl))
			log.Info("Redis token cache initialized", "addr", cfg.Redis.Addr())
		}
	}

	if cfg.S3.Enabled {
		archiveImpl, initErr := s3storage.NewBatchArchive(ctx, s3storage.Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
			Compress:        true,
		})
		if initErr != nil {
			log.Error("Failed to initialize batch archive", initErr)
			os.Exit(1)
		}
		opts = append(opts, telemetry.WithArchive(archiveImpl))
		log.Info("S3 batch archive initialized", "bucket", cfg.S3.Bucket)
	}

	// 6. Создаем текущую сессию; метаданные сохраняются до запуска таймера
	agent, err := telemetry.New(cfg, log, opts...)
	if err != nil {
		log.Error("Failed to create telemetry agent", err)
		os.Exit(1)
	}
	promMetrics.ObserveQueueDepth(func() float64 {
		return float64(agent.QueueDepth())
	})

	if err := agent.Start(ctx); err != nil {
		log.Error("Failed to start telemetry agent", err)
		os.Exit(1)
	}

	// 7. HTTP интерфейс для локальных продюсеров
	router := httpInterface.NewRouter(
		handler.NewTelemetryHandler(agent, log),
		promMetrics,
		registry,
		cfg.Server,
		cfg.Security,
		log,
	)
	defer router.Close()

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server starting", "port", cfg.Server.Port, "session_id", agent.SessionID())

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server failed", err)
			os.Exit(1)
		}
	}()

	// 8. SIGUSR1/SIGUSR2 переводят агент в фон и обратно; SIGINT/SIGTERM завершают работу
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)

	for sig := range sigChan {
		if sig == syscall.SIGUSR1 {
			if err := agent.OnSuspend(ctx); err != nil {
				log.Error("Failed to suspend agent", err)
			}
			continue
		}
		if sig == syscall.SIGUSR2 {
			agent.OnResume()
			continue
		}
		break
	}
	signal.Stop(sigChan)
	log.Info("Shutdown signal received, starting graceful shutdown...")

	// 9. Останавливаем прием, сохраняем очередь и делаем последнюю отправку
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", err)
	}

	if err := agent.Close(shutdownCtx); err != nil {
		log.Warn("Final send incomplete, entries stay on disk", "error", err.Error())
	}
	cancel()

	// Flush CloudWatch buffers before exit
	if metricsPublisher != nil {
		log.Info("Flushing CloudWatch metrics buffer...")
		if err := metricsPublisher.Close(shutdownCtx); err != nil {
			log.Error("Failed to flush CloudWatch metrics", err)
		}
	}

	if logsPublisher != nil {
		log.Info("Flushing CloudWatch logs buffer...")
		log.SetLogPublisher(nil)
		if err := logsPublisher.Close(shutdownCtx); err != nil {
			log.Error("Failed to flush CloudWatch logs", err)
		}
	}

	log.Info("Telemetry agent stopped gracefully")
}
