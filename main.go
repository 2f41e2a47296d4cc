package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/DetectionEmotionUAS/detectionemotion/config"
	"github.com/DetectionEmotionUAS/detectionemotion/logger"
	"github.com/DetectionEmotionUAS/detectionemotion/onnx"
	"github.com/DetectionEmotionUAS/detectionemotion/server"
	"github.com/DetectionEmotionUAS/detectionemotion/service"
)

var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:           "detectionemotion",
		Short:         "Facial expression classification over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfgPath)
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config.toml")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Load the model and serve POST /upload",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfgPath)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})
	return root
}

func serve(parent context.Context, cfgPath string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	config.SetPath(cfgPath)
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	_, logCloser := logger.Init(cfg)
	defer logCloser.Close()
	slog.Info("Starting detectionemotion", slog.String("version", version))

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		slog.Error("Failed to create upload directory", slog.String("error", err.Error()))
		return err
	}

	destroy, err := onnx.Init(cfg.Libonnx)
	if err != nil {
		slog.Error("Failed to initialize ONNX Runtime", slog.String("error", err.Error()))
		return err
	}
	defer destroy()

	modelPath := filepath.Join(cfg.ModelDir, cfg.ModelFileName)
	slog.Info("Loading model", slog.String("path", modelPath), slog.Int("workers", cfg.Workers))
	classifier, err := service.LoadModel(modelPath, cfg.Workers)
	if err != nil {
		slog.Error("Failed to load model", slog.String("error", err.Error()))
		return err
	}
	defer classifier.Close()

	var (
		metrics  *service.Metrics
		gatherer prometheus.Gatherer
	)
	if cfg.Metrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		if metrics, err = service.NewMetrics(reg); err != nil {
			slog.Error("Failed to register metrics", slog.String("error", err.Error()))
			return err
		}
		gatherer = reg
	}

	pipeline := &service.Pipeline{
		Classifier: classifier,
		UploadDir:  cfg.UploadDir,
		Allowed:    cfg.AllowedExtensions,
		MaxPixels:  cfg.MaxPixels,
		Logits:     cfg.ModelOutput == config.OutputLogits,
		Metrics:    metrics,
	}

	gin.SetMode(gin.ReleaseMode)
	r := server.NewRouter(server.NewHandler(pipeline, cfg.MaxUploadBytes()), gatherer)

	if err := server.Run(ctx, cfg.Addr(), r, cfg.ShutdownTimeout.Duration); err != nil {
		slog.Error("Server error", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// loadConfig turns the panic from config.C into an error for a clean exit.
func loadConfig() (cfg config.Config, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return config.C(), nil
}
