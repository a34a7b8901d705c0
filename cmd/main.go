package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	qhttp "exitforecast/http"
	"exitforecast/logging"
	"exitforecast/ml"
	"exitforecast/monitoring"
	"exitforecast/predict"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Http qhttp.ServerConfig `yaml:"http"`
	Log  logging.Config     `yaml:"log"`
	Model struct {
		Path   string `yaml:"path"`
		Format string `yaml:"format"`
	} `yaml:"model"`
	Prediction struct {
		CacheSize int `yaml:"cache_size"`
	} `yaml:"prediction"`
	Upload qhttp.UploadConfig `yaml:"upload"`
}

func defaultConfig() *Config {
	config := &Config{
		Http: qhttp.DefaultServerConfig(),
		Log:  logging.Config{Level: "info", Format: "console"},
	}
	config.Model.Path = "rf_pipeline_model.json"
	config.Prediction.CacheSize = 1024
	config.Upload.MaxRows = 100000
	config.Upload.PreviewRows = 500
	return config
}

func main() {
	// Look for config in root even if run from cmd/
	configPath := "config.yaml"
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		configPath = filepath.Join("..", "config.yaml")
	}

	// 1. Load config
	config, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Logger
	logger, closeLog, err := logging.New(config.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	// 3. Load model once; the process cannot serve without it
	model, err := loadModel(config)
	if err != nil {
		var loadErr *ml.ArtifactLoadError
		if errors.As(err, &loadErr) {
			logger.Fatal("failed to load model artifact", zap.String("path", loadErr.Path), zap.Error(loadErr.Err))
		}
		logger.Fatal("failed to load model artifact", zap.Error(err))
	}
	info := model.Info()
	logger.Info("model loaded",
		zap.String("path", config.Model.Path),
		zap.String("name", info.Name),
		zap.Strings("classes", model.Classes()),
	)

	// 4. Services
	metrics := monitoring.NewMetricsCollector()
	svc, err := predict.NewService(model, predict.Options{
		CacheSize: config.Prediction.CacheSize,
		Logger:    logger.Named("predict"),
		Recorder:  metrics,
	})
	if err != nil {
		logger.Fatal("failed to create prediction service", zap.Error(err))
	}
	handler, err := qhttp.NewHandler(svc, metrics, logger.Named("http"), config.Upload)
	if err != nil {
		logger.Fatal("failed to create handlers", zap.Error(err))
	}

	// 5. Start HTTP server
	server := qhttp.NewServer(config.Http, handler, logger.Named("http"))
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// 6. Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
		}
	}

	if err := server.Stop(); err != nil {
		logger.Warn("server forced to shutdown", zap.Error(err))
	}

	logger.Info("exiting")
}

// loadConfig reads the YAML file over the defaults. A missing file leaves the
// defaults in place.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return config, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(config); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	// Relative model and log paths follow the config file
	dir := filepath.Dir(path)
	config.Model.Path = resolvePath(dir, config.Model.Path)
	config.Log.File = resolvePath(dir, config.Log.File)
	return config, nil
}

func resolvePath(dir, path string) string {
	if path == "" || filepath.IsAbs(path) || dir == "." {
		return path
	}
	return filepath.Join(dir, path)
}

func loadModel(config *Config) (*ml.Pipeline, error) {
	if config.Model.Format == "" {
		return ml.LoadModel(config.Model.Path)
	}
	return ml.LoadModelFormat(config.Model.Format, config.Model.Path)
}
