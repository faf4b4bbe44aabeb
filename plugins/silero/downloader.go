package silero

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	// ModelFileName is the expected ONNX model file name.
	ModelFileName = "silero_vad.onnx"

	// ModelURL is where the model is fetched from when missing.
	ModelURL = "https://github.com/snakers4/silero-vad/raw/master/src/silero_vad/data/silero_vad.onnx"
)

// defaultModelPath returns where the model lives unless overridden.
func defaultModelPath() string {
	dir := os.Getenv("ALLOY_MODEL_PATH")
	if dir == "" {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".alloy", "models")
	}
	return filepath.Join(dir, ModelFileName)
}

// EnsureModel downloads the detection model to path if it is not already
// there.
func EnsureModel(path string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating model directory: %w", err)
	}

	logger.Info("downloading speech detection model",
		slog.String("url", ModelURL),
		slog.String("model_path", path))

	resp, err := http.Get(ModelURL)
	if err != nil {
		return fmt.Errorf("downloading model: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("downloading model: HTTP %d", resp.StatusCode)
	}

	// Write to a temp file first so a partial download never looks like a
	// usable model.
	tmp, err := os.CreateTemp(filepath.Dir(path), ModelFileName+".*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("writing model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing model file: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

var (
	runtimeOnce sync.Once
	runtimeErr  error
)

// initRuntime initializes the shared onnxruntime library once per process.
// The library location can be overridden with
// ONNXRUNTIME_SHARED_LIBRARY_PATH.
func initRuntime() error {
	runtimeOnce.Do(func() {
		if path := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); path != "" {
			ort.SetSharedLibraryPath(path)
		}
		if ort.IsInitialized() {
			return
		}
		runtimeErr = ort.InitializeEnvironment()
	})
	return runtimeErr
}
