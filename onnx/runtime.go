package onnx

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var pathOnce sync.Once
var libPath string

// LibPath resolves the ONNX Runtime shared library. An explicit path wins,
// then ONNXRUNTIME_LIB, then the usual install locations for the OS.
func LibPath(explicit string) string {
	pathOnce.Do(func() {
		libPath = resolveLibPath(explicit, os.Getenv("ONNXRUNTIME_LIB"), fileExists)
		if libPath == "" {
			slog.Error("ONNX Runtime library path could not be determined for this OS")
		} else {
			slog.Info("Using ONNX Runtime library", slog.String("path", libPath))
		}
	})
	return libPath
}

func resolveLibPath(explicit, env string, exists func(string) bool) string {
	if explicit != "" {
		return explicit
	}
	if env != "" {
		return env
	}
	for _, p := range candidates(runtime.GOOS, runtime.GOARCH) {
		if exists(p) {
			return p
		}
	}
	return ""
}

func candidates(goos, goarch string) []string {
	switch goos {
	case "linux":
		paths := []string{
			"onnxlibs/libonnxruntime.so",
			"/usr/local/lib/libonnxruntime.so",
			"/usr/lib/libonnxruntime.so",
		}
		if goarch == "arm64" {
			paths = append(paths, "/usr/lib/aarch64-linux-gnu/libonnxruntime.so")
		} else {
			paths = append(paths, "/usr/lib/x86_64-linux-gnu/libonnxruntime.so")
		}
		return paths
	case "darwin":
		return []string{
			"onnxlibs/libonnxruntime.dylib",
			"/usr/local/lib/libonnxruntime.dylib",
			"/opt/homebrew/lib/libonnxruntime.dylib",
		}
	case "windows":
		return []string{"onnxlibs\\onnxruntime.dll", "onnxruntime.dll"}
	default:
		return nil
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Init points onnxruntime_go at the shared library and initialises the
// environment. The returned func destroys it.
func Init(explicit string) (func(), error) {
	path := LibPath(explicit)
	if path == "" {
		return nil, fmt.Errorf("ONNX Runtime library not found, set libonnx in config.toml")
	}
	ort.SetSharedLibraryPath(path)
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX Runtime environment: %w", err)
	}
	return func() {
		if err := ort.DestroyEnvironment(); err != nil {
			slog.Warn("Failed to destroy ONNX Runtime environment", slog.String("error", err.Error()))
		}
	}, nil
}
