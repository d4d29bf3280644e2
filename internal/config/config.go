// Package config loads application settings from the environment.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the application settings.
type Config struct {
	Addr      string
	StaticDir string
	Tray      bool

	ModelLocation  string
	Runtime        string // "onnxruntime" or "opencv"
	ORTLibrary     string
	ORTThreads     int
	CUDADevice     int
	DisableAccel   bool
	StrictNames    bool
	SequenceLength int
	FeatureDim     int

	CameraUser        int
	CameraEnvironment int
	CameraWidth       int
	CameraHeight      int
	CameraFacing      string
}

// Load reads a .env file from files (or ".env" when none are given) if
// present, then builds the Config from the environment.
func Load(files ...string) *Config {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			// Variables already set in the environment win.
			_ = godotenv.Load(f)
		}
	}

	return &Config{
		Addr:      getEnv("LIBRA_ADDR", ":8080"),
		StaticDir: getEnv("LIBRA_STATIC_DIR", ""),
		Tray:      getEnvAsBool("LIBRA_TRAY", false),

		ModelLocation:  getEnv("LIBRA_MODEL", "models/gesture.onnx"),
		Runtime:        getEnv("LIBRA_RUNTIME", "onnxruntime"),
		ORTLibrary:     getEnv("LIBRA_ORT_LIBRARY", ""),
		ORTThreads:     getEnvAsInt("LIBRA_ORT_THREADS", 1),
		CUDADevice:     getEnvAsInt("LIBRA_CUDA_DEVICE", 0),
		DisableAccel:   getEnvAsBool("LIBRA_DISABLE_ACCEL", false),
		StrictNames:    getEnvAsBool("LIBRA_STRICT_NAMES", false),
		SequenceLength: getEnvAsInt("LIBRA_SEQ_LEN", 30),
		FeatureDim:     getEnvAsInt("LIBRA_FEATURE_DIM", 150), // match the deployed model

		CameraUser:        getEnvAsInt("LIBRA_CAMERA_USER", 0),
		CameraEnvironment: getEnvAsInt("LIBRA_CAMERA_ENVIRONMENT", 1),
		CameraWidth:       getEnvAsInt("LIBRA_CAMERA_WIDTH", 640),
		CameraHeight:      getEnvAsInt("LIBRA_CAMERA_HEIGHT", 480),
		CameraFacing:      getEnv("LIBRA_CAMERA_FACING", "user"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
