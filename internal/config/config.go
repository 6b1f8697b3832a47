// Package config loads aura's settings from the environment. A .env file in
// the working directory is read first; real environment variables win.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/hammamikhairi/aura/internal/logger"
)

// Environment variable names.
const (
	EnvRecordSeconds = "AURA_RECORD_SECONDS"
	EnvVoiceSeconds  = "AURA_VOICE_SECONDS"
	EnvHistoryLimit  = "AURA_HISTORY_LIMIT"
	EnvHistoryFile   = "AURA_HISTORY_FILE"
	EnvDownloadDir   = "AURA_DOWNLOAD_DIR"
	EnvCacheDir      = "AURA_CACHE_DIR"
	EnvSampleRate    = "AURA_SAMPLE_RATE"
	EnvChannels      = "AURA_CHANNELS"
	EnvFrameMillis   = "AURA_FRAME_MS"
	EnvLogLevel      = "AURA_LOG_LEVEL"
	EnvLogFile       = "AURA_LOG_FILE"
	EnvArchive       = "AURA_ARCHIVE"
	EnvNoSpeech      = "AURA_NO_SPEECH"

	EnvAuddToken    = "AUDD_API_TOKEN"
	EnvAuddEndpoint = "AUDD_ENDPOINT"

	EnvAzureSpeechKey    = "AZURE_SPEECH_KEY"
	EnvAzureSpeechRegion = "AZURE_SPEECH_REGION"

	EnvWhisperBin   = "WHISPER_BIN"
	EnvWhisperModel = "WHISPER_MODEL"
	EnvMPVBin       = "MPV_BIN"
)

// Defaults.
const (
	DefaultRecordSeconds = 10
	DefaultVoiceSeconds  = 6
	DefaultHistoryLimit  = 50
	DefaultSampleRate    = 44100
	DefaultChannels      = 2
	DefaultFrameInterval = 33 * time.Millisecond
	DefaultAuddEndpoint  = "https://api.audd.io/"
	DefaultWhisperBin    = "whisper-cli"
	DefaultWhisperModel  = "bin/ggml-small.bin"
	DefaultMPVBin        = "mpv"
)

// Config is the full runtime configuration.
type Config struct {
	RecordDuration time.Duration
	VoiceDuration  time.Duration
	HistoryLimit   int
	HistoryFile    string
	DownloadDir    string
	CacheDir       string
	SampleRate     int
	Channels       int
	FrameInterval  time.Duration

	LogLevel logger.Level
	LogFile  string

	// ArchiveFile is the SQLite detection log; empty disables it.
	ArchiveFile string

	AuddToken    string
	AuddEndpoint string

	AzureSpeechKey    string
	AzureSpeechRegion string
	Speech            bool

	WhisperBin   string
	WhisperModel string
	MPVBin       string
}

// Load reads the given .env files (default ".env"; missing files are fine)
// and then parses the process environment.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup, applying defaults for unset values.
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}

	var errs []error
	getInt := func(key string, def int) int {
		raw := get(key, "")
		if raw == "" {
			return def
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %q is not a number", key, raw))
			return def
		}
		return n
	}
	getBool := func(key string) bool {
		raw := get(key, "")
		if raw == "" {
			return false
		}
		b, err := strconv.ParseBool(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %q is not a boolean", key, raw))
		}
		return b
	}

	home, _ := os.UserHomeDir()
	cacheDir := expandHome(get(EnvCacheDir, filepath.Join(home, ".cache", "aura")), home)

	c := &Config{
		RecordDuration: time.Duration(getInt(EnvRecordSeconds, DefaultRecordSeconds)) * time.Second,
		VoiceDuration:  time.Duration(getInt(EnvVoiceSeconds, DefaultVoiceSeconds)) * time.Second,
		HistoryLimit:   getInt(EnvHistoryLimit, DefaultHistoryLimit),
		HistoryFile:    expandHome(get(EnvHistoryFile, filepath.Join(cacheDir, "history.json")), home),
		DownloadDir:    expandHome(get(EnvDownloadDir, filepath.Join(home, "Music", "Aura")), home),
		CacheDir:       cacheDir,
		SampleRate:     getInt(EnvSampleRate, DefaultSampleRate),
		Channels:       getInt(EnvChannels, DefaultChannels),
		FrameInterval:  time.Duration(getInt(EnvFrameMillis, int(DefaultFrameInterval/time.Millisecond))) * time.Millisecond,

		LogFile: get(EnvLogFile, filepath.Join(cacheDir, "aura.log")),

		AuddToken:    get(EnvAuddToken, ""),
		AuddEndpoint: get(EnvAuddEndpoint, DefaultAuddEndpoint),

		AzureSpeechKey:    get(EnvAzureSpeechKey, ""),
		AzureSpeechRegion: get(EnvAzureSpeechRegion, ""),

		WhisperBin:   get(EnvWhisperBin, DefaultWhisperBin),
		WhisperModel: get(EnvWhisperModel, DefaultWhisperModel),
		MPVBin:       get(EnvMPVBin, DefaultMPVBin),
	}
	if c.LogFile != "stderr" {
		c.LogFile = expandHome(c.LogFile, home)
	}

	switch archive := get(EnvArchive, ""); strings.ToLower(archive) {
	case "":
		c.ArchiveFile = filepath.Join(cacheDir, "archive.db")
	case "off", "none", "false":
		c.ArchiveFile = ""
	default:
		c.ArchiveFile = expandHome(archive, home)
	}

	lvl, err := logger.ParseLevel(get(EnvLogLevel, ""))
	if err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", EnvLogLevel, err))
	}
	c.LogLevel = lvl

	c.Speech = c.AzureSpeechKey != "" && c.AzureSpeechRegion != "" && !getBool(EnvNoSpeech)

	if len(errs) > 0 {
		return c, errors.Join(errs...)
	}
	return c, nil
}

// Validate reports settings aura cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.AuddToken == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvAuddToken))
	}
	if c.RecordDuration < time.Second || c.RecordDuration > time.Minute {
		errs = append(errs, fmt.Errorf("%s must be between 1 and 60", EnvRecordSeconds))
	}
	if c.VoiceDuration < time.Second || c.VoiceDuration > time.Minute {
		errs = append(errs, fmt.Errorf("%s must be between 1 and 60", EnvVoiceSeconds))
	}
	if c.HistoryLimit < 1 {
		errs = append(errs, fmt.Errorf("%s must be positive", EnvHistoryLimit))
	}
	if c.SampleRate < 8000 {
		errs = append(errs, fmt.Errorf("%s must be at least 8000", EnvSampleRate))
	}
	if c.Channels != 1 && c.Channels != 2 {
		errs = append(errs, fmt.Errorf("%s must be 1 or 2", EnvChannels))
	}
	if c.FrameInterval <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", EnvFrameMillis))
	}
	return errors.Join(errs...)
}

// VoiceAvailable reports whether the whisper model file exists.
func (c *Config) VoiceAvailable() bool {
	_, err := os.Stat(c.WhisperModel)
	return err == nil
}

// Path helpers for files kept in the cache directory.
func (c *Config) YouTubeCacheFile() string { return filepath.Join(c.CacheDir, "youtube_cache.json") }
func (c *Config) TempDir() string          { return filepath.Join(c.CacheDir, "tmp") }

func expandHome(p, home string) string {
	if home == "" {
		return p
	}
	if p == "~" {
		return home
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(home, p[2:])
	}
	return p
}
