// Aura listens to the room, names the songs it hears and keeps a list you
// can browse, download from and play.
//
// Usage:
//
//	aura
//
// Configuration comes from the environment and an optional .env file; see
// internal/config for the variables.
package main

import (
	"context"
	"fmt"
	stdlog "log"
	"os"
	"time"

	"github.com/hammamikhairi/aura/internal/app"
	"github.com/hammamikhairi/aura/internal/archive"
	"github.com/hammamikhairi/aura/internal/audio"
	"github.com/hammamikhairi/aura/internal/config"
	"github.com/hammamikhairi/aura/internal/display"
	"github.com/hammamikhairi/aura/internal/download"
	"github.com/hammamikhairi/aura/internal/history"
	"github.com/hammamikhairi/aura/internal/logger"
	"github.com/hammamikhairi/aura/internal/offload"
	"github.com/hammamikhairi/aura/internal/recognize"
	"github.com/hammamikhairi/aura/internal/render"
	"github.com/hammamikhairi/aura/internal/speech"
	"github.com/hammamikhairi/aura/internal/voice"
	"github.com/hammamikhairi/aura/internal/youtube"
)

const selfTestTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "aura: invalid configuration:\n%v\n", err)
		return 1
	}

	// Logs go to a file by default so the screen stays clean.
	logOut, closeLog, err := logger.Open(cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v (falling back to stderr)\n", err)
	}
	defer closeLog()

	// Third-party libs (the whisper transcriber) log through the standard
	// log package.
	stdlog.SetOutput(logOut)
	stdlog.SetFlags(stdlog.Ltime)

	log := logger.New(cfg.LogLevel, logOut)
	log.Info("aura: starting (record=%s, history=%d)", cfg.RecordDuration, cfg.HistoryLimit)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := offload.New(offload.DefaultSize(), log)

	recorder := audio.NewRecorder(pool, log,
		audio.WithSampleRate(cfg.SampleRate),
		audio.WithChannels(cfg.Channels),
		audio.WithTempDir(cfg.TempDir()),
	)
	recognizer := recognize.NewAuddClient(cfg.AuddToken, log, recognize.WithEndpoint(cfg.AuddEndpoint))

	fmt.Println(display.RenderBanner())
	if !selfTest(ctx, recorder, recognizer) {
		pool.Shutdown(time.Second)
		return 1
	}

	deps := app.Deps{
		Capturer:   recorder,
		Recognizer: recognizer,
		History: history.New(log,
			history.WithCapacity(cfg.HistoryLimit),
			history.WithPath(cfg.HistoryFile),
		),
		Pool:       pool,
		Downloader: download.New(cfg.DownloadDir, pool, log),
	}

	searcher := youtube.NewSearcher(log)
	cache := youtube.NewCache(cfg.YouTubeCacheFile(), youtube.DefaultCacheSize, log)
	deps.Player = youtube.NewPlayer(searcher, cache, pool, log, nil)

	if cfg.ArchiveFile != "" {
		store, err := archive.Open(cfg.ArchiveFile, log)
		if err != nil {
			log.Warn("archive disabled: %v", err)
		} else {
			deps.Archive = store
		}
	}

	if cfg.Speech {
		if player, err := speech.NewPlayer(log); err != nil {
			log.Error("audio output init failed, speech disabled: %v", err)
		} else {
			tts := speech.NewAzureClient(cfg.AzureSpeechKey, cfg.AzureSpeechRegion, log)
			deps.Speaker = speech.NewSpeaker(tts, player, log)
			log.Info("speech enabled (voice=%s, region=%s)", tts.Voice(), cfg.AzureSpeechRegion)
		}
	} else {
		log.Info("speech disabled: set %s and %s to enable", config.EnvAzureSpeechKey, config.EnvAzureSpeechRegion)
	}

	var aura *app.App

	whisper := voice.NewWhisper(cfg.WhisperBin, cfg.WhisperModel, cfg.TempDir(), log)
	mpv := youtube.NewMPV(cfg.MPVBin, log)
	switch {
	case !cfg.VoiceAvailable() || !whisper.Available():
		log.Info("voice search disabled: whisper %q with model %q not found", cfg.WhisperBin, cfg.WhisperModel)
	case !mpv.Available():
		log.Info("voice search disabled: %s not found", cfg.MPVBin)
	default:
		deps.Voice = voice.New(whisper, searcher, mpv, log,
			voice.WithDuration(cfg.VoiceDuration),
			voice.WithHeard(func(q string) { aura.Engine().SetStatus(render.LineVoiceHeard(q)) }),
		)
		log.Info("voice search enabled (model=%s)", cfg.WhisperModel)
	}

	aura = app.New(cfg, deps, log)
	if err := aura.Run(ctx); err != nil {
		log.Error("aura: %v", err)
		fmt.Fprintf(os.Stderr, "aura: %v\n", err)
		return 1
	}
	log.Info("aura: bye")
	return 0
}

// selfTest checks the microphone and the recognition service before the
// screen takes over.
func selfTest(ctx context.Context, rec *audio.Recorder, r *recognize.AuddClient) bool {
	ctx, cancel := context.WithTimeout(ctx, selfTestTimeout)
	defer cancel()

	micErr := rec.Probe(ctx)
	fmt.Println(display.CheckLine("microphone", micErr))
	pingErr := r.Ping(ctx)
	fmt.Println(display.CheckLine("recognition service", pingErr))

	return micErr == nil && pingErr == nil
}
