package render

import "fmt"

// Status lines. The footer colours its indicator from the leading word, so
// the "Listening" and "Processing" prefixes matter.

func LineReady() string      { return "Ready" }
func LineListening() string  { return "Listening..." }
func LineProcessing() string { return "Processing..." }

func LineFound(title string) string {
	return "✓ Found: " + Truncate(title, 30)
}

func LineAlreadySeen(title string) string {
	return "↺ Heard again: " + Truncate(title, 30)
}

func LineNoMatch(streak int) string {
	if streak > 1 {
		return fmt.Sprintf("No match found (%d in a row)", streak)
	}
	return "No match found"
}

func LineCaptureRetry(n, limit int) string {
	return fmt.Sprintf("Recording failed (%d/%d), retrying...", n, limit)
}

func LineCaptureFailed(limit int) string {
	return fmt.Sprintf("✗ Failed %d times. Check microphone!", limit)
}

func LineError(err error) string {
	return "✗ Error: " + Truncate(err.Error(), 50)
}

func LineNothingSelected() string { return "No song selected" }

func LineDownloading(title string) string {
	return "[DL] Downloading: " + Truncate(title, 30) + "..."
}

func LineDownloaded(title string) string {
	return "[DL] Downloaded: " + Truncate(title, 30)
}

func LineDownloadFailed(title string) string {
	return "[DL] Download failed: " + Truncate(title, 30)
}

func LinePlaying(title string) string {
	return "[YT] Playing: " + Truncate(title, 30)
}

func LinePlayFailed(title string) string {
	return "[YT] Could not open: " + Truncate(title, 30)
}

func LineVoiceListening() string { return "[MIC] Listening for a voice search..." }
func LineVoiceDone() string      { return "[MIC] Voice search finished" }
func LineVoiceFailed() string    { return "[MIC] Voice search failed" }
func LineVoiceBusy() string      { return "[MIC] Voice search already running" }

func LineVoiceHeard(query string) string {
	return "[MIC] Searching: " + Truncate(query, 30)
}

func LineVoiceUnavailable() string { return "[MIC] Voice search unavailable" }
func LinePlayUnavailable() string  { return "[YT] Playback unavailable" }

func LineRemoved(title string) string {
	return "Removed: " + Truncate(title, 30)
}

func LineShuttingDown() string { return "Shutting down..." }
