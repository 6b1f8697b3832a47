package speech

// DefaultVoice is the Azure neural voice used for announcements.
// Full list: https://learn.microsoft.com/en-us/azure/ai-services/speech-service/language-support
const DefaultVoice = "en-US-AvaNeural"

// Audio format returned by Azure and expected by the player.
const DefaultAudioFormat = "riff-24khz-16bit-mono-pcm"

// Audio parameters matching the default format.
const (
	SampleRate   = 24000
	ChannelCount = 1
	BitDepth     = 16
)

// DefaultQueueSize bounds pending announcements. When full the oldest
// line is dropped.
const DefaultQueueSize = 8

// maxSpokenWidth caps a single announcement, in terminal cells.
const maxSpokenWidth = 200
