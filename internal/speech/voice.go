package speech

import "strings"

type Voice string

const (
	VoiceAlloy   Voice = "alloy"
	VoiceEcho    Voice = "echo"
	VoiceFable   Voice = "fable"
	VoiceOnyx    Voice = "onyx"
	VoiceNova    Voice = "nova"
	VoiceShimmer Voice = "shimmer"

	DefaultVoice = VoiceAlloy
)

var Voices = []Voice{VoiceAlloy, VoiceEcho, VoiceFable, VoiceOnyx, VoiceNova, VoiceShimmer}

// ResolveVoice maps a name to a known voice, falling back to DefaultVoice.
// The bool is false when the fallback was used.
func ResolveVoice(name string) (Voice, bool) {
	want := Voice(strings.ToLower(strings.TrimSpace(name)))
	for _, v := range Voices {
		if v == want {
			return v, true
		}
	}
	return DefaultVoice, false
}
