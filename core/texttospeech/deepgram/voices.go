package deepgram

type deepgramVoice string

const (
	VoiceAsteria deepgramVoice = "aura-2-asteria-en"
	VoiceLuna    deepgramVoice = "aura-2-luna-en"
	VoiceStella  deepgramVoice = "aura-2-stella-en"
	VoiceAthena  deepgramVoice = "aura-2-athena-en"
	VoiceHera    deepgramVoice = "aura-2-hera-en"
	VoiceOrion   deepgramVoice = "aura-2-orion-en"
	VoiceArcas   deepgramVoice = "aura-2-arcas-en"
	VoiceOrpheus deepgramVoice = "aura-2-orpheus-en"
	VoiceHelios  deepgramVoice = "aura-2-helios-en"
	VoiceZeus    deepgramVoice = "aura-2-zeus-en"

	defaultVoice = VoiceAsteria
)

func GetAvailableVoices() []deepgramVoice {
	return []deepgramVoice{
		VoiceAsteria,
		VoiceLuna,
		VoiceStella,
		VoiceAthena,
		VoiceHera,
		VoiceOrion,
		VoiceArcas,
		VoiceOrpheus,
		VoiceHelios,
		VoiceZeus,
	}
}

// ParseVoice accepts a voice model name as configured by the user.
func ParseVoice(name string) (deepgramVoice, bool) {
	for _, voice := range GetAvailableVoices() {
		if string(voice) == name {
			return voice, true
		}
	}
	return "", false
}
