package core

import "time"

// VoiceSettings are tuning knobs stored with a voice and passed through to
// the engine untouched.
type VoiceSettings struct {
	CfgStrength float64 `json:"cfg_strength,omitempty"`
	SpeedPreset string  `json:"speed_preset,omitempty"`
}

// VoiceRecord is one entry of the voice catalog. A record with an empty
// OwnerID is global; otherwise it belongs to that user. Ids are unique
// across both scopes within one catalog.
type VoiceRecord struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	OwnerID       string        `json:"owner_id,omitempty"`
	AudioPath     string        `json:"audio_path"`
	ReferenceText string        `json:"reference_text,omitempty"`
	Enabled       bool          `json:"enabled"`
	Settings      VoiceSettings `json:"settings"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Global reports whether the record is visible to every user.
func (v *VoiceRecord) Global() bool {
	return v.OwnerID == ""
}

// Reference builds the engine-facing view of the voice.
func (v *VoiceRecord) Reference() VoiceReference {
	return VoiceReference{
		AudioPath:     v.AudioPath,
		ReferenceText: v.ReferenceText,
		Settings:      v.Settings,
	}
}

// VoiceReference is what the engine needs to clone a voice: the reference
// audio location, its transcript, and the stored settings.
type VoiceReference struct {
	AudioPath     string        `json:"audio_path"`
	ReferenceText string        `json:"reference_text,omitempty"`
	Settings      VoiceSettings `json:"settings"`
}

// SynthesisOutput is the engine's answer: raw audio and its length.
type SynthesisOutput struct {
	Audio           []byte
	DurationSeconds float64
}

// VoiceStats summarizes the catalog.
type VoiceStats struct {
	TotalVoices   int `json:"total_voices"`
	GlobalVoices  int `json:"global_voices"`
	UserVoices    int `json:"user_voices"`
	EnabledVoices int `json:"enabled_voices"`
}
