// Package engine_test tests the synthesis engine implementations.
package engine_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/book-expert/tts-orchestrator/internal/core"
	"github.com/book-expert/tts-orchestrator/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildWAV assembles a minimal PCM WAV stream of the given play length.
func buildWAV(t *testing.T, seconds float64, sampleRate, channels, bitDepth int) []byte {
	t.Helper()

	byteRate := sampleRate * channels * bitDepth / 8
	dataSize := int(seconds * float64(byteRate))

	header := make([]byte, 0, 44+dataSize)
	header = append(header, []byte("RIFF")...)
	header = binary.LittleEndian.AppendUint32(header, uint32(36+dataSize))
	header = append(header, []byte("WAVE")...)
	header = append(header, []byte("fmt ")...)
	header = binary.LittleEndian.AppendUint32(header, 16)
	header = binary.LittleEndian.AppendUint16(header, 1) // PCM
	header = binary.LittleEndian.AppendUint16(header, uint16(channels))
	header = binary.LittleEndian.AppendUint32(header, uint32(sampleRate))
	header = binary.LittleEndian.AppendUint32(header, uint32(byteRate))
	header = binary.LittleEndian.AppendUint16(header, uint16(channels*bitDepth/8))
	header = binary.LittleEndian.AppendUint16(header, uint16(bitDepth))
	header = append(header, []byte("data")...)
	header = binary.LittleEndian.AppendUint32(header, uint32(dataSize))

	return append(header, make([]byte, dataSize)...)
}

func sampleVoiceReference() core.VoiceReference {
	return core.VoiceReference{
		AudioPath:     "voices/alto.wav",
		ReferenceText: "reference transcript",
		Settings:      core.VoiceSettings{CfgStrength: 2, SpeedPreset: "normal"},
	}
}

func TestHTTPEngine_SynthesizeReturnsAudioWithDuration(t *testing.T) {
	t.Parallel()

	wav := buildWAV(t, 1.2, 22050, 1, 16)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/generate/speech", r.URL.Path)

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "hello", payload["text"])
		assert.Equal(t, "voices/alto.wav", payload["speaker_ref_path"])
		assert.Equal(t, "en", payload["language"])

		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(wav)
	}))
	defer server.Close()

	eng := engine.NewHTTPEngine(server.URL)

	output, err := eng.Synthesize(context.Background(), "hello", sampleVoiceReference(),
		core.SynthesisOptions{Language: "", Temperature: 0.7, Speed: 0, Seed: 0})
	require.NoError(t, err)
	assert.Equal(t, wav, output.Audio)
	assert.InDelta(t, 1.2, output.DurationSeconds, 0.01)
}

func TestHTTPEngine_RejectsEmptyText(t *testing.T) {
	t.Parallel()

	eng := engine.NewHTTPEngine("http://localhost:1")

	_, err := eng.Synthesize(context.Background(), "", sampleVoiceReference(),
		core.SynthesisOptions{Language: "", Temperature: 0, Speed: 0, Seed: 0})
	require.ErrorIs(t, err, core.ErrTextEmpty)
}

func TestHTTPEngine_ParsesStructuredErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"detail":"model not loaded","error_code":"MODEL_COLD"}`))
	}))
	defer server.Close()

	eng := engine.NewHTTPEngine(server.URL)

	_, err := eng.Synthesize(context.Background(), "hello", sampleVoiceReference(),
		core.SynthesisOptions{Language: "en", Temperature: 0, Speed: 0, Seed: 0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not loaded")
	assert.Contains(t, err.Error(), "MODEL_COLD")
}

func TestHTTPEngine_RejectsWrongContentType(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("not audio"))
	}))
	defer server.Close()

	eng := engine.NewHTTPEngine(server.URL)

	_, err := eng.Synthesize(context.Background(), "hello", sampleVoiceReference(),
		core.SynthesisOptions{Language: "en", Temperature: 0, Speed: 0, Seed: 0})
	require.ErrorIs(t, err, engine.ErrUnexpectedContentType)
}

func TestHTTPEngine_HonorsContextDeadline(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-block
		w.Header().Set("Content-Type", "audio/wav")
	}))

	defer func() {
		close(block)
		server.Close()
	}()

	eng := engine.NewHTTPEngine(server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := eng.Synthesize(ctx, "hello", sampleVoiceReference(),
		core.SynthesisOptions{Language: "en", Temperature: 0, Speed: 0, Seed: 0})
	require.ErrorIs(t, err, context.Canceled)
}

func TestHTTPEngine_CheckHealth(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)

			return
		}

		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	eng := engine.NewHTTPEngine(server.URL)
	require.NoError(t, eng.CheckHealth(context.Background()))

	down := engine.NewHTTPEngine(server.URL + "/missing")
	require.ErrorIs(t, down.CheckHealth(context.Background()), engine.ErrServiceUnhealthy)
}
