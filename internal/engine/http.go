package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/book-expert/tts-orchestrator/internal/core"
)

// API paths and headers of the standalone synthesis service.
const (
	apiSynthesize = "/v1/generate/speech"
	apiHealth     = "/health"

	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
	contentTypeWAV    = "audio/wav"
)

var (
	// ErrEmptyAudio indicates a successful response carrying no audio bytes.
	ErrEmptyAudio = errors.New("received empty audio data")
	// ErrUnexpectedContentType indicates a response that is not audio/wav.
	ErrUnexpectedContentType = errors.New("unexpected content type")
	// ErrServiceUnhealthy indicates a failing health probe.
	ErrServiceUnhealthy = errors.New("synthesis service is unhealthy")
)

// synthesisRequest is the JSON payload of the synthesis endpoint.
type synthesisRequest struct {
	Text           string  `json:"text"`
	SpeakerRefPath string  `json:"speaker_ref_path,omitempty"`
	ReferenceText  string  `json:"reference_text,omitempty"`
	Language       string  `json:"language"`
	Temperature    float64 `json:"temperature,omitempty"`
	Speed          float64 `json:"speed,omitempty"`
	Seed           int     `json:"seed,omitempty"`
	CfgStrength    float64 `json:"cfg_strength,omitempty"`
	SpeedPreset    string  `json:"speed_preset,omitempty"`
}

// serviceError is the structured error body of the synthesis service.
type serviceError struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

// HTTPEngine calls a standalone synthesis HTTP service. The per-request
// deadline comes from the caller's context; the embedded client carries no
// timeout of its own so the worker stays the single timeout authority.
type HTTPEngine struct {
	httpClient *http.Client
	baseURL    string
}

// NewHTTPEngine creates an engine for the service at baseURL, which must
// include protocol and port (e.g. "http://localhost:8011").
func NewHTTPEngine(baseURL string) *HTTPEngine {
	return &HTTPEngine{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// Synthesize posts the text and voice reference and returns the WAV audio
// with its duration.
func (e *HTTPEngine) Synthesize(
	ctx context.Context,
	text string,
	voice core.VoiceReference,
	opts core.SynthesisOptions,
) (core.SynthesisOutput, error) {
	if text == "" {
		return core.SynthesisOutput{}, core.ErrTextEmpty
	}

	payload := synthesisRequest{
		Text:           text,
		SpeakerRefPath: voice.AudioPath,
		ReferenceText:  voice.ReferenceText,
		Language:       opts.Language,
		Temperature:    opts.Temperature,
		Speed:          opts.Speed,
		Seed:           opts.Seed,
		CfgStrength:    voice.Settings.CfgStrength,
		SpeedPreset:    voice.Settings.SpeedPreset,
	}
	if payload.Language == "" {
		payload.Language = "en"
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return core.SynthesisOutput{}, fmt.Errorf("failed to marshal synthesis request: %w", err)
	}

	request, err := http.NewRequestWithContext(
		ctx, http.MethodPost, e.baseURL+apiSynthesize, bytes.NewReader(body))
	if err != nil {
		return core.SynthesisOutput{}, fmt.Errorf("failed to create synthesis request: %w", err)
	}

	request.Header.Set(headerContentType, contentTypeJSON)
	request.Header.Set(headerAccept, contentTypeWAV)

	response, err := e.httpClient.Do(request)
	if err != nil {
		return core.SynthesisOutput{}, fmt.Errorf(
			"failed to reach synthesis service at %s: %w", e.baseURL, err)
	}

	defer func() { _ = response.Body.Close() }()

	if response.StatusCode != http.StatusOK {
		return core.SynthesisOutput{}, parseServiceError(response)
	}

	contentType := response.Header.Get(headerContentType)
	if contentType != contentTypeWAV {
		return core.SynthesisOutput{}, fmt.Errorf(
			"%w: expected %s, got %s", ErrUnexpectedContentType, contentTypeWAV, contentType)
	}

	audio, err := io.ReadAll(response.Body)
	if err != nil {
		return core.SynthesisOutput{}, fmt.Errorf("failed to read audio response: %w", err)
	}

	if len(audio) == 0 {
		return core.SynthesisOutput{}, ErrEmptyAudio
	}

	duration, err := wavDurationSeconds(audio)
	if err != nil {
		return core.SynthesisOutput{}, fmt.Errorf("failed to measure audio duration: %w", err)
	}

	return core.SynthesisOutput{Audio: audio, DurationSeconds: duration}, nil
}

// CheckHealth probes the service health endpoint.
func (e *HTTPEngine) CheckHealth(ctx context.Context) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+apiHealth, nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	response, err := e.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrServiceUnhealthy, err)
	}

	defer func() { _ = response.Body.Close() }()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %s", ErrServiceUnhealthy, response.Status)
	}

	return nil
}

func parseServiceError(response *http.Response) error {
	raw, readErr := io.ReadAll(response.Body)
	if readErr != nil {
		return fmt.Errorf("synthesis service returned %s", response.Status)
	}

	var structured serviceError

	unmarshalErr := json.Unmarshal(raw, &structured)
	if unmarshalErr != nil || structured.Detail == "" {
		return fmt.Errorf("synthesis service returned %s: %s", response.Status, string(raw))
	}

	if structured.ErrorCode != "" {
		return fmt.Errorf("synthesis service error (%s): %s (code: %s)",
			response.Status, structured.Detail, structured.ErrorCode)
	}

	return fmt.Errorf("synthesis service error (%s): %s", response.Status, structured.Detail)
}
