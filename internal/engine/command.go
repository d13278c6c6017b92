package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-orchestrator/internal/core"
)

// ErrBinaryEmpty indicates a command engine without a binary path.
var ErrBinaryEmpty = errors.New("engine binary cannot be empty")

// CommandEngine runs a local synthesis binary per request. The binary
// receives the text, the voice reference, and an export path; the engine
// reads the exported WAV back and measures it.
type CommandEngine struct {
	binary    string
	modelPath string
	log       *logger.Logger
}

// NewCommandEngine creates a subprocess-backed engine.
func NewCommandEngine(binary, modelPath string, log *logger.Logger) (*CommandEngine, error) {
	if binary == "" {
		return nil, ErrBinaryEmpty
	}

	return &CommandEngine{binary: binary, modelPath: modelPath, log: log}, nil
}

// Synthesize invokes the binary under the caller's context deadline.
func (e *CommandEngine) Synthesize(
	ctx context.Context,
	text string,
	voice core.VoiceReference,
	opts core.SynthesisOptions,
) (core.SynthesisOutput, error) {
	if strings.TrimSpace(text) == "" {
		return core.SynthesisOutput{}, core.ErrTextEmpty
	}

	exportFile, err := os.CreateTemp("", "synthesis-*.wav")
	if err != nil {
		return core.SynthesisOutput{}, fmt.Errorf("failed to create export file: %w", err)
	}

	exportPath := exportFile.Name()
	_ = exportFile.Close()

	defer func() {
		removeErr := os.Remove(exportPath)
		if removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			e.log.Warn("Failed to remove export file '%s': %v", exportPath, removeErr)
		}
	}()

	args := []string{
		"--text", text,
		"--ref-audio", voice.AudioPath,
		"--export", exportPath,
	}

	if e.modelPath != "" {
		args = append(args, "--model", e.modelPath)
	}

	if voice.ReferenceText != "" {
		args = append(args, "--ref-text", voice.ReferenceText)
	}

	if voice.Settings.CfgStrength > 0 {
		args = append(args, "--cfg-strength",
			strconv.FormatFloat(voice.Settings.CfgStrength, 'f', 2, 64))
	}

	if voice.Settings.SpeedPreset != "" {
		args = append(args, "--speed-preset", voice.Settings.SpeedPreset)
	}

	if opts.Temperature > 0 {
		args = append(args, "--temp", strconv.FormatFloat(opts.Temperature, 'f', 2, 64))
	}

	if opts.Speed > 0 {
		args = append(args, "--speed", strconv.FormatFloat(opts.Speed, 'f', 2, 64))
	}

	if opts.Seed != 0 {
		args = append(args, "--seed", strconv.Itoa(opts.Seed))
	}

	// #nosec G204 -- the binary path comes from configuration, the
	// arguments from validated records.
	cmd := exec.CommandContext(ctx, e.binary, args...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return core.SynthesisOutput{}, fmt.Errorf(
			"synthesis binary failed: %w - output: %s", err, string(output))
	}

	audio, err := os.ReadFile(exportPath)
	if err != nil {
		return core.SynthesisOutput{}, fmt.Errorf("failed to read exported audio: %w", err)
	}

	if len(audio) == 0 {
		return core.SynthesisOutput{}, ErrEmptyAudio
	}

	duration, err := wavDurationSeconds(audio)
	if err != nil {
		return core.SynthesisOutput{}, fmt.Errorf("failed to measure exported audio: %w", err)
	}

	return core.SynthesisOutput{Audio: audio, DurationSeconds: duration}, nil
}
