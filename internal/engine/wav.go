// Package engine implements the external synthesis engine contract over
// two transports: a standalone HTTP service and a local subprocess.
package engine

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	riffHeaderSize  = 12
	chunkHeaderSize = 8
)

var (
	// ErrNotWAV indicates data without a RIFF/WAVE header.
	ErrNotWAV = errors.New("data is not a WAV stream")
	// ErrWAVTruncated indicates a WAV stream cut short mid-chunk.
	ErrWAVTruncated = errors.New("WAV stream is truncated")
	// ErrWAVNoFormat indicates a WAV stream without a fmt chunk before data.
	ErrWAVNoFormat = errors.New("WAV stream has no fmt chunk")
)

// wavDurationSeconds computes the play length of a WAV byte stream from
// its fmt byte rate and data chunk size.
func wavDurationSeconds(data []byte) (float64, error) {
	if len(data) < riffHeaderSize ||
		string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return 0, ErrNotWAV
	}

	var byteRate uint32

	offset := riffHeaderSize

	for offset+chunkHeaderSize <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + chunkHeaderSize

		switch chunkID {
		case "fmt ":
			if body+16 > len(data) {
				return 0, ErrWAVTruncated
			}

			byteRate = binary.LittleEndian.Uint32(data[body+8 : body+12])
		case "data":
			if byteRate == 0 {
				return 0, ErrWAVNoFormat
			}

			if body+chunkSize > len(data) {
				return 0, fmt.Errorf("data chunk of %d bytes: %w", chunkSize, ErrWAVTruncated)
			}

			return float64(chunkSize) / float64(byteRate), nil
		}

		// Chunks are word-aligned.
		if chunkSize%2 == 1 {
			chunkSize++
		}

		offset = body + chunkSize
	}

	return 0, ErrWAVNoFormat
}
