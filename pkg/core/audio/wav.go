package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const wavHeaderSize = 44

// EncodeWAV wraps raw PCM in a RIFF/WAVE container. The transcription
// endpoint requires a container; raw PCM is rejected.
func EncodeWAV(config Config, pcm []byte) []byte {
	out := make([]byte, 0, wavHeaderSize+len(pcm))
	buf := bytes.NewBuffer(out)

	blockAlign := config.Channels * (config.BitsPerSample / 8)

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(config.Channels))
	binary.Write(buf, binary.LittleEndian, uint32(config.SampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(config.BytesPerSecond()))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(config.BitsPerSample))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

// DecodeWAV extracts the format and raw PCM from a RIFF/WAVE container.
// Chunks other than "fmt " and "data" are skipped.
func DecodeWAV(data []byte) (Config, []byte, error) {
	if len(data) < wavHeaderSize {
		return Config{}, nil, fmt.Errorf("wav: %d bytes is too short", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Config{}, nil, fmt.Errorf("wav: missing RIFF/WAVE magic")
	}

	var cfg Config
	var pcm []byte
	sawFmt := false

	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if body+size > len(data) {
			size = len(data) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return Config{}, nil, fmt.Errorf("wav: fmt chunk too short")
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			if format != 1 {
				return Config{}, nil, fmt.Errorf("wav: unsupported format %d, want PCM", format)
			}
			cfg.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			cfg.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			cfg.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			sawFmt = true
		case "data":
			pcm = data[body : body+size]
		}

		// Chunks are word-aligned.
		if size%2 == 1 {
			size++
		}
		pos = body + size
	}

	if !sawFmt {
		return Config{}, nil, fmt.Errorf("wav: no fmt chunk")
	}
	if pcm == nil {
		return Config{}, nil, fmt.Errorf("wav: no data chunk")
	}
	return cfg, pcm, nil
}
