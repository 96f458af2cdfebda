package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrNotWAV is returned by [DecodeWAV] for input that is not a RIFF/WAVE file.
var ErrNotWAV = errors.New("audio: not a RIFF/WAVE file")

// EncodeWAV wraps 16-bit little-endian PCM in a 44-byte RIFF/WAVE header.
func EncodeWAV(pcm []byte, f Format) []byte {
	const bits = 16
	blockAlign := f.Channels * bits / 8
	buf := make([]byte, 44+len(pcm))

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(pcm)))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(f.SampleRate*blockAlign))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bits)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(pcm)))
	copy(buf[44:], pcm)
	return buf
}

// DecodeWAV walks the RIFF chunks of wav and returns the PCM payload of the
// data chunk and the format from the fmt chunk. The fmt chunk size may vary,
// so the data offset is never assumed to be 44. A data chunk without a
// preceding fmt chunk is reported as 22050 Hz mono, which is what Coqui's
// default models produce.
func DecodeWAV(wav []byte) ([]byte, Format, error) {
	if len(wav) < 12 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, Format{}, ErrNotWAV
	}

	f := Format{SampleRate: 22050, Channels: 1}
	offset := 12
	for offset+8 <= len(wav) {
		id := string(wav[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))
		body := offset + 8

		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(wav) {
				return nil, Format{}, fmt.Errorf("audio: truncated fmt chunk (%d bytes)", size)
			}
			if bits := binary.LittleEndian.Uint16(wav[body+14 : body+16]); bits != 16 {
				return nil, Format{}, fmt.Errorf("audio: unsupported WAV bit depth %d", bits)
			}
			f.Channels = int(binary.LittleEndian.Uint16(wav[body+2 : body+4]))
			f.SampleRate = int(binary.LittleEndian.Uint32(wav[body+4 : body+8]))
		case "data":
			end := body + size
			// Streaming servers write a placeholder size; take what is there.
			if end > len(wav) || size == 0 {
				end = len(wav)
			}
			return wav[body:end], f, nil
		}

		// Chunks are word-aligned.
		offset = body + size + size%2
	}
	return nil, Format{}, errors.New("audio: WAV file has no data chunk")
}
