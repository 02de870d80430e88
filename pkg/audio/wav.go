package audio

import (
	"encoding/binary"
	"fmt"
	"os"
	"time"
)

// WriteWAV writes 16-bit mono PCM samples as a RIFF/WAVE file.
func WriteWAV(path string, samples []int16, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav %s: %w", path, err)
	}
	defer f.Close()

	dataLen := len(samples) * 2
	byteRate := sampleRate * Channels * 2
	blockAlign := Channels * 2

	var header [44]byte
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+dataLen))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], uint16(Channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], 16) // bits per sample
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(dataLen))

	if _, err := f.Write(header[:]); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}
	if err := binary.Write(f, binary.LittleEndian, samples); err != nil {
		return fmt.Errorf("write wav data: %w", err)
	}
	return nil
}

// WAVDuration reads the duration of a PCM WAV file from its header.
func WAVDuration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open wav %s: %w", path, err)
	}
	defer f.Close()

	var header [44]byte
	if _, err := f.Read(header[:]); err != nil {
		return 0, fmt.Errorf("read wav header %s: %w", path, err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return 0, fmt.Errorf("%s is not a wav file", path)
	}
	byteRate := binary.LittleEndian.Uint32(header[28:32])
	dataLen := binary.LittleEndian.Uint32(header[40:44])
	if byteRate == 0 {
		return 0, fmt.Errorf("%s has zero byte rate", path)
	}
	seconds := float64(dataLen) / float64(byteRate)
	return time.Duration(seconds * float64(time.Second)), nil
}
