package transcribe

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/discord-voice-wordtally/internal/logging"
)

const (
	SampleRate    = 48000
	Channels      = 1
	BitsPerSample = 16
)

// WhisperEngine posts audio as WAV to a faster-whisper style HTTP endpoint.
type WhisperEngine struct {
	URL      string
	Model    string
	Language string
	BeamSize int
	Client   *http.Client
}

type whisperSegment struct {
	Text string `json:"text"`
}

type whisperResponse struct {
	Text     string           `json:"text"`
	Segments []whisperSegment `json:"segments"`
}

// buildWAV creates a RIFF/WAVE header for PCM and returns header + data.
func buildWAV(pcm []byte, sampleRate, channels, bitsPerSample int) []byte {
	byteRate := uint32(sampleRate * channels * bitsPerSample / 8)
	blockAlign := uint16(channels * bitsPerSample / 8)
	dataLen := uint32(len(pcm))
	riffSize := uint32(4 + (8 + 16) + (8 + dataLen))

	buf := &bytes.Buffer{}
	buf.Grow(44 + len(pcm))
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, riffSize)
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, byteRate)
	binary.Write(buf, binary.LittleEndian, blockAlign)
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, dataLen)
	buf.Write(pcm)
	return buf.Bytes()
}

func (w *WhisperEngine) endpoint() (string, error) {
	u, err := url.Parse(w.URL)
	if err != nil {
		return "", fmt.Errorf("parse whisper url: %w", err)
	}
	q := u.Query()
	if w.Model != "" {
		q.Set("model", w.Model)
	}
	if w.BeamSize > 0 {
		q.Set("beam_size", strconv.Itoa(w.BeamSize))
	}
	if w.Language != "" {
		q.Set("language", w.Language)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Transcribe sends one request. Segment texts are returned when present,
// otherwise the top-level text.
func (w *WhisperEngine) Transcribe(ctx context.Context, audio []byte) ([]string, error) {
	endpoint, err := w.endpoint()
	if err != nil {
		return nil, err
	}
	wav := buildWAV(audio, SampleRate, Channels, BitsPerSample)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(wav))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "audio/wav")

	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	samples := len(audio) / 2
	logging.Debugw("sending audio to whisper", "url", endpoint, "bytes", len(audio), "duration_ms", samples*1000/SampleRate)

	sendTs := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("whisper status=%d body=%q", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode whisper response: %w", err)
	}
	logging.Debugw("STT response received", "status", resp.StatusCode, "stt_latency_ms", time.Since(sendTs).Milliseconds(), "segments", len(out.Segments))

	if len(out.Segments) == 0 {
		return []string{out.Text}, nil
	}
	segs := make([]string, 0, len(out.Segments))
	for _, s := range out.Segments {
		if t := strings.TrimSpace(s.Text); t != "" {
			segs = append(segs, t)
		}
	}
	return segs, nil
}
