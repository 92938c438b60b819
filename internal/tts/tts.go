// Package tts speaks text aloud: Google translate TTS clips first, the
// local espeak-ng voice when that fails.
package tts

import (
	"context"
	"fmt"
	"io"
	log "log/slog"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"
)

// Player plays an audio file to completion.
type Player interface {
	PlayFile(ctx context.Context, path string) error
}

// Fallback speaks without network access.
type Fallback func(text, lang string) error

type Config struct {
	URL     string
	Timeout time.Duration
	TempDir string
}

func DefaultConfig() Config {
	return Config{
		URL:     "https://translate.google.com/translate_tts",
		Timeout: 10 * time.Second,
	}
}

// Speaker serializes utterances so that concurrent callers do not talk
// over each other.
type Speaker struct {
	mu       sync.Mutex
	cfg      Config
	http     *http.Client
	player   Player
	fallback Fallback
}

func NewSpeaker(cfg Config, httpClient *http.Client, player Player, fallback Fallback) *Speaker {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Speaker{cfg: cfg, http: httpClient, player: player, fallback: fallback}
}

// Say blocks until the text has been spoken. Failures are logged only.
func (s *Speaker) Say(ctx context.Context, text, lang string) {
	if text == "" {
		return
	}
	if lang == "" {
		lang = "ko"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	log.Info("Speaking", "text", text, "lang", lang)

	err := s.google(ctx, text, lang)
	if err == nil {
		return
	}
	log.Warn("Google TTS failed", "err", err)

	if s.fallback == nil {
		return
	}
	if err := s.fallback(text, lang); err != nil {
		log.Error("Failed to voice out", "err", err)
	}
}

func (s *Speaker) google(ctx context.Context, text, lang string) error {
	path, err := s.fetch(ctx, text, lang)
	if err != nil {
		return err
	}
	defer os.Remove(path)

	return s.player.PlayFile(ctx, path)
}

func (s *Speaker) fetch(ctx context.Context, text, lang string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	q := url.Values{
		"ie":     {"UTF-8"},
		"q":      {text},
		"tl":     {lang},
		"client": {"tw-ob"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.URL+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch speech: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch speech: %s", resp.Status)
	}

	f, err := os.CreateTemp(s.cfg.TempDir, "homevox-tts-*.mp3")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("save speech: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
