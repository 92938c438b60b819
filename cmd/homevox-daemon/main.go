package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"homevox/internal/audio"
	"homevox/internal/bus"
	"homevox/internal/care"
	"homevox/internal/controller"
	"homevox/internal/face"
	"homevox/internal/face/dlib"
	"homevox/internal/face/gocvcam"
	"homevox/internal/ipc"
	"homevox/internal/mic"
	"homevox/internal/nlu"
	"homevox/internal/notify"
	"homevox/internal/proxy"
	"homevox/internal/state"
	"homevox/internal/tts"
	"homevox/internal/voice"
	"homevox/internal/weather"
	"homevox/pkg/protocol"
	"homevox/pkg/stt"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

const (
	reconnDelay = 3 * time.Second
	armWindow   = 10 * time.Second
	doorQuiet   = 10 * time.Second
	flushDelay  = 200 * time.Millisecond
)

func main() {
	envFile := cli.StringP("env", "e", "key.env", "Env file path")
	proxyAddr := cli.StringP("proxy", "p", "", "Socks Proxy Address")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	host := cli.String("controller", "127.0.0.1", "Home controller host")
	cmdPort := cli.Int("cmd-port", 39186, "Command channel port")
	doorPort := cli.Int("door-port", 39189, "Door event channel port")
	voicePort := cli.Int("voice-port", 40191, "Voice trigger port")
	modelPath := cli.String("model", "third_party/whisper.cpp/models/ggml-small.bin", "Whisper model path")
	faceModels := cli.String("face-models", "models/face", "dlib face model directory")
	ownerPath := cli.String("owner", "owner_face.bin", "Owner face encoding file")
	camera := cli.Int("camera", 0, "Camera device index")
	busURL := cli.String("bus", "", "Websocket hub URL for events")
	llmModel := cli.String("llm-model", "gpt-5-nano", "Chat model")
	duck := cli.Float64("duck", 0.3, "Volume factor for other streams while recording (0 disables)")
	beepPath := cli.String("beep", "beep.mp3", "Listening cue sound")
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevelMap[*logLevel],
	})))

	log.Info("Booting up")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(*envFile); err != nil {
		log.Warn("Failed to load env file", "path", *envFile, "err", err)
	}

	httpClient, err := proxy.NewClient(*proxyAddr)
	if err != nil {
		log.Error("Failed to dial socks proxy", "proxy", *proxyAddr, "err", err)
		os.Exit(1)
	}

	var events bus.Publisher
	var hub *bus.Bus
	if *busURL != "" {
		hub, err = bus.New(*busURL, "homevox")
		if err != nil {
			log.Error("Invalid bus url", "url", *busURL, "err", err)
			os.Exit(1)
		}
		events = hub
	}

	st := state.New()
	defer st.Close()

	player := notify.NewPlayer(*beepPath)
	speaker := tts.NewSpeaker(tts.DefaultConfig(), httpClient, player, tts.Espeak)

	cmdAddr := net.JoinHostPort(*host, strconv.Itoa(*cmdPort))
	sender := controller.NewSender(controller.DefaultSenderConfig(cmdAddr), st)
	routine := care.New(care.DefaultConfig(), st, sender, speaker, events)

	var llm nlu.Completer
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		llm = nlu.NewOpenAI(openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithHTTPClient(httpClient),
		), *llmModel)
		log.Debug("Loaded API Key")
	} else {
		log.Warn("OPENAI_API_KEY not set, answers disabled")
	}
	assistant := nlu.NewAssistant(llm, weather.New(weather.DefaultConfig(), httpClient))

	var wg sync.WaitGroup
	spawn := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	if hub != nil {
		spawn(func() { hub.Run(ctx) })
	}

	cmdHandler := &controller.CommandHandler{
		State:     st,
		Speaker:   speaker,
		ArmWindow: armWindow,
		Events:    events,
	}

	engine, err := dlib.New(*faceModels)
	if err != nil {
		log.Error("Face recognition disabled", "models", *faceModels, "err", err)
	} else {
		defer engine.Close()

		owner := face.NewStore(*ownerPath)
		dev := face.NewDevice(gocvcam.Opener(*camera))

		rec := face.NewRecognizer(face.DefaultConfig(), st, owner, dev, engine, speaker, routine, sender).
			WithEvents(events)
		enroller := face.NewEnroller(st, owner, dev, gocvcam.OpenWindow("Face Registration"), engine, speaker)
		cmdHandler.Enroll = enroller.Run

		spawn(func() { rec.Run(ctx) })
		log.Debug("Loaded face recognition")
	}

	doorHandler := &controller.DoorHandler{
		State:   st,
		Speaker: speaker,
		Care:    routine,
		Quiet:   doorQuiet,
		Events:  events,
	}

	spawn(func() {
		controller.Supervise(ctx, "command", protocol.NewLineConn(cmdAddr, reconnDelay, 2*time.Second), cmdHandler.Handle)
	})
	spawn(func() {
		doorAddr := net.JoinHostPort(*host, strconv.Itoa(*doorPort))
		controller.Supervise(ctx, "door", protocol.NewLineConn(doorAddr, reconnDelay, 2*time.Second), doorHandler.Handle)
	})

	if err := runVoice(ctx, spawn, voiceDeps{
		port:      *voicePort,
		modelPath: *modelPath,
		duck:      *duck,
		player:    player,
		speaker:   speaker,
		sender:    sender,
		care:      routine,
		assistant: assistant,
		events:    events,
	}); err != nil {
		log.Error("Voice control disabled", "err", err)
	}

	log.Info("Boot up - successful")

	<-ctx.Done()
	log.Info("Shutting down", "state", st.Snapshot())
	wg.Wait()
}

type voiceDeps struct {
	port      int
	modelPath string
	duck      float64
	player    *notify.Player
	speaker   *tts.Speaker
	sender    *controller.Sender
	care      *care.Routine
	assistant *nlu.Assistant
	events    bus.Publisher
}

// runVoice loads the microphone and whisper, then serves push-to-talk
// triggers until ctx is done.
func runVoice(ctx context.Context, spawn func(func()), d voiceDeps) error {
	ln, err := ipc.Listen(ctx, net.JoinHostPort("127.0.0.1", strconv.Itoa(d.port)))
	if err != nil {
		return err
	}

	if err := mic.Init(); err != nil {
		ln.Close()
		return fmt.Errorf("init audio: %w", err)
	}
	log.Debug("Loaded recorder")

	whisper, err := stt.NewTranscriber(d.modelPath, stt.DefaultOptions())
	if err != nil {
		ln.Close()
		mic.Close()
		return fmt.Errorf("init whisper: %w", err)
	}
	log.Debug("Loaded whisper")

	cfg := voice.DefaultConfig()
	cfg.DuckFactor = d.duck

	pipeline := voice.New(cfg, voice.Deps{
		Recorder:    audio.NewSession(mic.Open, flushDelay),
		Transcriber: transcriber{whisper},
		Table:       nlu.DefaultTable(),
		Assistant:   d.assistant,
		Speaker:     d.speaker,
		Sender:      d.sender,
		Care:        d.care,
		Cue:         d.player,
		Ducker:      audio.NewDucker([]string{filepath.Base(os.Args[0])}, 10),
		Events:      d.events,
	})

	spawn(func() {
		defer mic.Close()
		defer whisper.Close()
		ipc.Serve(ctx, ln, pipeline.Handle)
	})
	return nil
}

type transcriber struct {
	*stt.Transcriber
}

func (t transcriber) Transcribe(ctx context.Context, path, prompt string) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	res, err := t.TranscribeFile(ctx, path, prompt)
	if err != nil {
		return "", "", err
	}
	return res.Text, res.Language, nil
}
