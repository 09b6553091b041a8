// Command velatura-cli runs a persona conversation in the terminal, without
// the HTTP server. It reads raw PCM audio from a file or FIFO (pipe in
// arecord/sox output), captures utterances with the same engine the server
// uses, and speaks replies to MP3 files. With no audio input it falls back
// to typed text.
//
// The loop ends when the user says goodbye: the exit classifier watches
// every transcription and the persona answers with its farewell line.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/museworks/velatura/internal/app"
	"github.com/museworks/velatura/internal/capture"
	"github.com/museworks/velatura/internal/config"
	"github.com/museworks/velatura/internal/intent"
	"github.com/museworks/velatura/pkg/audio"
	"github.com/museworks/velatura/pkg/gateway"
	"github.com/museworks/velatura/pkg/types"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	audioPath := flag.String("audio", "", `raw 16-bit PCM input file or FIFO, "-" for stdin; empty for typed text`)
	mode := flag.String("mode", "", "capture mode override: vad or fixed")
	outDir := flag.String("out", ".", "directory for synthesized reply audio")
	speak := flag.Bool("speak", true, "synthesize replies to MP3 files")
	echoFiller := flag.Bool("filler", false, "echo an acknowledgement phrase while the reply generates")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "velatura-cli: %v\n", err)
		return 1
	}
	if *mode != "" {
		m := config.CaptureMode(*mode)
		if !m.IsValid() {
			fmt.Fprintf(os.Stderr, "velatura-cli: -mode %q is invalid; valid values: vad, fixed\n", *mode)
			return 1
		}
		cfg.Capture.Mode = m
	}
	slog.SetDefault(app.NewLogger(cfg.Server.LogLevel))

	gw, err := app.BuildGateway(cfg)
	if err != nil {
		slog.Error("gateway setup failed", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := &conversation{
		cfg:        cfg,
		gw:         gw,
		classifier: intent.New(),
		outDir:     *outDir,
		speak:      *speak,
		echoFiller: *echoFiller,
	}

	var next func(context.Context) (string, error)
	if *audioPath != "" {
		var f *os.File
		if *audioPath == "-" {
			f = os.Stdin
		} else {
			f, err = os.Open(*audioPath)
			if err != nil {
				slog.Error("cannot open audio input", "path", *audioPath, "err", err)
				return 1
			}
			defer f.Close()
		}
		eng := capture.New(cfg.Capture)
		src := capture.NewReaderSource(f, cfg.Capture.FrameSamples, cfg.Capture.Channels)

		// The engine reports an exhausted stream as no-speech; remember the
		// EOF so the loop ends instead of retrying forever.
		var exhausted bool
		tracked := capture.FrameSourceFunc(func(ctx context.Context) ([]byte, error) {
			frame, err := src.ReadFrame(ctx)
			if errors.Is(err, io.EOF) {
				exhausted = true
			}
			return frame, err
		})
		next = func(ctx context.Context) (string, error) {
			if exhausted {
				return "", io.EOF
			}
			text, err := c.listen(ctx, eng, tracked)
			if errors.Is(err, capture.ErrNoSpeech) && exhausted {
				return "", io.EOF
			}
			return text, err
		}
	} else {
		sc := bufio.NewScanner(os.Stdin)
		next = func(ctx context.Context) (string, error) {
			fmt.Print("you> ")
			if !sc.Scan() {
				if err := sc.Err(); err != nil {
					return "", err
				}
				return "", io.EOF
			}
			return strings.TrimSpace(sc.Text()), nil
		}
	}

	if err := c.loop(ctx, next); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("conversation failed", "err", err)
		return 1
	}
	return 0
}

// conversation holds the state of one terminal session.
type conversation struct {
	cfg        *config.Config
	gw         *gateway.Gateway
	classifier *intent.Classifier
	history    []types.Turn
	outDir     string
	speak      bool
	echoFiller bool
	replyN     int
}

// loop runs turns until the input ends, the context is cancelled, or the
// user says goodbye.
func (c *conversation) loop(ctx context.Context, next func(context.Context) (string, error)) error {
	if welcome := c.cfg.Persona.WelcomeText; welcome != "" {
		c.say(ctx, welcome)
	}

	for {
		text, err := next(ctx)
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, capture.ErrNoSpeech):
			fmt.Println("(no speech detected, try again)")
			continue
		case err != nil:
			return err
		}
		if text == "" {
			continue
		}
		fmt.Printf("you: %s\n", text)

		if c.classifier.IsExit(text) {
			c.say(ctx, c.cfg.Persona.FarewellText)
			return nil
		}

		if c.echoFiller && len(c.cfg.Filler.Phrases) > 0 {
			fmt.Printf("%s: %s\n", c.cfg.Persona.Name,
				c.cfg.Filler.Phrases[rand.IntN(len(c.cfg.Filler.Phrases))])
		}

		turns := append(append([]types.Turn(nil), c.history...),
			types.Turn{Role: types.RoleUser, Content: text})
		reply, err := c.gw.Completer.Complete(ctx, c.cfg.Persona.SystemPrompt, turns, c.cfg.Persona.MaxReplyTokens)
		if err != nil {
			slog.Error("completion failed", "err", err)
			continue
		}
		c.history = append(c.history,
			types.Turn{Role: types.RoleUser, Content: text},
			types.Turn{Role: types.RoleAssistant, Content: reply},
		)
		c.say(ctx, reply)
	}
}

// listen captures one utterance from src and transcribes it.
func (c *conversation) listen(ctx context.Context, eng *capture.Engine, src capture.FrameSource) (string, error) {
	fmt.Println("(listening...)")
	utt, err := eng.Capture(ctx, src)
	if err != nil {
		return "", err
	}

	pcm, channels := utt.PCM, utt.Channels
	if channels == 2 {
		pcm = audio.StereoToMono(pcm)
		channels = 1
	}
	wav := audio.EncodeWAV(pcm, utt.SampleRate, channels)
	return c.gw.Transcriber.Transcribe(ctx, wav)
}

// say prints the persona line and, when enabled, synthesizes it to an MP3
// file next to the previous replies. Synthesis failures degrade to text.
func (c *conversation) say(ctx context.Context, text string) {
	fmt.Printf("%s: %s\n", c.cfg.Persona.Name, text)
	if !c.speak {
		return
	}

	mp3, err := c.gw.Synthesizer.Synthesize(ctx, text)
	if err != nil {
		slog.Warn("synthesis failed", "err", err)
		return
	}

	c.replyN++
	path := filepath.Join(c.outDir, fmt.Sprintf("reply-%03d.mp3", c.replyN))
	if err := os.WriteFile(path, mp3, 0o644); err != nil {
		slog.Warn("cannot write reply audio", "path", path, "err", err)
		return
	}
	fmt.Printf("(audio: %s)\n", path)
}
