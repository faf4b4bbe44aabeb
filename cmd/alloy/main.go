// Command alloy runs a voice-and-vision conversational agent in a LiveKit
// room. It listens through voice-gated speech recognition, reasons with an
// OpenAI model, watches the room's video feed for questions that need
// eyes, and answers out loud.
package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/livekit/protocol/auth"
	"github.com/spf13/cobra"

	"github.com/alloyvoice/alloy-go/pkg/audio"
	"github.com/alloyvoice/alloy-go/pkg/session"
	"github.com/alloyvoice/alloy-go/pkg/version"
	"github.com/alloyvoice/alloy-go/plugins/deepgram"
	"github.com/alloyvoice/alloy-go/plugins/openai"
	"github.com/alloyvoice/alloy-go/plugins/silero"
)

const systemPrompt = "Your name is Alloy. You are a funny, witty bot. " +
	"Your interface with users will be voice and vision. " +
	"Respond with short and concise answers. " +
	"Avoid using unpronouncable punctuation or emojis."

var rootCmd = &cobra.Command{
	Use:          "alloy",
	Short:        "Alloy - a voice and vision assistant for LiveKit rooms",
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.GetVersionInfo())
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Join a room and serve it until disconnected",
	RunE: func(cmd *cobra.Command, args []string) error {
		room, _ := cmd.Flags().GetString("room")
		identity, _ := cmd.Flags().GetString("identity")
		token, _ := cmd.Flags().GetString("token")
		metrics, _ := cmd.Flags().GetBool("metrics")

		logger := setupLogger()
		logger.Info("starting agent",
			slog.String("service", "alloy"),
			slog.String("version", version.Version),
			slog.String("room", room))

		url := os.Getenv("LIVEKIT_URL")
		if url == "" {
			return fmt.Errorf("LIVEKIT_URL is required")
		}

		if token == "" {
			var err error
			token, err = mintToken(room, identity)
			if err != nil {
				return err
			}
		}

		sess, err := buildSession(url, token, logger)
		if err != nil {
			return err
		}

		if metrics {
			go serveMetrics(sess, logger)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		err = sess.Run(ctx)
		switch {
		case errors.Is(err, session.ErrDisconnected):
			logger.Info("room disconnected, shutting down")
			return nil
		case errors.Is(err, context.Canceled):
			logger.Info("interrupted, shutting down")
			return nil
		default:
			return err
		}
	},
}

// buildSession wires the production providers into a session.
func buildSession(url, token string, logger *slog.Logger) (*session.Session, error) {
	openaiKey := os.Getenv("OPENAI_API_KEY")
	if openaiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	deepgramKey := os.Getenv("DEEPGRAM_API_KEY")
	if deepgramKey == "" {
		return nil, fmt.Errorf("DEEPGRAM_API_KEY is required")
	}

	model, err := openai.NewLLM(openaiKey, os.Getenv("ALLOY_CHAT_MODEL"))
	if err != nil {
		return nil, err
	}
	speech, err := openai.NewTTS(openaiKey, "", os.Getenv("ALLOY_VOICE"), logger)
	if err != nil {
		return nil, err
	}
	recognizer, err := deepgram.NewSTT(deepgram.Config{
		APIKey: deepgramKey,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	detector, err := silero.New(silero.Config{Logger: logger})
	if err != nil {
		return nil, err
	}
	decoder, err := audio.NewOpusDecoder(48000, 1)
	if err != nil {
		return nil, err
	}

	return session.New(session.Config{
		URL:          url,
		Token:        token,
		LLM:          model,
		STT:          recognizer,
		TTS:          speech,
		VAD:          detector,
		DecodeAudio:  decoder.Decode,
		SystemPrompt: systemPrompt,
		Voice:        os.Getenv("ALLOY_VOICE"),
		Logger:       logger,
	})
}

// mintToken builds a join token from the server API credentials.
func mintToken(room, identity string) (string, error) {
	apiKey := os.Getenv("LIVEKIT_API_KEY")
	apiSecret := os.Getenv("LIVEKIT_API_SECRET")
	if apiKey == "" || apiSecret == "" {
		return "", fmt.Errorf("LIVEKIT_API_KEY and LIVEKIT_API_SECRET are required to mint a token")
	}
	if room == "" {
		return "", fmt.Errorf("--room is required when no --token is given")
	}

	at := auth.NewAccessToken(apiKey, apiSecret)
	grant := &auth.VideoGrant{
		RoomJoin: true,
		Room:     room,
	}
	at.AddGrant(grant).
		SetIdentity(identity).
		SetValidFor(24 * time.Hour)
	return at.ToJWT()
}

// serveMetrics exposes the engine counters on the standard expvar
// endpoint.
func serveMetrics(sess *session.Session, logger *slog.Logger) {
	m := sess.Assistant().Metrics()
	expvar.Publish("turns_completed", m.TurnsCompleted)
	expvar.Publish("interruptions", m.Interruptions)
	expvar.Publish("state_transitions", m.StateTransitions)

	mux := http.NewServeMux()
	mux.Handle("/metrics", expvar.Handler())
	if err := http.ListenAndServe(":8080", mux); err != nil {
		logger.Error("metrics server failed", slog.String("error", err.Error()))
	}
}

func setupLogger() *slog.Logger {
	logFormat := os.Getenv("ALLOY_LOG_FORMAT")
	logLevel := os.Getenv("ALLOY_LOG_LEVEL")

	opts := &slog.HandlerOptions{}
	switch logLevel {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	var handler slog.Handler
	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func main() {
	// Local development keeps credentials in a .env file; absence is fine.
	_ = godotenv.Load()

	runCmd.Flags().String("room", "", "room name to join")
	runCmd.Flags().String("identity", "alloy", "participant identity")
	runCmd.Flags().String("token", "", "pre-minted join token (skips LIVEKIT_API_KEY/SECRET)")
	runCmd.Flags().Bool("metrics", false, "serve expvar metrics on :8080")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
