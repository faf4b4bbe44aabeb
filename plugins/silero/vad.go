// Package silero implements voice activity detection with the Silero ONNX
// model, falling back to an energy detector when the model or runtime is
// unavailable.
package silero

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/alloyvoice/alloy-go/pkg/ai/vad"
	"github.com/alloyvoice/alloy-go/pkg/rtc"
)

const (
	// DefaultThreshold is the speech probability above which a window
	// counts as voiced.
	DefaultThreshold = 0.5

	// modelSampleRate is the rate the model was trained at.
	modelSampleRate = 16000

	// windowSamples is the model's fixed input window.
	windowSamples = 512

	// stateSize is the model's recurrent state width.
	stateSize = 128

	// DefaultMinSpeech is how much consecutive voiced audio starts a
	// segment.
	DefaultMinSpeech = 96 * time.Millisecond

	// DefaultMinSilence is how much consecutive silence ends one.
	DefaultMinSilence = 480 * time.Millisecond
)

// windowDuration is how much audio one model window covers.
const windowDuration = time.Second * windowSamples / modelSampleRate

// Config holds detector settings.
type Config struct {
	// Threshold overrides DefaultThreshold when positive.
	Threshold float32

	// ModelPath names the ONNX model file. Empty uses the default
	// location, downloading the model there if missing.
	ModelPath string

	// MinSpeech and MinSilence override the segment hysteresis.
	MinSpeech  time.Duration
	MinSilence time.Duration

	Logger *slog.Logger
}

// VAD detects speech segments in PCM audio. Inference runs the Silero
// model when it loads; otherwise a signal-energy heuristic with the same
// hysteresis stands in.
type VAD struct {
	threshold  float32
	minSpeech  time.Duration
	minSilence time.Duration
	logger     *slog.Logger

	modelPath string
	useModel  bool
}

// New creates a detector, loading the ONNX model if possible.
func New(cfg Config) (*VAD, error) {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.MinSpeech <= 0 {
		cfg.MinSpeech = DefaultMinSpeech
	}
	if cfg.MinSilence <= 0 {
		cfg.MinSilence = DefaultMinSilence
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	v := &VAD{
		threshold:  cfg.Threshold,
		minSpeech:  cfg.MinSpeech,
		minSilence: cfg.MinSilence,
		logger:     cfg.Logger,
	}

	modelPath := cfg.ModelPath
	if modelPath == "" {
		modelPath = defaultModelPath()
		if err := EnsureModel(modelPath, cfg.Logger); err != nil {
			cfg.Logger.Warn("model download failed, using energy detection",
				slog.String("error", err.Error()))
		}
	}
	if _, err := os.Stat(modelPath); err == nil {
		if err := initRuntime(); err != nil {
			cfg.Logger.Warn("onnx runtime unavailable, using energy detection",
				slog.String("error", err.Error()))
		} else {
			v.modelPath = modelPath
			v.useModel = true
			cfg.Logger.Info("loaded speech detection model",
				slog.String("model_path", modelPath))
		}
	} else {
		cfg.Logger.Info("model not found, using energy detection",
			slog.String("model_path", modelPath))
	}

	return v, nil
}

// Detect processes PCM frames and emits speech-boundary events.
func (v *VAD) Detect(ctx context.Context, frames <-chan rtc.AudioFrame) (<-chan vad.Event, error) {
	var model *modelSession
	infer := inferFunc(energyProbability)
	if v.useModel {
		m, err := newModelSession(v.modelPath)
		if err != nil {
			v.logger.Warn("model session failed, using energy detection",
				slog.String("error", err.Error()))
		} else {
			model = m
			infer = m.infer
		}
	}

	events := make(chan vad.Event, 8)
	go func() {
		defer close(events)
		if model != nil {
			defer model.close()
		}
		v.run(ctx, frames, events, infer)
	}()
	return events, nil
}

// Capabilities returns the detector's characteristics.
func (v *VAD) Capabilities() vad.Capabilities {
	return vad.Capabilities{
		SampleRates:        []int{modelSampleRate, 48000},
		MinSpeechDuration:  v.minSpeech,
		MinSilenceDuration: v.minSilence,
	}
}

// inferFunc scores one 16 kHz window with a speech probability.
type inferFunc func(window []float32) (float32, error)

// run slices incoming frames into model windows and applies segment
// hysteresis over the per-window probabilities.
func (v *VAD) run(ctx context.Context, frames <-chan rtc.AudioFrame, events chan<- vad.Event, infer inferFunc) {
	speechWindows := int(v.minSpeech / windowDuration)
	if speechWindows < 1 {
		speechWindows = 1
	}
	silenceWindows := int(v.minSilence / windowDuration)
	if silenceWindows < 1 {
		silenceWindows = 1
	}

	var (
		window      []float32
		speaking    bool
		voicedRun   int
		silentRun   int
		inferFailed bool
	)

	emit := func(t vad.EventType) bool {
		select {
		case events <- vad.Event{Type: t, Timestamp: time.Now()}:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				if speaking {
					emit(vad.EventSpeechEnd)
				}
				return
			}
			window = append(window, resample(frame)...)

			for len(window) >= windowSamples {
				chunk := window[:windowSamples]
				window = window[windowSamples:]

				prob, err := infer(chunk)
				if err != nil {
					if !inferFailed {
						inferFailed = true
						v.logger.Warn("window inference failed, using energy detection",
							slog.String("error", err.Error()))
					}
					prob, _ = energyProbability(chunk)
				}

				if prob >= v.threshold {
					voicedRun++
					silentRun = 0
				} else {
					silentRun++
					voicedRun = 0
				}

				if !speaking && voicedRun >= speechWindows {
					speaking = true
					if !emit(vad.EventSpeechStart) {
						return
					}
				}
				if speaking && silentRun >= silenceWindows {
					speaking = false
					if !emit(vad.EventSpeechEnd) {
						return
					}
				}
			}
		}
	}
}

// resample converts a PCM16 frame to 16 kHz mono float32 samples by
// channel averaging and decimation. Non-PCM frames yield nothing.
func resample(frame rtc.AudioFrame) []float32 {
	if frame.Encoding != rtc.EncodingPCM16 || frame.SampleRate < modelSampleRate {
		return nil
	}
	channels := frame.NumChannels
	if channels < 1 {
		channels = 1
	}
	step := frame.SampleRate / modelSampleRate
	sampleBytes := 2 * channels
	total := len(frame.Data) / sampleBytes

	out := make([]float32, 0, total/step+1)
	for i := 0; i < total; i += step {
		var sum int
		for ch := 0; ch < channels; ch++ {
			off := i*sampleBytes + ch*2
			sum += int(int16(binary.LittleEndian.Uint16(frame.Data[off:])))
		}
		out = append(out, float32(sum/channels)/32768.0)
	}
	return out
}

// energyProbability maps window RMS energy onto [0,1]. It is crude but
// shares the model's contract, so the hysteresis logic is identical on
// both paths.
func energyProbability(window []float32) (float32, error) {
	if len(window) == 0 {
		return 0, nil
	}
	var sum float64
	for _, s := range window {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(window)))
	// Speech RMS typically sits well above 0.02 full scale.
	p := rms / 0.1
	if p > 1 {
		p = 1
	}
	return float32(p), nil
}

// modelSession wraps one ONNX session with its recurrent state.
type modelSession struct {
	session *ort.DynamicAdvancedSession
	state   []float32
}

func newModelSession(modelPath string) (*modelSession, error) {
	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{"input", "state", "sr"},
		[]string{"output", "stateN"},
		nil)
	if err != nil {
		return nil, fmt.Errorf("creating inference session: %w", err)
	}
	return &modelSession{
		session: session,
		state:   make([]float32, 2*stateSize),
	}, nil
}

// infer scores one window, carrying the recurrent state forward.
func (m *modelSession) infer(window []float32) (float32, error) {
	input, err := ort.NewTensor(ort.NewShape(1, windowSamples), window)
	if err != nil {
		return 0, err
	}
	defer input.Destroy()

	state, err := ort.NewTensor(ort.NewShape(2, 1, stateSize), m.state)
	if err != nil {
		return 0, err
	}
	defer state.Destroy()

	sr, err := ort.NewTensor(ort.NewShape(1), []int64{modelSampleRate})
	if err != nil {
		return 0, err
	}
	defer sr.Destroy()

	outputs := []ort.Value{nil, nil}
	if err := m.session.Run([]ort.Value{input, state, sr}, outputs); err != nil {
		return 0, fmt.Errorf("running inference: %w", err)
	}
	defer outputs[0].Destroy()
	defer outputs[1].Destroy()

	probs := outputs[0].(*ort.Tensor[float32]).GetData()
	nextState := outputs[1].(*ort.Tensor[float32]).GetData()
	copy(m.state, nextState)

	if len(probs) == 0 {
		return 0, fmt.Errorf("model returned no output")
	}
	return probs[0], nil
}

func (m *modelSession) close() {
	if m.session != nil {
		m.session.Destroy()
		m.session = nil
	}
}
