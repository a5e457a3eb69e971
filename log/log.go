package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	diagLog  zerolog.Logger
	diagFile *os.File
	convFile *os.File
	logMu    sync.Mutex
	logReady bool
	pid      int
	dir      string
)

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		if !filepath.IsAbs(flagPath) {
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			return filepath.Join(wd, flagPath), nil
		}
		return flagPath, nil
	}

	// Priority 2: VOX_LOG_PATH environment variable
	envPath := os.Getenv("VOX_LOG_PATH")
	if envPath != "" {
		if !filepath.IsAbs(envPath) {
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			return filepath.Join(wd, envPath), nil
		}
		return envPath, nil
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error

	diagPath := filepath.Join(dir, "diagnostics_log.txt")
	diagFile, err = os.OpenFile(diagPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	convPath := filepath.Join(dir, "conversation_log.txt")
	convFile, err = os.OpenFile(convPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		diagFile = nil
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if convFile != nil {
		convFile.Close()
		convFile = nil
	}
	logReady = false
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

// ConversationLine appends one finished utterance to the conversation log.
// speaker is "user" or "model".
func ConversationLine(speaker, text string) {
	if !logReady {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	line := fmt.Sprintf("%s\t[%d]\t%s\t%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, speaker, text)
	convFile.WriteString(line)
}

// TurnCost records the priced usage of one completed turn.
func TurnCost(inputTokens, outputTokens int, inputCost, outputCost, totalCost float64) {
	if !logReady {
		return
	}
	diagLog.Info().
		Int("input_tokens", inputTokens).
		Int("output_tokens", outputTokens).
		Float64("input_cost", inputCost).
		Float64("output_cost", outputCost).
		Float64("total_cost", totalCost).
		Msg("turn_cost")
}

// Interruption records one detected user interruption with the state that
// triggered it.
func Interruption(liveHandles, pendingOutputChars int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Int("live_handles", liveHandles).
		Int("pending_output_chars", pendingOutputChars).
		Msg("interruption")
}

func SessionStart(model, voice string, speed float64) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("model", model).
		Str("voice", voice).
		Float64("speed", speed).
		Msg("session_start")
}

func SessionEnd(turns int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Int("turns", turns).
		Msg("session_end")
}
