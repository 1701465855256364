package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/xyproto/randomstring"
)

const (
	timeFormat       = "2006-01-02T15:04:05.000Z07:00"
	queueSize        = 256
	sessionIDLength  = 10
	fileNameTimeForm = "2006-01-02_15-04-05"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	default:
		return "UNDEFINED"
	}
}

type Record struct {
	Time    time.Time
	Source  string
	Level   Level
	Message string
}

// Sink is the single structured event sink of the process. It is
// constructed once in main and handed to the dispatcher, every car and
// the generator. Emission never blocks the caller: records go through a
// buffered queue drained by a worker goroutine, and a full queue falls
// back to a direct write.
type Sink struct {
	logger    zerolog.Logger
	sessionID string

	queue chan Record
	done  chan struct{}
	wg    sync.WaitGroup

	mu      sync.Mutex
	file    *os.File
	started bool
}

// NewSink opens a per-run log file next to the console writer. If the
// file cannot be created the sink degrades to console only.
func NewSink(level zerolog.Level, logDir string) *Sink {
	zerolog.TimeFieldFormat = timeFormat

	console := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: timeFormat,
	}

	sessionID := randomstring.EnglishFrequencyString(sessionIDLength)

	sink := &Sink{
		sessionID: sessionID,
		queue:     make(chan Record, queueSize),
		done:      make(chan struct{}),
	}

	fileName := fmt.Sprintf("liftsim_%s_%s.log", time.Now().Format(fileNameTimeForm), sessionID)
	file, err := os.OpenFile(filepath.Join(logDir, fileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)

	var writer zerolog.LevelWriter
	if err != nil {
		writer = zerolog.MultiLevelWriter(console)
	} else {
		sink.file = file
		writer = zerolog.MultiLevelWriter(console, file)
	}

	sink.logger = zerolog.New(writer).Level(level).With().Timestamp().Str("session", sessionID).Logger()

	if err != nil {
		sink.logger.Warn().Str("source", "Telemetry").Msgf("Could not create log file, console only: %v", err)
	}

	return sink
}

// NewDiscardSink silences all output, used by tests.
func NewDiscardSink() *Sink {
	return &Sink{
		logger: zerolog.New(os.Stdout).Level(zerolog.Disabled),
		queue:  make(chan Record, queueSize),
		done:   make(chan struct{}),
	}
}

func (s *Sink) SessionID() string {
	return s.sessionID
}

func (s *Sink) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case record := <-s.queue:
				s.write(record)
			case <-s.done:
				s.Flush()
				return
			}
		}
	}()
}

// Flush drains whatever is queued right now.
func (s *Sink) Flush() {
	for {
		select {
		case record := <-s.queue:
			s.write(record)
		default:
			return
		}
	}
}

func (s *Sink) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	close(s.done)
	s.wg.Wait()

	if s.file != nil {
		s.file.Close()
	}
}

func (s *Sink) write(record Record) {
	var event *zerolog.Event
	switch record.Level {
	case LevelDebug:
		event = s.logger.Debug()
	case LevelWarning:
		event = s.logger.Warn()
	case LevelError:
		event = s.logger.Error()
	default:
		event = s.logger.Info()
	}
	event.Str("source", record.Source).Msg(record.Message)
}

// Emit queues one record. Callers are never blocked: if the worker is
// behind or not running, the record is written directly instead.
func (s *Sink) Emit(level Level, source, message string) {
	record := Record{Time: time.Now(), Source: source, Level: level, Message: message}

	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	if !started {
		s.write(record)
		return
	}

	select {
	case s.queue <- record:
	default:
		s.write(record)
	}
}

func (s *Sink) Debug(source, format string, args ...any) {
	s.Emit(LevelDebug, source, fmt.Sprintf(format, args...))
}

func (s *Sink) Info(source, format string, args ...any) {
	s.Emit(LevelInfo, source, fmt.Sprintf(format, args...))
}

func (s *Sink) Warning(source, format string, args ...any) {
	s.Emit(LevelWarning, source, fmt.Sprintf(format, args...))
}

func (s *Sink) Error(source, format string, args ...any) {
	s.Emit(LevelError, source, fmt.Sprintf(format, args...))
}

func (s *Sink) Emergency(message string) {
	s.Emit(LevelWarning, "Emergency", message)
}
