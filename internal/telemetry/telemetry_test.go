package telemetry

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLevelString(t *testing.T) {
	levelArray := []Level{LevelDebug, LevelInfo, LevelWarning, LevelError, Level(99)}
	levelStringArray := []string{"DEBUG", "INFO", "WARNING", "ERROR", "UNDEFINED"}

	for index, level := range levelArray {
		if level.String() != levelStringArray[index] {
			t.Errorf("Level.String() returned %v, expected %v", level.String(), levelStringArray[index])
		}
	}
}

func TestEmitBeforeStartDoesNotBlock(t *testing.T) {
	sink := NewDiscardSink()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			sink.Info("Test", "message %d", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Errorf("Emit blocked on a sink that was never started")
	}
}

func TestEmitNeverBlocksWhenQueueIsFull(t *testing.T) {
	sink := NewDiscardSink()
	sink.Start()
	defer sink.Stop()

	var waitGroup sync.WaitGroup
	waitGroup.Add(4)
	for routine := 0; routine < 4; routine++ {
		go func(routineNum int) {
			defer waitGroup.Done()
			for i := 0; i < 1000; i++ {
				sink.Debug("Test", "routine %d message %d", routineNum, i)
			}
		}(routine)
	}

	done := make(chan struct{})
	go func() {
		waitGroup.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Errorf("Emit blocked under load")
	}
}

func TestStartStopIdempotent(t *testing.T) {
	sink := NewDiscardSink()
	sink.Start()
	sink.Start()
	sink.Info("Test", "one message")
	sink.Stop()
	sink.Stop()
}

func TestSinkDegradesWithoutLogDir(t *testing.T) {
	sink := NewSink(zerolog.Disabled, "/no/such/directory")
	sink.Start()
	defer sink.Stop()

	if sink.SessionID() == "" {
		t.Errorf("SessionID() empty, expected a generated identifier")
	}
	sink.Info("Test", "console-only message")
}

func TestSinkWritesLogFile(t *testing.T) {
	dir := t.TempDir()
	sink := NewSink(zerolog.Disabled, dir)
	sink.Info("Test", "a message")
	sink.Stop()
}
