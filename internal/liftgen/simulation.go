package liftgen

import (
	"context"
	"sync"

	"github.com/sonyalapina/ElevatorSystem/internal/liftcall"
	"github.com/sonyalapina/ElevatorSystem/internal/liftconfig"
	"github.com/sonyalapina/ElevatorSystem/internal/liftconsts"
	"github.com/sonyalapina/ElevatorSystem/internal/liftdispatch"
	"github.com/sonyalapina/ElevatorSystem/internal/telemetry"
)

// Simulation is the composition root of the building: the dispatcher
// with its fleet plus the workload generator, started and stopped as a
// unit. The telemetry sink is owned by the caller.
type Simulation struct {
	Dispatcher *liftdispatch.Dispatcher
	Generator  *Generator

	sink        *telemetry.Sink
	config      liftconfig.Config
	initialised bool
	running     bool

	//used for graceful shutdown
	waitGroupArray []*sync.WaitGroup
	cancelArray    []context.CancelFunc
}

func NewSimulation(config liftconfig.Config, sink *telemetry.Sink) *Simulation {
	dispatcher := liftdispatch.NewDispatcher(config, sink)

	return &Simulation{
		Dispatcher:  dispatcher,
		Generator:   NewGenerator(config, dispatcher, sink),
		sink:        sink,
		config:      config,
		initialised: true,
	}
}

func (s *Simulation) Start() {
	if !s.initialised {
		s.sink.Error("Simulation", "Simulation not initialised")
		return
	}
	if s.running {
		s.sink.Error("Simulation", "Simulation already running")
		return
	}

	s.sink.Info("Simulation", "Starting building simulation")
	s.sink.Info("Simulation", "Floors: %d-%d", liftconsts.MinFloor, s.config.MaxFloor)
	s.sink.Info("Simulation", "Number of cars: %d", s.Dispatcher.NumCars())

	//Launch threads one by one
	ctxDispatch, cancelDispatch := context.WithCancel(context.Background())
	wgDispatch := &sync.WaitGroup{}
	s.waitGroupArray = append(s.waitGroupArray, wgDispatch)
	s.Dispatcher.Start(ctxDispatch, wgDispatch)
	s.cancelArray = append(s.cancelArray, cancelDispatch)

	ctxGen, cancelGen := context.WithCancel(context.Background())
	wgGen := &sync.WaitGroup{}
	s.waitGroupArray = append(s.waitGroupArray, wgGen)
	s.Generator.Start(ctxGen, wgGen)
	s.cancelArray = append(s.cancelArray, cancelGen)

	s.running = true
}

func (s *Simulation) Stop() {
	if !s.initialised {
		s.sink.Error("Simulation", "Simulation not initialised")
		return
	}
	if !s.running {
		s.sink.Error("Simulation", "Simulation not running, so cannot stop it")
		return
	}

	s.sink.Info("Simulation", "Stopping simulation")

	//Gracefully shut down all threads in reverse start order
	for i := len(s.cancelArray) - 1; i >= 0; i-- {
		s.cancelArray[i]()
		s.waitGroupArray[i].Wait()
	}
	s.cancelArray = nil
	s.waitGroupArray = nil

	s.Dispatcher.EmergencyStopAll()

	s.sink.Info("Simulation", "Stopped simulation")
	s.running = false
}

// ManualHallCall submits a hall call on behalf of an operator.
func (s *Simulation) ManualHallCall(ctx context.Context, floor int, direction liftconsts.Direction) error {
	if err := s.Dispatcher.Submit(ctx, liftcall.NewHallCall(floor, direction)); err != nil {
		return err
	}
	s.sink.Info("Manual", "Hall call: floor %d, direction %s", floor, direction.String())
	return nil
}

// ManualCabCall submits a cab call on behalf of an operator.
func (s *Simulation) ManualCabCall(ctx context.Context, from, to int) error {
	if err := s.Dispatcher.Submit(ctx, liftcall.NewCabCall(from, to)); err != nil {
		return err
	}
	s.sink.Info("Manual", "Cab call: %d -> %d", from, to)
	return nil
}
