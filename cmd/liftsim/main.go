package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eiannone/keyboard"
	"github.com/rs/zerolog"

	"github.com/sonyalapina/ElevatorSystem/internal/liftconfig"
	"github.com/sonyalapina/ElevatorSystem/internal/liftconsts"
	"github.com/sonyalapina/ElevatorSystem/internal/liftgen"
	"github.com/sonyalapina/ElevatorSystem/internal/liftmeta"
	"github.com/sonyalapina/ElevatorSystem/internal/liftutils"
	"github.com/sonyalapina/ElevatorSystem/internal/telemetry"
)

func main() {
	args := liftutils.ProcessCmdArgs()

	config := liftconfig.Default()
	if args.ConfigPath != "" {
		loaded, err := liftconfig.Load(args.ConfigPath)
		if err != nil {
			fmt.Println("Error loading config:", err)
			os.Exit(1)
		}
		config = loaded
	}
	if err := config.ApplyEnv(args.EnvPath); err != nil {
		fmt.Println("Error applying env overrides:", err)
		os.Exit(1)
	}
	if args.NumCars > 0 {
		config.NumCars = args.NumCars
	}
	if args.MaxFloor > 0 {
		config.MaxFloor = args.MaxFloor
	}
	if err := config.Validate(); err != nil {
		fmt.Println("Invalid configuration:", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(config.LogLevel)
	if err != nil {
		level = zerolog.DebugLevel
	}

	sink := telemetry.NewSink(level, config.LogDir)
	sink.Start()
	defer sink.Stop()

	// Starting Programme
	sink.Info("Main", "Starting Elevator Simulation")

	meta := liftmeta.SimMetaData{
		SoftwareVersion: liftutils.GetGitHash(),
		SessionID:       sink.SessionID(),
		NumCars:         config.NumCars,
		MaxFloor:        config.MaxFloor,
		StartedAt:       time.Now(),
	}
	sink.Info("Main", "Run: %v", meta.String())

	simulation := liftgen.NewSimulation(config, sink)
	simulation.Start()
	defer simulation.Stop()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	quit := make(chan struct{})
	if args.Interactive {
		go runKeyboard(simulation, config, sink, quit)
	}

	select {
	case sig := <-signals:
		sink.Info("Main", "Received signal %v, shutting down", sig)
	case <-quit:
		sink.Info("Main", "Quit requested, shutting down")
	}
}

// runKeyboard drives the simulation manually: hall and cab calls plus
// fleet-wide emergency controls, one key each.
func runKeyboard(simulation *liftgen.Simulation, config liftconfig.Config, sink *telemetry.Sink, quit chan<- struct{}) {
	if err := keyboard.Open(); err != nil {
		sink.Error("Main", "Keyboard unavailable: %v", err)
		return
	}
	defer keyboard.Close()

	ctx := context.Background()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for {
		char, key, err := keyboard.GetKey()
		if err != nil {
			sink.Error("Main", "Keyboard read failed: %v", err)
			return
		}
		if key == keyboard.KeyEsc || char == 'q' {
			close(quit)
			return
		}

		switch char {
		case 'u':
			floor := rng.Intn(config.MaxFloor-1) + liftconsts.MinFloor // not from the top floor
			if err := simulation.ManualHallCall(ctx, floor, liftconsts.Up); err != nil {
				sink.Warning("Main", "Hall call failed: %v", err)
			}
		case 'd':
			floor := rng.Intn(config.MaxFloor-1) + liftconsts.MinFloor + 1 // not from floor 1
			if err := simulation.ManualHallCall(ctx, floor, liftconsts.Down); err != nil {
				sink.Warning("Main", "Hall call failed: %v", err)
			}
		case 'c':
			cars := simulation.Dispatcher.ListCars()
			if len(cars) == 0 {
				continue
			}
			car := cars[rng.Intn(len(cars))]
			target := car.Floor
			for target == car.Floor {
				target = rng.Intn(config.MaxFloor) + liftconsts.MinFloor
			}
			if err := simulation.ManualCabCall(ctx, car.Floor, target); err != nil {
				sink.Warning("Main", "Cab call failed: %v", err)
			}
		case 'e':
			simulation.Dispatcher.EmergencyStopAll()
		case 'r':
			simulation.Dispatcher.ResumeAll()
		}
	}
}
