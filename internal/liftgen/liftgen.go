package liftgen

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/sonyalapina/ElevatorSystem/internal/liftcall"
	"github.com/sonyalapina/ElevatorSystem/internal/liftconfig"
	"github.com/sonyalapina/ElevatorSystem/internal/liftconsts"
	"github.com/sonyalapina/ElevatorSystem/internal/liftdispatch"
	"github.com/sonyalapina/ElevatorSystem/internal/telemetry"
)

const (
	source = "Generator"

	emergencyChancePercent = 20
	maintenanceRestore     = 10 * time.Second
	fireAlarmRestore       = 15 * time.Second
)

// Generator produces the synthetic building workload: hall calls, cab
// calls and occasional emergencies, each on its own timer.
type Generator struct {
	sink       *telemetry.Sink
	dispatcher *liftdispatch.Dispatcher
	maxFloor   int
	config     liftconfig.Config

	maintenanceRestore time.Duration
	fireAlarmRestore   time.Duration
	restoreWG          sync.WaitGroup

	mu  sync.Mutex
	rng *rand.Rand
}

func NewGenerator(config liftconfig.Config, dispatcher *liftdispatch.Dispatcher, sink *telemetry.Sink) *Generator {
	return &Generator{
		sink:               sink,
		dispatcher:         dispatcher,
		maxFloor:           config.MaxFloor,
		config:             config,
		maintenanceRestore: maintenanceRestore,
		fireAlarmRestore:   fireAlarmRestore,
		rng:                rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start launches one goroutine per event family. All of them exit
// promptly on cancellation.
func (g *Generator) Start(ctx context.Context, waitGroup *sync.WaitGroup) {
	g.sink.Info(source, "Starting workload generation")

	waitGroup.Add(4)
	go g.loop(ctx, waitGroup, g.config.HallCallPeriod.Std(), g.generateHallCall)
	go g.loop(ctx, waitGroup, g.config.CabCallPeriod.Std(), g.generateCabCall)
	go g.loop(ctx, waitGroup, g.config.StatsPeriod.Std(), g.logStatistics)
	go func() {
		defer waitGroup.Done()
		g.run(ctx, g.config.EmergencyPeriod.Std(), g.generateEmergency)
		// Restore goroutines are only ever spawned from this loop; join
		// them before the generator counts as stopped, so a late timer
		// cannot un-park the fleet after shutdown.
		g.restoreWG.Wait()
	}()
}

func (g *Generator) loop(ctx context.Context, waitGroup *sync.WaitGroup, period time.Duration, tick func(context.Context)) {
	defer waitGroup.Done()
	g.run(ctx, period, tick)
}

func (g *Generator) run(ctx context.Context, period time.Duration, tick func(context.Context)) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}

func (g *Generator) generateHallCall(ctx context.Context) {
	floor := g.intn(g.maxFloor) + liftconsts.MinFloor

	var direction liftconsts.Direction
	switch {
	case floor == liftconsts.MinFloor:
		direction = liftconsts.Up
	case floor == g.maxFloor:
		direction = liftconsts.Down
	default:
		if g.intn(2) == 0 {
			direction = liftconsts.Up
		} else {
			direction = liftconsts.Down
		}
	}

	g.submit(ctx, liftcall.NewHallCall(floor, direction))
}

func (g *Generator) generateCabCall(ctx context.Context) {
	cars := g.dispatcher.ListCars()
	if len(cars) == 0 {
		return
	}

	car := cars[g.intn(len(cars))]
	target := car.Floor
	for target == car.Floor {
		target = g.intn(g.maxFloor) + liftconsts.MinFloor
	}

	g.submit(ctx, liftcall.NewCabCall(car.Floor, target))
}

func (g *Generator) generateEmergency(ctx context.Context) {
	if g.intn(100) >= emergencyChancePercent {
		return
	}

	if g.intn(2) == 0 {
		g.carMaintenance(ctx)
	} else {
		g.fireAlarm(ctx)
	}
}

// carMaintenance sends one random car to maintenance and schedules its
// return to service.
func (g *Generator) carMaintenance(ctx context.Context) {
	cars := g.dispatcher.ListCars()
	if len(cars) == 0 {
		return
	}
	carID := cars[g.intn(len(cars))].ID

	g.sink.Emergency("Car " + strconv.Itoa(carID) + " needs maintenance")
	if err := g.dispatcher.SetMaintenance(carID, true); err != nil {
		g.sink.Error(source, "Maintenance request failed: %v", err)
		return
	}

	g.restoreWG.Add(1)
	go func() {
		defer g.restoreWG.Done()
		if !sleepFor(ctx, g.maintenanceRestore) {
			return
		}
		g.sink.Emergency("Car " + strconv.Itoa(carID) + " finished maintenance")
		if err := g.dispatcher.SetMaintenance(carID, false); err != nil {
			g.sink.Error(source, "Maintenance restore failed: %v", err)
		}
	}()
}

// fireAlarm halts the whole fleet and schedules the resume.
func (g *Generator) fireAlarm(ctx context.Context) {
	g.sink.Emergency("Fire alarm! All cars halted")
	g.dispatcher.EmergencyStopAll()

	g.restoreWG.Add(1)
	go func() {
		defer g.restoreWG.Done()
		if !sleepFor(ctx, g.fireAlarmRestore) {
			return
		}
		g.sink.Emergency("Fire alarm cleared, resuming operation")
		g.dispatcher.ResumeAll()
	}()
}

func (g *Generator) logStatistics(context.Context) {
	g.sink.Info(source, "Queued requests: %d", g.dispatcher.QueueDepth())
	for _, view := range g.dispatcher.ListCars() {
		g.sink.Info(source, "Car %d: Floor %d, %s, %s, Passengers: %d",
			view.ID, view.Floor, view.Direction.String(), view.Status.String(), view.Passengers)
	}
}

func (g *Generator) submit(ctx context.Context, request liftcall.Request) {
	if err := g.dispatcher.Submit(ctx, request); err != nil {
		g.sink.Warning(source, "Submit cancelled: %v", err)
	}
}

// intn keeps the generator's rng safe for the restore goroutines.
func (g *Generator) intn(n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Intn(n)
}

func sleepFor(ctx context.Context, duration time.Duration) bool {
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
