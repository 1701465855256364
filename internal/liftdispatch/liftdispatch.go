package liftdispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sonyalapina/ElevatorSystem/internal/liftcall"
	"github.com/sonyalapina/ElevatorSystem/internal/liftcar"
	"github.com/sonyalapina/ElevatorSystem/internal/liftconfig"
	"github.com/sonyalapina/ElevatorSystem/internal/liftconsts"
	"github.com/sonyalapina/ElevatorSystem/internal/telemetry"
)

const (
	source           = "Dispatcher"
	directionPenalty = 10
	capacityPenaltyX = 2
	statisticsEveryN = 10
)

// pendingRequest tracks how many scheduling passes a request has missed
// and whether its stale alarm has already been raised.
type pendingRequest struct {
	request  liftcall.Request
	attempts int
	stale    bool
}

// Dispatcher owns the car roster and the shared ingress queue. Its
// scheduling loop is the only goroutine that makes assignment
// decisions, so a request can never be handed to two cars.
type Dispatcher struct {
	sink     *telemetry.Sink
	cars     []*liftcar.Car
	capacity int

	ingress       chan pendingRequest
	totalRequests atomic.Int64

	retryDelay      time.Duration
	maxRetryBackoff time.Duration
	staleAfter      int

	retryWG sync.WaitGroup

	// Read and written only from the scheduling loop.
	lastStatsTotal int64

	mu       sync.Mutex
	running  bool
	resumeCh chan struct{}
}

// NewDispatcher builds the fleet with staggered start floors spread
// evenly over the shaft.
func NewDispatcher(config liftconfig.Config, sink *telemetry.Sink) *Dispatcher {
	timing := liftcar.Timing{
		FloorTravel: config.FloorTravelTime.Std(),
		DoorOpen:    config.DoorOpenTime.Std(),
		DoorClose:   config.DoorCloseTime.Std(),
		IdlePoll:    config.IdlePoll.Std(),
	}

	cars := make([]*liftcar.Car, 0, config.NumCars)
	for i := 0; i < config.NumCars; i++ {
		startFloor := liftconsts.MinFloor + (i*(config.MaxFloor-liftconsts.MinFloor))/config.NumCars
		cars = append(cars, liftcar.NewCar(i+1, config.MaxFloor, startFloor, config.Capacity, timing, sink))
	}

	sink.Info(source, "Initialised %d cars over floors %d-%d", config.NumCars, liftconsts.MinFloor, config.MaxFloor)

	return &Dispatcher{
		sink:            sink,
		cars:            cars,
		capacity:        config.Capacity,
		ingress:         make(chan pendingRequest, config.IngressQueueSize),
		retryDelay:      config.RetryDelay.Std(),
		maxRetryBackoff: config.MaxRetryBackoff.Std(),
		staleAfter:      config.StaleAfter,
		running:         true,
		resumeCh:        make(chan struct{}),
	}
}

// Start launches every car's control loop and the scheduling loop.
func (d *Dispatcher) Start(ctx context.Context, waitGroup *sync.WaitGroup) {
	for _, car := range d.cars {
		car.Start(ctx, waitGroup)
	}

	d.sink.Info(source, "Started with %d cars", len(d.cars))

	waitGroup.Add(1)
	go func() {
		defer waitGroup.Done()
		d.run(ctx)
		d.retryWG.Wait()
		d.sink.Info(source, "Stopped, total requests handled: %d", d.totalRequests.Load())
	}()
}

// Submit enqueues a request. Fire and forget; it fails only if the
// caller is cancelled while the ingress queue is saturated.
func (d *Dispatcher) Submit(ctx context.Context, request liftcall.Request) error {
	select {
	case d.ingress <- pendingRequest{request: request}:
		d.totalRequests.Add(1)
		d.sink.Info(source, "Request: %s", request.String())
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run(ctx context.Context) {
	for {
		if !d.waitRunning(ctx) {
			return
		}

		select {
		case <-ctx.Done():
			return
		case pending := <-d.ingress:
			// An emergency stop may land while we are already waiting on
			// the queue; hold the popped request until operation resumes.
			if !d.waitRunning(ctx) {
				return
			}
			d.assign(ctx, pending)
			if d.shouldLogStatistics() {
				d.logStatistics()
			}
		}
	}
}

// waitRunning blocks while the fleet is emergency-stopped.
func (d *Dispatcher) waitRunning(ctx context.Context) bool {
	for {
		d.mu.Lock()
		if d.running {
			d.mu.Unlock()
			return true
		}
		resume := d.resumeCh
		d.mu.Unlock()

		select {
		case <-ctx.Done():
			return false
		case <-resume:
		}
	}
}

// assign runs one scheduling decision: score every serviceable car and
// hand the request to the best one, or schedule a retry.
func (d *Dispatcher) assign(ctx context.Context, pending pendingRequest) {
	car := d.selectBestCar(&pending.request)

	if car != nil {
		car.AddRequest(pending.request)
		d.sink.Info(source, "Request %s assigned to car %d", pending.request.String(), car.ID())
		return
	}

	pending.attempts++
	d.sink.Warning(source, "No suitable car for request %s, retrying (attempt %d)", pending.request.String(), pending.attempts)
	if !pending.stale && pending.attempts >= d.staleAfter {
		pending.stale = true
		d.sink.Error(source, "Request %s is stale after %d attempts, waited %s", pending.request.String(), pending.attempts, time.Since(pending.request.CreatedAt).Round(time.Millisecond))
	}

	backoff := d.retryBackoff(pending.attempts)

	d.retryWG.Add(1)
	go func() {
		defer d.retryWG.Done()
		timer := time.NewTimer(backoff)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		select {
		case d.ingress <- pending:
		case <-ctx.Done():
		}
	}()
}

// retryBackoff grows linearly with the miss count, capped so a starved
// request keeps probing the fleet at a steady rate.
func (d *Dispatcher) retryBackoff(attempts int) time.Duration {
	backoff := time.Duration(attempts) * d.retryDelay
	if backoff > d.maxRetryBackoff {
		backoff = d.maxRetryBackoff
	}
	return backoff
}

// shouldLogStatistics is true once per statisticsEveryN submissions.
// Retried requests pass through the loop again without bumping the
// total, so the last logged total is remembered.
func (d *Dispatcher) shouldLogStatistics() bool {
	total := d.totalRequests.Load()
	if total == 0 || total%statisticsEveryN != 0 || total == d.lastStatsTotal {
		return false
	}
	d.lastStatsTotal = total
	return true
}

// selectBestCar returns the serviceable car with the strictly lowest
// score; ties keep the first car in roster order. Each car's state is
// read as one short-lived snapshot, so the fleet view is best-effort
// rather than atomic.
func (d *Dispatcher) selectBestCar(request *liftcall.Request) *liftcar.Car {
	var best *liftcar.Car
	bestScore := int(^uint(0) >> 1)

	for _, car := range d.cars {
		view := car.Snapshot()
		if view.Status == liftconsts.Maintenance {
			continue
		}

		score := Score(view, request)
		if score < bestScore && liftcar.CanServe(view, d.capacity, request) {
			bestScore = score
			best = car
		}
	}
	return best
}

// Score is the dispatcher's goodness metric, lower is better: distance
// to the origin floor, plus a fixed penalty when a moving car cannot
// pick the request up en route, plus a load penalty.
func Score(view liftcar.Snapshot, request *liftcall.Request) int {
	distance := view.Floor - request.Floor()
	if distance < 0 {
		distance = -distance
	}

	penalty := 0
	if view.Direction != liftconsts.Idle {
		goodMatch := false
		if view.Direction == liftconsts.Up &&
			view.Floor <= request.Floor() &&
			request.Direction() == liftconsts.Up {
			goodMatch = true
		} else if view.Direction == liftconsts.Down &&
			view.Floor >= request.Floor() &&
			request.Direction() == liftconsts.Down {
			goodMatch = true
		}
		if !goodMatch {
			penalty = directionPenalty
		}
	}

	return distance + penalty + capacityPenaltyX*view.Passengers
}

// EmergencyStopAll parks every car in maintenance and halts scheduling.
func (d *Dispatcher) EmergencyStopAll() {
	d.sink.Emergency("EMERGENCY STOP COMMAND!")
	for _, car := range d.cars {
		car.SetMaintenance(true)
	}

	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
}

// ResumeAll clears maintenance fleet-wide and restarts scheduling.
func (d *Dispatcher) ResumeAll() {
	d.sink.Emergency("RESUMING OPERATION!")
	for _, car := range d.cars {
		car.SetMaintenance(false)
	}

	d.mu.Lock()
	if !d.running {
		d.running = true
		close(d.resumeCh)
		d.resumeCh = make(chan struct{})
	}
	d.mu.Unlock()
}

// SetMaintenance toggles maintenance on a single car.
func (d *Dispatcher) SetMaintenance(carID int, on bool) error {
	for _, car := range d.cars {
		if car.ID() == carID {
			car.SetMaintenance(on)
			return nil
		}
	}
	return fmt.Errorf("no car with id %d", carID)
}

// ListCars returns detached snapshots of every car, roster order.
func (d *Dispatcher) ListCars() []liftcar.Snapshot {
	snapshots := make([]liftcar.Snapshot, 0, len(d.cars))
	for _, car := range d.cars {
		snapshots = append(snapshots, car.Snapshot())
	}
	return snapshots
}

func (d *Dispatcher) QueueDepth() int {
	return len(d.ingress)
}

func (d *Dispatcher) TotalRequests() int64 {
	return d.totalRequests.Load()
}

func (d *Dispatcher) NumCars() int {
	return len(d.cars)
}

func (d *Dispatcher) logStatistics() {
	d.sink.Info(source, "Total requests handled: %d, queued: %d", d.totalRequests.Load(), d.QueueDepth())
	for _, view := range d.ListCars() {
		d.sink.Info(source, "Car %d: Floor %d, %s, %s, Passengers: %d",
			view.ID, view.Floor, view.Direction.String(), view.Status.String(), view.Passengers)
	}
}
