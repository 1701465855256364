package liftcar

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/tiendc/go-deepcopy"

	"github.com/sonyalapina/ElevatorSystem/internal/liftcall"
	"github.com/sonyalapina/ElevatorSystem/internal/liftconsts"
	"github.com/sonyalapina/ElevatorSystem/internal/telemetry"
)

// Timing holds the simulated physical durations of one car.
type Timing struct {
	FloorTravel time.Duration
	DoorOpen    time.Duration
	DoorClose   time.Duration
	IdlePoll    time.Duration
}

// Car owns its state exclusively from its own control loop; the
// dispatcher only ever touches it through AddRequest, SetMaintenance and
// the locked snapshot accessors. No car knows about any other car.
type Car struct {
	id       int
	maxFloor int
	capacity int
	timing   Timing
	sink     *telemetry.Sink
	rng      *rand.Rand

	mu           sync.Mutex
	currentFloor int
	direction    liftconsts.Direction
	status       liftconsts.Status
	passengers   int
	targetFloors []int // sorted, unique
	pending      []liftcall.Request
	served       int
}

// Snapshot is a detached copy of one car's externally visible state.
type Snapshot struct {
	ID           int
	Floor        int
	Direction    liftconsts.Direction
	Status       liftconsts.Status
	Passengers   int
	TargetFloors []int
	PendingCount int
	Served       int
}

func NewCar(id, maxFloor, startFloor, capacity int, timing Timing, sink *telemetry.Sink) *Car {
	return &Car{
		id:           id,
		maxFloor:     maxFloor,
		capacity:     capacity,
		timing:       timing,
		sink:         sink,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano() + int64(id))),
		currentFloor: startFloor,
		direction:    liftconsts.Idle,
		status:       liftconsts.Stopped,
	}
}

func (c *Car) ID() int {
	return c.id
}

func (c *Car) MaxFloor() int {
	return c.maxFloor
}

func (c *Car) Capacity() int {
	return c.capacity
}

func (c *Car) Floor() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentFloor
}

func (c *Car) Direction() liftconsts.Direction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.direction
}

func (c *Car) Status() liftconsts.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Car) Passengers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.passengers
}

func (c *Car) Served() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.served
}

// Snapshot returns a copy detached from the car's internal slices, safe
// to hold after the lock is released.
func (c *Car) Snapshot() Snapshot {
	c.mu.Lock()
	view := Snapshot{
		ID:           c.id,
		Floor:        c.currentFloor,
		Direction:    c.direction,
		Status:       c.status,
		Passengers:   c.passengers,
		TargetFloors: c.targetFloors,
		PendingCount: len(c.pending),
		Served:       c.served,
	}
	c.mu.Unlock()

	detached := Snapshot{}
	if err := deepcopy.Copy(&detached, &view); err != nil {
		// Fall back to a manual slice copy, the struct is flat otherwise.
		detached = view
		detached.TargetFloors = append([]int(nil), view.TargetFloors...)
	}
	return detached
}

// AddRequest hands one request to this car. Called from the dispatcher
// goroutine; purely additive, the car's own loop picks the work up on
// its next pass.
func (c *Car) AddRequest(request liftcall.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if target, ok := request.Target(); ok {
		c.insertTarget(target)
		c.sink.Info(c.source(), "Added cab call for floor %d", target)
	}
	c.pending = append(c.pending, request)
	c.served++
}

// insertTarget keeps targetFloors sorted and unique. Caller holds the lock.
func (c *Car) insertTarget(floor int) {
	for i, existing := range c.targetFloors {
		if existing == floor {
			return
		}
		if existing > floor {
			c.targetFloors = append(c.targetFloors, 0)
			copy(c.targetFloors[i+1:], c.targetFloors[i:])
			c.targetFloors[i] = floor
			return
		}
	}
	c.targetFloors = append(c.targetFloors, floor)
}

// CanServe reports whether this car may take the request right now,
// given its direction, load and status.
func (c *Car) CanServe(request *liftcall.Request) bool {
	return CanServe(c.Snapshot(), c.capacity, request)
}

// CanServe is the pure eligibility rule over a state snapshot. An idle
// car takes anything; a moving car only takes requests it can pick up
// while continuing its sweep.
func CanServe(view Snapshot, capacity int, request *liftcall.Request) bool {
	if view.Status == liftconsts.Maintenance {
		return false
	}
	if view.Passengers >= capacity {
		return false
	}
	if view.Direction == liftconsts.Idle {
		return true
	}
	if request.Direction() != view.Direction {
		return false
	}
	if view.Direction == liftconsts.Up && request.Floor() >= view.Floor {
		return true
	}
	if view.Direction == liftconsts.Down && request.Floor() <= view.Floor {
		return true
	}
	return false
}

// SetMaintenance parks the car without clearing its commitments; leaving
// maintenance restores them.
func (c *Car) SetMaintenance(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if on {
		c.status = liftconsts.Maintenance
		c.sink.Info(c.source(), "Entering maintenance mode")
	} else {
		c.status = liftconsts.Stopped
		c.sink.Info(c.source(), "Leaving maintenance mode")
	}
	c.direction = liftconsts.Idle
}

// Start launches the car's control loop. The loop runs until the
// context is cancelled; cancellation during any wait exits promptly.
func (c *Car) Start(ctx context.Context, waitGroup *sync.WaitGroup) {
	c.sink.Info(c.source(), "Started at floor %d", c.Floor())

	waitGroup.Add(1)
	go func() {
		defer waitGroup.Done()
		for {
			if ctx.Err() != nil {
				c.sink.Info(c.source(), "Stopped, total requests served: %d", c.Served())
				return
			}

			c.determineDirection()

			if c.Direction() == liftconsts.Idle {
				c.settle()
				if !sleepFor(ctx, c.timing.IdlePoll) {
					c.sink.Info(c.source(), "Stopped, total requests served: %d", c.Served())
					return
				}
				continue
			}

			if !c.setMoving() {
				// Maintenance landed between the direction decision and
				// departure; stay put.
				continue
			}
			if !c.move(ctx) {
				c.sink.Info(c.source(), "Stopped, total requests served: %d", c.Served())
				return
			}
		}
	}()
}

// determineDirection picks where to go next. A car with no work goes
// idle; an idle car with work heads for its nearest target, ties broken
// toward the higher floor. A car in maintenance stays put.
func (c *Car) determineDirection() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == liftconsts.Maintenance {
		c.direction = liftconsts.Idle
		return
	}

	if len(c.targetFloors) == 0 && len(c.pending) == 0 {
		c.direction = liftconsts.Idle
		return
	}

	if c.direction == liftconsts.Idle {
		next, ok := c.nearestTarget()
		if !ok {
			next, ok = c.nearestPendingFloor()
		}
		if ok {
			if next > c.currentFloor {
				c.direction = liftconsts.Up
			} else {
				c.direction = liftconsts.Down
			}
		}
	}
}

// nearestTarget returns the committed floor closest to the current one.
// Caller holds the lock.
func (c *Car) nearestTarget() (int, bool) {
	if len(c.targetFloors) == 0 {
		return 0, false
	}

	higher, hasHigher := 0, false
	lower, hasLower := 0, false
	for _, floor := range c.targetFloors {
		if floor > c.currentFloor && !hasHigher {
			higher, hasHigher = floor, true
		}
		if floor < c.currentFloor {
			lower, hasLower = floor, true
		}
	}

	if !hasHigher && !hasLower {
		// Only the current floor itself is targeted.
		return c.currentFloor, true
	}
	if !hasHigher {
		return lower, true
	}
	if !hasLower {
		return higher, true
	}
	if higher-c.currentFloor <= c.currentFloor-lower {
		return higher, true
	}
	return lower, true
}

// nearestPendingFloor covers hall calls, which never enter the target
// set. Caller holds the lock.
func (c *Car) nearestPendingFloor() (int, bool) {
	best, found := 0, false
	for i := range c.pending {
		floor := c.pending[i].Floor()
		if !found {
			best, found = floor, true
			continue
		}
		distance := abs(floor - c.currentFloor)
		bestDistance := abs(best - c.currentFloor)
		if distance < bestDistance || (distance == bestDistance && floor > best) {
			best = floor
		}
	}
	return best, found
}

// move performs one inter-floor transit and a stop if the new floor has
// work. Returns false on cancellation.
func (c *Car) move(ctx context.Context) bool {
	if !sleepFor(ctx, c.timing.FloorTravel) {
		return false
	}

	c.mu.Lock()
	switch c.direction {
	case liftconsts.Up:
		c.currentFloor++
	case liftconsts.Down:
		c.currentFloor--
	}
	// Continuous sweep: reverse at the shaft boundaries regardless of
	// remaining work.
	if c.currentFloor >= c.maxFloor {
		c.currentFloor = c.maxFloor
		c.direction = liftconsts.Down
	}
	if c.currentFloor <= liftconsts.MinFloor {
		c.currentFloor = liftconsts.MinFloor
		c.direction = liftconsts.Up
	}
	floor := c.currentFloor
	direction := c.direction
	stopping := c.shouldStop()
	c.mu.Unlock()

	c.sink.Debug(c.source(), "Moving to floor %d (direction: %s)", floor, direction.String())

	if stopping {
		if !c.processStop(ctx) {
			return false
		}
		c.clearCurrentFloor()
	}
	return true
}

// shouldStop is true when the current floor is committed, or a pending
// hall call at this floor matches the travel direction. Caller holds
// the lock.
func (c *Car) shouldStop() bool {
	for _, floor := range c.targetFloors {
		if floor == c.currentFloor {
			return true
		}
	}
	if c.direction == liftconsts.Idle {
		return false
	}
	for i := range c.pending {
		request := &c.pending[i]
		if !request.IsInternal() && request.Floor() == c.currentFloor && request.Direction() == c.direction {
			return true
		}
	}
	return false
}

// processStop runs the stop/door cycle: open, dwell, let passengers out,
// close. Returns false on cancellation.
func (c *Car) processStop(ctx context.Context) bool {
	c.setStatus(liftconsts.Stopped)
	c.sink.Info(c.source(), "Stopping at floor %d", c.Floor())

	c.setStatus(liftconsts.DoorsOpen)
	c.sink.Info(c.source(), "Doors open at floor %d", c.Floor())
	if !sleepFor(ctx, c.timing.DoorOpen) {
		return false
	}

	c.mu.Lock()
	if c.rng.Float64() > 0.7 {
		alighting := c.rng.Intn(3)
		c.passengers -= alighting
		if c.passengers < 0 {
			c.passengers = 0
		}
		if alighting > 0 {
			c.sink.Debug(c.source(), "Passengers out: %d, remaining: %d", alighting, c.passengers)
		}
	}
	c.mu.Unlock()

	c.sink.Info(c.source(), "Doors closing at floor %d", c.Floor())
	c.setStatus(liftconsts.Stopped)
	return sleepFor(ctx, c.timing.DoorClose)
}

// clearCurrentFloor removes the floor just served from the target set
// and purges requests satisfied by this stop: hall calls here matching
// the travel direction, and cab calls whose destination is here.
func (c *Car) clearCurrentFloor() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, floor := range c.targetFloors {
		if floor == c.currentFloor {
			c.targetFloors = append(c.targetFloors[:i], c.targetFloors[i+1:]...)
			break
		}
	}

	kept := c.pending[:0]
	for i := range c.pending {
		request := c.pending[i]
		if target, ok := request.Target(); ok {
			if target == c.currentFloor {
				continue
			}
		} else if request.Floor() == c.currentFloor && request.Direction() == c.direction {
			continue
		}
		kept = append(kept, request)
	}
	c.pending = kept
}

// setStatus never overrides maintenance; only SetMaintenance leaves it.
func (c *Car) setStatus(status liftconsts.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == liftconsts.Maintenance {
		return
	}
	c.status = status
}

// setMoving marks the car as in transit unless maintenance won the race.
func (c *Car) setMoving() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == liftconsts.Maintenance {
		c.direction = liftconsts.Idle
		return false
	}
	c.status = liftconsts.Moving
	return true
}

// settle parks an idle car that was still flagged as moving.
func (c *Car) settle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == liftconsts.Moving {
		c.status = liftconsts.Stopped
	}
}

func (c *Car) source() string {
	return "Car-" + strconv.Itoa(c.id)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// sleepFor waits the given duration unless cancelled first.
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
