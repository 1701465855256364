package liftdispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sonyalapina/ElevatorSystem/internal/liftcall"
	"github.com/sonyalapina/ElevatorSystem/internal/liftcar"
	"github.com/sonyalapina/ElevatorSystem/internal/liftconfig"
	"github.com/sonyalapina/ElevatorSystem/internal/liftconsts"
	"github.com/sonyalapina/ElevatorSystem/internal/telemetry"
)

const TEST_DELAY = 10 * time.Millisecond

func fastConfig(numCars, maxFloor int) liftconfig.Config {
	config := liftconfig.Default()
	config.NumCars = numCars
	config.MaxFloor = maxFloor
	config.FloorTravelTime = liftconfig.Duration(time.Millisecond)
	config.DoorOpenTime = liftconfig.Duration(time.Millisecond)
	config.DoorCloseTime = liftconfig.Duration(time.Millisecond)
	config.IdlePoll = liftconfig.Duration(time.Millisecond)
	config.RetryDelay = liftconfig.Duration(time.Millisecond)
	config.MaxRetryBackoff = liftconfig.Duration(5 * time.Millisecond)
	return config
}

// newTestDispatcher builds a dispatcher around an explicit roster so
// tests control every car's start floor.
func newTestDispatcher(cars []*liftcar.Car) *Dispatcher {
	return &Dispatcher{
		sink:            telemetry.NewDiscardSink(),
		cars:            cars,
		capacity:        liftconsts.DefaultCapacity,
		ingress:         make(chan pendingRequest, 16),
		retryDelay:      time.Millisecond,
		maxRetryBackoff: 5 * time.Millisecond,
		staleAfter:      3,
		running:         true,
		resumeCh:        make(chan struct{}),
	}
}

func idleCarAt(id, floor, maxFloor int) *liftcar.Car {
	timing := liftcar.Timing{
		FloorTravel: time.Millisecond,
		DoorOpen:    time.Millisecond,
		DoorClose:   time.Millisecond,
		IdlePoll:    time.Millisecond,
	}
	return liftcar.NewCar(id, maxFloor, floor, liftconsts.DefaultCapacity, timing, telemetry.NewDiscardSink())
}

func waitFor(t *testing.T, deadline time.Duration, condition func() bool, description string) {
	t.Helper()
	end := time.Now().Add(deadline)
	for time.Now().Before(end) {
		if condition() {
			return
		}
		time.Sleep(TEST_DELAY)
	}
	t.Errorf("Timed out waiting for %s", description)
}

func TestScoreIdleCarSameFloor(t *testing.T) {
	view := liftcar.Snapshot{Floor: 3, Direction: liftconsts.Idle, Passengers: 0}
	request := liftcall.NewHallCall(3, liftconsts.Up)

	if score := Score(view, &request); score != 0 {
		t.Errorf("Score = %d, expected 0", score)
	}
}

func TestScoreMovingAwayWithLoad(t *testing.T) {
	view := liftcar.Snapshot{Floor: 10, Direction: liftconsts.Down, Passengers: 2}
	request := liftcall.NewHallCall(12, liftconsts.Up)

	// distance 2 + direction penalty 10 + capacity penalty 4
	if score := Score(view, &request); score != 16 {
		t.Errorf("Score = %d, expected 16", score)
	}
}

func TestScoreEnRoutePickupHasNoPenalty(t *testing.T) {
	view := liftcar.Snapshot{Floor: 4, Direction: liftconsts.Up, Passengers: 0}
	request := liftcall.NewHallCall(6, liftconsts.Up)

	if score := Score(view, &request); score != 2 {
		t.Errorf("Score = %d, expected 2", score)
	}

	// A car already at the request floor counts as en route.
	atFloor := liftcar.Snapshot{Floor: 6, Direction: liftconsts.Up, Passengers: 0}
	if score := Score(atFloor, &request); score != 0 {
		t.Errorf("Score = %d, expected 0", score)
	}
}

func TestSelectBestCarPrefersNearest(t *testing.T) {
	carA := idleCarAt(1, 1, 10)
	carB := idleCarAt(2, 10, 10)
	d := newTestDispatcher([]*liftcar.Car{carA, carB})

	request := liftcall.NewHallCall(5, liftconsts.Up)
	best := d.selectBestCar(&request)

	if best == nil || best.ID() != carA.ID() {
		t.Fatalf("selectBestCar chose %v, expected car 1 (score 4 beats score 5)", best)
	}
}

func TestSelectBestCarSkipsMaintenance(t *testing.T) {
	carA := idleCarAt(1, 5, 10)
	carB := idleCarAt(2, 1, 10)
	carA.SetMaintenance(true)
	d := newTestDispatcher([]*liftcar.Car{carA, carB})

	request := liftcall.NewHallCall(5, liftconsts.Up)
	best := d.selectBestCar(&request)

	if best == nil || best.ID() != carB.ID() {
		t.Fatalf("selectBestCar returned a maintenance car")
	}

	carB.SetMaintenance(true)
	if d.selectBestCar(&request) != nil {
		t.Errorf("selectBestCar found a car with the whole fleet in maintenance")
	}
}

func TestAssignmentGoesToExactlyOneCar(t *testing.T) {
	carA := idleCarAt(1, 1, 10)
	carB := idleCarAt(2, 10, 10)
	d := newTestDispatcher([]*liftcar.Car{carA, carB})

	d.assign(context.Background(), pendingRequest{request: liftcall.NewHallCall(5, liftconsts.Up)})

	total := carA.Snapshot().PendingCount + carB.Snapshot().PendingCount
	if total != 1 {
		t.Errorf("Request landed in %d cars, expected exactly 1", total)
	}
}

func TestMissedRequestIsRetried(t *testing.T) {
	car := idleCarAt(1, 5, 10)
	car.SetMaintenance(true)
	d := newTestDispatcher([]*liftcar.Car{car})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d.assign(ctx, pendingRequest{request: liftcall.NewHallCall(5, liftconsts.Up)})

	// The retry goroutine must put the request back on the queue.
	waitFor(t, time.Second, func() bool {
		return len(d.ingress) == 1
	}, "missed request to re-enter the ingress queue")

	requeued := <-d.ingress
	if requeued.attempts != 1 {
		t.Errorf("attempts = %d, expected 1", requeued.attempts)
	}
}

func TestRetryBackoffGrowsAndCaps(t *testing.T) {
	d := newTestDispatcher(nil) // retryDelay 1ms, maxRetryBackoff 5ms

	if backoff := d.retryBackoff(1); backoff != time.Millisecond {
		t.Errorf("retryBackoff(1) = %v, expected 1ms", backoff)
	}
	if backoff := d.retryBackoff(3); backoff != 3*time.Millisecond {
		t.Errorf("retryBackoff(3) = %v, expected 3ms", backoff)
	}
	if backoff := d.retryBackoff(100); backoff != 5*time.Millisecond {
		t.Errorf("retryBackoff(100) = %v, expected the 5ms cap", backoff)
	}
}

// A request that keeps missing must count every attempt and raise the
// stale alarm exactly once, on the pass that crosses the threshold.
func TestRepeatedMissesEscalateOnce(t *testing.T) {
	car := idleCarAt(1, 5, 10)
	car.SetMaintenance(true)
	d := newTestDispatcher([]*liftcar.Car{car}) // staleAfter 3

	ctx := context.Background()
	pending := pendingRequest{request: liftcall.NewHallCall(5, liftconsts.Up)}

	staleTransitions := 0
	for round := 1; round <= d.staleAfter+2; round++ {
		wasStale := pending.stale
		d.assign(ctx, pending)
		pending = <-d.ingress

		if pending.attempts != round {
			t.Fatalf("attempts = %d after %d misses, expected %d", pending.attempts, round, round)
		}
		if pending.stale && !wasStale {
			staleTransitions++
			if round != d.staleAfter {
				t.Errorf("Request went stale on attempt %d, expected %d", round, d.staleAfter)
			}
		}
	}
	if staleTransitions != 1 {
		t.Errorf("Request went stale %d times, expected exactly once", staleTransitions)
	}
}

func TestStatisticsLogOncePerThreshold(t *testing.T) {
	d := newTestDispatcher(nil)

	if d.shouldLogStatistics() {
		t.Errorf("Statistics due with no requests submitted")
	}

	d.totalRequests.Store(10)
	if !d.shouldLogStatistics() {
		t.Errorf("Statistics not due at the 10th request")
	}
	// A retried request passing through the loop at the same total.
	if d.shouldLogStatistics() {
		t.Errorf("Statistics repeated at an unchanged total")
	}

	d.totalRequests.Store(20)
	if !d.shouldLogStatistics() {
		t.Errorf("Statistics not due at the 20th request")
	}
	d.totalRequests.Store(25)
	if d.shouldLogStatistics() {
		t.Errorf("Statistics due at a total off the threshold")
	}
}

func TestSubmitAndServeEndToEnd(t *testing.T) {
	config := fastConfig(2, 10)
	d := NewDispatcher(config, telemetry.NewDiscardSink())

	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	defer wg.Wait()
	defer cancel()

	d.Start(ctx, wg)

	if err := d.Submit(ctx, liftcall.NewHallCall(5, liftconsts.Up)); err != nil {
		t.Fatalf("Submit returned %v", err)
	}
	if d.TotalRequests() != 1 {
		t.Errorf("TotalRequests = %d, expected 1", d.TotalRequests())
	}

	waitFor(t, 2*time.Second, func() bool {
		for _, view := range d.ListCars() {
			if view.Served > 0 {
				return true
			}
		}
		return false
	}, "submitted request to reach a car")
}

func TestEmergencyStopAndResume(t *testing.T) {
	config := fastConfig(2, 10)
	d := NewDispatcher(config, telemetry.NewDiscardSink())

	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	defer wg.Wait()
	defer cancel()

	d.Start(ctx, wg)

	d.EmergencyStopAll()
	for _, view := range d.ListCars() {
		if view.Status != liftconsts.Maintenance {
			t.Errorf("Car %d status = %v after emergency stop, expected Maintenance", view.ID, view.Status)
		}
		if view.Direction != liftconsts.Idle {
			t.Errorf("Car %d direction = %v after emergency stop, expected Idle", view.ID, view.Direction)
		}
	}

	// Scheduling is halted: a submitted request reaches no car.
	if err := d.Submit(ctx, liftcall.NewHallCall(3, liftconsts.Up)); err != nil {
		t.Fatalf("Submit returned %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	for _, view := range d.ListCars() {
		if view.PendingCount != 0 {
			t.Errorf("Car %d was assigned a request during emergency stop", view.ID)
		}
	}

	// Idempotent in both directions.
	d.EmergencyStopAll()
	d.ResumeAll()
	d.ResumeAll()

	for _, view := range d.ListCars() {
		if view.Status == liftconsts.Maintenance {
			t.Errorf("Car %d still in maintenance after resume", view.ID)
		}
	}

	waitFor(t, 2*time.Second, func() bool {
		for _, view := range d.ListCars() {
			if view.Served > 0 {
				return true
			}
		}
		return false
	}, "queued request to be assigned after resume")
}

func TestSetMaintenanceSingleCar(t *testing.T) {
	config := fastConfig(2, 10)
	d := NewDispatcher(config, telemetry.NewDiscardSink())

	if err := d.SetMaintenance(2, true); err != nil {
		t.Fatalf("SetMaintenance(2, true) returned %v", err)
	}
	views := d.ListCars()
	if views[0].Status == liftconsts.Maintenance {
		t.Errorf("Car 1 entered maintenance, only car 2 was requested")
	}
	if views[1].Status != liftconsts.Maintenance {
		t.Errorf("Car 2 not in maintenance")
	}

	if err := d.SetMaintenance(99, true); err == nil {
		t.Errorf("SetMaintenance(99, true) = nil error, expected failure for unknown car")
	}
}

func TestStaggeredStartFloors(t *testing.T) {
	config := fastConfig(4, 20)
	d := NewDispatcher(config, telemetry.NewDiscardSink())

	expected := []int{1, 5, 10, 15}
	for i, view := range d.ListCars() {
		if view.Floor != expected[i] {
			t.Errorf("Car %d starts at floor %d, expected %d", view.ID, view.Floor, expected[i])
		}
	}
}

func TestSubmitCancelled(t *testing.T) {
	d := newTestDispatcher([]*liftcar.Car{idleCarAt(1, 1, 10)})
	d.ingress = make(chan pendingRequest) // unbuffered, forces backpressure

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := d.Submit(ctx, liftcall.NewHallCall(2, liftconsts.Up)); err == nil {
		t.Errorf("Submit with a cancelled context under backpressure returned nil error")
	}
}
