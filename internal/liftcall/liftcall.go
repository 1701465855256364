package liftcall

import (
	"fmt"
	"time"

	"github.com/sonyalapina/ElevatorSystem/internal/liftconsts"
)

type Request struct {
	//Golang doesnt support union types,
	//so we have to pass any of the below
	//structs
	Value any

	CreatedAt time.Time
}

// Hall call made from a landing: origin floor plus desired direction.
type HallCall struct {
	Floor     int
	Direction liftconsts.Direction
}

// Cab call made from inside a car: origin floor plus destination.
type CabCall struct {
	Floor  int
	Target int
}

func NewHallCall(floor int, direction liftconsts.Direction) Request {
	return Request{Value: HallCall{Floor: floor, Direction: direction}, CreatedAt: time.Now()}
}

func NewCabCall(floor, target int) Request {
	return Request{Value: CabCall{Floor: floor, Target: target}, CreatedAt: time.Now()}
}

func (r *Request) RequestType() string {
	switch r.Value.(type) {
	case HallCall:
		return "HallCall"
	case CabCall:
		return "CabCall"
	default:
		return "UnknownRequest"
	}
}

func (r *Request) Floor() int {
	switch call := r.Value.(type) {
	case HallCall:
		return call.Floor
	case CabCall:
		return call.Floor
	default:
		return 0
	}
}

// Direction of travel the request asks for. For a cab call it is derived
// from the destination relative to the origin.
func (r *Request) Direction() liftconsts.Direction {
	switch call := r.Value.(type) {
	case HallCall:
		return call.Direction
	case CabCall:
		if call.Target > call.Floor {
			return liftconsts.Up
		}
		return liftconsts.Down
	default:
		return liftconsts.Idle
	}
}

func (r *Request) Target() (int, bool) {
	call, ok := r.Value.(CabCall)
	if !ok {
		return 0, false
	}
	return call.Target, true
}

func (r *Request) IsInternal() bool {
	_, ok := r.Value.(CabCall)
	return ok
}

func (r *Request) String() string {
	switch call := r.Value.(type) {
	case HallCall:
		return fmt.Sprintf("HallCall{floor=%d, direction=%s}", call.Floor, call.Direction.String())
	case CabCall:
		return fmt.Sprintf("CabCall{from=%d, to=%d, direction=%s}", call.Floor, call.Target, r.Direction().String())
	default:
		return "UnknownRequest{}"
	}
}
