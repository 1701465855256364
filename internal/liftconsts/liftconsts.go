package liftconsts

const (
	MinFloor        = 1
	DefaultCapacity = 8
)

type Direction int

const (
	Down Direction = -1
	Idle Direction = 0
	Up   Direction = 1
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "Up"
	case Down:
		return "Down"
	case Idle:
		return "Idle"
	default:
		return "Undefined"
	}
}

type Status int

const (
	Stopped Status = iota // 0
	Moving
	DoorsOpen
	Maintenance
)

func (s Status) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case Moving:
		return "Moving"
	case DoorsOpen:
		return "DoorsOpen"
	case Maintenance:
		return "Maintenance"
	default:
		return "Undefined"
	}
}
