package status

//Status represents job lifecycle state
type Status int

const (
	// Queued - initial value, set at upload time
	Queued Status = iota + 1
	// Processing - job is claimed by a worker
	Processing
	// Completed - final state, prediction written
	Completed
	// Failed - final state, error set
	Failed
)

var (
	statusName = map[Status]string{Queued: "queued", Processing: "processing",
		Completed: "completed", Failed: "failed"}
	nameStatus = map[string]Status{"queued": Queued, "processing": Processing,
		"completed": Completed, "failed": Failed}
)

func (st Status) String() string {
	return statusName[st]
}

// From returns status obj from string
func From(st string) Status {
	return nameStatus[st]
}

// Terminal returns true if no further transition is allowed from st
func (st Status) Terminal() bool {
	return st == Completed || st == Failed
}
