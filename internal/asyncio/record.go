package asyncio

import "time"

// Status is the lifecycle state of an OperationRecord.
type Status int

const (
	// InProgress is the only state in which a record lives in an EventSet's
	// active list.
	InProgress Status = iota
	// Succeed is transient: it exists only long enough for the Wait Engine
	// to unlink and free the record, so no record in either list carries it.
	// Runtimes report it from Poll and a CompleteFunc receives it as the
	// final status.
	Succeed
	// Fail and Cancel are the two terminal states a record can reach while
	// owned by an EventSet; both land in the failed list.
	Fail
	Cancel
)

func (s Status) String() string {
	switch s {
	case InProgress:
		return "IN_PROGRESS"
	case Succeed:
		return "SUCCEED"
	case Fail:
		return "FAIL"
	case Cancel:
		return "CANCEL"
	default:
		return "UNKNOWN"
	}
}

// AppSite identifies the call site that issued an operation: source file,
// enclosing function, and line number, captured at the caller of the
// enqueuing API.
type AppSite struct {
	File string
	Func string
	Line int
}

// Token is the opaque handle an OperationRecord holds into the Runtime. It
// answers two questions: has this completed, and what went wrong. A Token
// must be released back to the Runtime exactly once, on successful free or
// after diagnostics extraction.
type Token interface {
	// ID is a short, loggable identifier for the token; it carries no
	// lifecycle semantics of its own.
	ID() string
}

// OperationRecord is an immutable-after-submission descriptor for one
// in-flight asynchronous operation. It is fully populated by the issuer
// before being handed to an EventSet's Append, except for Counter, which
// Append assigns.
//
// No operation mutates a record after its completion has been observed,
// except to change Status and transplant it between an EventSet's lists.
type OperationRecord struct {
	Counter    uint64
	APIName    string
	AppSite    AppSite
	AppVersion string
	Timestamp  time.Time
	Token      Token
	Status     Status

	prev, next *OperationRecord
	owner      *EventList
}

// NewOperationRecord constructs a record ready for Append. Counter and
// Timestamp are left zero; the owning EventSet assigns both during Append.
func NewOperationRecord(apiName string, site AppSite, appVersion string, token Token) *OperationRecord {
	return &OperationRecord{
		APIName:    apiName,
		AppSite:    site,
		AppVersion: appVersion,
		Token:      token,
		Status:     InProgress,
	}
}
