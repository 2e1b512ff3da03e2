package commands

import (
	"errors"
	"fmt"
	"strconv"
	"unicode"

	"tasksync/internal/controller"
	"tasksync/internal/queue"
	"tasksync/internal/service"
)

// TaskRef represents a parsed task reference.
type TaskRef struct {
	Pending bool // true for a queued task (q1, q 2)
	Num     int  // 1-based position in the list output
}

// ErrTaskRefRequired indicates no task reference was provided.
var ErrTaskRefRequired = errors.New("task reference required")

// ParseTaskRef parses a task reference from args.
//
// Parsing rules:
// 1. If first arg is all digits → backend task by number
// 2. If first arg is q<digits> (e.g., q1, q12) → queued task by number
// 3. If first arg is "q" and second arg is all digits → queued task (q 1)
// 4. If first arg is "q" with no second arg → error: task reference required
// 5. Otherwise → error: invalid task reference: <ref>
func ParseTaskRef(args []string) (TaskRef, error) {
	if len(args) == 0 {
		return TaskRef{}, ErrTaskRefRequired
	}

	firstArg := args[0]

	if isAllDigits(firstArg) {
		num, err := strconv.Atoi(firstArg)
		if err != nil {
			return TaskRef{}, fmt.Errorf("invalid task reference: %s", firstArg)
		}
		return TaskRef{Num: num}, nil
	}

	if len(firstArg) > 0 && firstArg[0] == 'q' {
		if len(firstArg) > 1 && isAllDigits(firstArg[1:]) {
			num, err := strconv.Atoi(firstArg[1:])
			if err != nil {
				return TaskRef{}, fmt.Errorf("invalid task reference: %s", firstArg)
			}
			return TaskRef{Pending: true, Num: num}, nil
		}

		if len(firstArg) == 1 {
			if len(args) < 2 {
				return TaskRef{}, ErrTaskRefRequired
			}
			if isAllDigits(args[1]) {
				num, err := strconv.Atoi(args[1])
				if err != nil {
					return TaskRef{}, fmt.Errorf("invalid task reference: %s", args[1])
				}
				return TaskRef{Pending: true, Num: num}, nil
			}
			return TaskRef{}, fmt.Errorf("invalid task reference: %s", args[1])
		}
	}

	return TaskRef{}, fmt.Errorf("invalid task reference: %s", firstArg)
}

// isAllDigits returns true if s consists only of ASCII digits and is non-empty.
func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r > unicode.MaxASCII || !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// ErrOutOfRange is returned when a reference points past the listing.
var ErrOutOfRange = errors.New("task number out of range")

// findTask returns the num-th backend task of a listing, as numbered by list.
func findTask(l controller.Listing, num int) (service.Task, error) {
	if num < 1 || num > len(l.Tasks) {
		return service.Task{}, fmt.Errorf("%w: %d", ErrOutOfRange, num)
	}
	return l.Tasks[num-1], nil
}

// findPending returns the num-th queued entry, as numbered by list (qN).
func findPending(pending []queue.Entry, num int) (queue.Entry, error) {
	if num < 1 || num > len(pending) {
		return queue.Entry{}, fmt.Errorf("%w: q%d", ErrOutOfRange, num)
	}
	return pending[num-1], nil
}
