package audio

import "errors"

var (
	// ErrQueueEmpty is returned by ReadBlock when nothing is queued. Callers poll again later.
	ErrQueueEmpty = errors.New("block queue empty")
	// ErrQueueFull reports a drop-newest event on Enqueue.
	ErrQueueFull = errors.New("block queue full")
	// ErrBlockCheckedOut is returned by ReadBlock while a previous block has not been released.
	ErrBlockCheckedOut = errors.New("block already checked out")
	// ErrNoCheckedOutBlock is returned by ReleaseBuffer when nothing is checked out.
	ErrNoCheckedOutBlock = errors.New("no checked out block")
	// ErrClippingOverflow marks a soft clip result outside the 16-bit range.
	ErrClippingOverflow = errors.New("soft clip overflow")
)
