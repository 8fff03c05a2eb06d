package state

import "errors"

var (
	ErrRecordSession = errors.New("state: record session")
	ErrUpdateSession = errors.New("state: update session")
	ErrQuerySession  = errors.New("state: query session")
)
