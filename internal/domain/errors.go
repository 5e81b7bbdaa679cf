package domain

import "errors"

var (
	ErrStorage             = errors.New("attribute storage failure")
	ErrFormat              = errors.New("malformed attribute sequence")
	ErrMisalignedSequences = errors.New("co-indexed attribute sequences differ in length")
	ErrUnknownMod          = errors.New("unknown mod")
	ErrMissingStatistic    = errors.New("missing hit statistic")
	ErrInvalidScore        = errors.New("invalid score")
	ErrCalculator          = errors.New("calculator failure")
	ErrBeatmapNotFound     = errors.New("beatmap not found")
)
