package scoring

import "errors"

// Sentinel kinds for scoring and model errors.
var (
	ErrScoring      = errors.New("scoring failed")
	ErrInvalidModel = errors.New("invalid model artifact")
	ErrDataset      = errors.New("invalid dataset")
)
