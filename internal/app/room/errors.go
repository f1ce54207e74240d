package room

import "errors"

var ErrNotHost = errors.New("only the host can do this")
