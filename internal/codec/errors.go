package codec

import "errors"

// ErrCorruptRecord is wrapped into nudberr.CorruptRecord at package
// boundaries; kept as a plain sentinel here so codec has no dependency on
// the error taxonomy package.
var ErrCorruptRecord = errors.New("corrupt record")
