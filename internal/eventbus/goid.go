// SPDX-License-Identifier: MIT

package eventbus

import (
	"bytes"
	"runtime"
	"strconv"
)

// goroutineID parses the current goroutine's id from the runtime stack
// header ("goroutine 123 [running]:"). Handlers run on the publisher's
// goroutine, so a matching id inside a fan-out means re-entrant publish.
func goroutineID() uint64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	if i := bytes.IndexByte(buf, ' '); i > 0 {
		if id, err := strconv.ParseUint(string(buf[:i]), 10, 64); err == nil {
			return id
		}
	}
	return 0
}
