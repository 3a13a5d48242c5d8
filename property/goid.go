package property

import (
	"runtime"
	"strconv"
	"strings"
)

// goroutineID parses the current goroutine's id out of the runtime stack
// header ("goroutine N [running]:").
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	s := strings.TrimPrefix(string(buf[:n]), "goroutine ")
	if i := strings.IndexByte(s, ' '); i >= 0 {
		s = s[:i]
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		panic("property: cannot parse goroutine id from stack header")
	}
	return id
}
