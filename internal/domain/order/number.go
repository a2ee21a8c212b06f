package order

import (
	"crypto/rand"
	"strconv"
	"strings"
	"time"
)

const (
	numberPrefix = "ORD"
	suffixLen    = 8
	base36       = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// NewNumber generates a human-readable order number of the form
// ORD-<timestamp>-<random>, with both parts in upper-case base36. The random
// suffix is wide enough that bursts within the same millisecond stay unique.
func NewNumber() string {
	ts := strings.ToUpper(strconv.FormatInt(time.Now().UnixMilli(), 36))

	buf := make([]byte, suffixLen)
	_, _ = rand.Read(buf)
	for i, b := range buf {
		buf[i] = base36[int(b)%len(base36)]
	}

	var sb strings.Builder
	sb.Grow(len(numberPrefix) + len(ts) + suffixLen + 2)
	sb.WriteString(numberPrefix)
	sb.WriteByte('-')
	sb.WriteString(ts)
	sb.WriteByte('-')
	sb.Write(buf)
	return sb.String()
}
