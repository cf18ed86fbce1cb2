package domain

import (
	"encoding/base32"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var codeEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewCode returns prefix + base36 millisecond timestamp + eight random base32
// characters, e.g. "RSLZ3K9Q1AB7X2MQPD".
func NewCode(prefix string, now time.Time) string {
	id := uuid.New()
	suffix := codeEncoding.EncodeToString(id[:])[:8]
	return prefix + strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36)) + suffix
}
