package ncr

import (
	"fmt"
	"strconv"
	"strings"
)

const numberPrefix = "NCR-"

func FormatNumber(seq uint64) string {
	return fmt.Sprintf("%s%04d", numberPrefix, seq)
}

func ParseNumber(number string) (uint64, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(number))
	if !strings.HasPrefix(trimmed, numberPrefix) {
		return 0, fmt.Errorf("%w: invalid ncr number %q", ErrValidation, number)
	}
	seq, err := strconv.ParseUint(strings.TrimPrefix(trimmed, numberPrefix), 10, 64)
	if err != nil || seq == 0 {
		return 0, fmt.Errorf("%w: invalid ncr number %q", ErrValidation, number)
	}
	return seq, nil
}

// LooksLikeNumber distinguishes "NCR-0012" references from raw ids.
func LooksLikeNumber(ref string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(ref)), numberPrefix)
}
