package camera

import (
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// LumaStats returns the mean and population standard deviation of 8-bit luminance samples.
func LumaStats(gray []byte) (mean, std float64) {
	if len(gray) == 0 {
		return 0, 0
	}
	var sum, sq float64
	for _, v := range gray {
		f := float64(v)
		sum += f
		sq += f * f
	}
	n := float64(len(gray))
	mean = sum / n
	variance := sq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	return mean, math.Sqrt(variance)
}

// IsBlackFrame rejects underexposed frames (mean below meanThreshold) and flat
// frames (standard deviation below stdThreshold). An empty frame is black.
func IsBlackFrame(gray []byte, meanThreshold, stdThreshold float64) bool {
	if len(gray) == 0 {
		return true
	}
	mean, std := LumaStats(gray)
	return mean < meanThreshold || std < stdThreshold
}

// VideoIndices lists the numeric suffixes of the device nodes matching pattern
// (for example /dev/video*), sorted ascending.
func VideoIndices(pattern string) []int {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil
	}
	prefix := strings.TrimSuffix(pattern, "*")
	var out []int
	for _, m := range matches {
		if fi, err := os.Stat(m); err == nil && fi.IsDir() {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimPrefix(m, prefix))
		if err != nil || idx < 0 {
			continue
		}
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}
