package statistics

import (
	"fmt"
	"math"
	"strconv"
)

var sizeUnits = []string{"Bytes", "KB", "MB", "GB"}

// FormatSize renders a byte count with a binary unit and at most two decimals,
// e.g. "0 Bytes", "1.5 KB", "12.34 MB". Anything past gigabytes stays in GB.
func FormatSize(bytes int64) string {
	if bytes == 0 {
		return "0 Bytes"
	}

	i := 0
	div := 1.0
	for i < len(sizeUnits)-1 && math.Abs(float64(bytes)) >= div*1024 {
		div *= 1024
		i++
	}

	value := math.Round(float64(bytes)/div*100) / 100
	return strconv.FormatFloat(value, 'f', -1, 64) + " " + sizeUnits[i]
}

// CompressionRatio returns the size reduction in percent with one decimal.
// Negative values mean the compressed artifact is larger than the original.
func CompressionRatio(originalSize, compressedSize int64) string {
	if originalSize == 0 {
		return "0.0"
	}
	ratio := float64(originalSize-compressedSize) / float64(originalSize) * 100
	// ties round away from zero
	return fmt.Sprintf("%.1f", math.Round(ratio*10)/10)
}
