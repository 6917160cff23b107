// Package util contains misc internal utilities.
package util

import (
	"strconv"
	"strings"
)

// IntSliceToCSV convets a slice of ints to CSV formatted data.
// e.g., []int{1,2,3,4,5} => "1,2,3,4,5"
func IntSliceToCSV(is []int) string {
	s := make([]string, len(is))
	for i, v := range is {
		s[i] = strconv.Itoa(v)
	}

	return strings.Join(s, ",")
}

// GetBit returns the value of a given bit in a word
func GetBit(w uint32, bitIndex uint) bool {
	return (w>>bitIndex)&1 == 1
}

// SetBit returns w with the given bit set to on
func SetBit(w uint32, bitIndex uint, on bool) uint32 {
	if on {
		return w | (1 << bitIndex)
	}
	return w &^ (1 << bitIndex)
}
