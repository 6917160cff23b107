package util_test

import (
	"fmt"
	"testing"

	"github.com/daqline/readoutcard/util"
)

func ExampleIntSliceToCSV() {
	fmt.Println(util.IntSliceToCSV([]int{1, 2, 3, 4, 5}))
	// Output: 1,2,3,4,5
}

func ExampleSetBit_msb() {
	out := util.SetBit(0, 31, true)
	fmt.Printf("%032b\n", out)
	// Output: 10000000000000000000000000000000
}

func TestIntSliceToCSVEmpty(t *testing.T) {
	out := util.IntSliceToCSV(nil)
	if out != "" {
		t.Errorf("expected empty string got %s", out)
	}
}

func TestGetBitRoundTrip(t *testing.T) {
	var w uint32
	for i := uint(0); i < 32; i += 3 {
		w = util.SetBit(w, i, true)
	}
	for i := uint(0); i < 32; i++ {
		expected := i%3 == 0
		if util.GetBit(w, i) != expected {
			t.Errorf("bit %d: expected %t got %t", i, expected, !expected)
		}
	}
}

func TestSetBitOff(t *testing.T) {
	w := util.SetBit(0xFFFFFFFF, 4, false)
	if util.GetBit(w, 4) {
		t.Error("expected bit 4 to be cleared")
	}
	if !util.GetBit(w, 5) {
		t.Error("expected bit 5 to be untouched")
	}
}
