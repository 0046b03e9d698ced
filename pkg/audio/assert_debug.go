//go:build looperdebug

package audio

import "fmt"

func clippingOverflow(v float64) {
	panic(fmt.Errorf("%w: %v", ErrClippingOverflow, v))
}
