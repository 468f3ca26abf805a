// Package engine - options.go holds the strategy-settable runtime
// options.
//
// Options arrive through set_option with open-ended string keys; the
// known keys are enumerated here and unknown keys are logged and
// ignored.
package engine

import (
	"fmt"
	"log"
)

// Options are the strategy-tunable runtime switches.
type Options struct {
	// UseRealPrice records the use_real_price option. It is stored only;
	// matching uses the provider's bar prices as given either way.
	UseRealPrice bool

	// OrderVolumeRatio records the order_volume_ratio option. It is
	// stored only; no driver or matching step caps orders by bar volume.
	OrderVolumeRatio float64

	// AvoidFutureData clamps the end of data queries to the virtual clock.
	AvoidFutureData bool
}

// DefaultOptions returns the standard option values.
func DefaultOptions() Options {
	return Options{UseRealPrice: false, OrderVolumeRatio: 0.25, AvoidFutureData: true}
}

// Set applies one option by key. Unknown keys are logged and ignored;
// a known key with the wrong value type is an error.
func (o *Options) Set(key string, value any, logger *log.Logger) error {
	switch key {
	case "use_real_price":
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("engine: option %s wants bool, got %T", key, value)
		}
		o.UseRealPrice = b

	case "order_volume_ratio":
		f, ok := toFloat(value)
		if !ok {
			return fmt.Errorf("engine: option %s wants number, got %T", key, value)
		}
		o.OrderVolumeRatio = f

	case "avoid_future_data":
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("engine: option %s wants bool, got %T", key, value)
		}
		o.AvoidFutureData = b

	default:
		logger.Printf("[engine] unknown option %q ignored", key)
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
