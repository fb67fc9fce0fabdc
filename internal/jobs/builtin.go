package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuongbtq/job-boss/internal/domain"
)

func init() {
	RegisterBuiltin("sleep", func(Manifest) (Handler, error) { return HandlerFunc(runSleep), nil })
	RegisterBuiltin("math", func(Manifest) (Handler, error) { return HandlerFunc(runMath), nil })
}

func decodeArgs(args json.RawMessage, v any) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgs, err)
	}
	return nil
}

// runSleep naps for args.seconds or until the context ends
func runSleep(ctx context.Context, method string, args json.RawMessage) (any, error) {
	if method != "nap" {
		return nil, fmt.Errorf("%w: sleep#%s", domain.ErrUnknownMethod, method)
	}

	var in struct {
		Seconds float64 `json:"seconds"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}

	d := time.Duration(in.Seconds * float64(time.Second))
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return map[string]any{"slept": d.String()}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func runMath(ctx context.Context, method string, args json.RawMessage) (any, error) {
	switch method {
	case "is_prime":
		var in struct {
			N int64 `json:"n"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		return isPrime(ctx, in.N)
	case "sum":
		var in struct {
			Numbers []float64 `json:"numbers"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		var total float64
		for _, n := range in.Numbers {
			total += n
		}
		return total, nil
	default:
		return nil, fmt.Errorf("%w: math#%s", domain.ErrUnknownMethod, method)
	}
}

func isPrime(ctx context.Context, n int64) (bool, error) {
	if n < 2 {
		return false, nil
	}
	for d := int64(2); d*d <= n; d++ {
		if d%1024 == 0 && ctx.Err() != nil {
			return false, ctx.Err()
		}
		if n%d == 0 {
			return false, nil
		}
	}
	return true, nil
}
