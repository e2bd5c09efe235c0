package snsctx

import "context"

type ctxIndex int

const (
	ctxIndexVerbose ctxIndex = iota
	ctxIndexSensor
)

// IsVerbose reports whether raw bus frames should be dumped.
func IsVerbose(ctx context.Context) bool {
	val, ok := ctx.Value(ctxIndexVerbose).(bool)
	return ok && val
}

func SetVerbose(ctx context.Context, value bool) context.Context {
	return context.WithValue(ctx, ctxIndexVerbose, value)
}

// SensorName returns the sensor label attached by WithSensor, or an empty string.
func SensorName(ctx context.Context) string {
	name, _ := ctx.Value(ctxIndexSensor).(string)
	return name
}

// WithSensor labels log lines emitted below ctx with a sensor name; the CLI
// uses it when driving several sensors on one bus.
func WithSensor(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ctxIndexSensor, name)
}
