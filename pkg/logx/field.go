package logx

import (
	"time"

	"github.com/rs/zerolog"
)

// A Field attaches one key/value pair to a log event. Fields apply in
// order, so a repeated key keeps the last value. Console output renders
// them as key=value; the file sink keeps them structured.
type Field func(e *zerolog.Event)

func String(key, val string) Field { return func(e *zerolog.Event) { e.Str(key, val) } }

func Int(key string, val int) Field { return func(e *zerolog.Event) { e.Int(key, val) } }

func Int64(key string, val int64) Field { return func(e *zerolog.Event) { e.Int64(key, val) } }

func Bool(key string, val bool) Field { return func(e *zerolog.Event) { e.Bool(key, val) } }

func Duration(key string, val time.Duration) Field {
	return func(e *zerolog.Event) { e.Dur(key, val) }
}

func Time(key string, val time.Time) Field { return func(e *zerolog.Event) { e.Time(key, val) } }

func Any(key string, val any) Field { return func(e *zerolog.Event) { e.Interface(key, val) } }

// Err is a no-op for nil errors so call sites don't have to guard.
func Err(err error) Field {
	return func(e *zerolog.Event) {
		if err != nil {
			e.Err(err)
		}
	}
}
