// Package zap adapts a *zap.Logger to kvbus.Logger.
package zap

import (
	"sort"

	"github.com/unkn0wn-root/kvbus"
	"go.uber.org/zap"
)

var _ kvbus.Logger = ZapLogger{}

// ZapLogger writes engine logs to L. An "err" field holding an error is
// emitted with zap.Error so it lands under zap's error key.
type ZapLogger struct{ L *zap.Logger }

// New names the logger "kvbus".
func New(l *zap.Logger) ZapLogger { return ZapLogger{L: l.Named("kvbus")} }

func (z ZapLogger) Debug(msg string, f kvbus.Fields) { z.L.Debug(msg, zf(f)...) }
func (z ZapLogger) Info(msg string, f kvbus.Fields)  { z.L.Info(msg, zf(f)...) }
func (z ZapLogger) Warn(msg string, f kvbus.Fields)  { z.L.Warn(msg, zf(f)...) }
func (z ZapLogger) Error(msg string, f kvbus.Fields) { z.L.Error(msg, zf(f)...) }

func zf(f kvbus.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]zap.Field, 0, len(f))
	for _, k := range keys {
		if err, ok := f[k].(error); ok && k == "err" {
			out = append(out, zap.Error(err))
			continue
		}
		out = append(out, zap.Any(k, f[k]))
	}
	return out
}
