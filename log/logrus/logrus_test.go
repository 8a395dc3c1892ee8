package logrus

import (
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/unkn0wn-root/kvbus"
)

func TestLogrusLogger(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetOutput(io.Discard)
	base.SetLevel(logrus.DebugLevel)
	l := New(base)

	l.Debug("local cache created", kvbus.Fields{"name": "users"})
	l.Error("close failed", kvbus.Fields{"err": errors.New("boom")})

	if len(hook.Entries) != 2 {
		t.Fatalf("got %d entries", len(hook.Entries))
	}
	first := hook.Entries[0]
	if first.Level != logrus.DebugLevel || first.Data["name"] != "users" || first.Data["component"] != "kvbus" {
		t.Fatalf("first entry = %+v", first)
	}
	last := hook.LastEntry()
	if err, _ := last.Data[logrus.ErrorKey].(error); err == nil || err.Error() != "boom" {
		t.Fatalf("error field = %v", last.Data)
	}
	if _, ok := last.Data["err"]; ok {
		t.Fatal("err field should be renamed")
	}
}
