package emitter

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/infinityplans/portal/docstore"
)

func TestEmitSynchronous(t *testing.T) {
	c := qt.New(t)
	e := New()

	// nobody listening, the event is dropped
	e.Emit(&PermissionError{Path: "users/INF001", Operation: docstore.OpGet})

	var got []*PermissionError
	off := e.On(func(perr *PermissionError) { got = append(got, perr) })
	e.Emit(&PermissionError{Path: "users/INF001", Operation: docstore.OpGet})
	c.Assert(got, qt.HasLen, 1)
	c.Assert(got[0].Time.IsZero(), qt.IsFalse)

	off()
	off()
	e.Emit(&PermissionError{Path: "users/INF002", Operation: docstore.OpList})
	c.Assert(got, qt.HasLen, 1)
	c.Assert(e.Listeners(), qt.Equals, 0)
}

func TestDefaultIsSingleton(t *testing.T) {
	c := qt.New(t)
	c.Assert(Default(), qt.Equals, Default())
}

func TestDiagnostics(t *testing.T) {
	c := qt.New(t)
	e := New()
	d := NewDiagnostics(e, 2)
	defer d.Close()

	ch, disconnect := d.Connect()
	e.Emit(&PermissionError{Path: "a/1", Operation: docstore.OpGet, Err: docstore.ErrPermissionDenied})
	perr := <-ch
	c.Assert(perr.Path, qt.Equals, "a/1")
	c.Assert(perr, qt.ErrorIs, docstore.ErrPermissionDenied)
	disconnect()

	e.Emit(&PermissionError{Path: "a/2", Operation: docstore.OpGet})
	e.Emit(&PermissionError{Path: "a/3", Operation: docstore.OpList})
	recent := d.Recent()
	c.Assert(recent, qt.HasLen, 2)
	c.Assert(recent[0].Path, qt.Equals, "a/2")
	c.Assert(recent[1].Path, qt.Equals, "a/3")

	d.Close()
	c.Assert(e.Listeners(), qt.Equals, 0)
}
