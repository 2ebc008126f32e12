package event

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

type recorder struct {
	got []Event
}

func (r *recorder) OnEvent(ev Event) {
	r.got = append(r.got, ev)
}

func kinds(evs []Event) []Kind {
	out := make([]Kind, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Kind)
	}
	return out
}

func TestFlushDeliversInOrderExactlyOnce(t *testing.T) {
	rec := &recorder{}
	q := NewQueue(rec)

	q.Push(Event{Kind: KindConnected})
	q.Push(Event{Kind: KindReadable, Data: []byte("a")})
	q.Push(Event{Kind: KindReadable, Data: []byte("b")})
	q.Push(Event{Kind: KindClosed})

	assert.Equal(t, 4, q.Flush())
	assert.Equal(t, []Kind{KindConnected, KindReadable, KindReadable, KindClosed}, kinds(rec.got))
	assert.Equal(t, []byte("a"), rec.got[1].Data)
	assert.Equal(t, []byte("b"), rec.got[2].Data)

	assert.Equal(t, 0, q.Flush())
	assert.Len(t, rec.got, 4)
}

func TestEventsPushedDuringFlushAreDeferred(t *testing.T) {
	var got []Kind
	q := &Queue{}
	q.Bind(ListenerFunc(func(ev Event) {
		got = append(got, ev.Kind)
		if ev.Kind == KindReadable {
			q.Push(Event{Kind: KindWritten})
		}
	}))

	q.Push(Event{Kind: KindReadable})
	q.Push(Event{Kind: KindClosed})

	assert.Equal(t, 2, q.Flush())
	assert.Equal(t, []Kind{KindReadable, KindClosed}, got)
	assert.Equal(t, 1, q.Len())

	assert.Equal(t, 1, q.Flush())
	assert.Equal(t, []Kind{KindReadable, KindClosed, KindWritten}, got)
}

func TestDiscardDuringFlushStops(t *testing.T) {
	var got []Kind
	q := &Queue{}
	q.Bind(ListenerFunc(func(ev Event) {
		got = append(got, ev.Kind)
		q.Discard()
	}))
	q.Push(Event{Kind: KindReadable})
	q.Push(Event{Kind: KindReadable})

	assert.Equal(t, 1, q.Flush())
	assert.Equal(t, []Kind{KindReadable}, got)
	assert.Equal(t, 0, q.Len())
}

func TestPushAfterDiscardDuringFlushIsDeferred(t *testing.T) {
	var got []Kind
	q := &Queue{}
	q.Bind(ListenerFunc(func(ev Event) {
		got = append(got, ev.Kind)
		if ev.Kind == KindReadable {
			q.Discard()
			q.Push(Event{Kind: KindWritten})
		}
	}))
	q.Push(Event{Kind: KindReadable})
	q.Push(Event{Kind: KindClosed})

	assert.Equal(t, 1, q.Flush())
	assert.Equal(t, []Kind{KindReadable}, got)
	assert.Equal(t, 1, q.Len())

	assert.Equal(t, 1, q.Flush())
	assert.Equal(t, []Kind{KindReadable, KindWritten}, got)
}

func TestNestedFlushDoesNotDeliverNewEvents(t *testing.T) {
	var got []Kind
	nested := -1
	q := &Queue{}
	q.Bind(ListenerFunc(func(ev Event) {
		got = append(got, ev.Kind)
		if ev.Kind == KindReadable {
			q.Push(Event{Kind: KindWritten})
			nested = q.Flush()
		}
	}))
	q.Push(Event{Kind: KindReadable})
	q.Push(Event{Kind: KindClosed})

	assert.Equal(t, 2, q.Flush())
	assert.Equal(t, 0, nested)
	assert.Equal(t, []Kind{KindReadable, KindClosed}, got)
	assert.Equal(t, 1, q.Len())
}

func TestUnboundQueueDropsEvents(t *testing.T) {
	q := NewQueue(nil)
	q.Push(Event{Kind: KindError, Err: errors.New("boom")})

	assert.Equal(t, 1, q.Flush())
	assert.Equal(t, 0, q.Len())

	var nilFunc ListenerFunc
	q.Bind(nilFunc)
	assert.Nil(t, q.Listener())
	q.Dispatch(Event{Kind: KindClosed})
}

func TestDiscardClearsWithoutDispatch(t *testing.T) {
	rec := &recorder{}
	q := NewQueue(rec)
	q.Push(Event{Kind: KindReadable})
	q.Push(Event{Kind: KindClosed})

	assert.Equal(t, 2, q.Discard())
	assert.Equal(t, 0, q.Flush())
	assert.Empty(t, rec.got)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "ACCEPT", KindAccept.String())
	assert.Equal(t, "LINK_FAILED", KindLinkFailed.String())
	assert.Equal(t, "UNKNOWN", Kind(200).String())
}
