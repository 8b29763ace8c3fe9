package compositor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"barbridge/internal/domain"
)

func TestSubscribeKeymode(t *testing.T) {
	f := newFakeCompositor(t)
	c := newTestClient(t, f)

	ch, cancel, err := c.SubscribeKeymode(context.Background())
	require.NoError(t, err)
	defer cancel()

	f.events <- eventFrame{typ: evMode, payload: []byte(`{"change": "resize", "pango_markup": true}`)}

	select {
	case ev := <-ch:
		assert.Equal(t, domain.KeymodeEvent{Name: "resize", PangoMarkup: true}, ev)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for keymode event")
	}
}

func TestSubscribeKeymodeReplaysLatest(t *testing.T) {
	f := newFakeCompositor(t)
	c := newTestClient(t, f)

	ch1, cancel1, err := c.SubscribeKeymode(context.Background())
	require.NoError(t, err)
	defer cancel1()

	f.events <- eventFrame{typ: evMode, payload: []byte(`{"change": "resize"}`)}
	select {
	case <-ch1:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for first keymode event")
	}

	// A late subscriber is primed with the latest mode.
	ch2, cancel2, err := c.SubscribeKeymode(context.Background())
	require.NoError(t, err)
	defer cancel2()

	select {
	case ev := <-ch2:
		assert.Equal(t, "resize", ev.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for replayed keymode event")
	}
}

func TestWorkspaceAndKeymodeShareOneDispatcher(t *testing.T) {
	f := newFakeCompositor(t)
	c := newTestClient(t, f)

	_, cancelWs, err := c.SubscribeWorkspaces(context.Background())
	require.NoError(t, err)
	defer cancelWs()

	kmCh, cancelKm, err := c.SubscribeKeymode(context.Background())
	require.NoError(t, err)
	defer cancelKm()

	// The second registration resubscribed on a fresh connection for both
	// kinds; mode events still arrive.
	f.events <- eventFrame{typ: evMode, payload: []byte(`{"change": "default"}`)}
	select {
	case ev := <-kmCh:
		assert.Equal(t, "default", ev.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for keymode event after resubscribe")
	}
}
