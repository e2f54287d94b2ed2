package ui

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestWatcher(t *testing.T) (*ThemeWatcher, chan bool, chan error) {
	t.Helper()
	events := make(chan bool)
	errs := make(chan error)
	ctx, cancel := context.WithCancel(context.Background())
	tw := followTheme(ctx, cancel, events, errs)
	t.Cleanup(tw.Close)
	return tw, events, errs
}

func receiveTheme(t *testing.T, tw *ThemeWatcher) bool {
	t.Helper()
	select {
	case v := <-tw.Updates():
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for theme change")
		return false
	}
}

func TestThemeWatcherForwardsChanges(t *testing.T) {
	tw, events, _ := startTestWatcher(t)

	events <- false
	assert.False(t, receiveTheme(t, tw))
	events <- true
	assert.True(t, receiveTheme(t, tw))
}

func TestThemeWatcherCollapsesRepeats(t *testing.T) {
	tw, events, _ := startTestWatcher(t)

	events <- true
	require.True(t, receiveTheme(t, tw))
	events <- true
	events <- false

	assert.False(t, receiveTheme(t, tw))
	select {
	case v := <-tw.Updates():
		t.Fatalf("unexpected extra change %v", v)
	default:
	}
}

func TestThemeWatcherKeepsNewestWhenConsumerLags(t *testing.T) {
	tw, events, errs := startTestWatcher(t)

	events <- true
	events <- false
	events <- true
	// Unbuffered: this send completes only once the loop is back in select.
	errs <- nil

	assert.Len(t, tw.updates, 1)
	assert.True(t, receiveTheme(t, tw))
}

func TestThemeWatcherSurvivesErrors(t *testing.T) {
	tw, events, errs := startTestWatcher(t)

	errs <- errors.New("dbus hiccup")
	events <- false
	assert.False(t, receiveTheme(t, tw))
}

func TestThemeWatcherCloseIsIdempotent(t *testing.T) {
	tw, _, _ := startTestWatcher(t)
	tw.Close()
	tw.Close()
}

func TestListenForThemeNilWatcher(t *testing.T) {
	assert.Nil(t, listenForTheme(nil))
}

func TestListenForThemeDeliversMsg(t *testing.T) {
	tw, events, _ := startTestWatcher(t)
	cmd := listenForTheme(tw)
	require.NotNil(t, cmd)

	go func() { events <- false }()
	msg := cmd()
	assert.Equal(t, themeChangedMsg{dark: false}, msg)
}
