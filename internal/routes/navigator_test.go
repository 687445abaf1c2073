package routes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNavigatorCommitsLocation(t *testing.T) {
	nav := NewNavigator(surface(t, nil))
	assert.Nil(t, nav.Current())

	var seen []string
	nav.OnNavigate(func(loc Location) { seen = append(seen, loc.Path) })

	loc, err := nav.Navigate(context.Background(), "/editpack/42")
	require.NoError(t, err)
	assert.Equal(t, editPack, loc.Match.Entry.Page.ID)
	assert.Equal(t, "edit id=42", render(t, loc.View))

	cur := nav.Current()
	require.NotNil(t, cur)
	assert.Equal(t, "/editpack/42", cur.Path)
	assert.Equal(t, []string{"/editpack/42"}, seen)
}

func TestNavigatorUnmatchedKeepsCurrent(t *testing.T) {
	nav := NewNavigator(surface(t, nil))

	_, err := nav.Navigate(context.Background(), "/stats")
	require.NoError(t, err)

	_, err = nav.Navigate(context.Background(), "/does-not-exist")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoMatch))
	assert.Equal(t, "/stats", nav.Current().Path)
}

func TestNavigatorLastWriteWins(t *testing.T) {
	gate := newGatedLoader()
	nav := NewNavigator(surface(t, gate.load))

	slow := make(chan error, 1)
	go func() {
		_, err := nav.Navigate(context.Background(), "/train/7")
		slow <- err
	}()

	require.Eventually(t, func() bool { return gate.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	_, err := nav.Navigate(context.Background(), "/stats")
	require.NoError(t, err)

	close(gate.release)
	err = <-slow
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStaleNavigation))
	assert.Equal(t, "/stats", nav.Current().Path)

	// The load itself finished, so navigating again is immediate.
	loc, err := nav.Navigate(context.Background(), "/train/8")
	require.NoError(t, err)
	assert.Equal(t, train, loc.Match.Entry.Page.ID)
	assert.Equal(t, int32(1), gate.calls.Load())
}

func TestNavigatorLoadFailureKeepsCurrent(t *testing.T) {
	gate := newGatedLoader()
	gate.err = errors.New("offline")
	close(gate.release)
	nav := NewNavigator(surface(t, gate.load))

	_, err := nav.Navigate(context.Background(), "/")
	require.NoError(t, err)

	_, err = nav.Navigate(context.Background(), "/train/1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "offline")
	assert.Equal(t, "/", nav.Current().Path)
}
