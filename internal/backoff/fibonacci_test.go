package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSequence_StartsAtOne(t *testing.T) {
	t.Parallel()

	s := New()
	require.Equal(t, 1, s.Value())
}

func TestSequence_FirstFewTerms(t *testing.T) {
	t.Parallel()

	// state starts at 1 (prev=0, cur=1). next = ((0+1-1)%60)+1 = 1, then
	// state packs (1<<8)|1, so next = ((1+1-1)%60)+1 = 2, and so on -
	// matches the original tool's FIB_NEXT macro term by term.
	s := New()
	want := []int{1, 2, 3, 5, 8, 13, 21, 34}
	for i, w := range want {
		got := s.Next()
		require.Equal(t, w, got, "term %d", i)
	}
}

func TestSequence_DurationMatchesNextInSeconds(t *testing.T) {
	t.Parallel()

	a := New()
	b := New()
	for i := 0; i < 20; i++ {
		wantSeconds := a.Next()
		gotDuration := b.Duration()
		require.Equal(t, time.Duration(wantSeconds)*time.Second, gotDuration)
	}
}

func TestSequence_NeverExceedsSixty(t *testing.T) {
	t.Parallel()

	s := New()
	for i := 0; i < 500; i++ {
		d := s.Next()
		require.GreaterOrEqual(t, d, 1)
		require.LessOrEqual(t, d, 60)
	}
}

func TestSequence_Reset(t *testing.T) {
	t.Parallel()

	s := New()
	for i := 0; i < 10; i++ {
		s.Next()
	}
	require.NotEqual(t, 1, s.Value())

	s.Reset()
	require.Equal(t, 1, s.Value())
}
