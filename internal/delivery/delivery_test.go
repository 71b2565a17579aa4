package delivery

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"slack-ai-bridge/internal/domain"
)

type fakePoster struct {
	posts  []string
	failAt int
	err    error
}

func (f *fakePoster) PostMessage(_ context.Context, channelID, threadTS, text string) error {
	if f.err != nil && len(f.posts)+1 == f.failAt {
		return f.err
	}
	f.posts = append(f.posts, channelID+"|"+threadTS+"|"+text)
	return nil
}

func TestNew_ValidatesPoster(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

func TestDeliver_ConvertsAndPostsInOrder(t *testing.T) {
	p := &fakePoster{}
	d, err := New(p, WithLimiter(nil), WithChunkLimit(10))
	require.NoError(t, err)

	require.NoError(t, d.Deliver(context.Background(), "C1", "111.1", "**hello** world again"))
	require.Equal(t, []string{"C1|111.1|*hello*", "C1|111.1|world", "C1|111.1|again"}, p.posts)
}

func TestDeliver_LongReplyTwoChunks(t *testing.T) {
	p := &fakePoster{}
	d, err := New(p, WithLimiter(nil))
	require.NoError(t, err)

	require.NoError(t, d.Deliver(context.Background(), "C1", "1.0", strings.Repeat("a", 5000)))
	require.Len(t, p.posts, 2)
}

func TestDeliver_FailureAbortsRemaining(t *testing.T) {
	p := &fakePoster{failAt: 2, err: errors.New("channel_not_found")}
	d, err := New(p, WithLimiter(nil), WithChunkLimit(3000))
	require.NoError(t, err)

	err = d.Deliver(context.Background(), "C1", "1.0", strings.Repeat("a", 9000))
	require.Error(t, err)
	require.True(t, domain.IsKind(err, domain.ErrDeliveryFailed))
	require.Len(t, p.posts, 1)
}

func TestDeliver_CanceledContextWhilePacing(t *testing.T) {
	p := &fakePoster{}
	d, err := New(p)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = d.Deliver(ctx, "C1", "1.0", "hi")
	require.True(t, domain.IsKind(err, domain.ErrDeliveryFailed))
	require.Empty(t, p.posts)
}
