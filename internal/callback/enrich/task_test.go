package enrich

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/videoauto/mps-callback/internal/callback/domain"
)

const sourceSRT = `1
00:00:01,000 --> 00:00:03,000
你好

2
00:00:04,000 --> 00:00:06,000
再见
`

type fakeFetcher struct {
	body []byte
	err  error
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	return f.body, f.err
}

type fakeTranslator struct {
	out   string
	err   error
	calls int
}

func (f *fakeTranslator) Translate(ctx context.Context, markedText string) (string, error) {
	f.calls++
	return f.out, f.err
}

type fakePublisher struct {
	baseURL string
	err     error
	keys    []string
	bodies  []string
}

func (f *fakePublisher) Put(ctx context.Context, key string, body []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.keys = append(f.keys, key)
	f.bodies = append(f.bodies, string(body))
	return f.baseURL + "/" + key, nil
}

type fakeStore struct {
	err     error
	patches map[string]string
}

func (f *fakeStore) PatchTranslation(ctx context.Context, jobID, translatedURL string) error {
	if f.err != nil {
		return f.err
	}
	if f.patches == nil {
		f.patches = map[string]string{}
	}
	f.patches[jobID] = translatedURL
	return nil
}

func newFixture() (*fakeFetcher, *fakeTranslator, *fakePublisher, *fakeStore, *Runner) {
	fetcher := &fakeFetcher{body: []byte(sourceSRT)}
	translator := &fakeTranslator{out: "[LINE_1]Hello\n[LINE_2]Goodbye\n"}
	publisher := &fakePublisher{baseURL: "https://bucket.example.com"}
	store := &fakeStore{}
	runner := NewRunner(fetcher, translator, publisher, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return fetcher, translator, publisher, store, runner
}

func TestRun_Success(t *testing.T) {
	_, _, publisher, store, runner := newFixture()

	err := runner.Run(context.Background(), "T1", "https://bucket.example.com/subs/show/ep1.srt")
	require.NoError(t, err)

	require.Len(t, publisher.keys, 1)
	assert.Equal(t, "subs/show/en_ep1.srt", publisher.keys[0])
	assert.Contains(t, publisher.bodies[0], "00:00:01,000 --> 00:00:03,000")
	assert.Contains(t, publisher.bodies[0], "Hello")
	assert.NotContains(t, publisher.bodies[0], "你好")
	assert.Equal(t, "https://bucket.example.com/subs/show/en_ep1.srt", store.patches["T1"])
}

func TestRun_IsIdempotent(t *testing.T) {
	_, _, publisher, store, runner := newFixture()
	src := "https://bucket.example.com/subs/show/ep1.srt"

	require.NoError(t, runner.Run(context.Background(), "T1", src))
	first := store.patches["T1"]
	require.NoError(t, runner.Run(context.Background(), "T1", src))

	assert.Equal(t, first, store.patches["T1"])
	require.Len(t, publisher.keys, 2)
	assert.Equal(t, publisher.keys[0], publisher.keys[1])
}

func TestRun_FetchFailureShortCircuits(t *testing.T) {
	fetcher, translator, publisher, store, runner := newFixture()
	fetcher.err = errors.New("connect timeout")
	fetcher.body = nil

	err := runner.Run(context.Background(), "T1", "https://x/cn.srt")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrFetchFailed))
	assert.Zero(t, translator.calls)
	assert.Empty(t, publisher.keys)
	assert.Empty(t, store.patches)
}

func TestRun_UnparseableArtifactIsPermanent(t *testing.T) {
	fetcher, _, publisher, store, runner := newFixture()
	fetcher.body = []byte("not a subtitle file")

	err := runner.Run(context.Background(), "T1", "https://x/cn.srt")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTranslationFailed))
	assert.True(t, domain.IsPermanent(err))
	assert.Empty(t, publisher.keys)
	assert.Empty(t, store.patches)
}

func TestRun_TranslationFailureShortCircuits(t *testing.T) {
	_, translator, publisher, store, runner := newFixture()
	translator.err = errors.New("service unavailable")
	translator.out = ""

	err := runner.Run(context.Background(), "T1", "https://x/cn.srt")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTranslationFailed))
	assert.Empty(t, publisher.keys)
	assert.Empty(t, store.patches)
}

func TestRun_UnmarkedTranslatorOutputIsPermanent(t *testing.T) {
	_, translator, _, store, runner := newFixture()
	translator.out = "Sorry, I cannot help with that."

	err := runner.Run(context.Background(), "T1", "https://x/cn.srt")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTranslationFailed))
	assert.True(t, domain.IsPermanent(err))
	assert.Empty(t, store.patches)
}

func TestRun_PublishFailureLeavesRecordUntouched(t *testing.T) {
	_, _, publisher, store, runner := newFixture()
	publisher.err = errors.New("status 500")

	err := runner.Run(context.Background(), "T1", "https://x/cn.srt")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPublishFailed))
	assert.Empty(t, store.patches)
}

func TestRun_PatchFailurePropagatesPersistence(t *testing.T) {
	_, _, _, store, runner := newFixture()
	store.err = domain.ErrPersistence

	err := runner.Run(context.Background(), "T1", "https://x/cn.srt")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPersistence))
}

func TestRun_PermanentFetchFailureStaysPermanent(t *testing.T) {
	fetcher, _, _, _, runner := newFixture()
	fetcher.err = domain.NewPermanentError(errors.New("artifact returned status 404"))
	fetcher.body = nil

	err := runner.Run(context.Background(), "T1", "https://x/missing.srt")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrFetchFailed))
	assert.True(t, domain.IsPermanent(err))
}

func TestPublishKey(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{
			name: "regular source url",
			url:  "https://bucket.example.com/subs/show/ep1.srt",
			want: "subs/show/en_ep1.srt",
		},
		{
			name: "top-level file",
			url:  "https://bucket.example.com/cn.vtt",
			want: "en_cn.vtt",
		},
		{
			name: "unparseable url falls back to job-scoped key",
			url:  "://not-a-url",
			want: "en_subtitles/T9/en_T9.srt",
		},
		{
			name: "no path falls back to job-scoped key",
			url:  "https://bucket.example.com",
			want: "en_subtitles/T9/en_T9.srt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PublishKey(tt.url, "T9")
			assert.Equal(t, tt.want, got)
			// Deterministic across calls.
			assert.Equal(t, got, PublishKey(tt.url, "T9"))
		})
	}
}

func TestRun_OutputAlignsWithSourceCues(t *testing.T) {
	fetcher, translator, publisher, _, runner := newFixture()
	fetcher.body = []byte(sourceSRT)
	// Model dropped cue 2; the rebuilt document must keep cue 1 aligned and
	// simply omit the missing cue rather than shifting text across timings.
	translator.out = "[LINE_1]Hello\n"

	require.NoError(t, runner.Run(context.Background(), "T1", "https://x/subs/a.srt"))
	require.Len(t, publisher.bodies, 1)

	body := publisher.bodies[0]
	assert.True(t, strings.Contains(body, "1\n00:00:01,000 --> 00:00:03,000\nHello"))
	assert.NotContains(t, body, "00:00:04,000")
}
