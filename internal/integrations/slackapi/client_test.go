package slackapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/require"

	"slack-ai-bridge/internal/domain"
)

func newSlackServer(t *testing.T, routes map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for path, h := range routes {
		mux.HandleFunc(path, h)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, srv *httptest.Server, opts ...Option) *Client {
	t.Helper()
	api := slack.New("xoxb-test", slack.OptionAPIURL(srv.URL+"/"))
	c, err := New(api, opts...)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil)
	require.ErrorContains(t, err, "must not be nil")
}

// ---- history ----

func TestHistory_PaginatesAndTagsOrigin(t *testing.T) {
	var pages atomic.Int32
	srv := newSlackServer(t, map[string]http.HandlerFunc{
		"/conversations.replies": func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "C1", r.FormValue("channel"))
			require.Equal(t, "100.1", r.FormValue("ts"))
			if pages.Add(1) == 1 {
				require.Empty(t, r.FormValue("cursor"))
				writeJSON(w, `{"ok":true,"has_more":true,"response_metadata":{"next_cursor":"page2"},
					"messages":[{"type":"message","user":"U1","text":"<@UBOT> hi","ts":"100.1",
					"files":[{"id":"F1","name":"notes.txt","mimetype":"text/plain","filetype":"text"}]}]}`)
				return
			}
			require.Equal(t, "page2", r.FormValue("cursor"))
			writeJSON(w, `{"ok":true,"has_more":false,"messages":[
				{"type":"message","bot_id":"B1","text":"hello","ts":"100.2"},
				{"type":"message","subtype":"bot_message","text":"legacy","ts":"100.3"},
				{"type":"message","user":"U1","text":"more","ts":"100.4"}]}`)
		},
	})

	turns, err := newTestClient(t, srv).History(context.Background(), "C1", "100.1")
	require.NoError(t, err)
	require.Equal(t, int32(2), pages.Load())
	require.Len(t, turns, 4)
	require.Equal(t, domain.OriginHuman, turns[0].Origin)
	require.Equal(t, "<@UBOT> hi", turns[0].Text)
	require.Equal(t, []domain.FileRef{{ID: "F1", Name: "notes.txt", Mimetype: "text/plain", Filetype: "text"}}, turns[0].Files)
	require.Equal(t, domain.OriginBot, turns[1].Origin)
	require.Equal(t, domain.OriginBot, turns[2].Origin)
	require.Equal(t, domain.OriginHuman, turns[3].Origin)
	require.Equal(t, "100.4", turns[3].Timestamp)
}

func TestHistory_APIError(t *testing.T) {
	srv := newSlackServer(t, map[string]http.HandlerFunc{
		"/conversations.replies": func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, `{"ok":false,"error":"channel_not_found"}`)
		},
	})
	_, err := newTestClient(t, srv).History(context.Background(), "C1", "1.0")
	require.ErrorContains(t, err, "channel_not_found")
}

// ---- posting ----

func TestPostMessage_ThreadedText(t *testing.T) {
	var got atomic.Value
	srv := newSlackServer(t, map[string]http.HandlerFunc{
		"/chat.postMessage": func(w http.ResponseWriter, r *http.Request) {
			got.Store(r.FormValue("channel") + "|" + r.FormValue("thread_ts") + "|" + r.FormValue("text"))
			writeJSON(w, `{"ok":true,"channel":"C1","ts":"200.1"}`)
		},
	})
	require.NoError(t, newTestClient(t, srv).PostMessage(context.Background(), "C1", "100.1", "*hi*"))
	require.Equal(t, "C1|100.1|*hi*", got.Load())
}

func TestPostMessage_RetriesRateLimit(t *testing.T) {
	var hits atomic.Int32
	srv := newSlackServer(t, map[string]http.HandlerFunc{
		"/chat.postMessage": func(w http.ResponseWriter, _ *http.Request) {
			if hits.Add(1) == 1 {
				w.Header().Set("Retry-After", "0")
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			writeJSON(w, `{"ok":true,"channel":"C1","ts":"200.1"}`)
		},
	})
	require.NoError(t, newTestClient(t, srv).PostMessage(context.Background(), "C1", "1.0", "x"))
	require.Equal(t, int32(2), hits.Load())
}

func TestPostMessage_PermanentFailure(t *testing.T) {
	var hits atomic.Int32
	srv := newSlackServer(t, map[string]http.HandlerFunc{
		"/chat.postMessage": func(w http.ResponseWriter, _ *http.Request) {
			hits.Add(1)
			writeJSON(w, `{"ok":false,"error":"not_in_channel"}`)
		},
	})
	err := newTestClient(t, srv).PostMessage(context.Background(), "C1", "1.0", "x")
	require.ErrorContains(t, err, "not_in_channel")
	require.Equal(t, int32(1), hits.Load())
}

// ---- identity ----

func TestBotUserID_CachedAfterSuccess(t *testing.T) {
	var hits atomic.Int32
	srv := newSlackServer(t, map[string]http.HandlerFunc{
		"/auth.test": func(w http.ResponseWriter, _ *http.Request) {
			if hits.Add(1) == 1 {
				writeJSON(w, `{"ok":false,"error":"fatal_error"}`)
				return
			}
			writeJSON(w, `{"ok":true,"user_id":"UBOT","bot_id":"B1"}`)
		},
	})
	c := newTestClient(t, srv)

	_, err := c.BotUserID(context.Background())
	require.Error(t, err)

	id, err := c.BotUserID(context.Background())
	require.NoError(t, err)
	require.Equal(t, "UBOT", id)

	id, err = c.BotUserID(context.Background())
	require.NoError(t, err)
	require.Equal(t, "UBOT", id)
	require.Equal(t, int32(2), hits.Load())
}

// ---- files ----

func TestIsTextFile(t *testing.T) {
	require.True(t, IsTextFile(domain.FileRef{Mimetype: "text/plain"}))
	require.True(t, IsTextFile(domain.FileRef{Filetype: "python"}))
	require.True(t, IsTextFile(domain.FileRef{Filetype: "javascript"}))
	require.False(t, IsTextFile(domain.FileRef{Mimetype: "image/jpeg"}))
	require.False(t, IsTextFile(domain.FileRef{Filetype: "jpg"}))
	require.False(t, IsTextFile(domain.FileRef{}))
}

func TestReadFile_DownloadsPrivateURL(t *testing.T) {
	var srv *httptest.Server
	srv = newSlackServer(t, map[string]http.HandlerFunc{
		"/files.info": func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "F1", r.FormValue("file"))
			writeJSON(w, `{"ok":true,"file":{"id":"F1","name":"a.py","url_private":"`+srv.URL+`/download/F1"}}`)
		},
		"/download/F1": func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "Bearer xoxb-test", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte("print('hello')\n" + strings.Repeat("x", 100)))
		},
	})

	text, ok, err := newTestClient(t, srv, WithMaxFileBytes(20)).ReadFile(context.Background(),
		domain.FileRef{ID: "F1", Name: "a.py", Filetype: "python"})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "print('hello')\nxxxxx", text)
}

func TestReadFile_SkipsBinary(t *testing.T) {
	srv := newSlackServer(t, map[string]http.HandlerFunc{
		"/files.info": func(_ http.ResponseWriter, _ *http.Request) {
			t.Fatal("files.info must not be called for binary files")
		},
	})
	_, ok, err := newTestClient(t, srv).ReadFile(context.Background(), domain.FileRef{ID: "F2", Mimetype: "image/png"})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestReadFile_InfoError(t *testing.T) {
	srv := newSlackServer(t, map[string]http.HandlerFunc{
		"/files.info": func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, `{"ok":false,"error":"file_not_found"}`)
		},
	})
	_, _, err := newTestClient(t, srv).ReadFile(context.Background(), domain.FileRef{ID: "F3", Mimetype: "text/plain"})
	require.ErrorContains(t, err, "file_not_found")
}

// ---- mentions ----

func TestStripBotMention(t *testing.T) {
	require.Equal(t, "hello", StripBotMention("<@UBOT> hello", "UBOT"))
	require.Equal(t, "hello there", StripBotMention("hello <@UBOT>there", "UBOT"))
	require.Equal(t, "ask <@U2>", StripBotMention("<@UBOT|bridge> ask <@U2>", "UBOT"))
	require.Equal(t, "hi <@UBOT>", StripBotMention("<@U1> <@U2> hi <@UBOT>", ""))
	require.Equal(t, "", StripBotMention("<@UBOT>", "UBOT"))
}
