package extract

import (
	"context"
	"encoding/base64"
	"fmt"
	"github.com/PizzaHomicide/otakuin/internal/cache"
	"github.com/PizzaHomicide/otakuin/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

type fixture struct {
	srv         *httptest.Server
	playerHits  atomic.Int32
	gatewayHits atomic.Int32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /bocchi-episode-1/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<div class="server_option"><ul>
			<li class="east_player_option" data-post="42" data-nume="1" data-type="schtml"><span>Blogspot 720p</span></li>
			<li class="east_player_option" data-post="42" data-nume="2" data-type="schtml"><span>Player 480p</span></li>
			<li class="east_player_option" data-post="42" data-nume="3" data-type="schtml"><span>Broken</span></li>
		</ul></div>`)
	})
	mux.HandleFunc("POST /wp-admin/admin-ajax.php", func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("action") != "player_ajax" || r.FormValue("post") != "42" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		switch r.FormValue("nume") {
		case "1":
			fmt.Fprint(w, `<iframe src="https://www.blogger.com/video.g?token=abc"></iframe>`)
		case "2":
			fmt.Fprintf(w, `<iframe src="%s/utils/player/arch/xyz/"></iframe>`, f.srv.URL)
		default:
			fmt.Fprint(w, `<p>nothing here</p>`)
		}
	})
	mux.HandleFunc("GET /utils/player/arch/xyz/", func(w http.ResponseWriter, r *http.Request) {
		f.playerHits.Add(1)
		if r.Header.Get("Referer") == "" || r.Header.Get("Cookie") != regionCookie {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		fmt.Fprint(w, `<video><source src="https://cdn.example/v.mp4" type="video/mp4"></video>`)
	})
	mux.HandleFunc("GET /nonton-bocchi-episode-1/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<select class="mirror">
			<option value="">Pilih Server</option>
			<option value="%s">Mega 1080p</option>
			<option data-em="%s">Vidhide</option>
			<option value="bm90IGJhc2U2NCBodG1s">Garbage</option>
		</select>`,
			b64(`<iframe src="https://mega.example/e/1"></iframe>`),
			b64(`<iframe src="https://vidhide.example/v/2"></iframe>`))
	})
	mux.HandleFunc("GET /gateway/1", func(w http.ResponseWriter, r *http.Request) {
		f.gatewayHits.Add(1)
		fmt.Fprint(w, `<ul class="daftar_server">
			<li data-url="https://mirror-a.example/1">Mirror A</li>
			<li data-url="https://mirror-b.example/1">Mirror B</li>
		</ul>`)
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) extractor() *Extractor {
	memo := cache.NewTTLCache[PlayerResult](time.Minute, 16)
	player := NewPlayerResolver(f.srv.Client(), memo, PlayerOptions{Timeout: time.Second, Retries: 2, Backoff: time.Millisecond})
	return New(f.srv.Client(), player, []string{"127.0.0.1"})
}

func TestAjaxPlayerPage(t *testing.T) {
	f := newFixture(t)
	e := f.extractor()
	src := AjaxPlayerPage{
		PageURL: f.srv.URL + "/bocchi-episode-1/",
		AjaxURL: f.srv.URL + "/wp-admin/admin-ajax.php",
		Referer: f.srv.URL + "/",
	}

	embeds := e.Extract(context.Background(), src)
	assert.Equal(t, []domain.Embed{
		{Server: "Blogspot 720p", URL: "https://www.blogger.com/video.g?token=abc", Resolution: "720p"},
		{Server: "Player 480p", URL: "https://cdn.example/v.mp4", Resolution: "480p"},
	}, embeds)

	// The player page is memoized
	_ = e.Extract(context.Background(), src)
	assert.Equal(t, int32(1), f.playerHits.Load())
}

func TestAjaxPlayerPageWithoutOptions(t *testing.T) {
	f := newFixture(t)
	embeds := f.extractor().Extract(context.Background(), AjaxPlayerPage{PageURL: f.srv.URL + "/nonton-bocchi-episode-1/"})
	assert.NotNil(t, embeds)
	assert.Empty(t, embeds)
}

func TestMirrorSelectPage(t *testing.T) {
	f := newFixture(t)
	embeds := f.extractor().Extract(context.Background(), MirrorSelectPage{PageURL: f.srv.URL + "/nonton-bocchi-episode-1/"})

	assert.Equal(t, []domain.Embed{
		{Server: "Mega 1080p", URL: "https://mega.example/e/1", Resolution: "1080p"},
		{Server: "Vidhide", URL: "https://vidhide.example/v/2", Resolution: "default"},
	}, embeds)
}

func TestEncodedStreamList(t *testing.T) {
	f := newFixture(t)
	payload := b64(fmt.Sprintf(`[
		{"format": "720p", "url": ["https://www.streamtape.example/e/1", "%s/gateway/1"]},
		{"format": "360p", "url": "https://ok.example/v"}
	]`, f.srv.URL))

	embeds := f.extractor().Extract(context.Background(), EncodedStreamList{Payload: payload})
	assert.Equal(t, []domain.Embed{
		{Server: "streamtape", URL: "https://www.streamtape.example/e/1", Resolution: "720p"},
		{Server: "Mirror A", URL: "https://mirror-a.example/1", Resolution: "720p"},
		{Server: "Mirror B", URL: "https://mirror-b.example/1", Resolution: "720p"},
		{Server: "ok", URL: "https://ok.example/v", Resolution: "360p"},
	}, embeds)
	assert.Equal(t, int32(1), f.gatewayHits.Load())
}

func TestEncodedStreamListInvalidPayload(t *testing.T) {
	f := newFixture(t)
	for _, payload := range []string{"!!!", b64("not json"), b64(`{"format": "720p"}`)} {
		embeds := f.extractor().Extract(context.Background(), EncodedStreamList{Payload: payload})
		assert.NotNil(t, embeds)
		assert.Empty(t, embeds)
	}
}

func TestPlayerResolver(t *testing.T) {
	t.Run("RetriesTransientFailures", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hits.Add(1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			fmt.Fprint(w, `<video><source src="https://cdn.example/ok.mp4"></video>`)
		}))
		defer srv.Close()

		p := NewPlayerResolver(srv.Client(), cache.NewTTLCache[PlayerResult](time.Minute, 4),
			PlayerOptions{Timeout: time.Second, Retries: 2, Backoff: time.Millisecond})

		got, err := p.Resolve(context.Background(), srv.URL+"/utils/player/x/", "")
		require.NoError(t, err)
		assert.Equal(t, "https://cdn.example/ok.mp4", got)
		assert.Equal(t, int32(3), hits.Load())
	})

	t.Run("MemoizesFailures", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		p := NewPlayerResolver(srv.Client(), cache.NewTTLCache[PlayerResult](time.Minute, 4),
			PlayerOptions{Timeout: time.Second, Retries: 2, Backoff: time.Millisecond})

		_, err := p.Resolve(context.Background(), srv.URL+"/utils/player/x/", "")
		require.Error(t, err)
		assert.Equal(t, int32(3), hits.Load(), "one attempt plus two retries")

		_, err = p.Resolve(context.Background(), srv.URL+"/utils/player/x/", "")
		require.Error(t, err)
		assert.Equal(t, int32(3), hits.Load())
	})

	t.Run("NoVideoSourceIsNotRetried", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			fmt.Fprint(w, `<html><body>gone</body></html>`)
		}))
		defer srv.Close()

		p := NewPlayerResolver(srv.Client(), cache.NewTTLCache[PlayerResult](time.Minute, 4),
			PlayerOptions{Retries: 2, Backoff: time.Millisecond})

		_, err := p.Resolve(context.Background(), srv.URL+"/utils/player/x/", "")
		assert.ErrorIs(t, err, domain.ErrParseMismatch)
		assert.Equal(t, int32(1), hits.Load())
	})

	t.Run("RetriesAreCapped", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		p := NewPlayerResolver(srv.Client(), cache.NewTTLCache[PlayerResult](time.Minute, 4),
			PlayerOptions{Timeout: time.Second, Retries: 10, Backoff: time.Millisecond})

		_, err := p.Resolve(context.Background(), srv.URL+"/utils/player/x/", "")
		require.Error(t, err)
		assert.Equal(t, int32(1+maxPlayerRetries), hits.Load())
	})

	t.Run("SharedFetchOutlivesCancelledCaller", func(t *testing.T) {
		var hits atomic.Int32
		arrived := make(chan struct{}, 1)
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			select {
			case arrived <- struct{}{}:
			default:
			}
			<-release
			fmt.Fprint(w, `<video><source src="https://cdn.example/shared.mp4"></video>`)
		}))
		defer srv.Close()
		releaseOnce := sync.OnceFunc(func() { close(release) })
		defer releaseOnce()

		p := NewPlayerResolver(srv.Client(), cache.NewTTLCache[PlayerResult](time.Minute, 4),
			PlayerOptions{Timeout: 5 * time.Second, Backoff: time.Millisecond})
		playerURL := srv.URL + "/utils/player/x/"

		type result struct {
			url string
			err error
		}
		firstCtx, cancel := context.WithCancel(context.Background())
		first := make(chan result, 1)
		go func() {
			u, err := p.Resolve(firstCtx, playerURL, "")
			first <- result{u, err}
		}()
		<-arrived

		second := make(chan result, 1)
		go func() {
			u, err := p.Resolve(context.Background(), playerURL, "")
			second <- result{u, err}
		}()

		cancel()
		r1 := <-first
		assert.ErrorIs(t, r1.err, context.Canceled)

		releaseOnce()
		r2 := <-second
		require.NoError(t, r2.err)
		assert.Equal(t, "https://cdn.example/shared.mp4", r2.url)
		assert.Equal(t, int32(1), hits.Load())
	})
}

func TestResolutionOf(t *testing.T) {
	assert.Equal(t, "720p", resolutionOf("Blogspot 720p"))
	assert.Equal(t, "1080p", resolutionOf("FHD 1080p"))
	assert.Equal(t, "default", resolutionOf("Mega"))
	assert.Equal(t, "default", resolutionOf(""))
}

func TestHostLabel(t *testing.T) {
	assert.Equal(t, "streamtape", hostLabel("https://www.streamtape.com/e/1"))
	assert.Equal(t, "localhost", hostLabel("http://localhost:8080/v"))
	assert.Equal(t, "unknown", hostLabel("::"))
}
