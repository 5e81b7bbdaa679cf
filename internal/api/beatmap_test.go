package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"pp-tracker/internal/config"
	"pp-tracker/internal/domain"

	"github.com/rs/zerolog"
	. "github.com/smartystreets/goconvey/convey"
)

func TestBeatmapDownloader(t *testing.T) {
	Convey("Given a beatmap mirror", t, func() {
		var downloads atomic.Int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/75":
				downloads.Add(1)
				w.Write([]byte("osu file format v14\n[General]\n"))
			case "/76":
				w.WriteHeader(http.StatusOK)
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}))
		defer srv.Close()

		dir := filepath.Join(t.TempDir(), "cache")
		d := NewBeatmapDownloader(&config.Config{BeatmapURL: srv.URL, BeatmapCacheDir: dir}, zerolog.Nop())
		ctx := context.Background()

		Convey("When a beatmap is fetched twice", func() {
			first, err := d.Get(ctx, 75)
			So(err, ShouldBeNil)
			second, err := d.Get(ctx, 75)
			So(err, ShouldBeNil)

			Convey("Then it is downloaded once and served from disk", func() {
				So(downloads.Load(), ShouldEqual, int64(1))
				So(string(second.Data), ShouldEqual, string(first.Data))
				_, err := os.Stat(filepath.Join(dir, "75.osu"))
				So(err, ShouldBeNil)
			})
		})

		Convey("When the mirror does not know the beatmap", func() {
			_, err := d.Get(ctx, 1)
			So(errors.Is(err, domain.ErrBeatmapNotFound), ShouldBeTrue)
		})

		Convey("When the mirror returns an empty file", func() {
			_, err := d.Get(ctx, 76)
			So(errors.Is(err, domain.ErrBeatmapNotFound), ShouldBeTrue)
		})
	})
}
