package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRequestID(t *testing.T) {
	Convey("Given a handler behind the request id middleware", t, func() {
		var seen string
		h := RequestID(zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = GetRequestID(r.Context())
			w.WriteHeader(http.StatusTeapot)
		}))

		Convey("When the caller supplies an id", func() {
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			req.Header.Set("X-Request-ID", "abc-123")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			Convey("Then it is propagated", func() {
				So(seen, ShouldEqual, "abc-123")
				So(rec.Header().Get("X-Request-ID"), ShouldEqual, "abc-123")
				So(rec.Code, ShouldEqual, http.StatusTeapot)
			})
		})

		Convey("When the caller supplies none", func() {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			Convey("Then one is generated", func() {
				So(seen, ShouldHaveLength, 36)
				So(rec.Header().Get("X-Request-ID"), ShouldEqual, seen)
			})
		})
	})
}

func TestRecover(t *testing.T) {
	Convey("Given a handler that panics", t, func() {
		h := Recover(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		}))

		Convey("Then the client gets a 500", func() {
			rec := httptest.NewRecorder()
			So(func() { h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil)) }, ShouldNotPanic)
			So(rec.Code, ShouldEqual, http.StatusInternalServerError)
		})
	})
}
