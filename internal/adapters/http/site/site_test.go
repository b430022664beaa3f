package site

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSiteHandler(t *testing.T) {
	Convey("Given a site handler", t, func() {
		ctx := context.Background()
		mux := http.NewServeMux()

		Convey("When registering the site handler", func() {
			Register(ctx, mux)

			Convey("Then it should serve the prediction form on /ui/", func() {
				req := httptest.NewRequest("GET", "/ui/", nil)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)

				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldContainSubstring, "text/html")
				So(w.Body.String(), ShouldContainSubstring, `id="predictForm"`)
				So(w.Header().Get("Cache-Control"), ShouldEqual, "no-cache")
			})

			Convey("And it should serve the dashboard page", func() {
				req := httptest.NewRequest("GET", "/ui/dashboard.html", nil)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)

				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `id="riskStats"`)
			})

			Convey("And it should serve scripts", func() {
				for _, path := range []string{"/ui/app.js", "/ui/dashboard.js", "/ui/style.css"} {
					req := httptest.NewRequest("GET", path, nil)
					w := httptest.NewRecorder()
					mux.ServeHTTP(w, req)
					So(w.Code, ShouldEqual, http.StatusOK)
				}
			})

			Convey("And it should redirect /ui to /ui/", func() {
				req := httptest.NewRequest("GET", "/ui", nil)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)

				So(w.Code, ShouldEqual, http.StatusMovedPermanently)
			})

			Convey("And it should 404 on missing assets", func() {
				req := httptest.NewRequest("GET", "/ui/missing.js", nil)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)

				So(w.Code, ShouldEqual, http.StatusNotFound)
			})

			Convey("And it should not handle root / route", func() {
				req := httptest.NewRequest("GET", "/", nil)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)

				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestSiteHandlerWithNilMux(t *testing.T) {
	Convey("Given a nil mux", t, func() {
		ctx := context.Background()

		Convey("When registering the site handler", func() {
			Convey("Then it should panic", func() {
				So(func() {
					Register(ctx, nil)
				}, ShouldPanic)
			})
		})
	})
}
