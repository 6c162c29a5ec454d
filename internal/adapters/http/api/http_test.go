package api_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/okian/pairank/internal/adapters/http/api"
	service "github.com/okian/pairank/internal/app"
	"github.com/okian/pairank/internal/domain/reliability"
	"github.com/okian/pairank/internal/domain/selection"
	"github.com/okian/pairank/internal/domain/types"
	"github.com/okian/pairank/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func newTestHandler(opts ...api.Option) (http.Handler, *service.Service) {
	svc := service.New(service.WithSelector(selection.New(selection.WithSeed(7))))
	So(svc.Start(context.Background()), ShouldBeNil)
	return api.NewServer(svc, opts...).Handler(context.Background()), svc
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(w *httptest.ResponseRecorder, v any) {
	So(json.Unmarshal(w.Body.Bytes(), v), ShouldBeNil)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Fields  []struct {
		Field string `json:"field"`
	} `json:"fields"`
}

func TestServer_Operational(t *testing.T) {
	Convey("Given the API", t, func() {
		h, svc := newTestHandler()
		defer svc.Stop()

		Convey("Health reports ok", func() {
			w := do(h, "GET", "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"ok"`)
		})

		Convey("Health reports 503 once the service stops", func() {
			svc.Stop()
			w := do(h, "GET", "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			So(w.Body.String(), ShouldContainSubstring, `"starting"`)
		})

		Convey("Metrics are served in the Prometheus format", func() {
			do(h, "GET", "/healthz", "")
			w := do(h, "GET", "/metrics", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "pairank_")
		})

		Convey("Stats are JSON", func() {
			w := do(h, "GET", "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var stats map[string]any
			decodeBody(w, &stats)
			So(stats["started"], ShouldEqual, true)
		})

		Convey("Unknown routes are 404", func() {
			So(do(h, "GET", "/nope", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestServer_Session(t *testing.T) {
	Convey("Given the API with no items", t, func() {
		h, svc := newTestHandler(api.WithMaxRankingsLimit(50))
		defer svc.Stop()

		Convey("A pair cannot be selected", func() {
			w := do(h, "GET", "/pair", "")
			So(w.Code, ShouldEqual, http.StatusConflict)
			var e apiError
			decodeBody(w, &e)
			So(e.Code, ShouldEqual, "insufficient_items")
		})

		Convey("Undo has nothing to do", func() {
			So(do(h, "POST", "/votes/undo", "").Code, ShouldEqual, http.StatusConflict)
		})

		Convey("When items are added", func() {
			w := do(h, "POST", "/items", `{"items":[{"id":"a","label":"a.jpg"},{"id":"b"},{"id":"c"}]}`)
			So(w.Code, ShouldEqual, http.StatusCreated)

			Convey("Then adding them again conflicts", func() {
				w := do(h, "POST", "/items", `{"items":[{"id":"a"}]}`)
				So(w.Code, ShouldEqual, http.StatusConflict)
			})

			Convey("Then invalid bodies are rejected", func() {
				So(do(h, "POST", "/items", `{"items":[]}`).Code, ShouldEqual, http.StatusBadRequest)
				So(do(h, "POST", "/items", `{"items":[{"id":"has space"}]}`).Code, ShouldEqual, http.StatusBadRequest)
				So(do(h, "POST", "/items", `{"unknown":1}`).Code, ShouldEqual, http.StatusBadRequest)
				So(do(h, "POST", "/items", `not json`).Code, ShouldEqual, http.StatusBadRequest)
			})

			Convey("Then a pair is served", func() {
				w := do(h, "GET", "/pair", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				var p types.Pair
				decodeBody(w, &p)
				So(p.Left.ID, ShouldNotEqual, p.Right.ID)
				So(p.Reliability, ShouldEqual, 50)
			})

			Convey("When a vote is posted", func() {
				w := do(h, "POST", "/votes", `{"winner_id":"a","loser_id":"b","request_id":"r1"}`)
				So(w.Code, ShouldEqual, http.StatusCreated)
				var res types.VoteResult
				decodeBody(w, &res)

				Convey("Then the new ratings are returned", func() {
					So(res.Vote.Seq, ShouldEqual, 1)
					So(res.Winner.Rating, ShouldAlmostEqual, 1016, 1e-9)
					So(res.Loser.Rating, ShouldAlmostEqual, 984, 1e-9)
				})

				Convey("Then a retry with the same request id is not counted", func() {
					w := do(h, "POST", "/votes", `{"winner_id":"a","loser_id":"b","request_id":"r1"}`)
					So(w.Code, ShouldEqual, http.StatusOK)
					var again types.VoteResult
					decodeBody(w, &again)
					So(again.Duplicate, ShouldBeTrue)
					So(again.Vote.Seq, ShouldEqual, 1)
				})

				Convey("Then the rankings page lists a first", func() {
					w := do(h, "GET", "/rankings?limit=2", "")
					So(w.Code, ShouldEqual, http.StatusOK)
					var page types.Page
					decodeBody(w, &page)
					So(page.Total, ShouldEqual, 3)
					So(page.Entries, ShouldHaveLength, 2)
					So(page.Entries[0].ItemID, ShouldEqual, "a")

					w = do(h, "GET", "/rankings?offset=2&limit=5", "")
					decodeBody(w, &page)
					So(page.Entries, ShouldHaveLength, 1)
					So(page.Entries[0].ItemID, ShouldEqual, "b")
					So(page.Entries[0].Rank, ShouldEqual, 3)
				})

				Convey("Then the item shows its rank", func() {
					w := do(h, "GET", "/items/b", "")
					So(w.Code, ShouldEqual, http.StatusOK)
					var it map[string]any
					decodeBody(w, &it)
					So(it["rank"], ShouldEqual, float64(3))
					So(it["votes"], ShouldEqual, float64(1))
				})

				Convey("Then the vote can be edited", func() {
					w := do(h, "PUT", "/votes/1", `{"winner_id":"b","loser_id":"a"}`)
					So(w.Code, ShouldEqual, http.StatusOK)
					var v types.Vote
					decodeBody(w, &v)
					So(v.Seq, ShouldEqual, 2)
					So(v.Supersedes, ShouldEqual, 1)

					w = do(h, "GET", "/votes?include_removed=true", "")
					var hist struct {
						Count int `json:"count"`
					}
					decodeBody(w, &hist)
					So(hist.Count, ShouldEqual, 2)
				})

				Convey("Then the vote can be removed once", func() {
					So(do(h, "DELETE", "/votes/1", "").Code, ShouldEqual, http.StatusOK)
					So(do(h, "DELETE", "/votes/1", "").Code, ShouldEqual, http.StatusNotFound)
					So(do(h, "DELETE", "/votes/abc", "").Code, ShouldEqual, http.StatusBadRequest)
				})

				Convey("Then undo reverts it", func() {
					So(do(h, "POST", "/votes/undo", "").Code, ShouldEqual, http.StatusOK)
					w := do(h, "GET", "/votes", "")
					var hist struct {
						Count int `json:"count"`
					}
					decodeBody(w, &hist)
					So(hist.Count, ShouldEqual, 0)
				})

				Convey("Then removing an item drops its votes", func() {
					w := do(h, "DELETE", "/items/a", "")
					So(w.Code, ShouldEqual, http.StatusOK)
					var resp struct {
						RemovedVotes []types.Vote `json:"removed_votes"`
					}
					decodeBody(w, &resp)
					So(resp.RemovedVotes, ShouldHaveLength, 1)
					So(do(h, "GET", "/items/a", "").Code, ShouldEqual, http.StatusNotFound)
				})

				Convey("Then the reliability report counts it", func() {
					w := do(h, "GET", "/reliability", "")
					So(w.Code, ShouldEqual, http.StatusOK)
					var rep types.Reliability
					decodeBody(w, &rep)
					So(rep.TotalVotes, ShouldEqual, 1)
					So(rep.ItemCount, ShouldEqual, 3)
					So(rep.Phase, ShouldEqual, "initial")
				})

				Convey("Then a rebuild finds no divergence", func() {
					w := do(h, "POST", "/rebuild", "")
					So(w.Code, ShouldEqual, http.StatusOK)
					So(w.Body.String(), ShouldContainSubstring, `"diverged":[]`)
				})
			})

			Convey("A self comparison is a validation error", func() {
				w := do(h, "POST", "/votes", `{"winner_id":"a","loser_id":"a"}`)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				var e apiError
				decodeBody(w, &e)
				So(e.Code, ShouldEqual, "validation_error")
				So(e.Fields[0].Field, ShouldEqual, "loser_id")
			})

			Convey("A vote for an unknown item is 404", func() {
				So(do(h, "POST", "/votes", `{"winner_id":"a","loser_id":"zz"}`).Code, ShouldEqual, http.StatusNotFound)
			})

			Convey("Rankings limits are enforced", func() {
				So(do(h, "GET", "/rankings?limit=0", "").Code, ShouldEqual, http.StatusBadRequest)
				So(do(h, "GET", "/rankings?limit=x", "").Code, ShouldEqual, http.StatusBadRequest)
				So(do(h, "GET", "/rankings?offset=-1", "").Code, ShouldEqual, http.StatusBadRequest)
				w := do(h, "GET", "/rankings?limit=51", "")
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				var e apiError
				decodeBody(w, &e)
				So(e.Code, ShouldEqual, "limit_exceeded")
			})

			Convey("History rejects a malformed flag", func() {
				So(do(h, "GET", "/votes?include_removed=maybe", "").Code, ShouldEqual, http.StatusBadRequest)
			})
		})
	})
}

// brokenRankings fails every rankings query.
type brokenRankings struct{ *service.Service }

func (brokenRankings) Rankings(context.Context, int, int) (types.Page, error) {
	return types.Page{}, fmt.Errorf("index: %w", errors.New("corrupt"))
}

func (brokenRankings) Reliability(context.Context) (reliability.Report, error) {
	return reliability.Report{}, service.ErrNotStarted
}

func TestServer_Failures(t *testing.T) {
	Convey("Given dependencies that fail", t, func() {
		svc := service.New()
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()
		h := api.NewServer(brokenRankings{svc}).Handler(context.Background())

		Convey("Unexpected errors are 500 without details", func() {
			w := do(h, "GET", "/rankings", "")
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
			var e apiError
			decodeBody(w, &e)
			So(e.Code, ShouldEqual, "internal_error")
			So(e.Message, ShouldNotContainSubstring, "corrupt")
		})

		Convey("A stopped service is unavailable", func() {
			So(do(h, "GET", "/reliability", "").Code, ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}

func TestServer_RateLimit(t *testing.T) {
	Convey("Given a vote rate limit of two per minute", t, func() {
		h, svc := newTestHandler(api.WithRateLimit(2))
		defer svc.Stop()

		Convey("The third vote mutation is rejected", func() {
			codes := make([]int, 3)
			for i := range codes {
				codes[i] = do(h, "POST", "/votes/undo", "").Code
			}
			So(codes[0], ShouldEqual, http.StatusConflict)
			So(codes[1], ShouldEqual, http.StatusConflict)
			So(codes[2], ShouldEqual, http.StatusTooManyRequests)
		})

		Convey("Reads are not limited", func() {
			for range 5 {
				So(do(h, "GET", "/votes", "").Code, ShouldEqual, http.StatusOK)
			}
		})
	})
}

func TestServer_CORS(t *testing.T) {
	Convey("Given an allowed origin", t, func() {
		h, svc := newTestHandler(api.WithCORSOrigins([]string{"https://gallery.example"}))
		defer svc.Stop()

		Convey("Responses carry the CORS header", func() {
			req := httptest.NewRequest("GET", "/healthz", nil)
			req.Header.Set("Origin", "https://gallery.example")
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			So(w.Header().Get("Access-Control-Allow-Origin"), ShouldEqual, "https://gallery.example")
		})
	})
}
