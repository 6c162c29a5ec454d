package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	service "github.com/okian/pairank/internal/app"
	"github.com/okian/pairank/internal/domain/ledger"
	"github.com/okian/pairank/internal/domain/rating"
	"github.com/okian/pairank/internal/domain/selection"
	. "github.com/smartystreets/goconvey/convey"
)

func TestStatusOf(t *testing.T) {
	Convey("Given domain errors wrapped by handlers", t, func() {
		cases := []struct {
			err    error
			status int
			code   string
		}{
			{Wrap("op", fmt.Errorf("x: %w", selection.ErrInsufficientItems)), http.StatusConflict, "insufficient_items"},
			{Wrap("op", fmt.Errorf("%w: 9", ledger.ErrNotFound)), http.StatusNotFound, "not_found"},
			{Wrap("op", service.ErrItemNotFound), http.StatusNotFound, "not_found"},
			{Wrap("op", fmt.Errorf("update: %w", rating.ErrNonFinite)), http.StatusUnprocessableEntity, "non_finite"},
			{NewKind("op", ErrBadRequest), http.StatusBadRequest, "bad_request"},
			{WrapKind("op", ErrLimitExceeded, errors.New("101 > 100")), http.StatusBadRequest, "limit_exceeded"},
			{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
		}

		Convey("Then each maps to its status and code", func() {
			for _, c := range cases {
				status, code := statusOf(c.err)
				So(status, ShouldEqual, c.status)
				So(code, ShouldEqual, c.code)
			}
		})
	})
}

func TestKindError(t *testing.T) {
	Convey("Given a kind error", t, func() {
		cause := errors.New("unexpected EOF")
		err := WrapKind("api.post_vote", ErrBadRequest, cause)

		Convey("Then it names the operation and matches both errors", func() {
			So(err.Error(), ShouldEqual, "api.post_vote: bad request: unexpected EOF")
			So(errors.Is(err, ErrBadRequest), ShouldBeTrue)
			So(errors.Is(err, cause), ShouldBeTrue)
			So(NewKind("op", ErrBadRequest).Error(), ShouldEqual, "op: bad request")
			So(Wrap("op", cause).Error(), ShouldEqual, "op: unexpected EOF")
		})
	})
}
