package pending

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var t0 = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func TestPivotPrice(t *testing.T) {
	phi := d("0.618")

	assert.True(t, PivotPrice(d("100"), d("110"), phi).Equal(d("106.18")))
	assert.True(t, PivotPrice(d("100"), d("95"), phi).Equal(d("95")))
	assert.True(t, PivotPrice(d("100"), d("100"), phi).Equal(d("100")))

	assert.False(t, IsImmediate(d("100"), d("110")))
	assert.True(t, IsImmediate(d("100"), d("95")))
	assert.True(t, IsImmediate(d("100"), d("100")))
}

func TestTouched(t *testing.T) {
	assert.True(t, Touched(d("106.18"), d("106.18")))
	assert.True(t, Touched(d("105"), d("106.18")))
	assert.False(t, Touched(d("106.19"), d("106.18")))
}

func newOrder() *Order {
	return NewOrder("ETHUSDT", "ord-1", d("2000"), d("0.5"), d("3"), "volume_breakout", t0, 48*time.Hour)
}

func TestOrderTransitionsAreOneWay(t *testing.T) {
	cases := []struct {
		name  string
		first func(o *Order) error
		want  Status
	}{
		{name: "fill", first: func(o *Order) error { return o.Fill(d("0.5"), d("1999"), t0.Add(time.Hour)) }, want: StatusFilled},
		{name: "cancel", first: func(o *Order) error { return o.Cancel(t0.Add(time.Hour), "exchange cancelled") }, want: StatusCancelled},
		{name: "expire", first: func(o *Order) error { return o.Expire(t0.Add(48 * time.Hour)) }, want: StatusExpired},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := newOrder()
			require.NoError(t, tc.first(o))
			assert.Equal(t, tc.want, o.Status)

			err := o.Fill(d("0.5"), d("1999"), t0.Add(2*time.Hour))
			assert.True(t, errors.Is(err, ErrTransition))
			err = o.Cancel(t0.Add(2*time.Hour), "again")
			assert.True(t, errors.Is(err, ErrTransition))
			err = o.Expire(t0.Add(49 * time.Hour))
			assert.True(t, errors.Is(err, ErrTransition))
			assert.Equal(t, tc.want, o.Status, "terminal state must not change")
		})
	}
}

func TestOrderFillRequiresExecution(t *testing.T) {
	o := newOrder()
	err := o.Fill(decimal.Zero, d("2000"), t0)
	require.Error(t, err)
	assert.Equal(t, StatusOpen, o.Status)
}

func TestOrderExpiry(t *testing.T) {
	o := newOrder()
	assert.Equal(t, t0.Add(48*time.Hour), o.ExpiresAt)
	assert.False(t, o.IsDue(t0.Add(47*time.Hour)))
	assert.True(t, o.IsDue(t0.Add(48*time.Hour)))
	assert.True(t, o.Notional().Equal(d("1000")))
}

func TestBook(t *testing.T) {
	b := NewBook()
	require.NoError(t, b.Add(newOrder()))
	err := b.Add(newOrder())
	assert.True(t, errors.Is(err, ErrDuplicate))

	late := NewOrder("SOLUSDT", "ord-2", d("100"), d("2"), d("1"), "pullback", t0.Add(24*time.Hour), 48*time.Hour)
	require.NoError(t, b.Add(late))

	assert.Equal(t, 2, b.Len())
	assert.True(t, b.Reserved().Equal(d("1200")))
	assert.Equal(t, []string{"ETHUSDT", "SOLUSDT"}, b.Instruments())

	snap := b.Snapshot()
	snap[0].Status = StatusFilled
	o, _ := b.Get("ETHUSDT")
	assert.Equal(t, StatusOpen, o.Status, "snapshot must be a copy")

	b.Remove("ETHUSDT")
	assert.False(t, b.Has("ETHUSDT"))
	assert.True(t, b.Has("SOLUSDT"))
}
