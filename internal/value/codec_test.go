package value_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opendragon/nimo/internal/value"
)

func roundTrip(t *testing.T, v value.Value) value.Value {
	t.Helper()

	buf, err := value.Encode(nil, v)
	require.NoError(t, err)

	got, n, err := value.Decode(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)

	return got
}

func TestRoundTripScalars(t *testing.T) {
	cases := []value.Value{
		value.NewLogical(true),
		value.NewLogical(false),
		value.NewInteger(0),
		value.NewInteger(-1),
		value.NewInteger(127),
		value.NewInteger(128),
		value.NewInteger(-32768),
		value.NewInteger(1 << 40),
		value.NewInteger(math.MinInt64),
		value.NewInteger(math.MaxInt64),
		value.NewString(""),
		value.NewString("logic data"),
		value.NewBlob([]byte{0, 1, 2, 255}),
		value.NewAddress(0x0a000001),
	}

	for _, c := range cases {
		got := roundTrip(t, c)
		require.True(t, value.Equal(c, got), "round-trip mismatch for %v", c)
	}
}

func TestRoundTripDoubleBitIdentical(t *testing.T) {
	cases := []float64{
		0,
		math.Copysign(0, -1),
		1.5,
		-1.5,
		math.Inf(1),
		math.Inf(-1),
		math.NaN(),
	}

	for _, d := range cases {
		got := roundTrip(t, value.NewDouble(d))
		gd, ok := got.AsFloat64()
		require.True(t, ok)

		require.Equal(t, math.Float64bits(d), math.Float64bits(gd))
	}
}

func TestRoundTripArray(t *testing.T) {
	arr := value.NewArray([]value.Value{
		value.NewLogical(true),
		value.NewInteger(42),
		value.NewString("hello"),
	})

	got := roundTrip(t, arr)
	require.True(t, value.Equal(arr, got))
}

func TestRoundTripMapAndSet(t *testing.T) {
	m, err := value.NewMap(value.String,
		[]value.Value{value.NewString("a"), value.NewString("b")},
		[]value.Value{value.NewInteger(1), value.NewInteger(2)},
	)
	require.NoError(t, err)

	got := roundTrip(t, m)
	require.True(t, value.Equal(m, got))

	s, err := value.NewSet(value.Integer, []value.Value{
		value.NewInteger(1), value.NewInteger(2), value.NewInteger(3),
	})
	require.NoError(t, err)

	gotSet := roundTrip(t, s)
	require.True(t, value.Equal(s, gotSet))
}

func TestMapRejectsMixedKeyKinds(t *testing.T) {
	_, err := value.NewMap(value.String,
		[]value.Value{value.NewString("a"), value.NewInteger(1)},
		[]value.Value{value.NewInteger(1), value.NewInteger(2)},
	)
	require.Error(t, err)
}

func TestMapRejectsDuplicateKeys(t *testing.T) {
	_, err := value.NewMap(value.String,
		[]value.Value{value.NewString("a"), value.NewString("a")},
		[]value.Value{value.NewInteger(1), value.NewInteger(2)},
	)
	require.Error(t, err)
}

func TestDecodeTruncatedIsError(t *testing.T) {
	buf, err := value.Encode(nil, value.NewString("hello"))
	require.NoError(t, err)

	_, _, err = value.Decode(buf[:len(buf)-1])
	require.Error(t, err)
}

func TestCompareOrdersByKindThenValue(t *testing.T) {
	require.True(t, value.Compare(value.NewInteger(1), value.NewString("a")) < 0)
	require.Equal(t, 0, value.Compare(value.NewInteger(5), value.NewInteger(5)))
	require.True(t, value.Compare(value.NewInteger(1), value.NewInteger(2)) < 0)
}

func TestCompareStringsWithoutCase(t *testing.T) {
	require.Equal(t, 0, value.CompareStringsWithoutCase("Alpha", "alpha"))
	require.NotEqual(t, 0, value.CompareStringsWithoutCase("Alpha", "beta"))
}
