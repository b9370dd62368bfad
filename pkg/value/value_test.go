package value

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindNone:   "none",
		KindBool:   "bool",
		KindInt64:  "int64",
		KindUint64: "uint64",
		KindDouble: "double",
		KindString: "string",
		Kind(99):   "Kind(99)",
	}
	for k, want := range cases {
		require.Equal(t, want, k.String())
	}
}

func TestFromConstructors(t *testing.T) {
	require.Equal(t, Cell{Kind: KindBool, Bool: true}, FromBool(true))
	require.Equal(t, Cell{Kind: KindInt64, Int64: -7}, FromInt64(-7))
	require.Equal(t, Cell{Kind: KindUint64, Uint64: 7}, FromUint64(7))
	require.Equal(t, Cell{Kind: KindDouble, Double: 3.5}, FromDouble(3.5))
	require.Equal(t, Cell{Kind: KindString, Str: "x"}, FromString("x"))
	require.True(t, None.IsNone())
	require.False(t, FromBool(false).IsNone())
}

func TestCellEqual(t *testing.T) {
	require.True(t, None.Equal(None))
	require.True(t, FromInt64(5).Equal(FromInt64(5)))
	require.False(t, FromInt64(5).Equal(FromInt64(6)))
	require.False(t, FromInt64(5).Equal(FromUint64(5)))
	require.True(t, FromString("a").Equal(FromString("a")))
	require.False(t, FromString("a").Equal(FromString("b")))
	require.True(t, FromBool(true).Equal(FromBool(true)))
	require.True(t, FromDouble(1.5).Equal(FromDouble(1.5)))
}

func TestCellString(t *testing.T) {
	require.Equal(t, "<none>", None.String())
	require.Equal(t, "true", FromBool(true).String())
	require.Equal(t, "-3", FromInt64(-3).String())
	require.Equal(t, "3", FromUint64(3).String())
	require.Equal(t, "1.5", FromDouble(1.5).String())
	require.Equal(t, "hi", FromString("hi").String())
}
