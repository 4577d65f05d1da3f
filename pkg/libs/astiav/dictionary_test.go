package astiavplayer

import (
	"testing"

	"github.com/asticode/go-astiav"
	"github.com/stretchr/testify/require"
)

func TestDictionary(t *testing.T) {
	o := NewCommaDictionaryOptions("1=%s", "2")
	require.Equal(t, DictionaryOptions{
		KeyValueSeparator: "=",
		PairsSeparator:    ",",
		String:            "1=2",
	}, o)
	o = NewSemiColonDictionaryOptions("1=%s;3=%d", "2", 4)
	require.Equal(t, DictionaryOptions{
		KeyValueSeparator: "=",
		PairsSeparator:    ";",
		String:            "1=2;3=4",
	}, o)
	o.Values = map[string]string{"3": "5", "probesize": "32"}
	d, err := o.dictionary()
	require.NoError(t, err)
	require.Equal(t, "2", d.Get("1", nil, astiav.NewDictionaryFlags()).Value())
	require.Equal(t, "5", d.Get("3", nil, astiav.NewDictionaryFlags()).Value())
	require.Equal(t, "32", d.Get("probesize", nil, astiav.NewDictionaryFlags()).Value())
	d.close()
	require.Nil(t, d.Dictionary)
	d.close()

	d, err = DictionaryOptions{}.dictionary()
	require.NoError(t, err)
	require.Nil(t, d.Dictionary)

	d, err = DictionaryOptions{Values: map[string]string{"k": "v"}}.dictionary()
	require.NoError(t, err)
	require.Equal(t, "v", d.Get("k", nil, astiav.NewDictionaryFlags()).Value())
	d.close()
}
