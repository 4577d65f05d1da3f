package astiavplayer

import (
	"fmt"
	"sort"

	"github.com/asticode/go-astiav"
)

// Options passed to the demuxer when opening the input (e.g. "probesize", "analyzeduration")
type DictionaryOptions struct {
	Flags             astiav.DictionaryFlags
	KeyValueSeparator string
	PairsSeparator    string
	String            string
	Values            map[string]string
}

func NewCommaDictionaryOptions(format string, args ...interface{}) DictionaryOptions {
	return DictionaryOptions{
		KeyValueSeparator: "=",
		PairsSeparator:    ",",
		String:            fmt.Sprintf(format, args...),
	}
}

func NewSemiColonDictionaryOptions(format string, args ...interface{}) DictionaryOptions {
	return DictionaryOptions{
		KeyValueSeparator: "=",
		PairsSeparator:    ";",
		String:            fmt.Sprintf(format, args...),
	}
}

type dictionary struct {
	*astiav.Dictionary
}

func newDictionary(d *astiav.Dictionary) *dictionary {
	return &dictionary{Dictionary: d}
}

func (d *dictionary) close() {
	if d.Dictionary != nil {
		d.Free()
		d.Dictionary = nil
	}
}

func (o DictionaryOptions) empty() bool {
	return o.String == "" && len(o.Values) == 0
}

func (o DictionaryOptions) dictionary() (*dictionary, error) {
	// Nothing to do
	if o.empty() {
		return newDictionary(nil), nil
	}

	// Create dictionary
	d := newDictionary(astiav.NewDictionary())

	// Parse string
	if o.String != "" {
		if err := d.ParseString(o.String, o.KeyValueSeparator, o.PairsSeparator, o.Flags); err != nil {
			d.close()
			return nil, fmt.Errorf("astiavplayer: parsing string failed: %w", err)
		}
	}

	// Sort keys so that values are set in a predictable order
	ks := make([]string, 0, len(o.Values))
	for k := range o.Values {
		ks = append(ks, k)
	}
	sort.Strings(ks)

	// Set values
	for _, k := range ks {
		if err := d.Set(k, o.Values[k], o.Flags); err != nil {
			d.close()
			return nil, fmt.Errorf("astiavplayer: setting %s failed: %w", k, err)
		}
	}
	return d, nil
}
