package astiavplayer

import (
	"context"
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
)

// filterGraph is a single input single output graph: buffersrc -> content -> buffersink
type filterGraph struct {
	c    *astikit.Closer
	g    filterGrapher
	sink filterBuffersinkContexter
	src  filterBuffersrcContexter
}

type filterGraphOptions struct {
	content string
	ctx     context.Context
	fd      FrameDescriptor
}

func newFilterGraph(o filterGraphOptions) (fg *filterGraph, err error) {
	// Create filter graph
	fg = &filterGraph{c: astikit.NewCloser()}

	// Make sure to close filter graph in case of error
	defer func() {
		if err != nil {
			fg.close()
		}
	}()

	// Create grapher
	if fg.g = newFilterGrapher(); fg.g == nil {
		err = fmt.Errorf("astiavplayer: allocating filter graph failed: %w", ErrAllocationFailure)
		return
	}
	classers.set(fg.g, o.ctx)

	// Make sure grapher is freed
	fg.c.Add(fg.g.Free)
	fg.c.Add(func() { classers.del(fg.g) })

	// Get buffersrc and buffersink
	var buffersrc, buffersink filterFilterer
	switch o.fd.MediaType {
	case astiav.MediaTypeAudio:
		buffersrc = newFilterFilterer("abuffer")
		buffersink = newFilterFilterer("abuffersink")
	case astiav.MediaTypeVideo:
		buffersrc = newFilterFilterer("buffer")
		buffersink = newFilterFilterer("buffersink")
	default:
		err = fmt.Errorf("astiavplayer: media type %s is not handled by filter graph", o.fd.MediaType)
		return
	}

	// No buffersrc or buffersink
	if buffersrc == nil {
		err = errors.New("astiavplayer: buffersrc is nil")
		return
	} else if buffersink == nil {
		err = errors.New("astiavplayer: buffersink is nil")
		return
	}

	// Create buffersrc context
	if fg.src, err = fg.g.NewBuffersrcFilterContext(buffersrc, "in"); err != nil {
		err = fmt.Errorf("astiavplayer: creating buffersrc context failed: %w", err)
		return
	}
	classers.set(fg.src.ptr(), o.ctx)

	// Make sure buffersrc context is removed from classers
	//!\\ Buffersrc context shouldn't be freed as freeing the graph takes care of it
	fg.c.Add(func() { classers.del(fg.src.ptr()) })

	// Allocate buffersrc parameters
	p := astiav.AllocBuffersrcFilterContextParameters()
	if p == nil {
		err = fmt.Errorf("astiavplayer: allocating buffersrc parameters failed: %w", ErrAllocationFailure)
		return
	}
	defer p.Free()

	// Set buffersrc parameters
	o.fd.setBuffersrcParameters(p)
	if err = fg.src.SetParameters(p); err != nil {
		err = fmt.Errorf("astiavplayer: setting buffersrc parameters failed: %w", err)
		return
	}

	// Initialize buffersrc
	d := astiav.NewDictionary()
	defer d.Free()
	if err = fg.src.Initialize(d); err != nil {
		err = fmt.Errorf("astiavplayer: initializing buffersrc failed: %w", err)
		return
	}

	// Create buffersink context
	if fg.sink, err = fg.g.NewBuffersinkFilterContext(buffersink, "out"); err != nil {
		err = fmt.Errorf("astiavplayer: creating buffersink context failed: %w", err)
		return
	}
	classers.set(fg.sink.ptr(), o.ctx)

	// Make sure buffersink context is removed from classers
	//!\\ Buffersink context shouldn't be freed as freeing the graph takes care of it
	fg.c.Add(func() { classers.del(fg.sink.ptr()) })

	// Create outputs
	outputs := newFilterInOuter()
	if outputs == nil {
		err = fmt.Errorf("astiavplayer: allocating outputs failed: %w", ErrAllocationFailure)
		return
	}
	defer outputs.Free()
	outputs.SetName("in")
	outputs.SetFilterContext(fg.src)
	outputs.SetPadIdx(0)
	outputs.SetNext(nil)

	// Create inputs
	inputs := newFilterInOuter()
	if inputs == nil {
		err = fmt.Errorf("astiavplayer: allocating inputs failed: %w", ErrAllocationFailure)
		return
	}
	defer inputs.Free()
	inputs.SetName("out")
	inputs.SetFilterContext(fg.sink)
	inputs.SetPadIdx(0)
	inputs.SetNext(nil)

	// Parse
	if err = fg.g.Parse(o.content, inputs, outputs); err != nil {
		err = fmt.Errorf("astiavplayer: parsing filter failed: %w", err)
		return
	}

	// Configure
	if err = fg.g.Configure(); err != nil {
		err = fmt.Errorf("astiavplayer: configuring filter failed: %w", err)
		return
	}
	return
}

func (fg *filterGraph) close() {
	fg.c.Close()
}

// A nil frame signals the end of the stream
func (fg *filterGraph) push(f *astiav.Frame) error {
	if err := fg.src.AddFrame(f, astiav.NewBuffersrcFlags(astiav.BuffersrcFlagKeepRef)); err != nil {
		return fmt.Errorf("astiavplayer: adding frame failed: %w", err)
	}
	return nil
}

// Returns astiav.ErrEagain or astiav.ErrEof when no frame is available
func (fg *filterGraph) pull(f *astiav.Frame) error {
	return fg.sink.GetFrame(f, astiav.NewBuffersinkFlags())
}

func (fg *filterGraph) timeBase() astiav.Rational {
	return fg.sink.TimeBase()
}

type filterGrapher interface {
	Class() *astiav.Class
	Configure() error
	Free()
	NewBuffersinkFilterContext(f filterFilterer, name string) (filterBuffersinkContexter, error)
	NewBuffersrcFilterContext(f filterFilterer, name string) (filterBuffersrcContexter, error)
	Parse(content string, inputs, outputs filterInOuter) error
}

var newFilterGrapher = func() filterGrapher {
	if g := newDefaultFilterGrapher(astiav.AllocFilterGraph()); g != nil {
		return g
	}
	return nil
}

var _ filterGrapher = (*defaultFilterGrapher)(nil)

type defaultFilterGrapher struct {
	*astiav.FilterGraph
}

func newDefaultFilterGrapher(fg *astiav.FilterGraph) *defaultFilterGrapher {
	if fg == nil {
		return nil
	}
	return &defaultFilterGrapher{FilterGraph: fg}
}

func (g *defaultFilterGrapher) NewBuffersinkFilterContext(f filterFilterer, name string) (filterBuffersinkContexter, error) {
	if f == nil {
		return nil, errors.New("empty filter")
	}
	fc, err := g.FilterGraph.NewBuffersinkFilterContext(f.ptr(), name)
	if err != nil {
		return nil, err
	}
	return newDefaultFilterBuffersinkContexter(fc), nil
}

func (g *defaultFilterGrapher) NewBuffersrcFilterContext(f filterFilterer, name string) (filterBuffersrcContexter, error) {
	if f == nil {
		return nil, errors.New("empty filter")
	}
	fc, err := g.FilterGraph.NewBuffersrcFilterContext(f.ptr(), name)
	if err != nil {
		return nil, err
	}
	return newDefaultFilterBuffersrcContexter(fc), nil
}

func (g *defaultFilterGrapher) Parse(content string, inputs, outputs filterInOuter) error {
	var is, os *astiav.FilterInOut
	if inputs != nil {
		is = inputs.ptr()
	}
	if outputs != nil {
		os = outputs.ptr()
	}
	return g.FilterGraph.Parse(content, is, os)
}

type filterContexter interface {
	ptr() *astiav.FilterContext
}

type filterBuffersinkContexter interface {
	filterContexter
	GetFrame(f *astiav.Frame, fs astiav.BuffersinkFlags) error
	TimeBase() astiav.Rational
}

var _ filterBuffersinkContexter = (*defaultFilterBuffersinkContexter)(nil)

type defaultFilterBuffersinkContexter struct {
	*astiav.BuffersinkFilterContext
}

func newDefaultFilterBuffersinkContexter(bfc *astiav.BuffersinkFilterContext) *defaultFilterBuffersinkContexter {
	if bfc == nil {
		return nil
	}
	return &defaultFilterBuffersinkContexter{BuffersinkFilterContext: bfc}
}

func (bfc *defaultFilterBuffersinkContexter) ptr() *astiav.FilterContext {
	return bfc.BuffersinkFilterContext.FilterContext()
}

type filterBuffersrcContexter interface {
	filterContexter
	AddFrame(f *astiav.Frame, fs astiav.BuffersrcFlags) error
	Initialize(d *astiav.Dictionary) error
	SetParameters(p *astiav.BuffersrcFilterContextParameters) error
}

var _ filterBuffersrcContexter = (*defaultFilterBuffersrcContexter)(nil)

type defaultFilterBuffersrcContexter struct {
	*astiav.BuffersrcFilterContext
}

func newDefaultFilterBuffersrcContexter(bfc *astiav.BuffersrcFilterContext) *defaultFilterBuffersrcContexter {
	if bfc == nil {
		return nil
	}
	return &defaultFilterBuffersrcContexter{BuffersrcFilterContext: bfc}
}

func (bfc *defaultFilterBuffersrcContexter) ptr() *astiav.FilterContext {
	return bfc.BuffersrcFilterContext.FilterContext()
}

type filterInOuter interface {
	Free()
	SetFilterContext(filterContexter)
	SetName(string)
	SetNext(filterInOuter)
	SetPadIdx(int)

	ptr() *astiav.FilterInOut
}

var newFilterInOuter = func() filterInOuter {
	if v := newDefaultFilterInOuter(astiav.AllocFilterInOut()); v != nil {
		return v
	}
	return nil
}

var _ filterInOuter = (*defaultFilterInOuter)(nil)

type defaultFilterInOuter struct {
	*astiav.FilterInOut
}

func newDefaultFilterInOuter(fio *astiav.FilterInOut) *defaultFilterInOuter {
	if fio == nil {
		return nil
	}
	return &defaultFilterInOuter{FilterInOut: fio}
}

func (fio *defaultFilterInOuter) SetFilterContext(fc filterContexter) {
	var fcc *astiav.FilterContext
	if fc != nil {
		fcc = fc.ptr()
	}
	fio.FilterInOut.SetFilterContext(fcc)
}

func (fio *defaultFilterInOuter) SetNext(n filterInOuter) {
	var nc *astiav.FilterInOut
	if n != nil {
		nc = n.ptr()
	}
	fio.FilterInOut.SetNext(nc)
}

func (fio *defaultFilterInOuter) ptr() *astiav.FilterInOut {
	return fio.FilterInOut
}

type filterFilterer interface {
	ptr() *astiav.Filter
}

var newFilterFilterer = func(name string) filterFilterer {
	if f := newDefaultFilterFilterer(astiav.FindFilterByName(name)); f != nil {
		return f
	}
	return nil
}

var _ filterFilterer = (*defaultFilterFilterer)(nil)

type defaultFilterFilterer struct {
	*astiav.Filter
}

func newDefaultFilterFilterer(f *astiav.Filter) *defaultFilterFilterer {
	if f == nil {
		return nil
	}
	return &defaultFilterFilterer{Filter: f}
}

func (f defaultFilterFilterer) ptr() *astiav.Filter {
	return f.Filter
}
