package monitorer

import (
	"context"
	"sync"
	"time"

	"github.com/asticode/go-astikit"
	"github.com/asticode/go-astiplayer/pkg/astiplayer"
)

type Delta struct {
	At         astikit.Timestamp      `json:"at"`
	Events     []DeltaEvent           `json:"events,omitempty"`
	NewStats   []DeltaStat            `json:"new_stats,omitempty"`
	Player     *DeltaPlayer           `json:"player,omitempty"`
	StatValues map[uint64]interface{} `json:"stat_values,omitempty"`
}

func newDelta() *Delta {
	return &Delta{StatValues: make(map[uint64]interface{})}
}

func (d Delta) empty() bool {
	return len(d.Events) == 0 && len(d.NewStats) == 0 && d.Player == nil && len(d.StatValues) == 0
}

func (d Delta) copy() *Delta {
	dst := newDelta()
	dst.At = d.At
	if len(d.Events) > 0 {
		dst.Events = make([]DeltaEvent, len(d.Events))
		copy(dst.Events, d.Events)
	}
	if len(d.NewStats) > 0 {
		dst.NewStats = make([]DeltaStat, len(d.NewStats))
		copy(dst.NewStats, d.NewStats)
	}
	if d.Player != nil {
		p := *d.Player
		dst.Player = &p
	}
	if len(d.StatValues) > 0 {
		dst.StatValues = make(map[uint64]interface{}, len(d.StatValues))
		for k, v := range d.StatValues {
			dst.StatValues[k] = v
		}
	}
	return dst
}

type DeltaEvent struct {
	At      astikit.Timestamp `json:"at"`
	Name    string            `json:"name"`
	Payload interface{}       `json:"payload,omitempty"`
}

// Times are in seconds
type DeltaPlayer struct {
	ClockTime float64 `json:"clock_time"`
	Length    float64 `json:"length"`
	Loop      bool    `json:"loop"`
	Muted     bool    `json:"muted"`
	Pitch     float64 `json:"pitch"`
	Speed     float64 `json:"speed"`
	Status    string  `json:"status"`
	Time      float64 `json:"time"`
	Volume    float64 `json:"volume"`
}

type DeltaStat struct {
	ID       uint64            `json:"id"`
	Metadata DeltaStatMetadata `json:"metadata"`
	Source   string            `json:"source,omitempty"`
}

type DeltaStatMetadata struct {
	Description string `json:"description,omitempty"`
	Label       string `json:"label,omitempty"`
	Name        string `json:"name,omitempty"`
	Unit        string `json:"unit,omitempty"`
}

func newDeltaStatMetadata(i astikit.DeltaStatMetadata) DeltaStatMetadata {
	return DeltaStatMetadata{
		Description: i.Description,
		Label:       i.Label,
		Name:        i.Name,
		Unit:        i.Unit,
	}
}

// Player is what the monitorer needs from *astiplayer.Player
type Player interface {
	ClockTime() time.Duration
	DeltaStats() []astikit.DeltaStat
	Length() time.Duration
	Loop() bool
	Muted() bool
	On(n astikit.EventName, h astikit.EventHandler) astikit.EventRemover
	Pitch() float64
	Speed() float64
	Status() astiplayer.Status
	Time() time.Duration
	Volume() float64
}

var _ Player = (*astiplayer.Player)(nil)

// Source groups delta stats that don't belong to the player, such as decoder or host stats
type Source struct {
	DeltaStats []astikit.DeltaStat
	Name       string
}

type Monitorer struct {
	cd *Delta // Catchup Delta
	d  *Delta
	ds *astikit.DeltaStater
	mc *sync.Mutex // Locks cd
	md *sync.Mutex // Locks d
	o  MonitorerOptions
	rs []astikit.EventRemover
}

type OnDelta func(d Delta)

type MonitorerOptions struct {
	OnDelta OnDelta
	Period  time.Duration
	Player  Player
	Sources []Source
}

var playerEventNames = []astikit.EventName{
	astiplayer.EventNamePlayerClosed,
	astiplayer.EventNamePlayerFinished,
	astiplayer.EventNamePlayerLooped,
	astiplayer.EventNamePlayerPaused,
	astiplayer.EventNamePlayerPlaying,
	astiplayer.EventNamePlayerSeeked,
}

func New(o MonitorerOptions) *Monitorer {
	// Create monitorer
	m := &Monitorer{
		cd: newDelta(),
		d:  newDelta(),
		mc: &sync.Mutex{},
		md: &sync.Mutex{},
		o:  o,
	}

	// Create Delta stater
	m.ds = astikit.NewDeltaStater(astikit.DeltaStaterOptions{
		OnStats: m.onStats,
		Period:  o.Period,
	})

	// Monitor player
	if o.Player != nil {
		m.monitorPlayer()
	}

	// Monitor sources
	for _, s := range o.Sources {
		m.addDeltaStats(s.Name, s.DeltaStats)
	}
	return m
}

func (m *Monitorer) monitorPlayer() {
	// Add stats
	m.addDeltaStats("player", m.o.Player.DeltaStats())

	// Listen to player
	for _, n := range playerEventNames {
		n := n
		m.rs = append(m.rs, m.o.Player.On(n, func(payload interface{}) (delete bool) {
			// Create Delta event
			e := DeltaEvent{
				At:   *astikit.NewTimestamp(astikit.Now()),
				Name: string(n),
			}
			if d, ok := payload.(time.Duration); ok {
				e.Payload = d.Seconds()
			}

			// Store event
			m.md.Lock()
			m.d.Events = append(m.d.Events, e)
			m.md.Unlock()
			return
		}))
	}
}

func (m *Monitorer) addDeltaStats(source string, dss []astikit.DeltaStat) {
	// Loop through delta stats
	for _, ds := range dss {
		// Add to stater
		id := m.ds.Add(ds.Valuer)

		// Create Delta stat
		s := DeltaStat{
			ID:       id,
			Metadata: newDeltaStatMetadata(ds.Metadata),
			Source:   source,
		}

		// Store stat
		m.mc.Lock()
		m.cd.NewStats = append(m.cd.NewStats, s)
		m.mc.Unlock()
		m.md.Lock()
		m.d.NewStats = append(m.d.NewStats, s)
		m.md.Unlock()
	}
}

func (m *Monitorer) playerSnapshot() *DeltaPlayer {
	if m.o.Player == nil {
		return nil
	}
	return &DeltaPlayer{
		ClockTime: m.o.Player.ClockTime().Seconds(),
		Length:    m.o.Player.Length().Seconds(),
		Loop:      m.o.Player.Loop(),
		Muted:     m.o.Player.Muted(),
		Pitch:     m.o.Player.Pitch(),
		Speed:     m.o.Player.Speed(),
		Status:    m.o.Player.Status().String(),
		Time:      m.o.Player.Time().Seconds(),
		Volume:    m.o.Player.Volume(),
	}
}

func (m *Monitorer) Start(ctx context.Context) {
	// Start stater
	m.ds.Start(ctx)
}

func (m *Monitorer) Close() {
	// Stop listening
	for _, r := range m.rs {
		r()
	}
	m.rs = nil

	// Stop stater
	m.ds.Stop()
}

func (m *Monitorer) onStats(stats []astikit.DeltaStatValue) {
	// Swap Delta
	m.md.Lock()
	d := *m.d
	m.d = newDelta()
	m.md.Unlock()

	// Update at
	d.At = *astikit.NewTimestamp(astikit.Now())

	// Update player
	d.Player = m.playerSnapshot()

	// Update catch up
	m.mc.Lock()
	m.cd.Player = d.Player
	m.cd.StatValues = map[uint64]interface{}{}
	for _, s := range stats {
		d.StatValues[s.ID] = s.Value
		m.cd.StatValues[s.ID] = s.Value
	}
	m.mc.Unlock()

	// Callback
	if !d.empty() && m.o.OnDelta != nil {
		m.o.OnDelta(d)
	}
}

func (m *Monitorer) CatchUp() Delta {
	// Lock
	m.mc.Lock()
	defer m.mc.Unlock()

	// Copy Delta
	d := m.cd.copy()

	// Update at
	d.At = *astikit.NewTimestamp(astikit.Now())
	return *d
}
