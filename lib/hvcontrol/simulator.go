package hvcontrol

import (
	"fmt"
	"log"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/gotmc/caenhv"
)

// DefaultSimChannels is the channel count of a simulated device that was not
// given one explicitly.
const DefaultSimChannels = 4

// DefaultSimDevices are the serial numbers used when none are configured.
var DefaultSimDevices = []int{1, 3}

// Simulator is a Controller without hardware. Measured and status values are
// random; setpoints are kept in memory.
type Simulator struct {
	mu       sync.Mutex
	rnd      *rand.Rand
	devices  []int
	channels map[int]int
	values   map[int][]map[caenhv.Param]float64
}

// NewSimulator returns a simulator for the given serial numbers with
// channels channels each. rnd may be nil.
func NewSimulator(devices []int, channels int, rnd *rand.Rand) *Simulator {
	if len(devices) == 0 {
		devices = DefaultSimDevices
	}
	if channels <= 0 {
		channels = DefaultSimChannels
	}
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	s := &Simulator{
		rnd:      rnd,
		channels: make(map[int]int),
		values:   make(map[int][]map[caenhv.Param]float64),
	}
	for _, dev := range devices {
		if _, dup := s.channels[dev]; dup {
			continue
		}
		s.devices = append(s.devices, dev)
		s.channels[dev] = channels
		chans := make([]map[caenhv.Param]float64, channels)
		for i := range chans {
			chans[i] = make(map[caenhv.Param]float64)
		}
		s.values[dev] = chans
	}
	sort.Ints(s.devices)
	return s
}

func (s *Simulator) DeviceNumbers() []int {
	return append([]int(nil), s.devices...)
}

// ChannelsPerDevice returns the channel count of dev, or DefaultSimChannels
// for a device the simulator does not know.
func (s *Simulator) ChannelsPerDevice(dev int) int {
	if n, ok := s.channels[dev]; ok {
		return n
	}
	return DefaultSimChannels
}

func (s *Simulator) channel(dev, ch int) (map[caenhv.Param]float64, error) {
	chans, ok := s.values[dev]
	if !ok {
		return nil, fmt.Errorf("%w %d", ErrUnknownDevice, dev)
	}
	if ch < 0 || ch >= len(chans) {
		return nil, fmt.Errorf("invalid channel %d (device %d has %d)", ch, dev, len(chans))
	}
	return chans[ch], nil
}

func (s *Simulator) GetChannelParameter(dev, ch int, p caenhv.Param) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vals, err := s.channel(dev, ch)
	if err != nil {
		return 0, err
	}
	switch p {
	case caenhv.VMon:
		return round2(s.rnd.Float64() * 500), nil
	case caenhv.IMon:
		return round2(s.rnd.Float64() * 5), nil
	case caenhv.ChStatus:
		if s.rnd.Float64() > 0.5 {
			return float64(caenhv.StatusOn), nil
		}
		return 0, nil
	case caenhv.Polarity:
		if s.rnd.Float64() > 0.5 {
			return 0, nil
		}
		return 1, nil
	}
	return vals[p], nil
}

func (s *Simulator) SetChannelParameter(dev, ch int, p caenhv.Param, v float64) error {
	if p.ReadOnly() {
		log.Printf("%s is read-only and cannot be set.", p)
		return fmt.Errorf("set %s: %w", p, ErrReadOnly)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	vals, err := s.channel(dev, ch)
	if err != nil {
		return err
	}
	log.Printf("%s is set to %s for Channel %d on device %d", p, p.Format(v), ch, dev)
	vals[p] = v
	return nil
}

// Close does nothing.
func (s *Simulator) Close() error { return nil }

func round2(v float64) float64 { return math.Round(v*100) / 100 }
