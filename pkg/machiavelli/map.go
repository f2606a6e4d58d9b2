package machiavelli

// Terrain classifies a province as land, sea, or port.
type Terrain int

const (
	Land Terrain = iota // Inland province (armies and garrisons)
	Sea                 // Sea province (fleets only)
	Port                // Coastal city province (armies or fleets)
)

func (t Terrain) String() string {
	switch t {
	case Land:
		return "land"
	case Sea:
		return "sea"
	case Port:
		return "port"
	default:
		return "unknown"
	}
}

// Province represents a single province on the map. Provinces are
// immutable reference data shared by every game.
type Province struct {
	ID      string
	Name    string
	Terrain Terrain
	HasCity bool
	Income  int // Relative value of the city, used to break time-limit ties
}

// IsPort reports whether fleets may enter the province from the sea.
func (p *Province) IsPort() bool {
	return p.Terrain == Port
}

// Map holds the province graph. Adjacency is symmetric.
type Map struct {
	Provinces   map[string]*Province
	Adjacencies map[string][]string
	order       []string
}

// NewMap builds a map from provinces and undirected edges.
func NewMap(provinces []Province, edges [][2]string) *Map {
	m := &Map{
		Provinces:   make(map[string]*Province, len(provinces)),
		Adjacencies: make(map[string][]string, len(provinces)),
	}
	for i := range provinces {
		p := provinces[i]
		m.Provinces[p.ID] = &p
		m.order = append(m.order, p.ID)
	}
	for _, e := range edges {
		if !m.Adjacent(e[0], e[1]) {
			m.Adjacencies[e[0]] = append(m.Adjacencies[e[0]], e[1])
			m.Adjacencies[e[1]] = append(m.Adjacencies[e[1]], e[0])
		}
	}
	return m
}

// ProvinceIDs returns province ids in declaration order.
func (m *Map) ProvinceIDs() []string {
	return m.order
}

// Province returns the province with the given id, or nil.
func (m *Map) Province(id string) *Province {
	return m.Provinces[id]
}

// Adjacent returns true if a and b share a border.
func (m *Map) Adjacent(a, b string) bool {
	for _, n := range m.Adjacencies[a] {
		if n == b {
			return true
		}
	}
	return false
}

// IsCity reports whether the province holds a city.
func (m *Map) IsCity(id string) bool {
	p := m.Provinces[id]
	return p != nil && p.HasCity
}

// CanOccupy reports whether a unit of type ut may stand in the province.
// Fleets need sea or port, armies need land or port. Garrisons only exist
// in cities.
func (m *Map) CanOccupy(ut UnitType, id string) bool {
	p := m.Provinces[id]
	if p == nil {
		return false
	}
	switch ut {
	case Fleet:
		return p.Terrain == Sea || p.Terrain == Port
	case Army:
		return p.Terrain == Land || p.Terrain == Port
	case Garrison:
		return p.HasCity
	}
	return false
}

// CanMove reports whether a unit of type ut can move directly from src to
// dst: the provinces must be adjacent and dst terrain-compatible.
func (m *Map) CanMove(ut UnitType, src, dst string) bool {
	if ut == Garrison {
		return false
	}
	return m.Adjacent(src, dst) && m.CanOccupy(ut, dst)
}

// TouchesSea reports whether the province borders at least one sea province.
func (m *Map) TouchesSea(id string) bool {
	for _, n := range m.Adjacencies[id] {
		if p := m.Provinces[n]; p != nil && p.Terrain == Sea {
			return true
		}
	}
	return false
}

// Cities returns the ids of all city provinces in declaration order.
func (m *Map) Cities() []string {
	var out []string
	for _, id := range m.order {
		if m.Provinces[id].HasCity {
			out = append(out, id)
		}
	}
	return out
}
