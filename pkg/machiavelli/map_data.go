package machiavelli

import "sync"

var (
	italyOnce sync.Once
	italyMap  *Map
)

// ItalyMap returns the shared Renaissance Italy board.
func ItalyMap() *Map {
	italyOnce.Do(func() {
		italyMap = NewMap(italyProvinces, append(append([][2]string{}, italyLandEdges...), italySeaEdges...))
	})
	return italyMap
}

var italyProvinces = []Province{
	// Piedmont and Lombardy
	{ID: "sav", Name: "Savoy", Terrain: Land},
	{ID: "tur", Name: "Turin", Terrain: Land, HasCity: true, Income: 2},
	{ID: "mil", Name: "Milan", Terrain: Land, HasCity: true, Income: 5},
	{ID: "gen", Name: "Genoa", Terrain: Port, HasCity: true, Income: 4},
	{ID: "ver", Name: "Verona", Terrain: Land, HasCity: true, Income: 2},
	{ID: "man", Name: "Mantua", Terrain: Land, HasCity: true, Income: 2},
	{ID: "pad", Name: "Padua", Terrain: Land, HasCity: true, Income: 2},
	{ID: "ven", Name: "Venice", Terrain: Port, HasCity: true, Income: 5},
	{ID: "fer", Name: "Ferrara", Terrain: Port, HasCity: true, Income: 2},

	// Emilia and Tuscany
	{ID: "bol", Name: "Bologna", Terrain: Land, HasCity: true, Income: 3},
	{ID: "mod", Name: "Modena", Terrain: Land, HasCity: true, Income: 1},
	{ID: "luc", Name: "Lucca", Terrain: Land, HasCity: true, Income: 1},
	{ID: "pis", Name: "Pisa", Terrain: Port, HasCity: true, Income: 2},
	{ID: "flo", Name: "Florence", Terrain: Land, HasCity: true, Income: 5},
	{ID: "sie", Name: "Siena", Terrain: Land, HasCity: true, Income: 2},

	// Papal States
	{ID: "urb", Name: "Urbino", Terrain: Land},
	{ID: "anc", Name: "Ancona", Terrain: Port, HasCity: true, Income: 2},
	{ID: "per", Name: "Perugia", Terrain: Land, HasCity: true, Income: 1},
	{ID: "rom", Name: "Rome", Terrain: Port, HasCity: true, Income: 4},
	{ID: "spo", Name: "Spoleto", Terrain: Land},

	// Kingdom of Naples and the islands
	{ID: "abr", Name: "Abruzzi", Terrain: Land},
	{ID: "nap", Name: "Naples", Terrain: Port, HasCity: true, Income: 5},
	{ID: "cap", Name: "Capua", Terrain: Land},
	{ID: "bar", Name: "Bari", Terrain: Port, HasCity: true, Income: 2},
	{ID: "pal", Name: "Palermo", Terrain: Port, HasCity: true, Income: 3},
	{ID: "mes", Name: "Messina", Terrain: Port, HasCity: true, Income: 2},

	// Seas
	{ID: "lig", Name: "Ligurian Sea", Terrain: Sea},
	{ID: "tyn", Name: "Tyrrhenian Sea", Terrain: Sea},
	{ID: "gve", Name: "Gulf of Venice", Terrain: Sea},
	{ID: "adr", Name: "Adriatic Sea", Terrain: Sea},
	{ID: "ion", Name: "Ionian Sea", Terrain: Sea},
}

var italyLandEdges = [][2]string{
	{"sav", "tur"}, {"sav", "mil"}, {"tur", "mil"}, {"tur", "gen"},
	{"mil", "gen"}, {"mil", "ver"}, {"mil", "man"}, {"mil", "mod"},
	{"gen", "mod"}, {"gen", "luc"}, {"ver", "man"}, {"ver", "pad"},
	{"man", "pad"}, {"man", "fer"}, {"man", "mod"}, {"pad", "ven"},
	{"pad", "fer"}, {"ven", "fer"}, {"fer", "bol"}, {"mod", "bol"},
	{"mod", "luc"}, {"bol", "flo"}, {"bol", "urb"}, {"luc", "pis"},
	{"luc", "flo"}, {"pis", "flo"}, {"pis", "sie"}, {"flo", "sie"},
	{"flo", "urb"}, {"flo", "per"}, {"sie", "per"}, {"sie", "rom"},
	{"urb", "anc"}, {"urb", "per"}, {"per", "spo"}, {"anc", "spo"},
	{"anc", "abr"}, {"spo", "rom"}, {"spo", "abr"}, {"rom", "cap"},
	{"abr", "cap"}, {"abr", "bar"}, {"cap", "nap"}, {"cap", "bar"},
	{"nap", "bar"}, {"mes", "pal"},
}

var italySeaEdges = [][2]string{
	{"lig", "gen"}, {"lig", "pis"}, {"lig", "tyn"},
	{"tyn", "pis"}, {"tyn", "rom"}, {"tyn", "nap"}, {"tyn", "pal"},
	{"tyn", "mes"}, {"tyn", "ion"},
	{"gve", "ven"}, {"gve", "fer"}, {"gve", "adr"},
	{"adr", "anc"}, {"adr", "bar"}, {"adr", "ion"},
	{"ion", "bar"}, {"ion", "mes"},
}
