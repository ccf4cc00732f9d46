package source

import (
	"iter"
	"strings"

	"github.com/oschwald/maxminddb-golang"
)

// GeoIPDatabase is a MaxMind DB whose records carry a country or category
// code. Networks whose code matches Code are emitted as IP-CIDR lines.
type GeoIPDatabase struct {
	Data []byte
	Code string
}

func (GeoIPDatabase) document() {}

// Lines yields one IP-CIDR or IP-CIDR6 line per matching network. An
// unreadable database yields nothing.
func (g GeoIPDatabase) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		db, err := maxminddb.FromBytes(g.Data)
		if err != nil {
			return
		}
		defer db.Close()

		want := strings.ToUpper(g.Code)
		networks := db.Networks(maxminddb.SkipAliasedNetworks)
		for networks.Next() {
			var record any
			subnet, err := networks.Network(&record)
			if err != nil {
				continue
			}
			if recordCode(record) != want {
				continue
			}

			keyword := "IP-CIDR6,"
			if subnet.IP.To4() != nil {
				keyword = "IP-CIDR,"
			}
			if !yield(keyword + subnet.String()) {
				return
			}
		}
	}
}

// recordCode extracts the upper-cased code from the record layouts seen in
// the wild: a bare string, {country: {iso_code}}, {iso_code} or {code}.
func recordCode(record any) string {
	var code string
	switch v := record.(type) {
	case string:
		code = v
	case map[string]any:
		if c, ok := v["country"].(map[string]any); ok {
			if iso, ok := c["iso_code"].(string); ok {
				code = iso
			}
		} else if iso, ok := v["iso_code"].(string); ok {
			code = iso
		} else if s, ok := v["code"].(string); ok {
			code = s
		}
	}
	return strings.ToUpper(code)
}
