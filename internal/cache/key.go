package cache

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/agri-query-service/internal/models"
)

// KeyPrecision is the number of decimals coordinates are rounded to in keys,
// so nearby requests (about 1 km apart) share entries.
const KeyPrecision = 2

// Key identifies one cached computation. It is a pure function of the
// capability and its normalized parameters.
type Key struct {
	Capability models.CapabilityID
	value      string
}

// KeyParams are the parameters that feed a Key. Zero-valued fields are omitted.
type KeyParams struct {
	Coordinate *models.Coordinate
	Start      time.Time
	End        time.Time
	Extra      map[string]string
}

// NewKey builds the key for capability and params.
func NewKey(capability models.CapabilityID, p KeyParams) Key {
	var b strings.Builder
	b.WriteString(string(capability))
	if p.Coordinate != nil {
		b.WriteString("|lat=")
		b.WriteString(formatCoord(p.Coordinate.Latitude()))
		b.WriteString("|lon=")
		b.WriteString(formatCoord(p.Coordinate.Longitude()))
	}
	if !p.Start.IsZero() {
		b.WriteString("|start=")
		b.WriteString(p.Start.Format(models.DateLayout))
	}
	if !p.End.IsZero() {
		b.WriteString("|end=")
		b.WriteString(p.End.Format(models.DateLayout))
	}
	if len(p.Extra) > 0 {
		names := make([]string, 0, len(p.Extra))
		for k := range p.Extra {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, k := range names {
			b.WriteString("|")
			b.WriteString(k)
			b.WriteString("=")
			b.WriteString(p.Extra[k])
		}
	}
	return Key{Capability: capability, value: b.String()}
}

func (k Key) String() string {
	return k.value
}

func formatCoord(v float64) string {
	r := models.RoundTo(v, KeyPrecision)
	if r == 0 {
		r = 0 // drop negative zero
	}
	return strconv.FormatFloat(r, 'f', KeyPrecision, 64)
}

// NormalizeText lowercases s and collapses runs of whitespace, for free-text key parameters.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
