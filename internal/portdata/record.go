package portdata

import "fmt"

// Status is the derived health of a port.
type Status string

const (
	StatusActive     Status = "active"
	StatusWeakSignal Status = "weak-signal"
	StatusInactive   Status = "inactive"
	StatusError      Status = "error"
)

// Record is the merged view of one port. IMEI, ICCID and MDN are nil until recovered.
type Record struct {
	Gateway string   `json:"gateway,omitempty"`
	Port    Key      `json:"port"`
	IMEI    *string  `json:"imei"`
	ICCID   *string  `json:"iccid"`
	MDN     *string  `json:"mdn"`
	Carrier string   `json:"carrier"`
	Status  Status   `json:"status"`
	Missing []string `json:"missingData"`
}

// Value returns the identifier for attr.
func (r Record) Value(attr Attribute) (string, bool) {
	var p *string
	switch attr {
	case AttrIMEI:
		p = r.IMEI
	case AttrICCID:
		p = r.ICCID
	case AttrMDN:
		p = r.MDN
	}
	if p == nil {
		return "", false
	}
	return *p, true
}

// Complete reports whether all three identifiers are present.
func (r Record) Complete() bool {
	return len(r.Missing) == 0
}

// Label is the gateway-qualified port name used in reports, e.g. "101-A7".
func (r Record) Label() string {
	if r.Gateway == "" {
		return string(r.Port)
	}
	return fmt.Sprintf("%s-%s", r.Gateway, r.Port)
}

// GatewayDataset holds exactly one Record per port of a gateway.
// It is built once per run and treated as read-only afterwards.
type GatewayDataset struct {
	Gateway string
	records [PortCount]Record
}

// Merge correlates per-attribute datasets by port. Attributes without a dataset stay null.
// carrier derives the carrier label from an ICCID; it may be nil.
func Merge(gateway string, carrier func(iccid *string) string, sets ...*Dataset) *GatewayDataset {
	byAttr := map[Attribute]*Dataset{}
	for _, s := range sets {
		if s != nil {
			byAttr[s.Attribute] = s
		}
	}

	g := &GatewayDataset{Gateway: gateway}
	for i := range g.records {
		key := KeyFor(i + 1)
		rec := Record{
			Gateway: gateway,
			Port:    key,
			IMEI:    lookup(byAttr[AttrIMEI], key),
			ICCID:   lookup(byAttr[AttrICCID], key),
			MDN:     lookup(byAttr[AttrMDN], key),
			Status:  StatusInactive,
		}
		rec.Missing = missingFields(rec)
		if carrier != nil {
			rec.Carrier = carrier(rec.ICCID)
		}
		g.records[i] = rec
	}
	return g
}

// Record returns the record for key. Unknown keys yield an all-null record.
func (g *GatewayDataset) Record(key Key) Record {
	i := key.Index()
	if g == nil || i == 0 {
		return Record{Port: key, Status: StatusInactive, Missing: []string{"MDN", "ICCID", "IMEI"}}
	}
	return g.records[i-1]
}

// Records returns a copy of all records in port order.
func (g *GatewayDataset) Records() []Record {
	out := make([]Record, PortCount)
	copy(out, g.records[:])
	return out
}

// WithStatus returns a copy of the dataset where each status is replaced by fn(record).
// The receiver is left untouched.
func (g *GatewayDataset) WithStatus(fn func(Record) Status) *GatewayDataset {
	cp := *g
	for i := range cp.records {
		cp.records[i].Status = fn(cp.records[i])
	}
	return &cp
}

func lookup(d *Dataset, key Key) *string {
	v, ok := d.Get(key)
	if !ok {
		return nil
	}
	return &v
}

// missingFields lists absent identifiers in report order.
func missingFields(r Record) []string {
	missing := []string{}
	if r.MDN == nil {
		missing = append(missing, AttrMDN.Label())
	}
	if r.ICCID == nil {
		missing = append(missing, AttrICCID.Label())
	}
	if r.IMEI == nil {
		missing = append(missing, AttrIMEI.Label())
	}
	return missing
}
