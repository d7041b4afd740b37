package flash

import "fmt"

//JedecID is the manufacturer, memory type and capacity bytes returned by 0x9F
type JedecID [3]byte

func (id JedecID) String() string {
	return fmt.Sprintf("%02X %02X %02X", id[0], id[1], id[2])
}

type Part struct {
	ID   JedecID
	Name string
	Size uint64
}

func LookupPart(parts []Part, id JedecID) (Part, bool) {
	for _, p := range parts {
		if p.ID == id {
			return p, true
		}
	}
	return Part{}, false
}
