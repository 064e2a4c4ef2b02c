package abi

// Ownership says what releasing an array view must do.
type Ownership uint8

const (
	// NotOwned arrays belong to the engine and are never freed by the host.
	NotOwned Ownership = iota
	// Shallow arrays free only the descriptor's buffer.
	Shallow
	// Deep arrays also free every element the buffer points to.
	Deep
)

func (o Ownership) String() string {
	switch o {
	case Shallow:
		return "shallow"
	case Deep:
		return "deep"
	default:
		return "not-owned"
	}
}

var ownershipTable = map[string]Ownership{
	EntryGetKeys:           Deep,
	EntryGetChildKeys:      Deep,
	EntryGetArrayKeys:      Deep,
	EntryGetChildArrayKeys: Deep,
	EntryGetArray:          Shallow,
	EntryGetChildArray:     Shallow,
	EntryGetGPUs:           Shallow,
	EntryGetAllDevices:     Shallow,
	EntryGetNeuronData:     NotOwned,
	EntryGetLayerData:      NotOwned,
	EntryGetConnectionData: NotOwned,
	EntryGetWeightMatrix:   NotOwned,
}

// OwnershipFor returns how an array returned by entry must be released.
// State data arrays alias engine buffers unless the engine marks the
// descriptor as owned, in which case only the copy it made is freed.
func OwnershipFor(entry string, desc Array) Ownership {
	own, ok := ownershipTable[entry]
	if !ok {
		return NotOwned
	}
	if own == NotOwned && desc.Owner {
		return Shallow
	}
	return own
}
