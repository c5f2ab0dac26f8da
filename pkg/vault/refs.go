package vault

// refIndex maps an asset id to the set of item ids referencing it. It is
// derived from Item.AssetRefs and rebuilt on every load.
type refIndex map[string]map[string]struct{}

func buildRefIndex(items []*Item) refIndex {
	idx := refIndex{}
	for _, it := range items {
		idx.addItem(it)
	}
	return idx
}

func (r refIndex) add(assetID, itemID string) {
	set, ok := r[assetID]
	if !ok {
		set = make(map[string]struct{})
		r[assetID] = set
	}
	set[itemID] = struct{}{}
}

func (r refIndex) remove(assetID, itemID string) {
	set, ok := r[assetID]
	if !ok {
		return
	}
	delete(set, itemID)
	if len(set) == 0 {
		delete(r, assetID)
	}
}

func (r refIndex) addItem(it *Item) {
	for _, ref := range it.AssetRefs {
		r.add(ref.AssetID, it.ID)
	}
}

func (r refIndex) removeItem(it *Item) {
	for _, ref := range it.AssetRefs {
		r.remove(ref.AssetID, it.ID)
	}
}
