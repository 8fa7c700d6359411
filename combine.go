package udefarp

// Codes of a combined deforestation map.
const (
	CombinedForest uint8 = 0 // Forest, deforested in neither period
	CombinedOnlyA  uint8 = 1
	CombinedOnlyB  uint8 = 2
	CombinedBoth   uint8 = 3
)

// CombinedLegend labels the codes of a combined deforestation map.
var CombinedLegend = map[uint8]string{
	CombinedForest: "Forest",
	CombinedOnlyA:  "Deforestation in period A only",
	CombinedOnlyB:  "Deforestation in period B only",
	CombinedBoth:   "Deforestation in both periods",
	BinaryNoData:   "Outside forest",
}

// CombineDeforestation merges two binary deforestation maps restricted to
// forest into one reference map. Pixels outside forest carry BinaryNoData.
func CombineDeforestation(forest, a, b *Raster[uint8]) (*Raster[uint8], error) {
	if err := CheckShapes(
		Input("forest", forest),
		Input("deforestation A", a),
		Input("deforestation B", b),
	); err != nil {
		return nil, err
	}

	out := NewLike(forest, BinaryNoData)
	for i := range out.Values {
		if forest.Values[i] != 1 {
			continue
		}
		code := CombinedForest
		if a.Values[i] == 1 {
			code |= CombinedOnlyA
		}
		if b.Values[i] == 1 {
			code |= CombinedOnlyB
		}
		out.Values[i] = code
	}
	return out, nil
}
